package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/exgate/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Runs ---

const runColumns = `id, root, command, generator_rev, generator_dirty, status, total, passed, failed, excluded, started_at, finished_at`

func (s *SQLiteStore) CreateRun(ctx context.Context, r *models.Run) error {
	if r.ID == "" {
		r.ID = newULID()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = models.RunStatusRunning
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Root, r.Command, r.GeneratorRev, boolToInt(r.GeneratorDirty), string(r.Status),
		r.Total, r.Passed, r.Failed, r.Excluded, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// GetRun looks a run up by full ID or by a unique ID prefix.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	runs, err := s.scanRuns(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(runs) == 1 {
		return runs[0], nil
	}

	runs, err = s.scanRuns(ctx, `SELECT `+runColumns+` FROM runs WHERE id LIKE ? LIMIT 2`, id+"%")
	if err != nil {
		return nil, err
	}
	switch len(runs) {
	case 0:
		return nil, fmt.Errorf("run not found: %s", id)
	case 1:
		return runs[0], nil
	default:
		return nil, fmt.Errorf("ambiguous run ID prefix: %s", id)
	}
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.scanRuns(ctx, query, args...)
}

// FinishRun stores the final counts and status of r and stamps FinishedAt.
func (s *SQLiteStore) FinishRun(ctx context.Context, r *models.Run) error {
	now := time.Now().UTC()
	r.FinishedAt = &now

	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status=?, total=?, passed=?, failed=?, excluded=?, finished_at=? WHERE id=?`,
		string(r.Status), r.Total, r.Passed, r.Failed, r.Excluded, r.FinishedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run not found: %s", r.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) scanRuns(ctx context.Context, query string, args ...any) ([]*models.Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*models.Run
	for rows.Next() {
		r := &models.Run{}
		var status string
		var finishedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.Root, &r.Command, &r.GeneratorRev, &r.GeneratorDirty, &status,
			&r.Total, &r.Passed, &r.Failed, &r.Excluded, &r.StartedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Status = models.RunStatus(status)
		if finishedAt.Valid {
			r.FinishedAt = &finishedAt.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- Results ---

const resultColumns = `id, run_id, example, path, log_path, exit_code, passed, log, error, duration_ms, started_at`

func (s *SQLiteStore) AddResult(ctx context.Context, res *models.ExampleResult) error {
	if res.ID == "" {
		res.ID = newULID()
	}
	if res.StartedAt.IsZero() {
		res.StartedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO results (`+resultColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.RunID, res.Example, res.Path, res.LogPath, res.ExitCode, boolToInt(res.Passed),
		res.Log, res.Error, res.DurationMS, res.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("add result: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListResults(ctx context.Context, runID string) ([]*models.ExampleResult, error) {
	return s.scanResults(ctx,
		`SELECT `+resultColumns+` FROM results WHERE run_id = ? ORDER BY example`, runID)
}

// ExampleHistory returns the most recent results for one example across runs.
func (s *SQLiteStore) ExampleHistory(ctx context.Context, example string, limit int) ([]*models.ExampleResult, error) {
	query := `SELECT ` + resultColumns + ` FROM results WHERE example = ? ORDER BY started_at DESC, id DESC`
	args := []any{example}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.scanResults(ctx, query, args...)
}

func (s *SQLiteStore) scanResults(ctx context.Context, query string, args ...any) ([]*models.ExampleResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.ExampleResult
	for rows.Next() {
		res := &models.ExampleResult{}
		if err := rows.Scan(&res.ID, &res.RunID, &res.Example, &res.Path, &res.LogPath, &res.ExitCode,
			&res.Passed, &res.Log, &res.Error, &res.DurationMS, &res.StartedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
