package suite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/exgate/internal/discovery"
	"github.com/joescharf/exgate/internal/models"
	"github.com/joescharf/exgate/internal/runner"
	"github.com/joescharf/exgate/internal/store"
)

// The generator fails for any example whose name ends in "-bad".
const genScript = `#!/bin/sh
case "$1" in
  *-bad) echo "template not found" >&2; exit 3 ;;
  *) echo "generated $1" ;;
esac
`

func setup(t *testing.T) (root, gen string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script generator requires a POSIX shell")
	}
	root = t.TempDir()
	for _, name := range []string{"spring-boot-good", "spring-boot-bad", "spring-boot-war"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, name), 0755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "spring-boot-war", "pom.xml"),
		[]byte("<project><packaging>war</packaging></project>"), 0644))

	gen = filepath.Join(t.TempDir(), "gen.sh")
	require.NoError(t, os.WriteFile(gen, []byte(genScript), 0755))
	return root, gen
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRun_ReportsEachExample(t *testing.T) {
	root, gen := setup(t)
	s := newTestStore(t)

	var started []string
	su := &Suite{
		Discoverer: discovery.New(discovery.Options{Root: root}),
		Runner:     runner.New(runner.Config{Command: []string{gen}}),
		ScratchDir: t.TempDir(),
		Store:      s,
		OnStart:    func(ex discovery.Example) { started = append(started, ex.Name) },
	}

	report, err := su.Run(context.Background(), nil)
	require.NoError(t, err)

	// The failing example does not stop the one after it.
	assert.Equal(t, []string{"spring-boot-bad", "spring-boot-good"}, started)
	require.Len(t, report.Outcomes, 2)
	require.Len(t, report.Excluded, 1)
	assert.Equal(t, "spring-boot-war", report.Excluded[0].Name)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "spring-boot-bad", failed[0].Example.Name)
	assert.Equal(t, 3, failed[0].Result.ExitCode)
	assert.Contains(t, failed[0].Failure(), "spring-boot-bad")
	assert.Contains(t, failed[0].Failure(), "template not found")

	assert.Equal(t, models.RunStatusFailed, report.Run.Status)
	assert.Equal(t, 2, report.Run.Total)
	assert.Equal(t, 1, report.Run.Passed)
	assert.Equal(t, 1, report.Run.Failed)
	assert.Equal(t, 1, report.Run.Excluded)

	stored, err := s.GetRun(context.Background(), report.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	require.NotNil(t, stored.FinishedAt)

	results, err := s.ListResults(context.Background(), report.Run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "spring-boot-bad", results[0].Example)
	assert.Equal(t, "template not found\n", results[0].Log)
	assert.True(t, results[1].Passed)
	assert.Empty(t, results[1].Log)
}

func TestRun_DistinctScratchPerExample(t *testing.T) {
	root, gen := setup(t)
	su := &Suite{
		Discoverer: discovery.New(discovery.Options{Root: root}),
		Runner:     runner.New(runner.Config{Command: []string{gen}}),
		ScratchDir: t.TempDir(),
	}

	report, err := su.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)
	assert.NotEqual(t,
		filepath.Dir(report.Outcomes[0].Result.LogPath),
		filepath.Dir(report.Outcomes[1].Result.LogPath))
}

func TestRun_OnlySelected(t *testing.T) {
	root, gen := setup(t)
	su := &Suite{
		Discoverer: discovery.New(discovery.Options{Root: root}),
		Runner:     runner.New(runner.Config{Command: []string{gen}}),
		ScratchDir: t.TempDir(),
	}

	report, err := su.Run(context.Background(), []string{"spring-boot-good"})
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.True(t, report.Outcomes[0].Passed())
	assert.Equal(t, models.RunStatusPassed, report.Run.Status)
	assert.Empty(t, report.Excluded)
}

func TestRun_UnknownName(t *testing.T) {
	root, gen := setup(t)
	su := &Suite{
		Discoverer: discovery.New(discovery.Options{Root: root}),
		Runner:     runner.New(runner.Config{Command: []string{gen}}),
		ScratchDir: t.TempDir(),
	}

	_, err := su.Run(context.Background(), []string{"spring-boot-nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spring-boot-nope")
}

func TestRun_DiscoveryErrorIsFatal(t *testing.T) {
	su := &Suite{
		Discoverer: discovery.New(discovery.Options{Root: filepath.Join(t.TempDir(), "missing")}),
		Runner:     runner.New(runner.Config{}),
		ScratchDir: t.TempDir(),
	}
	_, err := su.Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestRun_GeneratorMissingIsReportedPerExample(t *testing.T) {
	root, _ := setup(t)
	su := &Suite{
		Discoverer: discovery.New(discovery.Options{Root: root}),
		Runner:     runner.New(runner.Config{Command: []string{filepath.Join(t.TempDir(), "nope")}}),
		ScratchDir: t.TempDir(),
	}

	report, err := su.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, report.Failed(), 2)
	for _, o := range report.Failed() {
		require.Error(t, o.Err)
		assert.Contains(t, o.Failure(), o.Example.Name)
	}
}

const sleepScript = "#!/bin/sh\nexec sleep 30\n"

func TestRun_DeadlineFinalizesHistory(t *testing.T) {
	root, _ := setup(t)
	gen := filepath.Join(t.TempDir(), "slow.sh")
	require.NoError(t, os.WriteFile(gen, []byte(sleepScript), 0755))
	s := newTestStore(t)

	su := &Suite{
		Discoverer: discovery.New(discovery.Options{Root: root}),
		Runner:     runner.New(runner.Config{Command: []string{gen}}),
		ScratchDir: t.TempDir(),
		Store:      s,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	report, err := su.Run(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.True(t, report.Cancelled())

	// The first example is killed; the second never starts.
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, "spring-boot-bad", report.Outcomes[0].Example.Name)
	assert.False(t, report.Outcomes[0].Passed())
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "spring-boot-good", report.Skipped[0].Name)

	stored, err := s.GetRun(context.Background(), report.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, stored.Status)
	require.NotNil(t, stored.FinishedAt)
	assert.Equal(t, 1, stored.Failed)

	results, err := s.ListResults(context.Background(), report.Run.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "spring-boot-bad", results[0].Example)
}

func TestRun_AlreadyCancelled(t *testing.T) {
	root, gen := setup(t)
	s := newTestStore(t)

	var started []string
	su := &Suite{
		Discoverer: discovery.New(discovery.Options{Root: root}),
		Runner:     runner.New(runner.Config{Command: []string{gen}}),
		ScratchDir: t.TempDir(),
		Store:      s,
		OnStart:    func(ex discovery.Example) { started = append(started, ex.Name) },
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := su.Run(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, started)
	assert.Empty(t, report.Outcomes)
	assert.Len(t, report.Skipped, 2)
	assert.True(t, report.Cancelled())

	stored, err := s.GetRun(context.Background(), report.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, stored.Status)
	assert.NotNil(t, stored.FinishedAt)
}

// failingResults rejects every AddResult.
type failingResults struct {
	store.Store
}

func (f failingResults) AddResult(context.Context, *models.ExampleResult) error {
	return errors.New("disk full")
}

func TestRun_HistoryErrorKeepsReport(t *testing.T) {
	root, gen := setup(t)
	s := newTestStore(t)

	var seen []string
	su := &Suite{
		Discoverer: discovery.New(discovery.Options{Root: root}),
		Runner:     runner.New(runner.Config{Command: []string{gen}}),
		ScratchDir: t.TempDir(),
		Store:      failingResults{Store: s},
		OnOutcome:  func(o Outcome) { seen = append(seen, o.Example.Name) },
	}

	report, err := su.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	// Every example still runs and is reported.
	require.NotNil(t, report)
	assert.Len(t, report.Outcomes, 2)
	assert.Equal(t, []string{"spring-boot-bad", "spring-boot-good"}, seen)

	stored, err := s.GetRun(context.Background(), report.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	assert.NotNil(t, stored.FinishedAt)
}

func TestUnknownNames(t *testing.T) {
	candidates := []discovery.Candidate{
		{Example: discovery.Example{Name: "spring-boot-a"}},
		{Example: discovery.Example{Name: "spring-boot-war"}, Excluded: true},
	}
	assert.Empty(t, UnknownNames(nil, candidates))
	assert.Empty(t, UnknownNames([]string{"spring-boot-war"}, candidates))
	assert.Equal(t, []string{"spring-boot-x"}, UnknownNames([]string{"spring-boot-a", "spring-boot-x"}, candidates))
}
