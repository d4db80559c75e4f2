package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/joescharf/exgate/internal/discovery"
)

// DefaultCommand is the generator invocation used when none is configured.
var DefaultCommand = []string{"dockergen"}

// Config describes how the generator is invoked.
type Config struct {
	// Command is the generator executable and its leading arguments. The
	// example path is appended as the final argument.
	Command []string
	// Dir is the child's working directory. Empty means the example's own
	// scratch directory.
	Dir string
	// Env entries are appended to the inherited process environment.
	Env []string
}

// Result is the outcome of running the generator against one example.
type Result struct {
	ExampleName string        `json:"example"`
	ExamplePath string        `json:"path"`
	LogPath     string        `json:"log_path"`
	ExitCode    int           `json:"exit_code"`
	Passed      bool          `json:"passed"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

// Runner invokes the generator tool as a child process.
type Runner struct {
	cfg Config
}

// New returns a Runner. An empty command falls back to DefaultCommand.
func New(cfg Config) *Runner {
	if len(cfg.Command) == 0 {
		cfg.Command = DefaultCommand
	}
	return &Runner{cfg: cfg}
}

// Config returns the runner's effective configuration.
func (r *Runner) Config() Config {
	return r.cfg
}

// CommandLine returns the argv used for ex.
func (r *Runner) CommandLine(ex discovery.Example) []string {
	args := make([]string, 0, len(r.cfg.Command)+1)
	args = append(args, r.cfg.Command...)
	return append(args, ex.Path)
}

// LogPath returns where the log for ex is written inside scratchDir.
func LogPath(scratchDir string, ex discovery.Example) string {
	return filepath.Join(scratchDir, ex.Name+".log")
}

// Run executes the generator against ex, writing stdout and stderr to a
// single log file in scratchDir, and waits for it to exit. A non-zero exit is
// reported through Result.Passed; the returned error is reserved for failures
// of the harness itself (log not creatable, generator not startable).
func (r *Runner) Run(ctx context.Context, ex discovery.Example, scratchDir string) (*Result, error) {
	if err := os.MkdirAll(scratchDir, 0755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	logPath := LogPath(scratchDir, ex)
	// An existing log is never overwritten.
	logFile, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("create log for %s: %w", ex.Name, err)
	}
	defer func() { _ = logFile.Close() }()

	argv := r.CommandLine(ex)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Dir = r.cfg.Dir
	if cmd.Dir == "" {
		cmd.Dir = scratchDir
	}
	if len(r.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), r.cfg.Env...)
	}

	res := &Result{
		ExampleName: ex.Name,
		ExamplePath: ex.Path,
		LogPath:     logPath,
		StartedAt:   time.Now().UTC(),
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", strings.Join(argv, " "), err)
	}

	err = cmd.Wait()
	res.Duration = time.Since(res.StartedAt)

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Passed = true
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("wait for %s: %w", ex.Name, err)
	}

	return res, nil
}

// ReadLog returns the captured output for res.
func ReadLog(res *Result) (string, error) {
	data, err := os.ReadFile(res.LogPath)
	if err != nil {
		return "", fmt.Errorf("read log for %s: %w", res.ExampleName, err)
	}
	return string(data), nil
}

// FailureMessage renders a self-contained report for a failed result: the
// example name, its exit status, and the full captured log.
func FailureMessage(res *Result) (string, error) {
	log, err := ReadLog(res)
	if err != nil {
		return "", err
	}
	return FormatFailure(res.ExampleName, res.ExitCode, log), nil
}

// FormatFailure builds the failure report from already-loaded log text.
func FormatFailure(name string, exitCode int, log string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✗ %s failed (exit %d)\n", name, exitCode)
	b.WriteString("---- LOG ----\n")
	b.WriteString(log)
	return b.String()
}
