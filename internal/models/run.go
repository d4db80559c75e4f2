package models

import "time"

// RunStatus represents the state of a gate run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusPassed    RunStatus = "passed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled" // stopped before every example ran
)

// Run is one `exgate run` session over the discovered example set.
type Run struct {
	ID             string     `json:"id"`
	Root           string     `json:"root"`
	Command        string     `json:"command"`
	GeneratorRev   string     `json:"generator_rev,omitempty"`
	GeneratorDirty bool       `json:"generator_dirty"`
	Status         RunStatus  `json:"status"`
	Total          int        `json:"total"`
	Passed         int        `json:"passed"`
	Failed         int        `json:"failed"`
	Excluded       int        `json:"excluded"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// ExampleResult records the generator outcome for one example within a run.
type ExampleResult struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Example    string    `json:"example"`
	Path       string    `json:"path"`
	LogPath    string    `json:"log_path"`
	ExitCode   int       `json:"exit_code"`
	Passed     bool      `json:"passed"`
	Log        string    `json:"log,omitempty"`   // captured output, kept for failures
	Error      string    `json:"error,omitempty"` // harness-level error, if the generator never ran
	DurationMS int64     `json:"duration_ms"`
	StartedAt  time.Time `json:"started_at"`
}
