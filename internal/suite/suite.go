package suite

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/joescharf/exgate/internal/discovery"
	"github.com/joescharf/exgate/internal/git"
	"github.com/joescharf/exgate/internal/models"
	"github.com/joescharf/exgate/internal/runner"
	"github.com/joescharf/exgate/internal/session"
	"github.com/joescharf/exgate/internal/store"
)

// Outcome is the result of one example within a suite run.
type Outcome struct {
	Example discovery.Example
	Result  *runner.Result // nil when the generator never ran
	Err     error          // harness-level error
	Log     string
}

// Passed reports whether the generator ran and exited 0.
func (o Outcome) Passed() bool {
	return o.Err == nil && o.Result != nil && o.Result.Passed
}

// Failure renders the self-contained failure report for o.
func (o Outcome) Failure() string {
	if o.Err != nil {
		return fmt.Sprintf("✗ %s failed: %v\n", o.Example.Name, o.Err)
	}
	return runner.FormatFailure(o.Example.Name, o.Result.ExitCode, o.Log)
}

// Suite wires discovery, the runner and optional run history together.
type Suite struct {
	Discoverer *discovery.Discoverer
	Runner     *runner.Runner
	ScratchDir string
	Env        []string

	// Optional.
	Store     store.Store
	Git       git.Client
	OnStart   func(ex discovery.Example)
	OnOutcome func(o Outcome)
}

// Report summarizes a finished suite run.
type Report struct {
	Run      *models.Run
	Outcomes []Outcome
	Excluded []discovery.Candidate
	// Skipped lists examples never started because the run was cancelled.
	Skipped []discovery.Example
}

// Cancelled reports whether the run stopped before finishing.
func (r *Report) Cancelled() bool {
	return r.Run != nil && r.Run.Status == models.RunStatusCancelled
}

// Failed returns the outcomes that did not pass.
func (r *Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.Passed() {
			out = append(out, o)
		}
	}
	return out
}

// Run applies the session environment, enumerates examples once, and runs
// the generator against each (optionally only those named in only). A
// failing example never stops the remaining ones. Generator failures are
// reported in the Report.
//
// Cancelling ctx kills the running generator and skips the remaining
// examples; the partial Report is returned with status cancelled. Once the
// run is recorded, history writes ignore cancellation and the run is always
// finished. A history write error is returned together with the Report.
func (s *Suite) Run(ctx context.Context, only []string) (*Report, error) {
	if err := session.Ensure(s.Env); err != nil {
		return nil, err
	}

	candidates, err := s.Discoverer.Survey()
	if err != nil {
		return nil, err
	}

	var examples []discovery.Example
	report := &Report{}
	for _, c := range candidates {
		if len(only) > 0 && !slices.Contains(only, c.Name) {
			continue
		}
		if c.Excluded {
			report.Excluded = append(report.Excluded, c)
			continue
		}
		examples = append(examples, c.Example)
	}
	if missing := UnknownNames(only, candidates); len(missing) > 0 {
		return nil, fmt.Errorf("unknown example(s): %s", strings.Join(missing, ", "))
	}

	run := &models.Run{
		Root:     s.Discoverer.Options().Root,
		Command:  strings.Join(s.Runner.Config().Command, " "),
		Total:    len(examples),
		Excluded: len(report.Excluded),
	}
	if s.Git != nil {
		dir := s.Runner.Config().Dir
		if dir == "" {
			dir, _ = os.Getwd()
		}
		rev := git.Stamp(s.Git, dir)
		run.GeneratorRev, run.GeneratorDirty = rev.Hash, rev.Dirty
	}
	if s.Store != nil {
		if err := s.Store.CreateRun(ctx, run); err != nil {
			return nil, err
		}
	}
	report.Run = run

	if err := os.MkdirAll(s.ScratchDir, 0755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	// History must be finalized even when ctx is already done.
	histCtx := context.WithoutCancel(ctx)
	var histErr error

	for i, ex := range examples {
		if ctx.Err() != nil {
			report.Skipped = examples[i:]
			break
		}
		if s.OnStart != nil {
			s.OnStart(ex)
		}
		o := s.runOne(ctx, ex)
		report.Outcomes = append(report.Outcomes, o)
		if o.Passed() {
			run.Passed++
		} else {
			run.Failed++
		}

		if s.Store != nil && histErr == nil {
			histErr = s.Store.AddResult(histCtx, toModel(run.ID, o))
		}
		if s.OnOutcome != nil {
			s.OnOutcome(o)
		}
	}

	switch {
	case ctx.Err() != nil:
		run.Status = models.RunStatusCancelled
	case run.Failed > 0:
		run.Status = models.RunStatusFailed
	default:
		run.Status = models.RunStatusPassed
	}
	if s.Store != nil {
		if err := s.Store.FinishRun(histCtx, run); err != nil && histErr == nil {
			histErr = err
		}
	}
	return report, histErr
}

// runOne gives ex its own scratch directory under s.ScratchDir and runs it.
func (s *Suite) runOne(ctx context.Context, ex discovery.Example) Outcome {
	o := Outcome{Example: ex}

	scratch, err := os.MkdirTemp(s.ScratchDir, ex.Name+"-*")
	if err != nil {
		o.Err = fmt.Errorf("create scratch dir: %w", err)
		return o
	}

	res, err := s.Runner.Run(ctx, ex, scratch)
	if err != nil {
		o.Err = err
		return o
	}
	o.Result = res

	if !res.Passed {
		log, err := runner.ReadLog(res)
		if err != nil {
			o.Err = err
			return o
		}
		o.Log = log
	}
	return o
}

// UnknownNames returns the names in only that match no candidate.
func UnknownNames(only []string, candidates []discovery.Candidate) []string {
	var missing []string
	for _, name := range only {
		found := slices.ContainsFunc(candidates, func(c discovery.Candidate) bool { return c.Name == name })
		if !found {
			missing = append(missing, name)
		}
	}
	return missing
}

func toModel(runID string, o Outcome) *models.ExampleResult {
	m := &models.ExampleResult{
		RunID:   runID,
		Example: o.Example.Name,
		Path:    o.Example.Path,
		Log:     o.Log,
	}
	if o.Err != nil {
		m.Error = o.Err.Error()
	}
	if o.Result != nil {
		m.LogPath = o.Result.LogPath
		m.ExitCode = o.Result.ExitCode
		m.Passed = o.Result.Passed
		m.DurationMS = o.Result.Duration.Milliseconds()
		m.StartedAt = o.Result.StartedAt
	}
	return m
}
