package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/exgate/internal/discovery"
	"github.com/joescharf/exgate/internal/git"
	"github.com/joescharf/exgate/internal/lock"
	"github.com/joescharf/exgate/internal/output"
	"github.com/joescharf/exgate/internal/suite"
)

var (
	runTimeout  time.Duration
	runNoRecord bool
)

var runCmd = &cobra.Command{
	Use:   "run [example...]",
	Short: "Run the generator against every discovered example",
	Long: `Run the generator against each discovered example and report the result.

Examples are enumerated once at the start. Each runs in its own scratch
directory with stdout and stderr captured to <example>.log; a failing
example prints its full log and does not stop the others. The command exits
non-zero if any example failed.

Pass example names to run only those.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRun(cmd.Context(), args)
	},
}

func init() {
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Abort the whole run after this long (0 = no limit)")
	runCmd.Flags().BoolVar(&runNoRecord, "no-record", false, "Do not record this run in history")
	rootCmd.AddCommand(runCmd)
}

func runRun(ctx context.Context, only []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	d, err := newDiscoverer()
	if err != nil {
		return err
	}
	r := newRunner()

	if dryRun {
		candidates, err := d.Survey()
		if err != nil {
			return err
		}
		if missing := suite.UnknownNames(only, candidates); len(missing) > 0 {
			return fmt.Errorf("unknown example(s): %s", strings.Join(missing, ", "))
		}
		for _, c := range candidates {
			if c.Excluded || (len(only) > 0 && !slices.Contains(only, c.Name)) {
				continue
			}
			ui.DryRunMsg("Would run: %s", strings.Join(r.CommandLine(c.Example), " "))
		}
		return nil
	}

	unlock, err := acquireRunLock()
	if err != nil {
		return err
	}
	defer unlock()

	su := &suite.Suite{
		Discoverer: d,
		Runner:     r,
		ScratchDir: viper.GetString("scratch_dir"),
		Env:        sessionEnv(),
		Git:        git.NewClient(),
		OnStart: func(ex discovery.Example) {
			ui.VerboseLog("Running %s", strings.Join(r.CommandLine(ex), " "))
		},
		OnOutcome: reportOutcome,
	}
	if viper.GetBool("history.enabled") && !runNoRecord {
		s, err := getStore()
		if err != nil {
			return err
		}
		su.Store = s
	}

	report, histErr := su.Run(ctx, only)
	if report == nil {
		return histErr
	}
	if histErr != nil {
		ui.Warning("Run history incomplete: %v", histErr)
	}

	for _, c := range report.Excluded {
		ui.VerboseLog("Excluded %s: %s", c.Name, c.Reason)
	}

	if len(report.Outcomes) == 0 && !report.Cancelled() {
		ui.Warning("No examples to run in %s", d.Options().Root)
		return nil
	}

	fmt.Fprintln(ui.Out)
	if err := renderSummary(report); err != nil {
		return err
	}

	failed := report.Failed()
	if report.Cancelled() {
		for _, ex := range report.Skipped {
			ui.Warning("Not run: %s", ex.Name)
		}
		return fmt.Errorf("run cancelled after %d of %d example(s): %w",
			len(report.Outcomes), report.Run.Total, context.Cause(ctx))
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d example(s) failed", len(failed), len(report.Outcomes))
	}
	if histErr != nil {
		return fmt.Errorf("record history: %w", histErr)
	}
	ui.Success("All %d example(s) passed", len(report.Outcomes))
	return nil
}

// acquireRunLock takes state_dir/run.lock for the duration of a run.
func acquireRunLock() (func(), error) {
	dir := viper.GetString("state_dir")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	l := lock.New(filepath.Join(dir, "run.lock"))
	if err := l.Acquire(); err != nil {
		return nil, fmt.Errorf("another gate run is in progress: %w", err)
	}
	return func() {
		if err := l.Release(); err != nil {
			ui.Warning("Failed to release run lock: %v", err)
		}
	}, nil
}

// reportOutcome prints one example's result as soon as it finishes.
func reportOutcome(o suite.Outcome) {
	if o.Passed() {
		ui.Success("%s %s", o.Example.Name, output.Duration(o.Result.Duration))
		return
	}
	fmt.Fprint(ui.ErrOut, o.Failure())
}

func renderSummary(report *suite.Report) error {
	table := ui.Table([]string{"Example", "Result", "Exit", "Duration", "Log"})
	for _, o := range report.Outcomes {
		status, exit, dur, logPath := "failed", "-", "-", "-"
		if o.Passed() {
			status = "passed"
		}
		if o.Result != nil {
			exit = fmt.Sprintf("%d", o.Result.ExitCode)
			dur = output.Duration(o.Result.Duration)
			logPath = o.Result.LogPath
		}
		table.Append([]string{output.Cyan(o.Example.Name), output.StatusColor(status), exit, dur, logPath})
	}
	if err := table.Render(); err != nil {
		return err
	}

	run := report.Run
	fmt.Fprintf(ui.Out, "\nPassed: %s  Excluded: %d", output.PassRateColor(run.Passed, run.Total), run.Excluded)
	if run.GeneratorRev != "" {
		rev := git.Revision{Hash: run.GeneratorRev, Dirty: run.GeneratorDirty}
		fmt.Fprintf(ui.Out, "  Generator: %s", rev)
	}
	if run.ID != "" {
		fmt.Fprintf(ui.Out, "  Run: %s", run.ID)
	}
	fmt.Fprintln(ui.Out)
	return nil
}
