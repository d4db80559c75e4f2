package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/exgate/internal/git"
	"github.com/joescharf/exgate/internal/models"
	"github.com/joescharf/exgate/internal/output"
	"github.com/joescharf/exgate/internal/runner"
)

var (
	historyLimit   int
	historyExample string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded runs",
	Long:  "List recorded gate runs, newest first. Use --example to see one example across runs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyExample != "" {
			return historyExampleRun(historyExample)
		}
		return historyListRun()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show per-example results of a run",
	Long:  "Show per-example results of a recorded run. Logs of failed examples are printed in full.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyShowRun(args[0])
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a recorded run and its results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyDeleteRun(args[0])
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to show (0 = all)")
	historyCmd.Flags().StringVar(&historyExample, "example", "", "Show results for a single example")
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	rootCmd.AddCommand(historyCmd)
}

func historyListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	runs, err := s.ListRuns(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		ui.Info("No runs recorded. Use 'exgate run' to start one.")
		return nil
	}

	table := ui.Table([]string{"Run", "Started", "Status", "Passed", "Excluded", "Generator"})
	for _, r := range runs {
		table.Append([]string{
			output.Cyan(shortID(r.ID)),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			output.StatusColor(string(r.Status)),
			output.PassRateColor(r.Passed, r.Total),
			fmt.Sprintf("%d", r.Excluded),
			revString(r),
		})
	}
	return table.Render()
}

func historyShowRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	r, err := s.GetRun(ctx, id)
	if err != nil {
		return err
	}
	results, err := s.ListResults(ctx, r.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "Run:       %s\n", output.Cyan(r.ID))
	fmt.Fprintf(ui.Out, "Status:    %s\n", output.StatusColor(string(r.Status)))
	fmt.Fprintf(ui.Out, "Root:      %s\n", r.Root)
	fmt.Fprintf(ui.Out, "Command:   %s\n", r.Command)
	if rev := revString(r); rev != "" {
		fmt.Fprintf(ui.Out, "Generator: %s\n", rev)
	}
	fmt.Fprintf(ui.Out, "Started:   %s\n", r.StartedAt.Local().Format(time.RFC3339))
	if r.FinishedAt != nil {
		fmt.Fprintf(ui.Out, "Duration:  %s\n", output.Duration(r.FinishedAt.Sub(r.StartedAt)))
	}
	fmt.Fprintf(ui.Out, "Passed:    %s (excluded %d)\n\n", output.PassRateColor(r.Passed, r.Total), r.Excluded)

	if len(results) == 0 {
		ui.Info("No results recorded for this run.")
		return nil
	}

	table := ui.Table([]string{"Example", "Result", "Exit", "Duration"})
	for _, res := range results {
		table.Append([]string{
			output.Cyan(res.Example),
			output.StatusColor(resultStatus(res)),
			fmt.Sprintf("%d", res.ExitCode),
			output.Duration(time.Duration(res.DurationMS) * time.Millisecond),
		})
	}
	if err := table.Render(); err != nil {
		return err
	}

	for _, res := range results {
		if res.Passed {
			continue
		}
		fmt.Fprintln(ui.Out)
		if res.Error != "" {
			fmt.Fprintf(ui.Out, "✗ %s failed: %s\n", res.Example, res.Error)
			continue
		}
		fmt.Fprint(ui.Out, runner.FormatFailure(res.Example, res.ExitCode, res.Log))
	}
	return nil
}

func historyDeleteRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	r, err := s.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would delete run %s (%d result(s))", r.ID, r.Total)
		return nil
	}
	if err := s.DeleteRun(ctx, r.ID); err != nil {
		return err
	}
	ui.Success("Deleted run %s", output.Cyan(r.ID))
	return nil
}

func historyExampleRun(name string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	results, err := s.ExampleHistory(context.Background(), name, historyLimit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		ui.Info("No recorded results for %s", name)
		return nil
	}

	table := ui.Table([]string{"Run", "Started", "Result", "Exit", "Duration"})
	for _, res := range results {
		table.Append([]string{
			output.Cyan(shortID(res.RunID)),
			res.StartedAt.Local().Format("2006-01-02 15:04"),
			output.StatusColor(resultStatus(res)),
			fmt.Sprintf("%d", res.ExitCode),
			output.Duration(time.Duration(res.DurationMS) * time.Millisecond),
		})
	}
	return table.Render()
}

func resultStatus(res *models.ExampleResult) string {
	switch {
	case res.Passed:
		return "passed"
	case res.Error != "":
		return "error"
	default:
		return "failed"
	}
}

func revString(r *models.Run) string {
	return git.Revision{Hash: r.GeneratorRev, Dirty: r.GeneratorDirty}.String()
}

// shortID returns the first 12 characters of a ULID, enough to be unique in practice.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
