package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/exgate/internal/models"
	"github.com/joescharf/exgate/internal/store"
)

var (
	exportFormat string
	exportRunID  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export run results as JSON, CSV, or Markdown",
	Long:  "Export the per-example results of a recorded run (default: the latest run).",
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun()
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json, csv, markdown")
	exportCmd.Flags().StringVar(&exportRunID, "run", "", "Run ID or prefix (default: latest)")
	rootCmd.AddCommand(exportCmd)
}

func exportRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	r, err := resolveRun(ctx, s, exportRunID)
	if err != nil {
		return err
	}
	results, err := s.ListResults(ctx, r.ID)
	if err != nil {
		return err
	}

	switch exportFormat {
	case "json":
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		if results == nil {
			results = []*models.ExampleResult{}
		}
		return enc.Encode(struct {
			Run     *models.Run             `json:"run"`
			Results []*models.ExampleResult `json:"results"`
		}{r, results})
	case "csv":
		w := csv.NewWriter(ui.Out)
		w.Write([]string{"Run", "Example", "Passed", "ExitCode", "DurationMS", "Error", "LogPath"})
		for _, res := range results {
			w.Write([]string{r.ID, res.Example, fmt.Sprintf("%t", res.Passed), fmt.Sprintf("%d", res.ExitCode),
				fmt.Sprintf("%d", res.DurationMS), res.Error, res.LogPath})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintf(ui.Out, "# Run %s\n", r.ID)
		fmt.Fprintln(ui.Out)
		fmt.Fprintf(ui.Out, "Status: %s, passed %d/%d, excluded %d\n", r.Status, r.Passed, r.Total, r.Excluded)
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| Example | Result | Exit | Duration (ms) |")
		fmt.Fprintln(ui.Out, "|---------|--------|------|---------------|")
		for _, res := range results {
			fmt.Fprintf(ui.Out, "| %s | %s | %d | %d |\n", res.Example, resultStatus(res), res.ExitCode, res.DurationMS)
		}
		for _, res := range results {
			if res.Passed || res.Log == "" {
				continue
			}
			fmt.Fprintf(ui.Out, "\n## %s\n\n```\n%s```\n", res.Example, res.Log)
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", exportFormat)
	}
}

// resolveRun returns the run matching id, or the latest run when id is empty.
func resolveRun(ctx context.Context, s store.Store, id string) (*models.Run, error) {
	if id != "" {
		return s.GetRun(ctx, id)
	}
	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs recorded")
	}
	return runs[0], nil
}
