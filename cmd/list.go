package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/joescharf/exgate/internal/discovery"
	"github.com/joescharf/exgate/internal/output"
)

var (
	listAll  bool
	listJSON bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List discovered examples",
	Long: `List the examples the generator is gated on.

With --all, excluded candidates (war packaging, or a missing descriptor when
examples.missing_descriptor is "exclude") are listed too, with the reason.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRun()
	},
}

func init() {
	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "Include excluded candidates")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(listCmd)
}

func listRun() error {
	d, err := newDiscoverer()
	if err != nil {
		return err
	}

	candidates, err := d.Survey()
	if err != nil {
		return err
	}

	var shown []discovery.Candidate
	for _, c := range candidates {
		if c.Excluded && !listAll {
			continue
		}
		shown = append(shown, c)
	}

	if listJSON {
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		if shown == nil {
			shown = []discovery.Candidate{}
		}
		return enc.Encode(shown)
	}

	if len(shown) == 0 {
		ui.Info("No examples found in %s (prefix %q)", d.Options().Root, d.Options().Prefix)
		return nil
	}

	table := ui.Table([]string{"Example", "Packaging", "Status", "Path"})
	included := 0
	for _, c := range shown {
		status := output.StatusColor("included")
		if c.Excluded {
			status = output.StatusColor("excluded") + ": " + output.Yellow(c.Reason)
		} else {
			included++
		}
		table.Append([]string{output.Cyan(c.Name), string(c.Packaging), status, c.Path})
	}
	if err := table.Render(); err != nil {
		return err
	}

	ui.VerboseLog("%d included, %d shown", included, len(shown))
	return nil
}
