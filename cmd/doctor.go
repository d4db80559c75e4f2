package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/exgate/internal/doctor"
	"github.com/joescharf/exgate/internal/output"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that a gate run can work here",
	Long:  "Check the examples root, generator command, scratch directory and session environment.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return doctorRun()
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func doctorRun() error {
	d, err := newDiscoverer()
	if err != nil {
		return err
	}
	r := newRunner()

	checker := doctor.NewChecker(doctor.Config{
		Discovery:    d.Options(),
		Command:      r.Config().Command,
		GeneratorDir: r.Config().Dir,
		ScratchDir:   viper.GetString("scratch_dir"),
		Env:          sessionEnv(),
	})
	checks := checker.Run()

	passed := 0
	for _, c := range checks {
		icon := output.Red("✗")
		if c.Passed {
			icon = output.Green("✓")
			passed++
		}
		fmt.Fprintf(ui.Out, "  %s %-15s %s\n", icon, c.Name, c.Detail)
	}
	fmt.Fprintf(ui.Out, "  Score: %d/%d\n", passed, len(checks))
	ui.VerboseLog("Generator command: %s", strings.Join(r.Config().Command, " "))

	if !doctor.Passed(checks) {
		return fmt.Errorf("%d check(s) failed", len(checks)-passed)
	}
	return nil
}
