package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/joescharf/exgate/internal/git"
	"github.com/joescharf/exgate/internal/mcp"
	"github.com/joescharf/exgate/internal/store"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

Configure in an MCP client with:

  {
    "mcpServers": {
      "exgate": { "command": "exgate", "args": ["mcp"] }
    }
  }

Available tools: exgate_list_examples, exgate_run_example,
exgate_list_runs, exgate_run_results`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDiscoverer()
		if err != nil {
			return err
		}

		logger, err := newMCPLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		var s store.Store
		if viper.GetBool("history.enabled") {
			if s, err = getStore(); err != nil {
				return err
			}
		}

		srv := mcp.NewServer(mcp.Options{
			Discoverer: d,
			Runner:     newRunner(),
			Store:      s,
			Git:        git.NewClient(),
			ScratchDir: viper.GetString("scratch_dir"),
			Env:        sessionEnv(),
			Version:    buildVersion,
			Logger:     logger,
		})
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// newMCPLogger returns a JSON logger on stderr, at debug level with --verbose.
func newMCPLogger() (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stderr"}
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}
