package cmd

import (
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/joescharf/exgate/internal/discovery"
	"github.com/joescharf/exgate/internal/runner"
)

// newDiscoverer builds a Discoverer from config.
func newDiscoverer() (*discovery.Discoverer, error) {
	missing, err := discovery.ParseMissingPolicy(viper.GetString("examples.missing_descriptor"))
	if err != nil {
		return nil, err
	}
	root := viper.GetString("examples.root")
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return discovery.New(discovery.Options{
		Root:       root,
		Prefix:     viper.GetString("examples.prefix"),
		Descriptor: viper.GetString("examples.descriptor"),
		Marker:     viper.GetString("examples.exclude_marker"),
		Missing:    missing,
	}), nil
}

// newRunner builds a generator Runner from config.
func newRunner() *runner.Runner {
	dir := viper.GetString("generator.dir")
	if dir != "" {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
	}
	return runner.New(runner.Config{
		Command: strings.Fields(viper.GetString("generator.command")),
		Dir:     dir,
	})
}

// sessionEnv returns the configured KEY=VALUE session environment.
func sessionEnv() []string {
	return viper.GetStringSlice("env")
}
