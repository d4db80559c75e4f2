package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "exgate"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage exgate configuration.

Running bare 'exgate config' is the same as 'exgate config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# exgate configuration
# See: exgate config show (for effective values and sources)

# State/data directory (default: ~/.config/exgate)
# state_dir: {{ .StateDir }}

# SQLite run-history database (default: ~/.config/exgate/exgate.db)
# db_path: {{ .DBPath }}

# Parent directory for per-example scratch logs
scratch_dir: "{{ .ScratchDir }}"

# Session environment, KEY=VALUE entries separated by spaces. Each key is
# set only if not already present in the environment.
env: "{{ .Env }}"

examples:
  # Directory containing the sample projects
  root: "{{ .ExamplesRoot }}"

  # Only direct children with this name prefix are candidates
  prefix: "{{ .ExamplesPrefix }}"

  # Build descriptor, relative to each example directory
  descriptor: "{{ .ExamplesDescriptor }}"

  # Examples whose descriptor contains this text are excluded
  exclude_marker: "{{ .ExamplesMarker }}"

  # Examples without a descriptor: include or exclude
  missing_descriptor: "{{ .ExamplesMissing }}"

generator:
  # Generator command; the example path is appended as the last argument
  command: "{{ .GeneratorCommand }}"

  # Working directory for the generator. Empty runs each example in its own
  # scratch directory.
  dir: "{{ .GeneratorDir }}"

history:
  # Record runs in the SQLite database
  enabled: {{ .HistoryEnabled }}
`

type configTemplateData struct {
	StateDir           string
	DBPath             string
	ScratchDir         string
	Env                string
	ExamplesRoot       string
	ExamplesPrefix     string
	ExamplesDescriptor string
	ExamplesMarker     string
	ExamplesMissing    string
	GeneratorCommand   string
	GeneratorDir       string
	HistoryEnabled     bool
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:           viper.GetString("state_dir"),
		DBPath:             viper.GetString("db_path"),
		ScratchDir:         viper.GetString("scratch_dir"),
		Env:                strings.Join(viper.GetStringSlice("env"), " "),
		ExamplesRoot:       viper.GetString("examples.root"),
		ExamplesPrefix:     viper.GetString("examples.prefix"),
		ExamplesDescriptor: viper.GetString("examples.descriptor"),
		ExamplesMarker:     viper.GetString("examples.exclude_marker"),
		ExamplesMissing:    viper.GetString("examples.missing_descriptor"),
		GeneratorCommand:   viper.GetString("generator.command"),
		GeneratorDir:       viper.GetString("generator.dir"),
		HistoryEnabled:     viper.GetBool("history.enabled"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "EXGATE_STATE_DIR"},
	{Key: "db_path", EnvVar: "EXGATE_DB_PATH"},
	{Key: "scratch_dir", EnvVar: "EXGATE_SCRATCH_DIR"},
	{Key: "env", EnvVar: "EXGATE_ENV"},
	{Key: "examples.root", EnvVar: "EXGATE_EXAMPLES_ROOT"},
	{Key: "examples.prefix", EnvVar: "EXGATE_EXAMPLES_PREFIX"},
	{Key: "examples.descriptor", EnvVar: "EXGATE_EXAMPLES_DESCRIPTOR"},
	{Key: "examples.exclude_marker", EnvVar: "EXGATE_EXAMPLES_EXCLUDE_MARKER"},
	{Key: "examples.missing_descriptor", EnvVar: "EXGATE_EXAMPLES_MISSING_DESCRIPTOR"},
	{Key: "generator.command", EnvVar: "EXGATE_GENERATOR_COMMAND"},
	{Key: "generator.dir", EnvVar: "EXGATE_GENERATOR_DIR"},
	{Key: "history.enabled", EnvVar: "EXGATE_HISTORY_ENABLED"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-28s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set: set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'exgate config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
