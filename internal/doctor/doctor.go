package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joescharf/exgate/internal/discovery"
	"github.com/joescharf/exgate/internal/session"
)

// Check represents a single environment check.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Config is what the checker inspects.
type Config struct {
	Discovery    discovery.Options
	Command      []string
	GeneratorDir string
	ScratchDir   string
	Env          []string
}

// Checker evaluates whether a gate run can work in this environment.
type Checker struct {
	cfg Config
}

// NewChecker returns a new Checker.
func NewChecker(cfg Config) *Checker {
	return &Checker{cfg: cfg}
}

// Run evaluates all checks.
func (c *Checker) Run() []Check {
	var checks []Check

	checks = append(checks, checkDir(c.cfg.Discovery.Root, "Examples root"))
	checks = append(checks, c.checkExamples())
	checks = append(checks, c.checkGenerator())
	if c.cfg.GeneratorDir != "" {
		checks = append(checks, checkGeneratorDir(c.cfg.GeneratorDir))
	}
	checks = append(checks, checkWritable(c.cfg.ScratchDir, "Scratch dir"))
	checks = append(checks, checkEnv(c.cfg.Env))

	return checks
}

// Passed reports whether every check passed.
func Passed(checks []Check) bool {
	for _, ch := range checks {
		if !ch.Passed {
			return false
		}
	}
	return true
}

func checkDir(path, label string) Check {
	if path == "" {
		return Check{Name: label, Passed: false, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return Check{Name: label, Passed: true, Detail: path}
	}
	return Check{Name: label, Passed: false, Detail: path + " missing"}
}

func (c *Checker) checkExamples() Check {
	d := discovery.New(c.cfg.Discovery)
	candidates, err := d.Survey()
	if err != nil {
		return Check{Name: "Examples", Passed: false, Detail: err.Error()}
	}
	included := 0
	for _, cand := range candidates {
		if !cand.Excluded {
			included++
		}
	}
	detail := fmt.Sprintf("%d included, %d excluded (prefix %q)", included, len(candidates)-included, d.Options().Prefix)
	return Check{Name: "Examples", Passed: included > 0, Detail: detail}
}

func (c *Checker) checkGenerator() Check {
	if len(c.cfg.Command) == 0 {
		return Check{Name: "Generator", Passed: false, Detail: "no command configured"}
	}
	exe := c.cfg.Command[0]
	// Relative paths with a separator resolve against the child's working dir.
	if strings.ContainsRune(exe, filepath.Separator) && !filepath.IsAbs(exe) && c.cfg.GeneratorDir != "" {
		exe = filepath.Join(c.cfg.GeneratorDir, exe)
	}
	path, err := exec.LookPath(exe)
	if err != nil {
		return Check{Name: "Generator", Passed: false, Detail: fmt.Sprintf("%s not found", c.cfg.Command[0])}
	}
	return Check{Name: "Generator", Passed: true, Detail: path}
}

func checkWritable(dir, label string) Check {
	if dir == "" {
		return Check{Name: label, Passed: false, Detail: "not configured"}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Check{Name: label, Passed: false, Detail: err.Error()}
	}
	f, err := os.CreateTemp(dir, ".exgate-doctor-*")
	if err != nil {
		return Check{Name: label, Passed: false, Detail: dir + " not writable"}
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return Check{Name: label, Passed: true, Detail: dir}
}

func checkEnv(env []string) Check {
	if len(env) == 0 {
		return Check{Name: "Session env", Passed: true, Detail: "none"}
	}
	var keys []string
	for _, kv := range env {
		key, _, err := session.Split(kv)
		if err != nil {
			return Check{Name: "Session env", Passed: false, Detail: err.Error()}
		}
		keys = append(keys, key)
	}

	defaulted := session.Missing(env)
	var preset []string
	for _, key := range keys {
		if !slices.Contains(defaulted, key) {
			preset = append(preset, key)
		}
	}

	var parts []string
	if len(preset) > 0 {
		parts = append(parts, "set: "+strings.Join(preset, ", "))
	}
	if len(defaulted) > 0 {
		parts = append(parts, "defaulted: "+strings.Join(defaulted, ", "))
	}
	return Check{Name: "Session env", Passed: true, Detail: strings.Join(parts, "; ")}
}
