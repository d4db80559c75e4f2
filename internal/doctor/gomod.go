package doctor

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// modulePath returns the module path declared in dir/go.mod.
func modulePath(dir string) (string, error) {
	goMod := filepath.Join(dir, "go.mod")
	f, err := os.Open(goMod)
	if err != nil {
		return "", fmt.Errorf("open go.mod: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if rest, ok := strings.CutPrefix(line, "module "); ok {
			return strings.Trim(strings.TrimSpace(rest), `"`), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read go.mod: %w", err)
	}
	return "", fmt.Errorf("module directive not found in %s", goMod)
}

// checkGeneratorDir reports the generator working directory and, when it is
// a Go module, the module it builds from.
func checkGeneratorDir(dir string) Check {
	ch := checkDir(dir, "Generator dir")
	if !ch.Passed {
		return ch
	}
	if mod, err := modulePath(dir); err == nil {
		ch.Detail = fmt.Sprintf("%s (module %s)", dir, mod)
	}
	return ch
}
