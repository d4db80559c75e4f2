package session

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// DefaultEnv puts the generator's LLM client into offline mock mode.
var DefaultEnv = []string{"OPENAI_MOCK=1"}

var (
	once    sync.Once
	onceErr error
)

// Ensure applies env once per process. Each KEY=VALUE entry is set only when
// KEY is not already present, so values exported by the caller win. Later
// calls are no-ops and return the first call's error.
func Ensure(env []string) error {
	once.Do(func() {
		onceErr = Apply(env)
	})
	return onceErr
}

// Apply sets every entry of env whose key is unset, without the once guard.
func Apply(env []string) error {
	for _, kv := range env {
		key, value, err := Split(kv)
		if err != nil {
			return err
		}
		if _, ok := os.LookupEnv(key); ok {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

// Split parses a KEY=VALUE entry.
func Split(kv string) (key, value string, err error) {
	key, value, ok := strings.Cut(kv, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("invalid env entry %q (want KEY=VALUE)", kv)
	}
	return key, value, nil
}

// Missing returns the keys of env that are not set in the process environment.
func Missing(env []string) []string {
	var out []string
	for _, kv := range env {
		key, _, err := Split(kv)
		if err != nil {
			continue
		}
		if _, ok := os.LookupEnv(key); !ok {
			out = append(out, key)
		}
	}
	return out
}
