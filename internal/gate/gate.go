// Package gate turns discovered examples into Go test cases. Each example
// becomes one subtest that runs the generator and fails with the captured
// log when the generator exits non-zero.
package gate

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joescharf/exgate/internal/discovery"
	"github.com/joescharf/exgate/internal/runner"
	"github.com/joescharf/exgate/internal/session"
)

// T is the subset of *testing.T that Check needs.
type T interface {
	require.TestingT
	Helper()
	TempDir() string
}

// Check runs the generator against ex in a fresh scratch directory owned by
// t and fails t with the example name and full log if it does not exit 0.
func Check(t T, r *runner.Runner, ex discovery.Example) *runner.Result {
	t.Helper()

	res, err := r.Run(context.Background(), ex, t.TempDir())
	require.NoError(t, err, "run generator for %s", ex.Name)

	if !res.Passed {
		msg, err := runner.FailureMessage(res)
		require.NoError(t, err)
		// require.Fail would wrap the log in testify's Error Trace/Messages block.
		t.Errorf("%s", msg)
		t.FailNow()
	}
	return res
}

// Each registers one subtest per example.
func Each(t *testing.T, examples []discovery.Example, r *runner.Runner) {
	t.Helper()
	for _, ex := range examples {
		t.Run(ex.Name, func(t *testing.T) {
			Check(t, r, ex)
		})
	}
}

// Main is a TestMain body: it applies the session environment once before
// any example runs, then runs the tests.
func Main(m *testing.M, env []string) int {
	if err := session.Ensure(env); err != nil {
		fmt.Fprintf(os.Stderr, "exgate: %v\n", err)
		return 1
	}
	return m.Run()
}
