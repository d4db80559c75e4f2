package suite

import (
	"testing"

	"go.uber.org/goleak"
)

// Generator processes are waited on; no goroutine may outlive a test.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
