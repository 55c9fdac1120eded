// Package testing is blank-imported by command tests to force test mode
// before any init in the binary under test reads the environment.
package testing

import (
	"os"
	stdtesting "testing"
)

const testModeEnv = "ODYSSEY_TEST_MODE"

func init() {
	_ = os.Setenv(testModeEnv, "1")
}

// TestMain re-asserts test mode for packages that delegate to it.
func TestMain(m *stdtesting.M) {
	_ = os.Setenv(testModeEnv, "1")
	os.Exit(m.Run())
}
