// Package guard switches the binaries into test mode when blank-imported, so
// running main under go test never dials PostgreSQL or Redis.
package guard

import "os"

// EnvVar is read by app.InTestMode.
const EnvVar = "ODYSSEY_TEST_MODE"

func init() {
	if _, ok := os.LookupEnv(EnvVar); !ok {
		_ = os.Setenv(EnvVar, "1")
	}
}
