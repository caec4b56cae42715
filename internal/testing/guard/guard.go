// Package guard flips the process into test mode when imported, so code
// under test skips background listeners and external connections.
package guard

import (
	"os"
	"sync"
)

// Env is the variable the app runtime reads to detect test mode.
const Env = "LEDGER_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(Env) == "" {
			_ = os.Setenv(Env, "1")
		}
	})
}
