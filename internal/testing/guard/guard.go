// Package guard flips the application into test mode when imported from a
// test binary, keeping runtime side effects out of test runs.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("MERIDIAN_TEST_MODE") == "" {
			_ = os.Setenv("MERIDIAN_TEST_MODE", "1")
		}
	})
}
