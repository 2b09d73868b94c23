// Package testing switches the ledger into test mode when imported by a test
// binary. Entry points return early and logging is kept quiet.
package testing

import "os"

// testDefaults only fill variables the caller left unset.
var testDefaults = [][2]string{
	{"LOG_LEVEL", "error"},
	{"APP_ENV", "test"},
}

func init() {
	_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
	for _, kv := range testDefaults {
		if _, ok := os.LookupEnv(kv[0]); !ok {
			_ = os.Setenv(kv[0], kv[1])
		}
	}
}
