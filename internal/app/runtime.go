package app

import (
	"os"
	"strconv"
	"sync"
)

// TestModeEnv marks a process started by a test binary.
const TestModeEnv = "ODYSSEY_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	on, _ := strconv.ParseBool(os.Getenv(TestModeEnv))
	return on
})

// InTestMode reports whether entry points should return before opening
// listeners, stores or queues. The environment is read once per process.
func InTestMode() bool {
	return testMode()
}
