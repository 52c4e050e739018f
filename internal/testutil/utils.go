package testutil

import (
	"log"
	"os"
	"testing"
)

// TestLogger returns a logger for use in tests.
func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[kopa-test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}
