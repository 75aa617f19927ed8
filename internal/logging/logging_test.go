package logging

import "testing"

func TestNewDevelopmentLoggerSucceeds(t *testing.T) {
	logger, err := New(false)
	if err != nil {
		t.Fatalf("New(false): %v", err)
	}
	defer Sync(logger)
	logger.Info("logging smoke test")
}
