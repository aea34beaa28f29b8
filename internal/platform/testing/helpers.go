package testing

import (
	"testing"

	"vad-server-go/internal/platform/config"
	"vad-server-go/internal/utils"
)

// SetupTestConfig returns a default configuration pointed at the mock
// backend, suitable for unit tests that never touch a model file.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Server.IP = "127.0.0.1"
	cfg.VAD.Backend = "mock"
	cfg.Web.Enabled = false
	cfg.Storage.Enabled = false
	return cfg
}

// SetupTestLogger returns a quiet logger writing into the test temp dir.
func SetupTestLogger(t *testing.T) *utils.Logger {
	t.Helper()

	logger, err := utils.NewLogger(&utils.LogCfg{
		LogLevel: "error",
		LogDir:   t.TempDir(),
		LogFile:  "test.log",
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })
	return logger
}
