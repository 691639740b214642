// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wjleong/zxgkquery/internal/config"
)

// captureOutput redirects stdout into a buffer for the duration of a test.
// The returned cleanup restores the original stdout.
func captureOutput(t *testing.T) (*bytes.Buffer, func()) {
	t.Helper()
	originalStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)

	os.Stdout = w
	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = buf.ReadFrom(r)
	}()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			w.Close()
			<-done
			os.Stdout = originalStdout
		})
	}
	return &buf, cleanup
}

func TestInitializeLogger(t *testing.T) {

	t.Run("console format colorizes the level", func(t *testing.T) {
		ResetForTest()
		buf, cleanup := captureOutput(t)
		defer cleanup()

		cfg := config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
			Colors: config.ColorConfig{
				Info: "green",
			},
		}
		InitializeLogger(cfg)
		GetLogger().Info("This is a test message.")
		Sync()
		cleanup()

		output := buf.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "This is a test message.")
		assert.Contains(t, output, colorGreen, "info level should be colorized green")
		assert.Contains(t, output, colorReset)
	})

	t.Run("json format emits parseable entries", func(t *testing.T) {
		ResetForTest()
		buf, cleanup := captureOutput(t)
		defer cleanup()

		cfg := config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		}
		InitializeLogger(cfg)
		GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))
		Sync()
		cleanup()

		var logEntry map[string]interface{}
		err := json.Unmarshal(buf.Bytes(), &logEntry)
		require.NoError(t, err, "log output should be valid JSON")

		assert.Equal(t, "warn", logEntry["level"])
		assert.Equal(t, "JSONTest", logEntry["logger"])
		assert.Equal(t, "This is a JSON message.", logEntry["msg"])
		assert.Equal(t, "value", logEntry["key"])
	})

	t.Run("writes to a log file when configured", func(t *testing.T) {
		ResetForTest()
		tmpFile, err := os.CreateTemp(t.TempDir(), "logger-test-*.log")
		require.NoError(t, err)
		require.NoError(t, tmpFile.Close())

		cfg := config.LoggerConfig{
			Level:   "debug",
			Format:  "json",
			LogFile: tmpFile.Name(),
			MaxSize: 1,
		}
		InitializeLogger(cfg)
		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(tmpFile.Name())
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
	})

	t.Run("initializes only once", func(t *testing.T) {
		ResetForTest()
		buf, cleanup := captureOutput(t)
		defer cleanup()

		cfg1 := config.LoggerConfig{Level: "info", ServiceName: "First"}
		InitializeLogger(cfg1)
		logger1 := GetLogger()

		cfg2 := config.LoggerConfig{Level: "debug", ServiceName: "Second"}
		InitializeLogger(cfg2)
		logger2 := GetLogger()

		assert.Equal(t, logger1, logger2)
		logger2.Info("test")
		Sync()
		cleanup()

		assert.True(t, strings.Contains(buf.String(), "First"))
		assert.False(t, strings.Contains(buf.String(), "Second"))
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("returns a fallback logger before initialization", func(t *testing.T) {
		ResetForTest()
		logger := GetLogger()
		require.NotNil(t, logger)
	})

	t.Run("returns the global logger after initialization", func(t *testing.T) {
		ResetForTest()
		cfg := config.LoggerConfig{Level: "info", ServiceName: "GlobalTest"}
		InitializeLogger(cfg)

		logger := GetLogger()
		assert.Equal(t, globalLogger.Load(), logger)
	})
}
