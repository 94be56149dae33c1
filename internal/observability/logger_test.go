// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/hmi-harness/internal/config"
)

func TestNewLogger(t *testing.T) {
	t.Run("console logger colorizes levels", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "hmi-harness",
			Colors:      config.ColorConfig{Info: "green"},
		}, zapcore.AddSync(&buf))
		logger.Named("screenkb").Info("On-screen keyboard opened.")
		require.NoError(t, logger.Sync())

		out := buf.String()
		assert.Contains(t, out, colorGreen+"INFO"+colorReset)
		assert.Contains(t, out, "hmi-harness.screenkb.")
		assert.Contains(t, out, "On-screen keyboard opened.")
	})

	t.Run("json logger", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "bench"}, zapcore.AddSync(&buf))
		logger.Warn("Relay switched.", zap.String("switch", "head_unit"))
		logger.Debug("filtered")
		require.NoError(t, logger.Sync())

		var entry map[string]any
		require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "bench", entry["logger"])
		assert.Equal(t, "Relay switched.", entry["msg"])
		assert.Equal(t, "head_unit", entry["switch"])
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(config.LoggerConfig{Level: "chatty", Format: "json"}, zapcore.AddSync(&buf))
		logger.Debug("hidden")
		logger.Info("shown")
		require.NoError(t, logger.Sync())
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("writes to a rotated file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "harness.log")
		logger := NewLogger(config.LoggerConfig{Level: "debug", Format: "json", LogFile: path, MaxSize: 1}, zapcore.AddSync(&bytes.Buffer{}))
		logger.Error("This should go to the file.")
		_ = logger.Sync()

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
	})
}

func TestInitialize(t *testing.T) {
	t.Run("only initializes once", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{Level: "info", ServiceName: "First"}, zapcore.AddSync(&buf))
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, zapcore.AddSync(&buf))
		second := GetLogger()

		assert.Same(t, first, second)
		second.Info("test")
		Sync()
		assert.True(t, strings.Contains(buf.String(), "First"))
		assert.False(t, strings.Contains(buf.String(), "Second"))
	})

	t.Run("fallback before initialization", func(t *testing.T) {
		ResetForTest()
		require.NotNil(t, GetLogger())
	})
}
