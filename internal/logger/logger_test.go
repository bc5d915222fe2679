package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guianderson/terrama2/internal/logger"
)

func TestSlogLoggerLevels(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		level         logger.LogLevel
		logFunc       func(l logger.Logger, msg string)
		shouldContain bool
	}{
		{"debug at debug", logger.LogLevelDebug, func(l logger.Logger, msg string) { l.Debug(msg) }, true},
		{"debug at info", logger.LogLevelInfo, func(l logger.Logger, msg string) { l.Debug(msg) }, false},
		{"trace at debug", logger.LogLevelDebug, func(l logger.Logger, msg string) { l.Trace(msg) }, false},
		{"trace at trace", logger.LogLevelTrace, func(l logger.Logger, msg string) { l.Trace(msg) }, true},
		{"warn at info", logger.LogLevelInfo, func(l logger.Logger, msg string) { l.Warn(msg) }, true},
		{"info at error", logger.LogLevelError, func(l logger.Logger, msg string) { l.Info(msg) }, false},
		{"error at error", logger.LogLevelError, func(l logger.Logger, msg string) { l.Error(msg) }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			buf := &bytes.Buffer{}
			log := logger.NewSlogLogger(buf, tc.level, time.UTC)

			tc.logFunc(log, "row evaluated")

			assert.Equal(t, tc.shouldContain, strings.Contains(buf.String(), "row evaluated"))
		})
	}
}

func TestModuleScopingAndFields(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelDebug, time.UTC)

	scoped := log.Module("analysis").Module("jobqueue").With(logger.Int64("analysis_id", 7))
	scoped.Info("run queued", logger.Duration("wait", 1500*time.Millisecond), logger.Float64("ratio", 0.123456))

	out := buf.String()
	assert.Contains(t, out, "module=analysis.jobqueue")
	assert.Contains(t, out, "analysis_id=7")
	assert.Contains(t, out, "wait=1.5s")
	assert.Contains(t, out, "ratio=0.123")
}

func TestWithContextAddsTraceID(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)

	ctx := logger.WithTraceID(context.Background(), "exec-42")
	log.WithContext(ctx).Info("binding data")

	assert.Contains(t, buf.String(), "trace_id=exec-42")
}

func TestCentralLoggerModuleFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	modulePath := filepath.Join(dir, "analysis.log")

	cfg := &logger.LoggingConfig{
		DefaultLevel: "info",
		Timezone:     "UTC",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: filepath.Join(dir, "main.log"), Level: "info"},
		ModuleOutputs: map[string]logger.ModuleOutput{
			"analysis": {Enabled: true, FilePath: modulePath, Level: "debug"},
		},
	}

	central, err := logger.NewCentralLogger(cfg)
	require.NoError(t, err)

	central.Module("analysis").Debug("script compiled", logger.Int64("analysis_id", 1))
	central.Module("catalog").Info("catalog loaded")
	require.NoError(t, central.Flush())
	require.NoError(t, central.Close())

	data, err := os.ReadFile(modulePath)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "script compiled", entry["msg"])
	assert.Equal(t, "analysis", entry["module"])
	assert.Equal(t, "DEBUG", entry["level"])

	mainData, err := os.ReadFile(filepath.Join(dir, "main.log"))
	require.NoError(t, err)
	assert.Contains(t, string(mainData), "catalog loaded")
	assert.NotContains(t, string(mainData), "script compiled")
}

func TestNewCentralLoggerRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	_, err := logger.NewCentralLogger(&logger.LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)
}
