package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewLogger_LevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, closeFn, err := NewLogger("warn", &buf, "")
	require.NoError(t, err)
	defer closeFn() //nolint:errcheck

	logger.Info("dropped")
	logger.Warn("kept", "service", "ollama")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "ollama", rec["service"])
}

func TestNewLogger_TeesToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "launcher.log")
	var buf bytes.Buffer
	logger, closeFn, err := NewLogger("info", &buf, path)
	require.NoError(t, err)

	logger.Info("hello")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestNewLogger_BadFile(t *testing.T) {
	t.Parallel()

	_, _, err := NewLogger("info", &bytes.Buffer{}, filepath.Join(t.TempDir(), "missing", "x.log"))
	assert.Error(t, err)
}

func TestTraceHandler_AddsSpanIDs(t *testing.T) {
	t.Parallel()

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background()) //nolint:errcheck

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil)))
	logger.InfoContext(ctx, "with span")
	logger.Info("without span")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var withSpan, withoutSpan map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &withSpan))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &withoutSpan))

	assert.Equal(t, span.SpanContext().TraceID().String(), withSpan["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), withSpan["span_id"])
	assert.NotContains(t, withoutSpan, "trace_id")
}

func TestTeeHandler_RespectsChildLevels(t *testing.T) {
	t.Parallel()

	var debugBuf, errorBuf bytes.Buffer
	tee := NewTeeHandler(
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&errorBuf, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	logger := slog.New(tee).With("component", "launcher")

	logger.Debug("probe")
	logger.Error("spawn failed")

	assert.Contains(t, debugBuf.String(), "probe")
	assert.Contains(t, debugBuf.String(), "spawn failed")
	assert.Contains(t, debugBuf.String(), "component=launcher")
	assert.NotContains(t, errorBuf.String(), "probe")
	assert.Contains(t, errorBuf.String(), "spawn failed")
}
