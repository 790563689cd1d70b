package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoopLogger(t *testing.T) {
	logger := &NoopLogger{}

	// Must absorb everything without side effects.
	logger.Debug("recorded", "fingerprint", "abc123")
	logger.Info("recorded")
	logger.Warn("plan fetch failed", "error", "timeout")
	logger.Error("oops", "key", "value")
}

func TestSlogAdapter_Levels(t *testing.T) {
	tests := []struct {
		name      string
		logFunc   func(Logger, string, ...any)
		wantLevel string
	}{
		{"debug", func(l Logger, msg string, args ...any) { l.Debug(msg, args...) }, "DEBUG"},
		{"info", func(l Logger, msg string, args ...any) { l.Info(msg, args...) }, "INFO"},
		{"warn", func(l Logger, msg string, args ...any) { l.Warn(msg, args...) }, "WARN"},
		{"error", func(l Logger, msg string, args ...any) { l.Error(msg, args...) }, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			adapter := NewSlogAdapter(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			})))

			tt.logFunc(adapter, "plan analyzed", "fingerprint", "abc123def456")

			out := buf.String()
			assert.Contains(t, out, tt.wantLevel)
			assert.Contains(t, out, "plan analyzed")
			assert.Contains(t, out, "fingerprint=abc123def456")
		})
	}
}

func TestSlogAdapter_JSONHandler(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, nil)))

	adapter.Info("query recorded",
		"fingerprint", "abc123def456",
		"duration_ms", 15,
		"rows", 1)

	out := buf.String()
	assert.Contains(t, out, `"msg":"query recorded"`)
	assert.Contains(t, out, `"fingerprint":"abc123def456"`)
	assert.Contains(t, out, `"duration_ms":15`)
	assert.Contains(t, out, `"rows":1`)
}

func BenchmarkNoopLogger(b *testing.B) {
	logger := &NoopLogger{}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		logger.Debug("query recorded",
			"fingerprint", "abc123def456",
			"duration_ms", 15)
	}
}
