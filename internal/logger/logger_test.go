package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext(t *testing.T) {
	t.Run("returns the logger stored in context", func(t *testing.T) {
		want := NewLogger(TestConfig())
		ctx := ContextWithLogger(context.Background(), want)
		assert.Equal(t, want, FromContext(ctx))
	})

	t.Run("falls back to default when missing", func(t *testing.T) {
		require.NotNil(t, FromContext(context.Background()))
	})

	t.Run("falls back to default on wrong type", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), LoggerCtxKey, "nope")
		require.NotNil(t, FromContext(ctx))
	})
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: WarnLevel, Output: &buf, TimeFormat: "15:04:05"})

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message", "url", "https://example.com")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message")
	assert.Contains(t, out, "https://example.com")
}

func TestDisabledLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: DisabledLevel, Output: &buf})
	l.Error("should not appear")
	assert.Empty(t, buf.String())
}

func TestWithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: InfoLevel, Output: &buf, JSON: true})
	l.With("component", "crawler").Info("done", "pages", 3)

	out := buf.String()
	assert.Contains(t, out, `"component":"crawler"`)
	assert.Contains(t, out, `"pages":3`)
}

func TestToCharmlogLevel(t *testing.T) {
	assert.Equal(t, -4, int(DebugLevel.ToCharmlogLevel()))
	assert.Equal(t, 0, int(InfoLevel.ToCharmlogLevel()))
	assert.Equal(t, 4, int(WarnLevel.ToCharmlogLevel()))
	assert.Equal(t, 8, int(ErrorLevel.ToCharmlogLevel()))
	assert.Equal(t, 0, int(LogLevel("bogus").ToCharmlogLevel()))
}
