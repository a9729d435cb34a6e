package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, test.level.String())
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelDebug.SlogLevel())
	assert.Equal(t, slog.LevelWarn, LevelWarn.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogLevel(999).SlogLevel())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestInitForCLI(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelInfo, &buf)

	Info("test-subsystem", "hello %s", "world")
	Debug("test-subsystem", "filtered out")
	Error("test-subsystem", errors.New("boom"), "failed")

	output := buf.String()
	assert.Contains(t, output, "hello world")
	assert.Contains(t, output, "subsystem=test-subsystem")
	assert.NotContains(t, output, "filtered out")
	assert.Contains(t, output, "error=boom")
}

func TestOnceSet(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelDebug, &buf)

	set := NewOnceSet()
	assert.True(t, set.First("a"))
	assert.False(t, set.First("a"))
	assert.True(t, set.First("b"))

	set.WarnOnce("kind:x", "Webhook", "no handler for %s", "x")
	set.WarnOnce("kind:x", "Webhook", "no handler for %s", "x")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("no handler for x")))

	set.Reset()
	assert.True(t, set.First("a"))

	var nilSet *OnceSet
	assert.True(t, nilSet.First("a"))
	assert.True(t, nilSet.First("a"))
}
