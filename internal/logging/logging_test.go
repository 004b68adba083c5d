package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"info":    LevelInfo,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}

func TestNewLoggerWritesPlainTextToBuffers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelInfo)

	logger.Debug("hidden")
	logger.Info("deployed dashboard", "name", "sales_uat")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "deployed dashboard")
	assert.Contains(t, out, "name=sales_uat")
	assert.NotContains(t, out, "\x1b[", "no ANSI colors when not writing to a terminal")
}

func TestOrDiscard(t *testing.T) {
	assert.NotNil(t, OrDiscard(nil))
	l := Discard()
	assert.Same(t, l, OrDiscard(l))
}
