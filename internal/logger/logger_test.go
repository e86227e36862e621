package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{in: "debug", want: zapcore.DebugLevel},
		{in: "INFO", want: zapcore.InfoLevel},
		{in: "warning", want: zapcore.WarnLevel},
		{in: "error", want: zapcore.ErrorLevel},
		{in: "bogus", want: zapcore.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), tt.in)
	}
}

func TestNew_WritesJSON(t *testing.T) {
	out := filepath.Join(t.TempDir(), "log.json")

	log, err := New(Config{Level: "debug", OutputPaths: []string{out}})
	require.NoError(t, err)

	log.With(String("component", "test")).Info("hello", Int("n", 3), Error(errors.New("boom")))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	assert.Contains(t, line, `"msg":"hello"`)
	assert.Contains(t, line, `"component":"test"`)
	assert.Contains(t, line, `"n":3`)
	assert.Contains(t, line, `"error":"boom"`)
}

func TestNew_RespectsLevel(t *testing.T) {
	out := filepath.Join(t.TempDir(), "log.json")

	log, err := New(Config{Level: "warn", OutputPaths: []string{out}})
	require.NoError(t, err)

	log.Info("quiet")
	log.Warn("loud")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "quiet")
	assert.Contains(t, string(data), "loud")
}

func TestNop(t *testing.T) {
	log := NewNop()
	log.Info("ignored")
	assert.Same(t, log, log.With(String("k", "v")))
	assert.NoError(t, log.Sync())
}
