package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	defer SetLogLevel("INFO")

	SetLogLevel("WARN")
	Infof("hidden %d", 1)
	Warnf("shown %d", 2)
	Errorf("shown %d", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "[WARN] shown 2")
	assert.Contains(t, out, "[ERROR] shown 3")
}

func TestSetLogLevel(t *testing.T) {
	defer SetLogLevel("INFO")

	cases := map[string]LogLevel{
		"debug":   LevelDebug,
		"TRACE":   LevelDebug,
		" info ":  LevelInfo,
		"warning": LevelWarn,
		"ERROR":   LevelError,
		"silent":  LevelFatal,
		"bogus":   LevelInfo,
	}
	for name, want := range cases {
		SetLogLevel(name)
		assert.Equal(t, want, GetLogLevel(), "level %q", name)
	}

	SetLogLevel("DEBUG")
	assert.True(t, IsDebugEnabled())
	SetLogLevel("INFO")
	assert.False(t, IsDebugEnabled())
}
