package logger

import (
	"bytes"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	flags := log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	defer func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(flags)
	}()
	fn()
	return buf.String()
}

func TestStdLoggerLevels(t *testing.T) {
	l := NewStdLogger(false, NoticeLevel)

	out := captureOutput(t, func() {
		l.Debug("hidden debug")
		l.Info("hidden info")
		l.Notice("shown notice %d", 1)
		l.ErrorWith(Submit, "shown error %s", "boom")
	})

	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[NOTICE] shown notice 1")
	assert.Contains(t, out, "[ERROR]  [SUBMIT]  shown error boom")
}

func TestParseLevel(t *testing.T) {
	level, ok := ParseLevel("DEBUG")
	assert.True(t, ok)
	assert.Equal(t, DebugLevel, level)

	level, ok = ParseLevel("verbose")
	assert.False(t, ok)
	assert.Equal(t, InfoLevel, level)
}
