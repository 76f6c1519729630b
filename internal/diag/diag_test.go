package diag

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestLevelsAreCumulative(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelCommand, &buf)
	l.Warn("w1")
	l.Command("c1", zap.String("path", "/tmp/x"))
	l.Config("cfg1")
	out := buf.String()
	assert.Contains(t, out, "w1")
	assert.Contains(t, out, "c1")
	assert.Contains(t, out, "/tmp/x")
	assert.NotContains(t, out, "cfg1")
	assert.False(t, l.DryRun())
}

func TestOffIsSilent(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelOff, &buf)
	l.Warn("w")
	l.Command("c")
	assert.Empty(t, buf.String())

	var nilLogger *Logger
	nilLogger.Warn("no panic")
	assert.Equal(t, LevelOff, nilLogger.Level())
}

func TestDryRunLevel(t *testing.T) {
	assert.True(t, New(LevelDryRun, &bytes.Buffer{}).DryRun())
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv(EnvVar, "3")
	assert.Equal(t, 3, LevelFromEnv())
	t.Setenv(EnvVar, "bogus")
	assert.Equal(t, LevelOff, LevelFromEnv())
	t.Setenv(EnvVar, "")
	assert.Equal(t, LevelOff, LevelFromEnv())
}
