// Package diag echoes internal diagnostics to standard output, filtered by a
// numeric debug level taken from SAFERM_DEBUG.
package diag

import (
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvVar selects the debug level.
const EnvVar = "SAFERM_DEBUG"

// Diagnostic classes. Levels are cumulative: level 3 also echoes warnings
// and commands.
const (
	LevelOff     = 0
	LevelWarn    = 1
	LevelCommand = 2
	LevelConfig  = 3
	LevelDryRun  = 4
)

// Logger gates zap output by diagnostic class.
type Logger struct {
	z     *zap.Logger
	level int
}

// LevelFromEnv parses SAFERM_DEBUG; anything unparsable is off.
func LevelFromEnv() int {
	v := strings.TrimSpace(os.Getenv(EnvVar))
	if v == "" {
		return LevelOff
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return LevelOff
	}
	return n
}

// New builds a logger writing to w. Level 0 yields a no-op logger.
func New(level int, w io.Writer) *Logger {
	if level <= LevelOff || w == nil {
		return &Logger{z: zap.NewNop(), level: LevelOff}
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.AddSync(w),
		zap.DebugLevel,
	)
	return &Logger{z: zap.New(core), level: level}
}

// Nop returns a logger that discards everything.
func Nop() *Logger { return New(LevelOff, nil) }

func (l *Logger) enabled(class int) bool {
	return l != nil && l.level >= class
}

// Level reports the configured level.
func (l *Logger) Level() int {
	if l == nil {
		return LevelOff
	}
	return l.level
}

// Warn reports a recoverable problem (class 1).
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	if l.enabled(LevelWarn) {
		l.z.Warn(msg, fields...)
	}
}

// Command reports an action about to be performed (class 2).
func (l *Logger) Command(msg string, fields ...zap.Field) {
	if l.enabled(LevelCommand) {
		l.z.Info(msg, append(fields, zap.String("class", "command"))...)
	}
}

// Config reports resolved configuration (class 3).
func (l *Logger) Config(msg string, fields ...zap.Field) {
	if l.enabled(LevelConfig) {
		l.z.Debug(msg, append(fields, zap.String("class", "config"))...)
	}
}

// DryRun reports whether the level forces dry-run mode.
func (l *Logger) DryRun() bool {
	return l.enabled(LevelDryRun)
}

// Sync flushes buffered output.
func (l *Logger) Sync() {
	if l != nil {
		_ = l.z.Sync()
	}
}
