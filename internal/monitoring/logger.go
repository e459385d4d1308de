// Package monitoring holds the process-wide diagnostic logger.
package monitoring

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var current atomic.Pointer[zap.SugaredLogger]

func init() {
	l, err := NewLogger("info", false)
	if err != nil {
		l = zap.NewNop().Sugar()
	}
	current.Store(l)
}

// NewLogger builds a sugared zap logger writing to stderr at the given level.
// Development mode switches to the console encoder with caller and stack info.
func NewLogger(level string, development bool) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return l.Sugar(), nil
}

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(l *zap.SugaredLogger) {
	if l == nil {
		l = zap.NewNop().Sugar()
	}
	current.Store(l)
}

// Logger returns the package logger, optionally scoped to a component name.
func Logger(name ...string) *zap.SugaredLogger {
	l := current.Load()
	for _, n := range name {
		l = l.Named(n)
	}
	return l
}

// Logf logs at info level.
func Logf(format string, v ...interface{}) { current.Load().Infof(format, v...) }

// Debugf logs at debug level.
func Debugf(format string, v ...interface{}) { current.Load().Debugf(format, v...) }

// Warnf logs at warn level.
func Warnf(format string, v ...interface{}) { current.Load().Warnf(format, v...) }

// Errorf logs at error level.
func Errorf(format string, v ...interface{}) { current.Load().Errorf(format, v...) }

// Sync flushes any buffered log entries.
func Sync() error {
	return current.Load().Sync()
}
