// Package logging contains the structured, leveled logger used by every livevision component.
package logging

import (
	"os"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// DefaultTimeFormatStr is the timestamp layout used by console output.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

var (
	globalMu     sync.RWMutex
	globalLogger = NewDebugLogger("startup")
)

// ReplaceGlobal replaces the global logger.
func ReplaceGlobal(logger Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// Global returns the global logger.
func Global() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// NewEncoderConfig returns the console encoder config: capital colored levels,
// short callers and millisecond timestamps.
func NewEncoderConfig(inUTC bool) zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     timeEncoder(inUTC),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func timeEncoder(inUTC bool) zapcore.TimeEncoder {
	return func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		if inUTC {
			t = t.UTC()
		}
		enc.AppendString(t.Format(DefaultTimeFormatStr))
	}
}

func newStdoutCore(inUTC bool) zapcore.Core {
	return zapcore.NewCore(
		zapcore.NewConsoleEncoder(NewEncoderConfig(inUTC)),
		zapcore.Lock(os.Stdout),
		zapcore.DebugLevel,
	)
}

// NewLogger returns a new logger that outputs Info+ logs to stdout in UTC.
func NewLogger(name string) Logger {
	return newImpl(name, INFO, newStdoutCore(true))
}

// NewDebugLogger returns a new logger that outputs Debug+ logs to stdout in UTC.
func NewDebugLogger(name string) Logger {
	return newImpl(name, DEBUG, newStdoutCore(true))
}

// NewBlankLogger returns a logger that discards everything.
func NewBlankLogger(name string) Logger {
	return newImpl(name, DEBUG, zapcore.NewNopCore())
}

// NewTestLogger returns a new logger that outputs Debug+ logs through the test's Log method.
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger is like NewTestLogger but also saves logs to an in memory observer.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	testCore := zaptest.NewLogger(tb, zaptest.Level(zapcore.DebugLevel)).Core()
	observerCore, observedLogs := observer.New(zap.LevelEnablerFunc(zapcore.DebugLevel.Enabled))
	return newImpl("", DEBUG, zapcore.NewTee(testCore, observerCore)), observedLogs
}
