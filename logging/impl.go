package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface handed to every component.
type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	// Sublogger returns a child logger named "<parent>.<subname>". The child starts at the
	// parent's level and is adjusted independently afterwards.
	Sublogger(subname string) Logger
	SetLevel(level Level)
	GetLevel() Level
	AsZap() *zap.SugaredLogger
	Sync() error
}

type impl struct {
	name  string
	level zap.AtomicLevel
	core  zapcore.Core
	sugar *zap.SugaredLogger
}

func newImpl(name string, level Level, core zapcore.Core) *impl {
	sugar := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
	if name != "" {
		sugar = sugar.Named(name)
	}
	return &impl{
		name:  name,
		level: zap.NewAtomicLevelAt(level.AsZap()),
		core:  core,
		sugar: sugar,
	}
}

func (imp *impl) Sublogger(subname string) Logger {
	newName := subname
	if imp.name != "" {
		newName = fmt.Sprintf("%s.%s", imp.name, subname)
	}
	return newImpl(newName, imp.GetLevel(), imp.core)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.SetLevel(level.AsZap())
}

func (imp *impl) GetLevel() Level {
	return Level(imp.level.Level())
}

// AsZap returns a sugared logger honoring this logger's current level.
func (imp *impl) AsZap() *zap.SugaredLogger {
	return imp.sugar.WithOptions(zap.AddCallerSkip(-1), zap.IncreaseLevel(imp.level))
}

func (imp *impl) Sync() error {
	return imp.core.Sync()
}

func (imp *impl) enabled(level zapcore.Level) bool {
	return imp.level.Enabled(level)
}

func (imp *impl) Debug(args ...interface{}) {
	if imp.enabled(zapcore.DebugLevel) {
		imp.sugar.Debug(args...)
	}
}

func (imp *impl) Debugf(template string, args ...interface{}) {
	if imp.enabled(zapcore.DebugLevel) {
		imp.sugar.Debugf(template, args...)
	}
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	if imp.enabled(zapcore.DebugLevel) {
		imp.sugar.Debugw(msg, keysAndValues...)
	}
}

func (imp *impl) Info(args ...interface{}) {
	if imp.enabled(zapcore.InfoLevel) {
		imp.sugar.Info(args...)
	}
}

func (imp *impl) Infof(template string, args ...interface{}) {
	if imp.enabled(zapcore.InfoLevel) {
		imp.sugar.Infof(template, args...)
	}
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	if imp.enabled(zapcore.InfoLevel) {
		imp.sugar.Infow(msg, keysAndValues...)
	}
}

func (imp *impl) Warn(args ...interface{}) {
	if imp.enabled(zapcore.WarnLevel) {
		imp.sugar.Warn(args...)
	}
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	if imp.enabled(zapcore.WarnLevel) {
		imp.sugar.Warnf(template, args...)
	}
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	if imp.enabled(zapcore.WarnLevel) {
		imp.sugar.Warnw(msg, keysAndValues...)
	}
}

func (imp *impl) Error(args ...interface{}) {
	if imp.enabled(zapcore.ErrorLevel) {
		imp.sugar.Error(args...)
	}
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	if imp.enabled(zapcore.ErrorLevel) {
		imp.sugar.Errorf(template, args...)
	}
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	if imp.enabled(zapcore.ErrorLevel) {
		imp.sugar.Errorw(msg, keysAndValues...)
	}
}
