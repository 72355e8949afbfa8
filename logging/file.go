package logging

import (
	"io"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// File rotation limits.
const (
	maxFileSizeMB  = 64
	maxFileBackups = 3
)

// NewLoggerWithFile returns an Info+ logger that writes to stdout and also appends JSON lines to
// the file at path, rotating it when it grows large. Close the returned closer when done.
func NewLoggerWithFile(name, path string) (Logger, io.Closer) {
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxFileSizeMB,
		MaxBackups: maxFileBackups,
		Compress:   true,
	}
	conf := NewEncoderConfig(true)
	conf.EncodeLevel = zapcore.LowercaseLevelEncoder
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(conf), zapcore.AddSync(file), zapcore.DebugLevel)
	return newImpl(name, INFO, zapcore.NewTee(newStdoutCore(true), fileCore)), file
}
