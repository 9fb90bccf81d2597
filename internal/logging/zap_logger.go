// Package logging implements sqlpool.Logger on top of zap, plus a discarding
// logger for embedding and tests.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/vvka-141/sqlpool/pkg/sqlpool"
)

// ZapLogger adapts a zap.SugaredLogger to sqlpool.Logger.
// Verbose maps to the debug level.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

var _ sqlpool.Logger = (*ZapLogger)(nil)

// NewZapLogger creates a console logger writing to stderr.
// If verbose is true, Verbose() calls will produce output along with timestamps.
func NewZapLogger(verbose bool) *ZapLogger {
	encCfg := zapcore.EncoderConfig{
		LevelKey:       "level",
		MessageKey:     "msg",
		NameKey:        "logger",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
		encCfg.TimeKey = "ts"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	return NewZapLoggerWithCore(core)
}

// NewZapLoggerWithCore wraps an existing core. Tests pass an observer core.
func NewZapLoggerWithCore(core zapcore.Core) *ZapLogger {
	return &ZapLogger{sugar: zap.New(core).Sugar()}
}

// Named returns a child logger with the given name segment.
func (l *ZapLogger) Named(name string) *ZapLogger {
	return &ZapLogger{sugar: l.sugar.Named(name)}
}

// With returns a child logger carrying key/value pairs on every entry.
func (l *ZapLogger) With(keysAndValues ...interface{}) *ZapLogger {
	return &ZapLogger{sugar: l.sugar.With(keysAndValues...)}
}

// Verbose logs detailed diagnostic information at debug level.
func (l *ZapLogger) Verbose(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs informational messages about normal operations.
func (l *ZapLogger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Error logs error messages.
func (l *ZapLogger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}
