// Package logging provides the structured loggers used across SignDrop.
package logging

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a wrapper of zap.SugaredLogger.
type Logger = *zap.SugaredLogger

var (
	level       = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	jsonOutput  bool
	defaultOnce sync.Once
	defaultLog  Logger
)

// SetLogLevel sets the level of every logger with ["debug", "info", "warn", "error"].
func SetLogLevel(name string) error {
	switch strings.ToLower(name) {
	case "debug":
		level.SetLevel(zapcore.DebugLevel)
	case "info":
		level.SetLevel(zapcore.InfoLevel)
	case "warn":
		level.SetLevel(zapcore.WarnLevel)
	case "error":
		level.SetLevel(zapcore.ErrorLevel)
	default:
		return fmt.Errorf("invalid log level: %s", name)
	}
	return nil
}

// UseJSON switches loggers created afterwards to JSON lines. Call it before
// New or DefaultLogger.
func UseJSON(enabled bool) {
	jsonOutput = enabled
}

// New creates a named logger.
func New(name string, keysAndValues ...interface{}) Logger {
	logger := newLogger(name)
	if len(keysAndValues) > 0 {
		logger = logger.With(keysAndValues...)
	}
	return logger
}

// NewNop returns a logger that discards everything. Tests use it.
func NewNop() Logger {
	return zap.NewNop().Sugar()
}

// DefaultLogger returns the process wide logger.
func DefaultLogger() Logger {
	defaultOnce.Do(func() {
		defaultLog = newLogger("signdrop")
	})
	return defaultLog
}

type ctxKey struct{}

// With returns a context carrying logger.
func With(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// From returns the logger carried by ctx, or the default logger.
func From(ctx context.Context) Logger {
	if logger, ok := ctx.Value(ctxKey{}).(Logger); ok && logger != nil {
		return logger
	}
	return DefaultLogger()
}

func newLogger(name string) Logger {
	encoder := zapcore.NewConsoleEncoder(humanEncoderConfig())
	if jsonOutput {
		encoder = zapcore.NewJSONEncoder(encoderConfig())
	}
	return zap.New(
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level),
		zap.AddStacktrace(zap.ErrorLevel),
	).Named(name).Sugar()
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func humanEncoderConfig() zapcore.EncoderConfig {
	cfg := encoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg
}
