package logger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxFieldsKey struct{}

// Logger is a zap logger whose methods pick up fields stored in the context.
type Logger struct {
	z *zap.Logger
}

var (
	mu     sync.RWMutex
	global = &Logger{z: zap.NewNop()}
)

// Init replaces the global logger. level is one of debug, info, warn, error.
func Init(level string, asJSON bool) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return fmt.Errorf("logger.Init: parse level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if !asJSON {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("logger.Init: build: %w", err)
	}

	SetLogger(z)
	return nil
}

// SetLogger installs z as the global logger. Tests use it with zaptest or zap.NewNop.
func SetLogger(z *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	global = &Logger{z: z}
}

// L returns the underlying global zap logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global.z
}

func current() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// With returns a child of the global logger carrying fields.
func With(fields ...Field) *Logger {
	return &Logger{z: current().z.With(fields...)}
}

// ContextWithFields attaches fields to ctx; every log call made with the
// returned context includes them.
func ContextWithFields(ctx context.Context, fields ...Field) context.Context {
	existing, _ := ctx.Value(ctxFieldsKey{}).([]Field)
	merged := make([]Field, 0, len(existing)+len(fields))
	merged = append(merged, existing...)
	merged = append(merged, fields...)
	return context.WithValue(ctx, ctxFieldsKey{}, merged)
}

func withContext(ctx context.Context, fields []Field) []Field {
	if ctx == nil {
		return fields
	}
	extra, _ := ctx.Value(ctxFieldsKey{}).([]Field)
	if len(extra) == 0 {
		return fields
	}
	return append(extra[:len(extra):len(extra)], fields...)
}

func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{z: l.z.With(fields...)}
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.z.Debug(msg, withContext(ctx, fields)...)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...Field) {
	l.z.Info(msg, withContext(ctx, fields)...)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.z.Warn(msg, withContext(ctx, fields)...)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...Field) {
	l.z.Error(msg, withContext(ctx, fields)...)
}

func Debug(ctx context.Context, msg string, fields ...Field) { current().Debug(ctx, msg, fields...) }

func Info(ctx context.Context, msg string, fields ...Field) { current().Info(ctx, msg, fields...) }

func Warn(ctx context.Context, msg string, fields ...Field) { current().Warn(ctx, msg, fields...) }

func Error(ctx context.Context, msg string, fields ...Field) { current().Error(ctx, msg, fields...) }

// Sync flushes buffered entries.
func Sync() error {
	return L().Sync()
}
