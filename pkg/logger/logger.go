// Package logger provides the structured JSON logging used across sgkd.
// It wraps zap behind the InfoJ/ErrorJ shape used throughout the codebase:
// an event name plus a flat field map, so call sites stay terse and
// greppable ("op", "reason", "epoch", ...) without constructing zap.Field
// slices by hand.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log *zap.Logger
)

func init() {
	log = newDefault()
}

func newDefault() *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(os.Stderr), zapcore.InfoLevel)
	return zap.New(core)
}

// SetLogger installs a caller-supplied zap logger, e.g. for tests that want
// to capture output or raise the level.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func fieldsOf(m map[string]any) []zap.Field {
	fs := make([]zap.Field, 0, len(m))
	for k, v := range m {
		fs = append(fs, zap.Any(k, v))
	}
	return fs
}

// InfoJ logs an informational event with structured fields.
func InfoJ(event string, fields map[string]any) {
	current().Info(event, fieldsOf(fields)...)
}

// ErrorJ logs an error/drop disposition event with structured fields.
func ErrorJ(event string, fields map[string]any) {
	current().Error(event, fieldsOf(fields)...)
}

// Warn logs a bare warning message (no structured fields).
func Warn(msg string) {
	current().Warn(msg)
}

// Sync flushes any buffered log entries. Best-effort: errors are ignored
// since stderr sync failures are expected on some platforms/terminals.
func Sync() {
	_ = current().Sync()
}
