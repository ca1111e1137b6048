// Package log provides context-aware structured logging for the gateway,
// built on zap. Call Configure once at process start; Debug/Info/Warn/Error
// are safe to call before that (they use a logger built at package init
// from LOGGING_LEVEL).
package log

import (
	"context"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a structured logging field.
type Field = zap.Field

// LevelEnvVar is the environment variable that selects the logging level.
const LevelEnvVar = "LOGGING_LEVEL"

// DefaultLevel is used when LOGGING_LEVEL is unset or unrecognized.
const DefaultLevel = "INFO"

var current atomic.Pointer[state]

type state struct {
	logger *zap.Logger
	level  string
}

func init() {
	current.Store(buildState(ResolveLevel()))
}

// ResolveLevel reads LOGGING_LEVEL from the environment and normalizes it.
// Unrecognized values fall back to DefaultLevel.
func ResolveLevel() string {
	raw := strings.ToUpper(strings.TrimSpace(os.Getenv(LevelEnvVar)))

	switch raw {
	case "TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
		if raw == "WARNING" {
			return "WARN"
		}

		return raw
	default:
		return DefaultLevel
	}
}

func zapLevel(level string) zapcore.Level {
	switch level {
	case "TRACE", "DEBUG":
		return zapcore.DebugLevel
	case "WARN":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func buildState(level string) *state {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(level))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}

	return &state{logger: logger, level: level}
}

// Configure rebuilds the global logger at the given level (TRACE/DEBUG/INFO/WARN/ERROR).
// Safe to call concurrently; intended to be called once from main.
func Configure(level string) {
	current.Store(buildState(strings.ToUpper(strings.TrimSpace(level))))
}

func get() *state {
	return current.Load()
}

// DebugEnabled reports whether DEBUG/TRACE-level previews should be emitted.
// The context parameter is accepted for symmetry with Debug/Info/Warn/Error
// and to allow a future per-request override.
func DebugEnabled(_ context.Context) bool {
	s := get()
	return s.level == "DEBUG" || s.level == "TRACE"
}

// TraceEnabled reports whether TRACE-level previews should be emitted.
func TraceEnabled(_ context.Context) bool {
	return get().level == "TRACE"
}

func logAt(ctx context.Context, level zapcore.Level, msg string, fields ...Field) {
	s := get()
	if ce := s.logger.Check(level, msg); ce != nil {
		ce.Write(withContextFields(ctx, fields)...)
	}
}

// withContextFields lets future context-scoped fields (trace id, request id)
// be attached without changing call sites; currently a passthrough.
func withContextFields(_ context.Context, fields []Field) []Field {
	return fields
}

func Debug(ctx context.Context, msg string, fields ...Field) {
	logAt(ctx, zapcore.DebugLevel, msg, fields...)
}

func Info(ctx context.Context, msg string, fields ...Field) {
	logAt(ctx, zapcore.InfoLevel, msg, fields...)
}

func Warn(ctx context.Context, msg string, fields ...Field) {
	logAt(ctx, zapcore.WarnLevel, msg, fields...)
}

func Error(ctx context.Context, msg string, fields ...Field) {
	logAt(ctx, zapcore.ErrorLevel, msg, fields...)
}

// Field constructors, re-exported so callers only ever import this package.
func String(key, value string) Field { return zap.String(key, value) }
func Int(key string, value int) Field { return zap.Int(key, value) }
func Int64(key string, value int64) Field { return zap.Int64(key, value) }
func Bool(key string, value bool) Field { return zap.Bool(key, value) }
func Duration(key string, value int64) Field { return zap.Int64(key, value) }
func Any(key string, value any) Field { return zap.Any(key, value) }

// Cause attaches an error under the conventional "error" key.
func Cause(err error) Field { return zap.Error(err) }

// Preview truncates s to maxChars, appending "..." when truncated. Used at
// the HTTP boundary for DEBUG/TRACE body previews.
func Preview(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}

	return s[:maxChars] + "..."
}
