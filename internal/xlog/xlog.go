// Package xlog wraps github.com/rs/zerolog behind a small interface so
// the rest of the engine depends on a stable, structured logging
// contract rather than on zerolog directly. The teacher's stages took
// a telemetry.Logger collaborator from a private infra module that is
// not part of this repository; zerolog was already pulled in
// transitively through that collaborator, so this package makes the
// dependency direct and owns the adapter.
package xlog

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Field is a single structured logging attribute.
type Field struct {
	Key   string
	Value any
}

// String builds a string Field.
func String(key, value string) Field { return Field{Key: key, Value: value} }

// Int builds an int Field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 builds an int64 Field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Float64 builds a float64 Field.
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

// Bool builds a bool Field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Err builds an "error" Field from err. A nil err yields no field when
// applied via Logger.Error's convention of checking err != nil at the
// call site; the field itself still marshals as null if passed.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Logger is the structured logging contract used throughout the
// engine. Every node, strategy, and the runner itself log through
// this interface; production hosts are expected to supply their own
// implementation (logging backends are an external collaborator), but
// a zerolog-backed one ships by default.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// zerologLogger implements Logger on top of zerolog.Logger.
type zerologLogger struct {
	logger zerolog.Logger
}

// New builds a Logger writing to w at the given minimum level. Level
// strings follow zerolog's own vocabulary ("debug", "info", "warn",
// "error"); an unrecognized level falls back to "info".
func New(w io.Writer, level string) Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	base := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return &zerologLogger{logger: base}
}

// Noop returns a Logger that discards everything, for tests and for
// pipelines that opt out of logging entirely.
func Noop() Logger {
	return &zerologLogger{logger: zerolog.New(io.Discard)}
}

func (l *zerologLogger) log(level zerolog.Level, msg string, fields []Field) {
	evt := l.logger.WithLevel(level)
	for _, f := range fields {
		evt = evt.Interface(f.Key, f.Value)
	}
	evt.Msg(msg)
}

func (l *zerologLogger) Debug(msg string, fields ...Field) { l.log(zerolog.DebugLevel, msg, fields) }
func (l *zerologLogger) Info(msg string, fields ...Field)  { l.log(zerolog.InfoLevel, msg, fields) }
func (l *zerologLogger) Warn(msg string, fields ...Field)  { l.log(zerolog.WarnLevel, msg, fields) }
func (l *zerologLogger) Error(msg string, fields ...Field) { l.log(zerolog.ErrorLevel, msg, fields) }

func (l *zerologLogger) With(fields ...Field) Logger {
	ctx := l.logger.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}
	return &zerologLogger{logger: ctx.Logger()}
}

// Factory produces a node-scoped Logger given a node id. PipelineContext
// carries one of these so every node gets a logger pre-tagged with its
// own identity without each stage re-deriving it.
type Factory func(nodeID string) Logger

// NewFactory builds a Factory that derives node loggers from base via
// With(xlog.String("node_id", nodeID)).
func NewFactory(base Logger) Factory {
	return func(nodeID string) Logger {
		return base.With(String("node_id", nodeID))
	}
}

var (
	defaultOnce   sync.Once
	defaultLogger Logger
)

// Default returns a process-wide zerolog-backed logger at info level,
// writing to stderr. It exists for call sites (tests, examples) that
// do not want to thread a Factory through explicitly.
func Default() Logger {
	defaultOnce.Do(func() {
		defaultLogger = New(os.Stderr, "info")
	})
	return defaultLogger
}
