// Package log provides scoped, structured logging on top of zerolog.
package log

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Attr adds a field to a log context.
type Attr func(zerolog.Context) zerolog.Context

// Scope sets the component name of the logger.
func Scope(name string) Attr {
	return func(c zerolog.Context) zerolog.Context {
		return c.Str("s", name)
	}
}

// NS sets the schema and collection the entry refers to.
func NS(db, coll string) Attr {
	return func(c zerolog.Context) zerolog.Context {
		return c.Str("ns", db+"."+coll)
	}
}

// ReplicaSet sets the replica set the entry refers to.
func ReplicaSet(name string) Attr {
	return func(c zerolog.Context) zerolog.Context {
		return c.Str("rs", name)
	}
}

// Member sets the member address the entry refers to.
func Member(addr string) Attr {
	return func(c zerolog.Context) zerolog.Context {
		return c.Str("member", addr)
	}
}

// Elapsed records a duration in milliseconds.
func Elapsed(dur time.Duration) Attr {
	return func(c zerolog.Context) zerolog.Context {
		return c.Int64("elapsed_ms", dur.Milliseconds())
	}
}

// Count records a number of documents.
func Count(n int64) Attr {
	return func(c zerolog.Context) zerolog.Context {
		return c.Int64("count", n)
	}
}

// Int64 records an arbitrary integer field.
func Int64(key string, v int64) Attr {
	return func(c zerolog.Context) zerolog.Context {
		return c.Int64(key, v)
	}
}

// Str records an arbitrary string field.
func Str(key, v string) Attr {
	return func(c zerolog.Context) zerolog.Context {
		return c.Str(key, v)
	}
}

// Logger is a scoped logger. The zero value writes to the global logger.
type Logger struct {
	zl *zerolog.Logger
}

// InitGlobals configures the global logger and returns it.
func InitGlobals(level zerolog.Level, json, noColor bool) *zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	var l zerolog.Logger
	if json {
		l = zerolog.New(os.Stdout)
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			NoColor:    noColor,
			TimeFormat: "2006-01-02 15:04:05.000",
		})
	}

	l = l.Level(level).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(level)
	zerolog.DefaultContextLogger = &l

	return &l
}

// New returns a logger for the given scope.
func New(scope string) Logger {
	l := global().With().Str("s", scope).Logger()

	return Logger{zl: &l}
}

// Ctx returns the logger stored in ctx, or the global one.
func Ctx(ctx context.Context) Logger {
	return Logger{zl: zerolog.Ctx(ctx)}
}

// WithAttrs returns a copy of ctx holding the context logger extended with attrs.
func WithAttrs(ctx context.Context, attrs ...Attr) context.Context {
	return Ctx(ctx).With(attrs...).WithContext(ctx)
}

func global() *zerolog.Logger {
	if zerolog.DefaultContextLogger != nil {
		return zerolog.DefaultContextLogger
	}

	l := zerolog.Nop()

	return &l
}

func (l Logger) unwrap() *zerolog.Logger {
	if l.zl == nil {
		return global()
	}

	return l.zl
}

// With returns a child logger carrying attrs.
func (l Logger) With(attrs ...Attr) Logger {
	c := l.unwrap().With()
	for _, attr := range attrs {
		c = attr(c)
	}

	zl := c.Logger()

	return Logger{zl: &zl}
}

// WithContext stores the logger in ctx.
func (l Logger) WithContext(ctx context.Context) context.Context {
	return l.unwrap().WithContext(ctx)
}

func (l Logger) Trace(msg string) {
	l.unwrap().Trace().Msg(msg)
}

func (l Logger) Tracef(format string, args ...any) {
	l.unwrap().Trace().Msgf(format, args...)
}

func (l Logger) Debug(msg string) {
	l.unwrap().Debug().Msg(msg)
}

func (l Logger) Debugf(format string, args ...any) {
	l.unwrap().Debug().Msgf(format, args...)
}

func (l Logger) Info(msg string) {
	l.unwrap().Info().Msg(msg)
}

func (l Logger) Infof(format string, args ...any) {
	l.unwrap().Info().Msgf(format, args...)
}

// InfoWith logs msg with one-off attrs.
func (l Logger) InfoWith(msg string, attrs ...Attr) {
	l.With(attrs...).Info(msg)
}

func (l Logger) Warn(msg string) {
	l.unwrap().Warn().Msg(msg)
}

func (l Logger) Warnf(format string, args ...any) {
	l.unwrap().Warn().Msgf(format, args...)
}

// Error logs err with msg. err may be nil.
func (l Logger) Error(err error, msg string) {
	l.unwrap().Error().Err(err).Msg(msg)
}

// Errorf logs err with a formatted message. err may be nil.
func (l Logger) Errorf(err error, format string, args ...any) {
	l.unwrap().Error().Err(err).Msg(fmt.Sprintf(format, args...))
}
