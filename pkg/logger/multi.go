package logger

import (
	"context"
	"errors"
	"log/slog"
)

// fanout sends each record to every sink. A failing sink (a full disk under
// --log-file) does not stop delivery to the others.
type fanout []slog.Handler

// Multi combines loggers into one. Nil and Nop loggers are dropped; a single
// remaining logger is returned as is, and none yields Nop.
func Multi(loggers ...*slog.Logger) *slog.Logger {
	var sinks fanout
	for _, l := range loggers {
		if l == nil {
			continue
		}
		if _, ok := l.Handler().(nopHandler); ok {
			continue
		}
		sinks = append(sinks, l.Handler())
	}

	switch len(sinks) {
	case 0:
		return Nop()
	case 1:
		return slog.New(sinks[0])
	default:
		return slog.New(sinks)
	}
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		// Handlers may retain the record's attrs, so each gets its own copy.
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) each(fn func(slog.Handler) slog.Handler) fanout {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = fn(h)
	}
	return out
}
