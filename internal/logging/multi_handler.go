package logging

import (
	"context"
	"errors"
	"log/slog"
)

// multiHandler forwards each record to every backend whose level allows
// it. Used to pair the stdout handler with the journal handler.
type multiHandler struct {
	backends []slog.Handler
}

// NewMultiHandler combines handlers into one. A record is delivered to
// each backend that reports itself enabled for the record's level.
func NewMultiHandler(backends ...slog.Handler) slog.Handler {
	return &multiHandler{backends: backends}
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, b := range m.backends {
		if b.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, b := range m.backends {
		if !b.Enabled(ctx, record.Level) {
			continue
		}
		if err := b.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return m.apply(func(b slog.Handler) slog.Handler { return b.WithAttrs(attrs) })
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	return m.apply(func(b slog.Handler) slog.Handler { return b.WithGroup(name) })
}

// apply derives a new multiHandler with fn mapped over every backend.
func (m *multiHandler) apply(fn func(slog.Handler) slog.Handler) slog.Handler {
	next := make([]slog.Handler, len(m.backends))
	for i, b := range m.backends {
		next[i] = fn(b)
	}
	return &multiHandler{backends: next}
}
