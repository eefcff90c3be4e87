package logging

import (
	"context"
	"log/slog"
)

// teeHandler sends every record to a primary handler and copies it to
// mirrors. Only the primary's error is reported: a recording's log stream
// failing must not surface as a daemon logging error.
type teeHandler struct {
	primary slog.Handler
	mirrors []slog.Handler
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.primary.Enabled(ctx, level) {
		return true
	}
	for _, m := range h.mirrors {
		if m.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, m := range h.mirrors {
		if m.Enabled(ctx, record.Level) {
			_ = m.Handle(ctx, record.Clone())
		}
	}
	if !h.primary.Enabled(ctx, record.Level) {
		return nil
	}
	return h.primary.Handle(ctx, record)
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return h.derive(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

func (h *teeHandler) derive(fn func(slog.Handler) slog.Handler) slog.Handler {
	mirrors := make([]slog.Handler, len(h.mirrors))
	for i, m := range h.mirrors {
		mirrors[i] = fn(m)
	}
	return &teeHandler{primary: fn(h.primary), mirrors: mirrors}
}

// TeeLogger keeps logging through base and mirrors each record into the
// extra handlers. A recording uses it to copy its logger into the
// recording's own log stream.
func TeeLogger(base *slog.Logger, mirrors ...slog.Handler) *slog.Logger {
	primary := slog.Handler(NoopHandler{})
	if base != nil {
		primary = base.Handler()
	}
	kept := make([]slog.Handler, 0, len(mirrors))
	for _, m := range mirrors {
		if m != nil {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		return slog.New(primary)
	}
	return slog.New(&teeHandler{primary: primary, mirrors: kept})
}
