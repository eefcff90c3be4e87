package logging

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// LineHandler renders records as single plain-text lines and hands each one
// to sink. Recordings use it to mirror their log output into the per-recording
// log stream alongside the daemon log.
type LineHandler struct {
	sink   func(line string)
	level  slog.Level
	attrs  []slog.Attr
	groups []string
	now    func() time.Time
}

// NewLineHandler returns a handler that emits records at or above level.
func NewLineHandler(sink func(string), level slog.Level) *LineHandler {
	return &LineHandler{sink: sink, level: level, now: time.Now}
}

func (h *LineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.sink != nil && level >= h.level
}

func (h *LineHandler) Handle(_ context.Context, record slog.Record) error {
	if h.sink == nil || record.Level < h.level {
		return nil
	}
	ts := record.Time
	if ts.IsZero() {
		ts = h.now()
	}
	kvs := make([]kv, 0, record.NumAttrs()+len(h.attrs))
	flattenAttrs(&kvs, h.groups, h.attrs)
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&kvs, h.groups, attr)
		return true
	})

	var b strings.Builder
	b.WriteString(ts.UTC().Format(time.RFC3339))
	b.WriteByte(' ')
	b.WriteString(levelLabel(record.Level))
	b.WriteByte(' ')
	b.WriteString(strings.TrimSpace(record.Message))
	for _, item := range dedupeKVsByKey(kvs) {
		switch item.key {
		case FieldComponent, FieldRecordingID:
			continue
		}
		b.WriteByte(' ')
		b.WriteString(item.key)
		b.WriteByte('=')
		b.WriteString(formatValue(item.value))
	}
	h.sink(b.String())
	return nil
}

func (h *LineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *LineHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}
