package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const consoleTimestampLayout = "2006-01-02 15:04:05"

// infoFieldLimit caps the bullet list under an info line; debug shows everything.
const infoFieldLimit = 8

// Keys listed here are printed first, in this order, on info lines.
var infoHighlightKeys = []string{
	FieldAlert,
	FieldEventType,
	"reason",
	"state",
	"nick",
	"codec",
	"bytes_written",
	"size_limit_bytes",
	"duration",
	"error",
	FieldErrorHint,
	FieldImpact,
}

type prettyHandler struct {
	mu        *sync.Mutex
	writer    io.Writer
	level     slog.Leveler
	attrs     []slog.Attr
	groups    []string
	addSource bool
}

func newPrettyHandler(w io.Writer, lvl slog.Leveler, addSource bool) slog.Handler {
	return &prettyHandler{mu: &sync.Mutex{}, writer: w, level: lvl, addSource: addSource}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level.Level() {
		return nil
	}
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	kvs := make([]kv, 0, record.NumAttrs()+len(h.attrs))
	flattenAttrs(&kvs, h.groups, h.attrs)
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&kvs, h.groups, attr)
		return true
	})
	kvs = dedupeKVsByKey(kvs)

	var component, recording, track string
	fields := make([]kv, 0, len(kvs))
	for _, item := range kvs {
		switch item.key {
		case FieldComponent:
			component = attrString(item.value)
		case FieldRecordingID:
			recording = attrString(item.value)
		case FieldTrack:
			track = attrString(item.value)
		default:
			fields = append(fields, item)
		}
	}

	var buf bytes.Buffer
	buf.Grow(256 + len(fields)*32)
	buf.WriteString(ts.In(time.Local).Format(consoleTimestampLayout))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(record.Level))
	if component != "" {
		buf.WriteString(" [")
		buf.WriteString(component)
		buf.WriteByte(']')
	}
	if subject := composeSubject(recording, track); subject != "" {
		buf.WriteByte(' ')
		buf.WriteString(subject)
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	buf.WriteString(" - ")
	buf.WriteString(msg)
	if h.addSource {
		if src := record.Source(); src != nil {
			buf.WriteString(" [")
			buf.WriteString(filepath.Base(src.File))
			buf.WriteByte(':')
			buf.WriteString(strconv.Itoa(src.Line))
			buf.WriteByte(']')
		}
	}
	buf.WriteByte('\n')

	if record.Level < slog.LevelInfo {
		for _, item := range fields {
			buf.WriteString("    ")
			buf.WriteString(item.key)
			buf.WriteString(": ")
			buf.WriteString(formatValue(item.value))
			buf.WriteByte('\n')
		}
	} else {
		shown, hidden := orderInfoFields(fields)
		for _, item := range shown {
			buf.WriteString("    - ")
			buf.WriteString(item.key)
			buf.WriteString(": ")
			buf.WriteString(formatValueForKey(item.key, item.value))
			buf.WriteByte('\n')
		}
		if hidden > 0 {
			fmt.Fprintf(&buf, "    + %d more hidden\n", hidden)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write(buf.Bytes())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	clone.attrs = append(clone.attrs, attrs...)
	return clone
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	clone := h.clone()
	clone.groups = append(clone.groups, name)
	return clone
}

func (h *prettyHandler) clone() *prettyHandler {
	return &prettyHandler{
		mu:        h.mu,
		writer:    h.writer,
		level:     h.level,
		addSource: h.addSource,
		attrs:     append([]slog.Attr(nil), h.attrs...),
		groups:    append([]string(nil), h.groups...),
	}
}

func composeSubject(recording, track string) string {
	switch {
	case recording != "" && track != "":
		return "Recording " + shortID(recording) + " (track " + track + ")"
	case recording != "":
		return "Recording " + shortID(recording)
	case track != "":
		return "Track " + track
	default:
		return ""
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orderInfoFields(fields []kv) ([]kv, int) {
	used := make([]bool, len(fields))
	out := make([]kv, 0, infoFieldLimit)
	for _, key := range infoHighlightKeys {
		for i, item := range fields {
			if !used[i] && item.key == key {
				used[i] = true
				out = append(out, item)
				break
			}
		}
	}
	for i, item := range fields {
		if !used[i] {
			out = append(out, item)
		}
	}
	if len(out) > infoFieldLimit {
		return out[:infoFieldLimit], len(out) - infoFieldLimit
	}
	return out, 0
}

type kv struct {
	key   string
	value slog.Value
}

func dedupeKVsByKey(attrs []kv) []kv {
	if len(attrs) < 2 {
		return attrs
	}
	positions := make(map[string]int, len(attrs))
	deduped := make([]kv, 0, len(attrs))
	for _, attr := range attrs {
		if attr.key == "" {
			continue
		}
		if pos, ok := positions[attr.key]; ok {
			deduped[pos].value = attr.value
			continue
		}
		positions[attr.key] = len(deduped)
		deduped = append(deduped, attr)
	}
	return deduped
}

func flattenAttrs(dst *[]kv, prefix []string, attrs []slog.Attr) {
	for _, attr := range attrs {
		flattenAttr(dst, prefix, attr)
	}
}

func flattenAttr(dst *[]kv, prefix []string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		next := prefix
		if attr.Key != "" {
			next = append(append([]string(nil), prefix...), attr.Key)
		}
		flattenAttrs(dst, next, attr.Value.Group())
		return
	}
	key := attr.Key
	if len(prefix) > 0 {
		key = strings.Join(append(append([]string(nil), prefix...), key), ".")
	}
	*dst = append(*dst, kv{key: key, value: attr.Value})
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// formatValueForKey renders byte counts and durations for humans on info lines.
func formatValueForKey(key string, v slog.Value) string {
	v = v.Resolve()
	if strings.HasSuffix(key, "_bytes") {
		switch v.Kind() {
		case slog.KindInt64:
			if n := v.Int64(); n >= 0 {
				return humanize.IBytes(uint64(n))
			}
		case slog.KindUint64:
			return humanize.IBytes(v.Uint64())
		}
	}
	if v.Kind() == slog.KindDuration {
		return v.Duration().Round(time.Millisecond).String()
	}
	if v.Kind() == slog.KindBool {
		if v.Bool() {
			return "yes"
		}
		return "no"
	}
	return formatValue(v)
}

func attrString(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return formatValue(v)
	}
}

func formatValue(v slog.Value) string {
	v = v.Resolve()
	var s string
	switch v.Kind() {
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().In(time.Local).Format(consoleTimestampLayout)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	default:
		s = v.String()
	}
	if needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r <= ' ' || r == '=' || r == '"' {
			return true
		}
	}
	return false
}
