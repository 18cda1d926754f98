package logging

import (
	"context"
	"log/slog"
)

// CapturingHandler wraps an slog.Handler to capture log records under a key
// while passing them through. Records at or above minLevel are captured even
// when the underlying handler filters them out.
type CapturingHandler struct {
	underlying slog.Handler
	collector  *LogCollector
	key        string
	minLevel   slog.Level
	attrs      []slog.Attr
	groups     []string
}

// NewCapturingHandler creates a new CapturingHandler that captures Info and
// above into the collector under key.
func NewCapturingHandler(underlying slog.Handler, collector *LogCollector, key string) *CapturingHandler {
	return &CapturingHandler{
		underlying: underlying,
		collector:  collector,
		key:        key,
		minLevel:   slog.LevelInfo,
	}
}

// Enabled reports whether the record is captured or written.
func (h *CapturingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel || h.underlying.Enabled(ctx, level)
}

// Handle captures the log record and then passes it to the underlying handler
// if that handler accepts its level.
func (h *CapturingHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.minLevel {
		h.collector.AddLog(h.key, h.entry(r))
	}
	if !h.underlying.Enabled(ctx, r.Level) {
		return nil
	}
	return h.underlying.Handle(ctx, r)
}

func (h *CapturingHandler) entry(r slog.Record) LogEntry {
	entry := LogEntry{
		Time:       r.Time,
		Level:      r.Level.String(),
		Message:    r.Message,
		Attributes: make(map[string]any, r.NumAttrs()+len(h.attrs)),
	}
	for _, attr := range h.attrs {
		attr = replaceAttr(nil, attr)
		entry.Attributes[attr.Key] = resolveValue(attr.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		a = replaceAttr(nil, a)
		entry.Attributes[a.Key] = resolveValue(a.Value)
		return true
	})
	return entry
}

// WithAttrs returns a new CapturingHandler with additional attributes.
// It must stay a CapturingHandler so .With() chains keep capturing.
func (h *CapturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)

	clone := *h
	clone.underlying = h.underlying.WithAttrs(attrs)
	clone.attrs = newAttrs
	return &clone
}

// WithGroup returns a new CapturingHandler with a group name.
func (h *CapturingHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups[len(h.groups)] = name

	clone := *h
	clone.underlying = h.underlying.WithGroup(name)
	clone.groups = newGroups
	return &clone
}

// resolveValue converts a slog.Value to a JSON-serializable value.
func resolveValue(v slog.Value) any {
	v = v.Resolve()

	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time()
	case slog.KindAny:
		val := v.Any()
		if err, ok := val.(error); ok {
			return err.Error()
		}
		return val
	case slog.KindGroup:
		attrs := v.Group()
		group := make(map[string]any, len(attrs))
		for _, attr := range attrs {
			group[attr.Key] = resolveValue(attr.Value)
		}
		return group
	default:
		return v.Any()
	}
}
