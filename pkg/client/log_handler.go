package client

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/m8test/m8link/pkg/common"
)

// pluginSink receives diagnostics mirrored into the plugin view
type pluginSink interface {
	ingestPlugin(level common.Level, message string)
}

type sinkBox struct {
	sink pluginSink
}

// PluginLogHandler is a slog.Handler that mirrors records at or above its
// level into the client's plugin view and forwards every record to a base
// handler. Records arriving before a client is attached, or after it
// closed, only reach the base handler.
//
// Handlers derived via WithAttrs/WithGroup share the sink pointer, so
// attaching the root handler attaches all of them.
type PluginLogHandler struct {
	level  slog.Level
	base   slog.Handler
	target *atomic.Pointer[sinkBox]
	attrs  []slog.Attr
	groups []string
}

// NewPluginLogHandler creates a handler mirroring records at or above
// level. A nil base discards forwarded records.
func NewPluginLogHandler(level slog.Level, base slog.Handler) *PluginLogHandler {
	return &PluginLogHandler{
		level:  level,
		base:   base,
		target: &atomic.Pointer[sinkBox]{},
	}
}

func (h *PluginLogHandler) attach(sink pluginSink) {
	if sink == nil {
		h.target.Store(nil)
		return
	}
	h.target.Store(&sinkBox{sink: sink})
}

// Enabled reports whether either the plugin view or the base handler
// wants records at level.
func (h *PluginLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= h.level {
		return true
	}
	return h.base != nil && h.base.Enabled(ctx, level)
}

// Handle mirrors and forwards the record. Mirroring never fails; the
// base handler's error is returned.
func (h *PluginLogHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level >= h.level {
		if box := h.target.Load(); box != nil {
			box.sink.ingestPlugin(levelFromSlog(record.Level), h.summary(record))
		}
	}
	if h.base != nil && h.base.Enabled(ctx, record.Level) {
		return h.base.Handle(ctx, record)
	}
	return nil
}

// summary renders "message (key=value, ...)".
func (h *PluginLogHandler) summary(record slog.Record) string {
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	var parts []string
	for _, attr := range h.attrs {
		parts = append(parts, fmt.Sprintf("%s=%s", attr.Key, attr.Value))
	}
	record.Attrs(func(attr slog.Attr) bool {
		parts = append(parts, fmt.Sprintf("%s%s=%s", prefix, attr.Key, attr.Value))
		return true
	})

	if len(parts) == 0 {
		return record.Message
	}
	return record.Message + " (" + strings.Join(parts, ", ") + ")"
}

func (h *PluginLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var base slog.Handler
	if h.base != nil {
		base = h.base.WithAttrs(attrs)
	}
	return &PluginLogHandler{
		level:  h.level,
		base:   base,
		target: h.target,
		attrs:  append(sliceClone(h.attrs), attrs...),
		groups: sliceClone(h.groups),
	}
}

func (h *PluginLogHandler) WithGroup(name string) slog.Handler {
	var base slog.Handler
	if h.base != nil {
		base = h.base.WithGroup(name)
	}
	return &PluginLogHandler{
		level:  h.level,
		base:   base,
		target: h.target,
		attrs:  sliceClone(h.attrs),
		groups: append(sliceClone(h.groups), name),
	}
}

// levelFromSlog maps slog levels onto display levels. Anything below
// debug is verbose; anything above error is an assertion.
func levelFromSlog(level slog.Level) common.Level {
	switch {
	case level < slog.LevelDebug:
		return common.LevelVerbose
	case level < slog.LevelInfo:
		return common.LevelDebug
	case level < slog.LevelWarn:
		return common.LevelInfo
	case level < slog.LevelError:
		return common.LevelWarn
	case level == slog.LevelError:
		return common.LevelError
	default:
		return common.LevelAssert
	}
}

func sliceClone[T any](source []T) []T {
	if source == nil {
		return nil
	}
	result := make([]T, len(source))
	copy(result, source)
	return result
}
