package logging

import (
	"context"
	"log/slog"
)

// ModuleHandler wraps an inner slog.Handler, adding context-carried fields
// (graph/node/worker/request ids) to every record and applying per-module
// level overrides from a ModuleConfig.
type ModuleHandler struct {
	inner  slog.Handler
	config *ModuleConfig
}

// NewModuleHandler wraps inner with module-scoped level filtering. With no
// config argument it uses a ModuleConfig whose default level is Info, so a
// record whose context carries a node id is dropped below Info even when
// inner is enabled at a lower level.
func NewModuleHandler(inner slog.Handler, config ...*ModuleConfig) *ModuleHandler {
	h := &ModuleHandler{inner: inner}
	if len(config) > 0 {
		h.config = config[0]
	} else {
		h.config = NewModuleConfig(slog.LevelInfo)
	}
	return h
}

// Enabled delegates to the inner handler; per-module overrides are applied
// in Handle, since Enabled here has no record to read the module name from.
func (h *ModuleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enriches the record with context fields before delegating.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler contract
func (h *ModuleHandler) Handle(ctx context.Context, r slog.Record) error {
	if module, _ := ctx.Value(ContextKeyNodeID).(string); module != "" {
		if r.Level < h.config.LevelFor(module) {
			return nil
		}
	}
	newRecord := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	for _, key := range allContextKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			newRecord.AddAttrs(slog.String(string(key), v))
		}
	}
	r.Attrs(func(a slog.Attr) bool {
		newRecord.AddAttrs(a)
		return true
	})
	return h.inner.Handle(ctx, newRecord)
}

// WithAttrs returns a new handler with the given attributes added.
func (h *ModuleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ModuleHandler{inner: h.inner.WithAttrs(attrs), config: h.config}
}

// WithGroup returns a new handler with the given group name.
func (h *ModuleHandler) WithGroup(name string) slog.Handler {
	return &ModuleHandler{inner: h.inner.WithGroup(name), config: h.config}
}

var _ slog.Handler = (*ModuleHandler)(nil)
