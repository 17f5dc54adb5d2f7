package observe

import (
	"context"
	"io"
	"log/slog"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// ParseLevel maps a config log level name to a [slog.Level].
// Unknown names map to [slog.LevelInfo].
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger writing to w. format is "text",
// "json" or "pretty"; anything else falls back to text. The returned
// [slog.LevelVar] controls the level of every record and may be changed at
// any time (e.g. on config reload).
func NewLogger(level slog.Level, format string, w io.Writer) (*slog.Logger, *slog.LevelVar) {
	lv := &slog.LevelVar{}
	lv.Set(level)

	var h slog.Handler
	switch format {
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lv})
	case "pretty":
		// The console handler's own level stays at debug; lv does the gating.
		h = &leveledHandler{
			level: lv,
			inner: charmlog.NewWithOptions(w, charmlog.Options{
				ReportTimestamp: true,
				TimeFormat:      time.TimeOnly,
				Level:           charmlog.DebugLevel,
			}),
		}
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})
	}
	return slog.New(h), lv
}

// leveledHandler gates a handler whose level is fixed at construction.
type leveledHandler struct {
	level slog.Leveler
	inner slog.Handler
}

func (h *leveledHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.level.Level() && h.inner.Enabled(ctx, l)
}

func (h *leveledHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h *leveledHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &leveledHandler{level: h.level, inner: h.inner.WithAttrs(attrs)}
}

func (h *leveledHandler) WithGroup(name string) slog.Handler {
	return &leveledHandler{level: h.level, inner: h.inner.WithGroup(name)}
}
