package paranormal

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// discardHandler drops every record and reports all levels disabled, so
// the compositor worker never formats attributes nobody reads.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }

var silent = slog.New(discardHandler{})

// current is read by the compositor goroutine, the base image watcher and
// the GPU renderer while SetLogger may run on the caller's goroutine.
var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(silent)
}

// SetLogger routes paranormal's diagnostics to l. Documents, the
// compositor, the overlay filter and the registered GPU accelerator all
// log through it. A nil l silences them again, which is also the initial
// state.
//
// Records by level:
//   - [slog.LevelDebug]: recompute scheduling, generations published or
//     dropped as stale, base image file events
//   - [slog.LevelInfo]: documents opened, accelerator registration,
//     missing base images replaced by mid-gray
//   - [slog.LevelWarn]: overlays that fell back to the CPU, failed
//     recomputes, watcher errors
//
// The CLI, for example, installs a text handler at the configured level:
//
//	paranormal.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: cfg.LogLevel(),
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = silent
	}
	current.Store(l)
	if a := Accelerator(); a != nil {
		propagateLogger(a, l)
	}
}

// Logger returns the logger installed by SetLogger. The gpu package uses
// it to report registration failures.
func Logger() *slog.Logger {
	return current.Load()
}

// loggerSetter is implemented by accelerators that log on their own.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger hands l to a, from SetLogger and from RegisterAccelerator.
func propagateLogger(a OverlayAccelerator, l *slog.Logger) {
	if ls, ok := a.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
