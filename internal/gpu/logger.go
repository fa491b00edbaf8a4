//go:build !nogpu

package gpu

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// quietHandler keeps the renderer silent until paranormal.SetLogger
// reaches it through OverlayRenderer.SetLogger.
type quietHandler struct{}

func (quietHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (quietHandler) Handle(context.Context, slog.Record) error { return nil }
func (quietHandler) WithAttrs([]slog.Attr) slog.Handler        { return quietHandler{} }
func (quietHandler) WithGroup(string) slog.Handler             { return quietHandler{} }

// rendererLog is swapped by SetLogger while Overlay calls may be logging
// from the compositor goroutine.
var rendererLog atomic.Pointer[slog.Logger]

func init() {
	rendererLog.Store(slog.New(quietHandler{}))
}

// slogger returns the renderer's logger. Records carry
// component=wgpu-overlay: pipeline compilation at debug, the selected
// adapter or shared device at info, and init failures at warn.
func slogger() *slog.Logger { return rendererLog.Load() }

func setLogger(l *slog.Logger) {
	if l == nil {
		rendererLog.Store(slog.New(quietHandler{}))
		return
	}
	rendererLog.Store(l.With("component", "wgpu-overlay"))
}
