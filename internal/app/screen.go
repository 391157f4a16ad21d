package app

import (
	"context"
	"sync"

	"github.com/Alia5/gazekey/bounds"
	"github.com/Alia5/gazekey/geom"
	"github.com/Alia5/gazekey/output"
)

// dock tracks the keyboard window as last reported by the frontend.
type dock struct {
	mu     sync.RWMutex
	window geom.Rect
	docked bool
}

func (d *dock) set(window geom.Rect, docked bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.window, d.docked = window, docked
}

// DockedWindow returns the keyboard window when it is docked.
func (d *dock) DockedWindow() (geom.Rect, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.window, d.docked && !d.window.Empty()
}

// OverKey reports whether p lies over the keyboard window.
func (d *dock) OverKey(p geom.Point) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.window.Contains(p)
}

// ScreenResolver is a resolver without window access. It serves setups with
// no window system connection: only the screen bounds modes work.
type ScreenResolver struct {
	Screen geom.Rect
}

var _ bounds.Resolver = ScreenResolver{}

func (ScreenResolver) WindowBounds(bounds.Handle) (geom.Rect, bool) { return geom.Rect{}, false }

func (ScreenResolver) FrontmostWindowAt(geom.Point, bounds.Handle) (bounds.Handle, bool) {
	return 0, false
}

func (ScreenResolver) IsWindow(bounds.Handle) bool { return false }

func (r ScreenResolver) PrimaryScreen() geom.Rect { return r.Screen }

// WarpPointer sends absolute pointer moves to Warp and everything else to
// Pointer. It pairs a relative virtual mouse with a window system that can
// place the pointer directly.
type WarpPointer struct {
	output.Pointer
	Warp interface {
		MovePointer(ctx context.Context, p geom.Point) error
	}
}

func (w WarpPointer) MovePointer(ctx context.Context, p geom.Point) error {
	if w.Warp == nil {
		return w.Pointer.MovePointer(ctx, p)
	}
	return w.Warp.MovePointer(ctx, p)
}
