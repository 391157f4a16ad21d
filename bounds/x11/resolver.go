// Package x11 resolves window and screen geometry on an EWMH compliant X11
// desktop.
package x11

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	lru "github.com/hashicorp/golang-lru"

	"github.com/Alia5/gazekey/bounds"
	"github.com/Alia5/gazekey/geom"
)

const attrCacheSize = 256

// Window types that count as application windows. A window without a type
// is treated as normal.
var eligibleTypes = []string{"_NET_WM_WINDOW_TYPE_NORMAL", "_NET_WM_WINDOW_TYPE_DIALOG"}

// staticAttrs are properties set once when a window is mapped.
type staticAttrs struct {
	Types            []string
	OverrideRedirect bool
}

// dynamicAttrs change over the lifetime of a window.
type dynamicAttrs struct {
	Mapped     bool
	States     []string
	Opacity    uint
	HasOpacity bool
}

// display is the X server as seen by the resolver.
type display interface {
	Root() bounds.Handle
	// Stacking returns the managed clients bottom to top.
	Stacking() ([]bounds.Handle, error)
	Static(h bounds.Handle) (staticAttrs, error)
	Dynamic(h bounds.Handle) (dynamicAttrs, error)
	Geometry(h bounds.Handle) (geom.Rect, error)
	Workarea() (geom.Rect, error)
	Activate(h bounds.Handle) error
	Warp(p geom.Point) error
	Pointer() (geom.Point, error)
}

// Resolver implements bounds.Resolver over EWMH.
type Resolver struct {
	d      display
	self   bounds.Handle
	cache  *lru.Cache
	logger *slog.Logger
}

var _ bounds.Resolver = (*Resolver)(nil)

func newResolver(d display, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	cache, _ := lru.New(attrCacheSize)
	return &Resolver{d: d, cache: cache, logger: logger}
}

// SetSelf marks the keyboard's own window; it is never eligible.
func (r *Resolver) SetSelf(h bounds.Handle) { r.self = h }

func (r *Resolver) static(h bounds.Handle) (staticAttrs, error) {
	if v, ok := r.cache.Get(h); ok {
		return v.(staticAttrs), nil
	}
	a, err := r.d.Static(h)
	if err != nil {
		return staticAttrs{}, err
	}
	r.cache.Add(h, a)
	return a, nil
}

// eligible applies the window filter: not the root or our own window,
// mapped and not hidden, an application window type, not an
// override-redirect popup and not fully transparent.
func eligible(s staticAttrs, d dynamicAttrs) bool {
	if s.OverrideRedirect || !d.Mapped {
		return false
	}
	if d.HasOpacity && d.Opacity == 0 {
		return false
	}
	if slices.Contains(d.States, "_NET_WM_STATE_HIDDEN") {
		return false
	}
	if len(s.Types) == 0 {
		return true
	}
	for _, t := range s.Types {
		if slices.Contains(eligibleTypes, t) {
			return true
		}
	}
	return false
}

func (r *Resolver) isEligible(h bounds.Handle) bool {
	if h == 0 || h == r.d.Root() || h == r.self {
		return false
	}
	s, err := r.static(h)
	if err != nil {
		r.cache.Remove(h)
		return false
	}
	d, err := r.d.Dynamic(h)
	if err != nil {
		return false
	}
	return eligible(s, d)
}

// WindowBounds returns the frame rectangle of h.
func (r *Resolver) WindowBounds(h bounds.Handle) (geom.Rect, bool) {
	rect, err := r.d.Geometry(h)
	if err != nil {
		r.logger.Debug("window geometry", "window", h, "error", err)
		return geom.Rect{}, false
	}
	return rect, !rect.Empty()
}

// FrontmostWindowAt walks the stacking order from the top and returns the
// first eligible window whose frame contains p.
func (r *Resolver) FrontmostWindowAt(p geom.Point, exclude bounds.Handle) (bounds.Handle, bool) {
	stack, err := r.d.Stacking()
	if err != nil {
		r.logger.Warn("read client stacking", "error", err)
		return 0, false
	}
	for i := len(stack) - 1; i >= 0; i-- {
		h := stack[i]
		if h == exclude || !r.isEligible(h) {
			continue
		}
		if rect, ok := r.WindowBounds(h); ok && rect.Contains(p) {
			return h, true
		}
	}
	return 0, false
}

// IsWindow reports whether h is still a managed client.
func (r *Resolver) IsWindow(h bounds.Handle) bool {
	if h == 0 {
		return false
	}
	stack, err := r.d.Stacking()
	if err != nil {
		return false
	}
	if !slices.Contains(stack, h) {
		r.cache.Remove(h)
		return false
	}
	return true
}

// PrimaryScreen returns the work area of the current desktop.
func (r *Resolver) PrimaryScreen() geom.Rect {
	rect, err := r.d.Workarea()
	if err != nil {
		r.logger.Warn("read work area", "error", err)
		return geom.Rect{}
	}
	return rect
}

// BringWindowToFront asks the window manager to activate h.
func (r *Resolver) BringWindowToFront(_ context.Context, h bounds.Handle) error {
	if !r.IsWindow(h) {
		return fmt.Errorf("window %s: %w", h, bounds.ErrWindowGone)
	}
	if err := r.d.Activate(h); err != nil {
		return fmt.Errorf("activate window %s: %w", h, err)
	}
	return nil
}

// MovePointer warps the pointer to p.
func (r *Resolver) MovePointer(_ context.Context, p geom.Point) error {
	if err := r.d.Warp(p); err != nil {
		return fmt.Errorf("warp pointer: %w", err)
	}
	return nil
}

// PointerPosition returns the current pointer position.
func (r *Resolver) PointerPosition() (geom.Point, bool) {
	p, err := r.d.Pointer()
	if err != nil {
		return geom.Point{}, false
	}
	return p, true
}
