// Package bounds describes how the interaction core looks up windows and
// screen regions. Platform resolvers live in sub-packages.
package bounds

import (
	"errors"
	"fmt"

	"github.com/Alia5/gazekey/geom"
)

// ErrWindowGone is returned when a window handle no longer refers to an
// existing window.
var ErrWindowGone = errors.New("window no longer exists")

// Handle is an opaque reference to a top-level window. The zero Handle
// refers to no window.
type Handle uint64

func (h Handle) String() string { return fmt.Sprintf("0x%x", uint64(h)) }

// Resolver answers window and screen geometry queries.
type Resolver interface {
	// WindowBounds returns the outer rectangle of h in screen coordinates.
	WindowBounds(h Handle) (geom.Rect, bool)
	// FrontmostWindowAt returns the topmost eligible window under p, never
	// exclude.
	FrontmostWindowAt(p geom.Point, exclude Handle) (Handle, bool)
	// IsWindow reports whether h still refers to an existing window.
	IsWindow(h Handle) bool
	// PrimaryScreen returns the usable area of the primary screen.
	PrimaryScreen() geom.Rect
}

// Window is a capability for a window acquired at some earlier time. Every
// use re-validates that the window still exists.
type Window struct {
	handle   Handle
	resolver Resolver
}

// NewWindow wraps h for later validated access through r.
func NewWindow(r Resolver, h Handle) Window {
	return Window{handle: h, resolver: r}
}

// Handle returns the wrapped handle without validating it.
func (w Window) Handle() Handle { return w.handle }

// Valid reports whether the window still exists.
func (w Window) Valid() bool {
	return w.resolver != nil && w.handle != 0 && w.resolver.IsWindow(w.handle)
}

// Bounds returns the live rectangle of the window.
func (w Window) Bounds() (geom.Rect, error) {
	if !w.Valid() {
		return geom.Rect{}, fmt.Errorf("window %s: %w", w.handle, ErrWindowGone)
	}
	r, ok := w.resolver.WindowBounds(w.handle)
	if !ok || r.Empty() {
		return geom.Rect{}, fmt.Errorf("window %s: %w", w.handle, ErrWindowGone)
	}
	return r, nil
}

// IsFrontmostAt reports whether the window is the topmost eligible window
// under p.
func (w Window) IsFrontmostAt(p geom.Point, exclude Handle) bool {
	if !w.Valid() {
		return false
	}
	h, ok := w.resolver.FrontmostWindowAt(p, exclude)
	return ok && h == w.handle
}
