package x11

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/gazekey/bounds"
	"github.com/Alia5/gazekey/geom"
)

type fakeWindow struct {
	static  staticAttrs
	dynamic dynamicAttrs
	rect    geom.Rect
}

type fakeDisplay struct {
	stack       []bounds.Handle
	windows     map[bounds.Handle]*fakeWindow
	staticReads int
	activated   []bounds.Handle
	pointer     geom.Point
}

var errNoWindow = errors.New("BadWindow")

func (f *fakeDisplay) Root() bounds.Handle { return 1 }
func (f *fakeDisplay) Stacking() ([]bounds.Handle, error) { return f.stack, nil }

func (f *fakeDisplay) Static(h bounds.Handle) (staticAttrs, error) {
	f.staticReads++
	w, ok := f.windows[h]
	if !ok {
		return staticAttrs{}, errNoWindow
	}
	return w.static, nil
}

func (f *fakeDisplay) Dynamic(h bounds.Handle) (dynamicAttrs, error) {
	w, ok := f.windows[h]
	if !ok {
		return dynamicAttrs{}, errNoWindow
	}
	return w.dynamic, nil
}

func (f *fakeDisplay) Geometry(h bounds.Handle) (geom.Rect, error) {
	w, ok := f.windows[h]
	if !ok {
		return geom.Rect{}, errNoWindow
	}
	return w.rect, nil
}

func (f *fakeDisplay) Workarea() (geom.Rect, error) { return geom.Rect{Y: 30, W: 1920, H: 1050}, nil }

func (f *fakeDisplay) Activate(h bounds.Handle) error {
	f.activated = append(f.activated, h)
	return nil
}

func (f *fakeDisplay) Warp(p geom.Point) error {
	f.pointer = p
	return nil
}

func (f *fakeDisplay) Pointer() (geom.Point, error) { return f.pointer, nil }

func normal(rect geom.Rect) *fakeWindow {
	return &fakeWindow{
		static:  staticAttrs{Types: []string{"_NET_WM_WINDOW_TYPE_NORMAL"}},
		dynamic: dynamicAttrs{Mapped: true},
		rect:    rect,
	}
}

func TestEligible(t *testing.T) {
	mapped := dynamicAttrs{Mapped: true}
	tests := []struct {
		name    string
		static  staticAttrs
		dynamic dynamicAttrs
		want    bool
	}{
		{"normal", staticAttrs{Types: []string{"_NET_WM_WINDOW_TYPE_NORMAL"}}, mapped, true},
		{"dialog", staticAttrs{Types: []string{"_NET_WM_WINDOW_TYPE_DIALOG"}}, mapped, true},
		{"untyped", staticAttrs{}, mapped, true},
		{"desktop", staticAttrs{Types: []string{"_NET_WM_WINDOW_TYPE_DESKTOP"}}, mapped, false},
		{"dock", staticAttrs{Types: []string{"_NET_WM_WINDOW_TYPE_DOCK"}}, mapped, false},
		{"override redirect", staticAttrs{OverrideRedirect: true}, mapped, false},
		{"unmapped", staticAttrs{}, dynamicAttrs{}, false},
		{"hidden", staticAttrs{}, dynamicAttrs{Mapped: true, States: []string{"_NET_WM_STATE_HIDDEN"}}, false},
		{"transparent", staticAttrs{}, dynamicAttrs{Mapped: true, HasOpacity: true}, false},
		{"translucent", staticAttrs{}, dynamicAttrs{Mapped: true, HasOpacity: true, Opacity: 0x7fffffff}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eligible(tt.static, tt.dynamic))
		})
	}
}

func TestFrontmostWindowAt(t *testing.T) {
	back := normal(geom.Rect{W: 1000, H: 1000})
	front := normal(geom.Rect{X: 100, Y: 100, W: 200, H: 200})
	popup := normal(geom.Rect{X: 100, Y: 100, W: 50, H: 50})
	popup.static.OverrideRedirect = true
	keyboard := normal(geom.Rect{X: 100, Y: 100, W: 500, H: 500})

	d := &fakeDisplay{
		stack:   []bounds.Handle{10, 20, 30, 40},
		windows: map[bounds.Handle]*fakeWindow{10: back, 20: front, 30: popup, 40: keyboard},
	}
	r := newResolver(d, nil)
	r.SetSelf(40)

	h, ok := r.FrontmostWindowAt(geom.Pt(120, 120), 0)
	require.True(t, ok)
	assert.Equal(t, bounds.Handle(20), h)

	h, ok = r.FrontmostWindowAt(geom.Pt(120, 120), 20)
	require.True(t, ok)
	assert.Equal(t, bounds.Handle(10), h)

	h, ok = r.FrontmostWindowAt(geom.Pt(900, 900), 0)
	require.True(t, ok)
	assert.Equal(t, bounds.Handle(10), h)

	_, ok = r.FrontmostWindowAt(geom.Pt(1500, 10), 0)
	assert.False(t, ok)
}

func TestStaticAttributesCached(t *testing.T) {
	d := &fakeDisplay{
		stack:   []bounds.Handle{10},
		windows: map[bounds.Handle]*fakeWindow{10: normal(geom.Rect{W: 100, H: 100})},
	}
	r := newResolver(d, nil)

	for range 3 {
		_, ok := r.FrontmostWindowAt(geom.Pt(10, 10), 0)
		require.True(t, ok)
	}
	assert.Equal(t, 1, d.staticReads)

	d.stack = nil
	assert.False(t, r.IsWindow(10))
	d.stack = []bounds.Handle{10}
	_, ok := r.FrontmostWindowAt(geom.Pt(10, 10), 0)
	require.True(t, ok)
	assert.Equal(t, 2, d.staticReads)
}

func TestWindowCapability(t *testing.T) {
	d := &fakeDisplay{
		stack:   []bounds.Handle{10},
		windows: map[bounds.Handle]*fakeWindow{10: normal(geom.Rect{X: 5, Y: 5, W: 100, H: 100})},
	}
	r := newResolver(d, nil)
	w := bounds.NewWindow(r, 10)

	rect, err := w.Bounds()
	require.NoError(t, err)
	assert.Equal(t, geom.Rect{X: 5, Y: 5, W: 100, H: 100}, rect)
	assert.True(t, w.IsFrontmostAt(geom.Pt(50, 50), 0))

	d.stack = nil
	_, err = w.Bounds()
	assert.ErrorIs(t, err, bounds.ErrWindowGone)
}

func TestBringWindowToFront(t *testing.T) {
	d := &fakeDisplay{stack: []bounds.Handle{10}, windows: map[bounds.Handle]*fakeWindow{}}
	r := newResolver(d, nil)
	ctx := context.Background()

	require.NoError(t, r.BringWindowToFront(ctx, 10))
	assert.Equal(t, []bounds.Handle{10}, d.activated)
	assert.ErrorIs(t, r.BringWindowToFront(ctx, 11), bounds.ErrWindowGone)
}

func TestPointerAndScreen(t *testing.T) {
	d := &fakeDisplay{}
	r := newResolver(d, nil)

	require.NoError(t, r.MovePointer(context.Background(), geom.Pt(300, 400)))
	p, ok := r.PointerPosition()
	require.True(t, ok)
	assert.Equal(t, geom.Pt(300, 400), p)
	assert.Equal(t, geom.Rect{Y: 30, W: 1920, H: 1050}, r.PrimaryScreen())
}
