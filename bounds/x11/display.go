package x11

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/BurntSushi/xgbutil/xrect"
	"github.com/BurntSushi/xgbutil/xwindow"

	"github.com/Alia5/gazekey/bounds"
	"github.com/Alia5/gazekey/geom"
)

// Connect opens the X display (empty name uses $DISPLAY) and returns a
// resolver for it.
func Connect(name string, logger *slog.Logger) (*Resolver, error) {
	xu, err := xgbutil.NewConnDisplay(name)
	if err != nil {
		return nil, fmt.Errorf("connect to X display: %w", err)
	}
	r := newResolver(&xDisplay{xu: xu}, logger)
	r.logger.Info("Connected to X display", "root", bounds.Handle(xu.RootWin()))
	return r, nil
}

// Close closes the X connection.
func (r *Resolver) Close() error {
	if x, ok := r.d.(*xDisplay); ok {
		x.xu.Conn().Close()
	}
	return nil
}

type xDisplay struct {
	xu *xgbutil.XUtil
}

func win(h bounds.Handle) xproto.Window { return xproto.Window(h) }

func rectOf(r xrect.Rect) geom.Rect {
	return geom.Rect{X: float64(r.X()), Y: float64(r.Y()), W: float64(r.Width()), H: float64(r.Height())}
}

func (x *xDisplay) Root() bounds.Handle { return bounds.Handle(x.xu.RootWin()) }

func (x *xDisplay) Stacking() ([]bounds.Handle, error) {
	wins, err := ewmh.ClientListStackingGet(x.xu)
	if err != nil {
		return nil, err
	}
	out := make([]bounds.Handle, len(wins))
	for i, w := range wins {
		out[i] = bounds.Handle(w)
	}
	return out, nil
}

func (x *xDisplay) Static(h bounds.Handle) (staticAttrs, error) {
	attrs, err := xproto.GetWindowAttributes(x.xu.Conn(), win(h)).Reply()
	if err != nil {
		return staticAttrs{}, err
	}
	// Missing _NET_WM_WINDOW_TYPE is not an error.
	types, _ := ewmh.WmWindowTypeGet(x.xu, win(h))
	return staticAttrs{Types: types, OverrideRedirect: attrs.OverrideRedirect}, nil
}

func (x *xDisplay) Dynamic(h bounds.Handle) (dynamicAttrs, error) {
	attrs, err := xproto.GetWindowAttributes(x.xu.Conn(), win(h)).Reply()
	if err != nil {
		return dynamicAttrs{}, err
	}
	d := dynamicAttrs{Mapped: attrs.MapState == xproto.MapStateViewable}
	d.States, _ = ewmh.WmStateGet(x.xu, win(h))
	if op, err := xprop.PropValNum(xprop.GetProperty(x.xu, win(h), "_NET_WM_WINDOW_OPACITY")); err == nil {
		d.Opacity, d.HasOpacity = op, true
	}
	return d, nil
}

func (x *xDisplay) Geometry(h bounds.Handle) (geom.Rect, error) {
	r, err := xwindow.New(x.xu, win(h)).DecorGeometry()
	if err != nil {
		return geom.Rect{}, err
	}
	return rectOf(r), nil
}

func (x *xDisplay) Workarea() (geom.Rect, error) {
	areas, err := ewmh.WorkareaGet(x.xu)
	if err == nil && len(areas) > 0 {
		i, _ := ewmh.CurrentDesktopGet(x.xu)
		if int(i) >= len(areas) {
			i = 0
		}
		a := areas[i]
		return geom.Rect{X: float64(a.X), Y: float64(a.Y), W: float64(a.Width), H: float64(a.Height)}, nil
	}
	r, err := xwindow.RawGeometry(x.xu, xproto.Drawable(x.xu.RootWin()))
	if err != nil {
		return geom.Rect{}, err
	}
	return rectOf(r), nil
}

func (x *xDisplay) Activate(h bounds.Handle) error {
	return ewmh.ActiveWindowReq(x.xu, win(h))
}

func (x *xDisplay) Warp(p geom.Point) error {
	return xproto.WarpPointerChecked(x.xu.Conn(), xproto.WindowNone, x.xu.RootWin(),
		0, 0, 0, 0, clampCoord(p.X), clampCoord(p.Y)).Check()
}

func (x *xDisplay) Pointer() (geom.Point, error) {
	reply, err := xproto.QueryPointer(x.xu.Conn(), x.xu.RootWin()).Reply()
	if err != nil {
		return geom.Point{}, err
	}
	return geom.Point{X: float64(reply.RootX), Y: float64(reply.RootY)}, nil
}

func clampCoord(v float64) int16 {
	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(v))))
}
