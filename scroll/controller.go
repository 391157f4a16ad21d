// Package scroll implements look-to-scroll: while active, the gaze position
// relative to a centre point drives the scroll wheel.
package scroll

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Alia5/gazekey/bounds"
	"github.com/Alia5/gazekey/geom"
	"github.com/Alia5/gazekey/keystate"
	"github.com/Alia5/gazekey/output"
)

var (
	ActiveKey = keystate.Function(keystate.LookToScrollActive)
	BoundsKey = keystate.Function(keystate.LookToScrollBounds)
	SleepKey  = keystate.Function(keystate.Sleep)
)

// State is the controller state.
type State uint8

const (
	Idle State = iota
	AcquiringTarget
	Active
)

func (s State) String() string {
	switch s {
	case AcquiringTarget:
		return "acquiring"
	case Active:
		return "active"
	default:
		return "idle"
	}
}

// Output is what look-to-scroll drives.
type Output interface {
	ScrollWheel(ctx context.Context, dx, dy int) error
	MovePointer(ctx context.Context, p geom.Point) error
	BringWindowToFront(ctx context.Context, h bounds.Handle) error
}

// PointChooser collects points from the user. fn receives ok == false when
// the point action was abandoned.
type PointChooser interface {
	ChoosePoint(fn func(ctx context.Context, p geom.Point, ok bool), finalInSeries bool)
	ResetPointAction()
}

// Overlay is the geometry published for the scroll overlay.
type Overlay struct {
	Active   bool
	Bounds   geom.Rect
	Deadzone geom.Rect
	Margins  geom.Thickness
	Opacity  float64
}

// OverlayPublisher receives overlay updates.
type OverlayPublisher interface {
	PublishOverlay(o Overlay)
}

// Docking reports the main window rectangle when it is docked to a screen
// edge.
type Docking interface {
	DockedWindow() (geom.Rect, bool)
}

// HitTester reports whether p lies over one of the application's own keys.
type HitTester interface {
	OverKey(p geom.Point) bool
}

// Config wires the controller to its collaborators. Store, Resolver and
// Output are required.
type Config struct {
	Store    *keystate.Store
	Resolver bounds.Resolver
	Output   Output
	Chooser  PointChooser
	Settings SettingsSource
	Overlay  OverlayPublisher
	Notifier output.Notifier
	Docking  Docking
	Hits     HitTester

	// Self is the application's own window, never chosen as a target.
	Self bounds.Handle

	// OnActivate runs before target acquisition, e.g. to release locked
	// mouse action keys.
	OnActivate func(ctx context.Context)
}

// Session is the state of one activation.
type Session struct {
	ID         string
	BoundsMode BoundsMode
	Settings   Settings
	Point      geom.Point
	Window     bounds.Window
	// Rect is relative to the window's top-left in Subwindow mode and
	// absolute in Custom mode.
	Rect       geom.Rect
	Leftover   geom.Vector
	LastUpdate time.Time

	wasActive bool
}

// Sample is the outcome of one Update.
type Sample struct {
	Active   bool
	Bounds   geom.Rect
	Centre   geom.Point
	Velocity geom.Vector
	DX, DY   int
}

// Controller runs look-to-scroll sessions.
type Controller struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	session *Session
	gen     uint64
}

// New creates a Controller.
func New(cfg Config, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Settings == nil {
		cfg.Settings = DefaultSettings()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = output.LogNotifier{Logger: logger}
	}
	return &Controller{cfg: cfg, logger: logger}
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a copy of the current session.
func (c *Controller) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// Toggle reacts to a change of the activation key.
func (c *Controller) Toggle(ctx context.Context) {
	if !c.cfg.Store.Down(ActiveKey).IsDownOrLockedDown() {
		c.mu.Lock()
		acquiring := c.state == AcquiringTarget
		wasActive := c.session != nil && c.session.wasActive
		c.endLocked()
		c.mu.Unlock()
		if acquiring && c.cfg.Chooser != nil {
			c.cfg.Chooser.ResetPointAction()
		}
		if wasActive {
			c.publish(Overlay{})
		}
		c.logger.Info("Look to scroll is no longer active")
		return
	}

	c.mu.Lock()
	running := c.state != Idle
	c.mu.Unlock()
	if running {
		// Down to LockedDown keeps the current session.
		return
	}

	if c.cfg.OnActivate != nil {
		c.cfg.OnActivate(ctx)
	}
	settings := c.cfg.Settings.ScrollSettings()
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.session = &Session{
		ID:         uuid.New().String(),
		BoundsMode: settings.BoundsMode,
		Settings:   settings,
	}
	c.state = AcquiringTarget
	id := c.session.ID
	c.mu.Unlock()

	c.logger.Info("Look to scroll is now active", "session", id, "bounds", settings.BoundsMode)
	c.acquire(ctx, gen, settings.BoundsMode)
}

// ChooseBounds re-runs target acquisition for the current session.
func (c *Controller) ChooseBounds(ctx context.Context) {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		c.logger.Debug("No look to scroll session to choose bounds for")
		c.cfg.Store.SetDown(BoundsKey, keystate.Up)
		return
	}
	c.gen++
	gen := c.gen
	c.state = AcquiringTarget
	mode := c.session.BoundsMode
	c.mu.Unlock()

	c.logger.Info("Choosing look to scroll bounds", "bounds", mode)
	c.acquire(ctx, gen, mode)
}

func (c *Controller) acquire(ctx context.Context, gen uint64, mode BoundsMode) {
	switch mode {
	case ScreenCentred:
		c.finish(ctx, gen, nil)
	case ScreenPoint:
		c.choose(gen, true, func(ctx context.Context, p geom.Point) error {
			c.update(gen, func(s *Session) { s.Point = p })
			if h, ok := c.cfg.Resolver.FrontmostWindowAt(p, c.cfg.Self); ok {
				if err := c.cfg.Output.BringWindowToFront(ctx, h); err != nil {
					c.logger.Debug("Unable to bring window to front", "window", h, "error", err)
				}
			}
			return nil
		})
	case Window:
		c.choose(gen, true, func(ctx context.Context, p geom.Point) error {
			h, ok := c.cfg.Resolver.FrontmostWindowAt(p, c.cfg.Self)
			if !ok {
				return ErrNoWindow
			}
			c.update(gen, func(s *Session) { s.Window = bounds.NewWindow(c.cfg.Resolver, h) })
			return nil
		})
	case Subwindow:
		c.chooseSubwindow(ctx, gen)
	case Custom:
		c.choose(gen, false, func(ctx context.Context, first geom.Point) error {
			c.choose(gen, true, func(ctx context.Context, second geom.Point) error {
				rect := geom.RectFromPoints(first, second)
				if !c.largerThanDeadzone(gen, rect) {
					return ErrRectTooSmall
				}
				c.update(gen, func(s *Session) { s.Rect = rect })
				return nil
			})
			return errPending
		})
	default:
		c.finish(ctx, gen, &AcquisitionError{Mode: mode, Err: errors.New("unknown bounds mode")})
	}
}

func (c *Controller) chooseSubwindow(_ context.Context, gen uint64) {
	c.choose(gen, false, func(ctx context.Context, first geom.Point) error {
		h, ok := c.cfg.Resolver.FrontmostWindowAt(first, c.cfg.Self)
		if !ok {
			return ErrNoWindow
		}
		c.choose(gen, true, func(ctx context.Context, second geom.Point) error {
			h2, ok := c.cfg.Resolver.FrontmostWindowAt(second, c.cfg.Self)
			if !ok {
				return ErrNoWindow
			}
			if h2 != h {
				return ErrWindowMismatch
			}
			rect := geom.RectFromPoints(first, second)
			if !c.largerThanDeadzone(gen, rect) {
				return ErrRectTooSmall
			}
			w := bounds.NewWindow(c.cfg.Resolver, h)
			wb, err := w.Bounds()
			if err != nil {
				return err
			}
			c.update(gen, func(s *Session) {
				s.Window = w
				s.Rect = rect.Offset(geom.Point{}.Sub(wb.TopLeft()))
			})
			return nil
		})
		return errPending
	})
}

// errPending marks a point step that handed over to a further step.
var errPending = errors.New("pending")

// choose asks the chooser for a point and finishes acquisition with the
// outcome of step unless step hands over to another point.
func (c *Controller) choose(gen uint64, final bool, step func(ctx context.Context, p geom.Point) error) {
	if c.cfg.Chooser == nil {
		c.finish(context.Background(), gen, ErrNoPoint)
		return
	}
	c.cfg.Chooser.ChoosePoint(func(ctx context.Context, p geom.Point, ok bool) {
		if !c.current(gen) {
			return
		}
		if !ok {
			c.finish(ctx, gen, ErrNoPoint)
			return
		}
		err := step(ctx, p)
		if errors.Is(err, errPending) {
			return
		}
		c.finish(ctx, gen, err)
	}, final)
}

func (c *Controller) largerThanDeadzone(gen uint64, r geom.Rect) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.gen != gen {
		return false
	}
	s := c.session.Settings
	return r.W > s.DeadzoneWidth && r.H > s.DeadzoneHeight
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen && c.state == AcquiringTarget
}

func (c *Controller) update(gen uint64, fn func(s *Session)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil && c.gen == gen {
		fn(c.session)
	}
}

func (c *Controller) finish(ctx context.Context, gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen || c.state != AcquiringTarget || c.session == nil {
		c.mu.Unlock()
		return
	}
	mode := c.session.BoundsMode
	if err != nil {
		c.endLocked()
		c.mu.Unlock()
		var acqErr *AcquisitionError
		if !errors.As(err, &acqErr) {
			err = &AcquisitionError{Mode: mode, Err: err}
		}
		c.logger.Warn("Look to scroll target acquisition failed", "error", err)
		c.cfg.Notifier.ErrorSound()
		c.cfg.Store.SetDown(ActiveKey, keystate.Up)
		c.cfg.Store.SetDown(BoundsKey, keystate.Up)
		if c.cfg.Chooser != nil {
			c.cfg.Chooser.ResetPointAction()
		}
		return
	}
	c.state = Active
	c.session.LastUpdate = time.Time{}
	c.session.Leftover = geom.Vector{}
	sess := *c.session
	c.mu.Unlock()

	c.logger.Info("Look to scroll target acquired", "session", sess.ID, "bounds", mode)
	c.cfg.Store.SetDown(BoundsKey, keystate.Up)
	if mode.usesWindow() && sess.Settings.BringWindowToFront {
		if sess.Window.Valid() {
			if err := c.cfg.Output.BringWindowToFront(ctx, sess.Window.Handle()); err != nil {
				c.logger.Debug("Unable to bring window to front", "window", sess.Window.Handle(), "error", err)
			}
		}
	}
	if sess.Settings.CentrePointer {
		c.centrePointer(ctx, sess)
	}
	if c.cfg.Chooser != nil {
		c.cfg.Chooser.ResetPointAction()
	}
}

func (c *Controller) endLocked() {
	c.gen++
	c.state = Idle
	c.session = nil
}

// Update processes one gaze sample. It scrolls when the session is active
// and p lies within the current bounds.
func (c *Controller) Update(ctx context.Context, p geom.Point, ts time.Time) Sample {
	c.mu.Lock()
	if c.state != Active || c.session == nil {
		c.mu.Unlock()
		return Sample{}
	}
	gen := c.gen
	sess := *c.session
	c.mu.Unlock()

	live := c.cfg.Settings.ScrollSettings()
	var sample Sample
	if c.shouldSample(sess) {
		b, err := c.currentBounds(sess)
		if err != nil {
			c.invalidate(gen, sess, err)
			return Sample{}
		}
		sample.Bounds = b
		sample.Centre = centreOf(sess, b)
		sample.Active = c.sampleActive(sess, p, b)
	}

	var overlay Overlay
	if sample.Active {
		s := sess.Settings
		sample.Velocity = Velocity(p, sample.Centre, live.Mode, live.Speed, s.DeadzoneWidth, s.DeadzoneHeight)
		dt := math.Max(0, math.Min(ts.Sub(sess.LastUpdate).Seconds(), MaxInterval))
		amount := sample.Velocity.Scale(WheelUnitsPerClick * dt).Add(sess.Leftover)
		sample.DX, sample.DY = int(amount.X), int(amount.Y)
		sess.Leftover = geom.Vector{X: amount.X - float64(sample.DX), Y: amount.Y - float64(sample.DY)}
		if sample.DX != 0 || sample.DY != 0 {
			if err := c.cfg.Output.ScrollWheel(ctx, sample.DX, -sample.DY); err != nil {
				c.logger.Debug("Scroll wheel output failed", "error", err)
			}
		}
		deadzone := geom.RectAround(sample.Centre, s.DeadzoneWidth, s.DeadzoneHeight)
		overlay = Overlay{
			Active:   true,
			Bounds:   sample.Bounds,
			Deadzone: deadzone,
			Margins:  geom.MarginsAround(sample.Bounds, deadzone),
			Opacity:  Opacity(p, sample.Centre, s.DeadzoneHeight, sample.Bounds.H),
		}
	}
	if sess.wasActive || sample.Active {
		c.publish(overlay)
	}

	c.mu.Lock()
	if c.gen == gen && c.session != nil {
		c.session.wasActive = sample.Active
		c.session.Leftover = sess.Leftover
		c.session.LastUpdate = ts
	}
	c.mu.Unlock()
	return sample
}

func (c *Controller) shouldSample(sess Session) bool {
	if !c.cfg.Store.Down(ActiveKey).IsDownOrLockedDown() {
		return false
	}
	if c.cfg.Store.Down(SleepKey).IsDownOrLockedDown() {
		return false
	}
	return !sess.LastUpdate.IsZero()
}

func (c *Controller) sampleActive(sess Session, p geom.Point, b geom.Rect) bool {
	if sess.BoundsMode.usesWindow() && !sess.Window.IsFrontmostAt(p, c.cfg.Self) {
		return false
	}
	if c.cfg.Hits != nil && c.cfg.Hits.OverKey(p) {
		return false
	}
	return b.Contains(p)
}

func (c *Controller) invalidate(gen uint64, sess Session, cause error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.endLocked()
	c.mu.Unlock()

	c.logger.Info("Look to scroll bounds are no longer valid, deactivating",
		"session", sess.ID, "bounds", sess.BoundsMode, "error", errors.Join(ErrTargetInvalidated, cause))
	c.cfg.Store.SetDown(ActiveKey, keystate.Up)
	c.cfg.Store.SetDown(BoundsKey, keystate.Up)
	if sess.wasActive {
		c.publish(Overlay{})
	}
}

func (c *Controller) currentBounds(sess Session) (geom.Rect, error) {
	switch sess.BoundsMode {
	case ScreenCentred, ScreenPoint:
		return c.screenBounds(), nil
	case Window:
		return sess.Window.Bounds()
	case Subwindow:
		wb, err := sess.Window.Bounds()
		if err != nil {
			return geom.Rect{}, err
		}
		r := sess.Rect.Offset(wb.TopLeft().Sub(geom.Point{})).Intersect(wb)
		if r.Empty() {
			return geom.Rect{}, errors.New("subwindow lies outside its window")
		}
		return r, nil
	case Custom:
		return sess.Rect, nil
	default:
		return geom.Rect{}, errors.New("unknown bounds mode")
	}
}

func (c *Controller) screenBounds() geom.Rect {
	screen := c.cfg.Resolver.PrimaryScreen()
	if c.cfg.Docking != nil {
		if w, docked := c.cfg.Docking.DockedWindow(); docked {
			return LargestGap(screen, w)
		}
	}
	return screen
}

func centreOf(sess Session, b geom.Rect) geom.Point {
	if sess.BoundsMode == ScreenPoint {
		return sess.Point
	}
	return b.Centre()
}

func (c *Controller) centrePointer(ctx context.Context, sess Session) {
	b, err := c.currentBounds(sess)
	if err != nil {
		c.logger.Debug("Unable to centre pointer", "error", err)
		return
	}
	if err := c.cfg.Output.MovePointer(ctx, centreOf(sess, b)); err != nil {
		c.logger.Debug("Unable to centre pointer", "error", err)
	}
}

func (c *Controller) publish(o Overlay) {
	if c.cfg.Overlay != nil {
		c.cfg.Overlay.PublishOverlay(o)
	}
}

// SuspendForPointAction pauses an active session while the user picks a
// point for another action. The returned function resumes it when resuming
// is configured; it is a no-op otherwise.
func (c *Controller) SuspendForPointAction() (resume func(ctx context.Context)) {
	prior := c.cfg.Store.Down(ActiveKey)
	if !prior.IsDownOrLockedDown() {
		return func(context.Context) {}
	}
	c.cfg.Store.SetDown(ActiveKey, keystate.Up)
	settings := c.cfg.Settings.ScrollSettings()
	if !settings.ResumeAfterChoosingPoint {
		c.mu.Lock()
		c.endLocked()
		c.mu.Unlock()
		c.logger.Info("Look to scroll suspended, it will not resume automatically")
		return func(context.Context) {}
	}
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.logger.Info("Look to scroll suspended while choosing a point")
	return func(ctx context.Context) {
		delay := settings.ResumeDelay
		if delay <= 0 {
			delay = DefaultResumeDelay
		}
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		c.mu.Lock()
		if c.gen != gen || c.session == nil {
			c.mu.Unlock()
			c.logger.Debug("Look to scroll ended while suspended, not resuming")
			return
		}
		c.mu.Unlock()
		c.cfg.Store.SetDown(ActiveKey, prior)
		c.mu.Lock()
		var sess Session
		ok := c.session != nil && c.state == Active
		if ok {
			c.session.LastUpdate = time.Time{}
			sess = *c.session
		}
		c.mu.Unlock()
		c.logger.Info("Look to scroll resumed")
		if ok && settings.CentrePointer {
			c.centrePointer(ctx, sess)
		}
	}
}

// DeactivateUponSwitchingKeyboards ends the session on a keyboard switch
// when configured to.
func (c *Controller) DeactivateUponSwitchingKeyboards() {
	if !c.cfg.Settings.ScrollSettings().DeactivateUponSwitchingKeyboards {
		return
	}
	if !c.cfg.Store.Down(ActiveKey).IsDownOrLockedDown() {
		return
	}
	c.cfg.Store.SetDown(ActiveKey, keystate.Up)
	c.mu.Lock()
	c.endLocked()
	c.mu.Unlock()
	c.logger.Info("Look to scroll deactivated upon switching keyboards")
}
