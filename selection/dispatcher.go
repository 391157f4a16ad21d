// Package selection routes key and point triggers to the interpreter, the
// key handlers and pending point actions, depending on the selection mode.
package selection

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Alia5/gazekey/command"
	"github.com/Alia5/gazekey/geom"
	"github.com/Alia5/gazekey/keystate"
)

// Mode is the current selection mode.
type Mode uint8

const (
	// Keys routes key triggers to key handlers.
	Keys Mode = iota
	// SinglePoint waits for the final point of a point action.
	SinglePoint
	// ContinuousPoints feeds a series of points to a point action.
	ContinuousPoints
)

func (m Mode) String() string {
	switch m {
	case SinglePoint:
		return "single-point"
	case ContinuousPoints:
		return "continuous-points"
	default:
		return "keys"
	}
}

// TriggerType distinguishes key selections from point selections.
type TriggerType uint8

const (
	KeyTrigger TriggerType = iota
	PointTrigger
)

func (t TriggerType) String() string {
	if t == PointTrigger {
		return "point"
	}
	return "key"
}

// Trigger is a completed selection. Key is the key under the selection, if
// any, for point triggers too.
type Trigger struct {
	Type   TriggerType
	Points []geom.Point
	Key    keystate.KeyValue
}

// Runner runs and stops command scripts.
type Runner interface {
	RunScript(ctx context.Context, trigger keystate.KeyValue, cmds []command.KeyCommand)
	ResumeCommands()
}

// Scripts looks up the command script bound to a key.
type Scripts interface {
	Script(key keystate.KeyValue) ([]command.KeyCommand, bool)
}

// KeySelector handles keys without a script.
type KeySelector interface {
	SelectKey(ctx context.Context, key keystate.KeyValue) error
}

// Screen reports the screen area points must fall in to be repeated.
type Screen interface {
	PrimaryScreen() geom.Rect
}

// PointFunc receives a chosen point; ok is false when the action was
// abandoned.
type PointFunc = func(ctx context.Context, p geom.Point, ok bool)

// Config wires a Dispatcher. Store and Selector are required.
type Config struct {
	Store    *keystate.Store
	Runner   Runner
	Scripts  Scripts
	Selector KeySelector
	Screen   Screen

	// NonRepeatable lists function keys the repeat trigger never replays.
	NonRepeatable []keystate.FunctionKey

	// MouseActionKeys are mutually exclusive point action keys.
	MouseActionKeys []keystate.KeyValue

	// OnModeChange, when set, is called after the selection mode changed,
	// without the dispatcher lock held.
	OnModeChange func(Mode)
}

var (
	repeatKey    = keystate.Function(keystate.RepeatLastKeyAction)
	repeatMouse  = keystate.Function(keystate.RepeatLastMouseAction)
	magnifierKey = keystate.Function(keystate.MouseMagnifier)
)

// Dispatcher maintains the selection mode and dispatches triggers.
type Dispatcher struct {
	cfg           Config
	logger        *slog.Logger
	nonRepeatable map[keystate.FunctionKey]bool

	mu             sync.Mutex
	mode           Mode
	pending        PointFunc
	pointActionKey keystate.KeyValue
	magnifying     bool
	lastKey        keystate.KeyValue
	lastDown       map[keystate.KeyValue]keystate.DownState
	lastMouse      func(ctx context.Context)

	scripts sync.WaitGroup
}

// New creates a Dispatcher in Keys mode.
func New(cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		cfg:           cfg,
		logger:        logger,
		nonRepeatable: make(map[keystate.FunctionKey]bool, len(cfg.NonRepeatable)),
	}
	for _, fk := range cfg.NonRepeatable {
		d.nonRepeatable[fk] = true
	}
	return d
}

// Mode returns the current selection mode.
func (d *Dispatcher) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Magnifying reports whether the magnification overlay is up.
func (d *Dispatcher) Magnifying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.magnifying
}

// Valid reports whether a trigger of type t over key is accepted in the
// current mode.
func (d *Dispatcher) Valid(t TriggerType, key keystate.KeyValue) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.validLocked(t, key)
}

func (d *Dispatcher) validLocked(t TriggerType, key keystate.KeyValue) bool {
	if d.magnifying {
		return t == PointTrigger
	}
	switch d.mode {
	case SinglePoint:
		if t == KeyTrigger {
			return key == d.pointActionKey
		}
		return key.IsZero() || key != d.pointActionKey
	case ContinuousPoints:
		if t == PointTrigger {
			return key.IsZero()
		}
	}
	return true
}

// Dispatch handles a completed selection. It reports whether the trigger
// was accepted.
func (d *Dispatcher) Dispatch(ctx context.Context, t Trigger) bool {
	d.mu.Lock()
	if !d.validLocked(t.Type, t.Key) {
		mode := d.mode
		d.mu.Unlock()
		d.logger.Debug("Ignoring selection", "type", t.Type, "key", t.Key, "mode", mode)
		return false
	}
	d.mu.Unlock()

	if t.Type == PointTrigger {
		if len(t.Points) == 0 {
			d.logger.Warn("Point selection without a point")
			return false
		}
		d.point(ctx, t.Points[len(t.Points)-1])
		return true
	}
	if t.Key.IsZero() {
		return false
	}

	key := t.Key
	repeat := false
	if key == repeatKey && d.Mode() == Keys {
		var ok bool
		key, ok = d.repeatTarget(t.Points)
		if !ok {
			d.logger.Info("Repeat of last key action prevented")
			return true
		}
		repeat = true
	}
	if key.IsZero() {
		return true
	}
	d.remember(key)
	d.logger.Info("Key selected", "key", key, "repeat", repeat)
	d.execute(ctx, key)
	return true
}

func (d *Dispatcher) point(ctx context.Context, p geom.Point) {
	d.mu.Lock()
	fn := d.pending
	magnifying := d.magnifying
	if d.mode == SinglePoint {
		d.pending = nil
	}
	d.mu.Unlock()

	if fn == nil {
		d.logger.Error("Point selection occurred without a pending action", "point", p, "magnifying", magnifying)
		return
	}
	d.logger.Info("Executing point action", "point", p)
	fn(ctx, p, true)
}

// repeatTarget resolves the key the repeat trigger replays and restores the
// key states captured when it last ran.
func (d *Dispatcher) repeatTarget(points []geom.Point) (keystate.KeyValue, bool) {
	if len(points) > 0 && d.cfg.Screen != nil {
		p := points[0]
		screen := d.cfg.Screen.PrimaryScreen()
		if p.X < screen.Left() || p.Y < screen.Top() || p.X > screen.Right() || p.Y > screen.Bottom() {
			return keystate.KeyValue{}, false
		}
	}

	d.mu.Lock()
	last := d.lastKey
	snapshot := d.lastDown
	hasMouse := d.lastMouse != nil
	d.mu.Unlock()

	if last.Kind == keystate.KindFunction && d.nonRepeatable[last.Func] {
		return keystate.KeyValue{}, false
	}
	if d.cfg.Scripts != nil {
		if cmds, ok := d.cfg.Scripts.Script(last); ok && command.Any(cmds, d.forbidsRepeat) {
			return keystate.KeyValue{}, false
		}
	}

	target := last
	if hasMouse {
		target = repeatMouse
	}
	if snapshot != nil {
		d.cfg.Store.Restore(snapshot)
	}
	return target, true
}

func (d *Dispatcher) forbidsRepeat(c command.KeyCommand) bool {
	switch c.Kind {
	case command.KindChangeKeyboard:
		return true
	case command.KindFunction:
		return d.nonRepeatable[keystate.FunctionKey(c.Value)]
	}
	return false
}

func (d *Dispatcher) remember(key keystate.KeyValue) {
	snapshot := d.cfg.Store.Snapshot()
	d.mu.Lock()
	d.lastKey = key
	d.lastDown = snapshot
	d.mu.Unlock()
}

// LastKey returns the key most recently executed.
func (d *Dispatcher) LastKey() keystate.KeyValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastKey
}

func (d *Dispatcher) execute(ctx context.Context, key keystate.KeyValue) {
	if d.cfg.Scripts != nil && d.cfg.Runner != nil {
		if cmds, ok := d.cfg.Scripts.Script(key); ok && len(cmds) > 0 {
			d.runScript(ctx, key, cmds)
			return
		}
	}
	if err := d.cfg.Selector.SelectKey(ctx, key); err != nil {
		d.logger.Error("Key selection failed", "key", key, "error", err)
	}
}

func (d *Dispatcher) runScript(ctx context.Context, key keystate.KeyValue, cmds []command.KeyCommand) {
	store := d.cfg.Store
	switch {
	case store.Running(key):
		d.logger.Info("Command key triggered while running, stopping it", "key", key)
		store.SetRunning(key, false)
	default:
		d.logger.Info("Starting command key", "key", key)
		store.SetRunning(key, true)
		d.scripts.Add(1)
		go func() {
			defer d.scripts.Done()
			d.cfg.Runner.RunScript(ctx, key, cmds)
		}()
	}
}

// Wait blocks until every script started by Dispatch has returned.
func (d *Dispatcher) Wait() { d.scripts.Wait() }

// ChoosePoint arms fn for the next point selection. A final point switches
// to SinglePoint mode; intermediate points of a series use ContinuousPoints.
func (d *Dispatcher) ChoosePoint(fn func(ctx context.Context, p geom.Point, ok bool), finalInSeries bool) {
	mode := ContinuousPoints
	if finalInSeries {
		mode = SinglePoint
	}
	d.mu.Lock()
	d.pending = fn
	changed := d.setModeLocked(mode)
	d.mu.Unlock()
	d.modeChanged(changed, mode)
}

func (d *Dispatcher) setModeLocked(m Mode) bool {
	if d.mode == m {
		return false
	}
	d.mode = m
	return true
}

func (d *Dispatcher) modeChanged(changed bool, m Mode) {
	if changed && d.cfg.OnModeChange != nil {
		d.cfg.OnModeChange(m)
	}
}

// SetPointActionKey marks key as the owner of the pending point action and
// releases the other mouse action keys.
func (d *Dispatcher) SetPointActionKey(key keystate.KeyValue) {
	for _, k := range d.cfg.MouseActionKeys {
		if k != key {
			d.cfg.Store.SetDown(k, keystate.Up)
		}
	}
	d.mu.Lock()
	d.pointActionKey = key
	d.mu.Unlock()
}

// CancelPointAction abandons the pending point action, telling it so.
func (d *Dispatcher) CancelPointAction(ctx context.Context) {
	d.mu.Lock()
	fn := d.pending
	d.pending = nil
	d.mu.Unlock()
	if fn != nil {
		fn(ctx, geom.Point{}, false)
	}
	d.ResetPointAction()
}

// ResetPointAction returns to Keys mode, drops any pending point action and
// resumes suspended scripts.
func (d *Dispatcher) ResetPointAction() {
	d.mu.Lock()
	d.pending = nil
	changed := d.setModeLocked(Keys)
	d.magnifying = false
	d.mu.Unlock()
	d.modeChanged(changed, Keys)

	if d.cfg.Store.Down(magnifierKey) == keystate.Down {
		d.cfg.Store.SetDown(magnifierKey, keystate.Up)
	}
	if d.cfg.Runner != nil {
		d.cfg.Runner.ResumeCommands()
	}
}

// SetMagnifying records whether the magnification overlay is up.
func (d *Dispatcher) SetMagnifying(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.magnifying = on
}

// SetLastMouseAction records the action RepeatLastMouseAction replays. A nil
// fn clears it.
func (d *Dispatcher) SetLastMouseAction(fn func(ctx context.Context)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastMouse = fn
}

// RepeatLastMouseAction replays the last mouse action and reports whether
// there was one.
func (d *Dispatcher) RepeatLastMouseAction(ctx context.Context) bool {
	d.mu.Lock()
	fn := d.lastMouse
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(ctx)
	return true
}
