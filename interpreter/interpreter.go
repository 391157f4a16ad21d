// Package interpreter runs the command scripts bound to keys and implements
// the release cascade over key families.
package interpreter

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Alia5/gazekey/command"
	"github.com/Alia5/gazekey/keystate"
	"github.com/Alia5/gazekey/output"
)

const (
	DefaultPollInterval = 10 * time.Millisecond
	DefaultLoopThrottle = 500 * time.Millisecond
	DefaultWait         = 500 * time.Millisecond
)

// Output receives simulated key presses and releases.
type Output interface {
	PressKey(ctx context.Context, name string) error
	ReleaseKey(ctx context.Context, name string) error
}

// KeySelector feeds a key through the same pathway as a manual selection.
// Text and keyboard switches issued by scripts go through it.
type KeySelector interface {
	SelectKey(ctx context.Context, key keystate.KeyValue) error
}

// WindowMover applies a window move/resize instruction.
type WindowMover interface {
	MoveWindow(ctx context.Context, spec string) error
}

// PluginRunner executes a plugin method with a context map.
type PluginRunner interface {
	Run(ctx context.Context, pctx map[string]string, ref command.PluginRef) error
}

// TextSource exposes the text typed so far.
type TextSource interface {
	ScratchpadText() string
}

// Collaborators groups the external services scripts drive. Nil members
// make the matching commands log and skip.
type Collaborators struct {
	Output   Output
	Selector KeySelector
	Windows  WindowMover
	Plugins  PluginRunner
	Text     TextSource
	Notifier output.Notifier
}

// Interpreter executes key scripts. One Interpreter serves every key; each
// script runs on the caller's goroutine.
type Interpreter struct {
	store    *keystate.Store
	registry *Registry
	c        Collaborators
	logger   *slog.Logger

	pollInterval time.Duration
	loopThrottle time.Duration
	defaultWait  time.Duration

	ovMu      sync.RWMutex
	overrides map[keystate.KeyValue]*Override

	suspend suspender
}

// Option configures an Interpreter.
type Option func(*Interpreter)

func WithLogger(l *slog.Logger) Option { return func(in *Interpreter) { in.logger = l } }

// WithPollInterval sets how often the suspension and lock-down waits
// re-check the running flag.
func WithPollInterval(d time.Duration) Option { return func(in *Interpreter) { in.pollInterval = d } }

// WithLoopThrottle sets the delay inserted into perpetual loops that have no
// Wait or nested Loop of their own.
func WithLoopThrottle(d time.Duration) Option { return func(in *Interpreter) { in.loopThrottle = d } }

// WithDefaultWait sets the delay used for Wait commands whose value does not
// parse.
func WithDefaultWait(d time.Duration) Option { return func(in *Interpreter) { in.defaultWait = d } }

// WithOverrides installs per-key timing overrides.
func WithOverrides(o map[keystate.KeyValue]*Override) Option {
	return func(in *Interpreter) {
		for k, v := range o {
			in.overrides[k] = v
		}
	}
}

// New builds an Interpreter over store.
func New(store *keystate.Store, registry *Registry, c Collaborators, opts ...Option) *Interpreter {
	if registry == nil {
		registry = NewRegistry()
	}
	in := &Interpreter{
		store:        store,
		registry:     registry,
		c:            c,
		logger:       slog.Default(),
		pollInterval: DefaultPollInterval,
		loopThrottle: DefaultLoopThrottle,
		defaultWait:  DefaultWait,
		overrides:    map[keystate.KeyValue]*Override{},
	}
	for _, o := range opts {
		o(in)
	}
	if in.c.Notifier == nil {
		in.c.Notifier = output.LogNotifier{Logger: in.logger}
	}
	return in
}

// Store returns the key state the interpreter mutates.
func (in *Interpreter) Store() *keystate.Store { return in.store }

// Registry returns the function key dispatch table.
func (in *Interpreter) Registry() *Registry { return in.registry }

// Override returns the timing override of key.
func (in *Interpreter) Override(key keystate.KeyValue) (*Override, bool) {
	in.ovMu.RLock()
	defer in.ovMu.RUnlock()
	o, ok := in.overrides[key]
	return o, ok
}

// SetOverride installs or replaces the timing override of key.
func (in *Interpreter) SetOverride(key keystate.KeyValue, o *Override) {
	in.ovMu.Lock()
	in.overrides[key] = o
	in.ovMu.Unlock()
}

// ResumeCommands releases a script paused inside a suspending function.
func (in *Interpreter) ResumeCommands() { in.suspend.resume() }

// CommandsSuspended reports whether a script is paused waiting for a point.
func (in *Interpreter) CommandsSuspended() bool { return in.suspend.active() }

// RunScript executes cmds on behalf of trigger and settles trigger's latch
// afterwards. Clearing the running flag of trigger, or cancelling ctx, stops
// the script before its next command.
func (in *Interpreter) RunScript(ctx context.Context, trigger keystate.KeyValue, cmds []command.KeyCommand) {
	in.logger.Info("Running key script", "key", trigger, "commands", len(cmds))
	in.store.SetRunning(trigger, true)

	in.runList(ctx, trigger, cmds, 0)

	cleanup := context.WithoutCancel(ctx)
	ov, hasOverride := in.Override(trigger)
	if hasOverride && ov.LockDownDelay > 0 {
		in.store.SetDown(trigger, keystate.Down)
		in.holdWhileFocused(ctx, trigger, ov)
		if ov.Focused() {
			in.store.SetDown(trigger, keystate.LockedDown)
			return
		}
	} else {
		in.store.SetDown(trigger, keystate.LockedDown)
	}

	if !in.active(ctx, trigger) {
		in.store.SetRunning(trigger, false)
		for _, child := range in.store.ChildrenOf(trigger) {
			if in.store.Down(child) == keystate.Up {
				continue
			}
			in.logger.Info("Key script cancelled, releasing key", "key", trigger, "child", child)
			in.keyUp(cleanup, child)
		}
	} else {
		in.store.SetRunning(trigger, false)
		for _, child := range in.store.ChildrenOf(trigger) {
			if in.store.Down(child) != keystate.Up {
				in.store.SetDown(trigger, keystate.LockedDown)
				in.logger.Info("Key script finished with a family key still down", "key", trigger, "child", child)
				return
			}
		}
	}
	in.store.SetDown(trigger, keystate.Up)
}

// holdWhileFocused keeps the script alive until the running flag clears,
// either externally or because the override lost focus.
func (in *Interpreter) holdWhileFocused(ctx context.Context, trigger keystate.KeyValue, ov *Override) {
	ticker := time.NewTicker(in.pollInterval)
	defer ticker.Stop()
	for in.store.Running(trigger) {
		select {
		case <-ctx.Done():
			in.store.SetRunning(trigger, false)
			return
		case <-ticker.C:
		}
		if !ov.Focused() {
			in.store.SetRunning(trigger, false)
		}
	}
}

func (in *Interpreter) active(ctx context.Context, trigger keystate.KeyValue) bool {
	return ctx.Err() == nil && in.store.Running(trigger)
}

func (in *Interpreter) runList(ctx context.Context, trigger keystate.KeyValue, cmds []command.KeyCommand, depth int) {
	for _, c := range cmds {
		if !in.active(ctx, trigger) {
			return
		}
		in.exec(ctx, trigger, c, depth)
	}
}

func (in *Interpreter) exec(ctx context.Context, trigger keystate.KeyValue, c command.KeyCommand, depth int) {
	in.logger.Debug("Key command", "key", trigger, "command", c.Kind, "depth", depth)
	switch c.Kind {
	case command.KindLoop:
		in.loop(ctx, trigger, c, depth)
	case command.KindFunction:
		in.function(ctx, trigger, keystate.FunctionKey(c.Value))
	case command.KindChangeKeyboard:
		if c.Key.Kind != keystate.KindChangeKeyboard || c.Key.Keyboard == "" {
			in.skip(trigger, c, fmt.Errorf("%w: missing keyboard target", ErrMalformedCommand))
			return
		}
		in.selectKey(ctx, trigger, c, c.Key)
	case command.KindKeyDown:
		in.keyDown(ctx, trigger, c)
	case command.KindKeyToggle:
		if in.store.Down(c.Key) != keystate.Up {
			in.Release(ctx, trigger, c.Key)
			return
		}
		in.keyDown(ctx, trigger, c)
	case command.KindKeyUp:
		if c.Key.IsZero() {
			in.skip(trigger, c, fmt.Errorf("%w: missing key", ErrMalformedCommand))
			return
		}
		in.Release(ctx, trigger, c.Key)
		if members, ok := in.store.Group(c.Key.Name()); ok {
			for _, m := range members {
				if in.store.Down(m) != keystate.Up {
					in.Release(ctx, trigger, m)
				}
			}
		}
	case command.KindMoveWindow:
		if in.c.Windows == nil {
			in.skip(trigger, c, fmt.Errorf("%w: no window mover", ErrMalformedCommand))
			return
		}
		if err := in.c.Windows.MoveWindow(ctx, c.Value); err != nil {
			in.skip(trigger, c, err)
		}
	case command.KindText:
		in.selectKey(ctx, trigger, c, keystate.Character(c.Value))
	case command.KindWait:
		d := in.defaultWait
		if ms, err := strconv.Atoi(c.Value); err == nil && ms >= 0 {
			d = time.Duration(ms) * time.Millisecond
		} else {
			in.logger.Debug("Unparseable wait, using default", "key", trigger, "value", c.Value, "wait", d)
		}
		sleep(ctx, d)
	case command.KindPlugin:
		in.plugin(ctx, trigger, c.Plugin)
	default:
		in.skip(trigger, c, fmt.Errorf("%w: kind %d", ErrMalformedCommand, c.Kind))
	}
}

func (in *Interpreter) loop(ctx context.Context, trigger keystate.KeyValue, c command.KeyCommand, depth int) {
	count := c.Count
	throttle := count == 0 && !hasDirect(c.Body, command.KindLoop, command.KindWait)
	for in.active(ctx, trigger) {
		in.logger.Debug("Loop iteration", "key", trigger, "depth", depth+1, "count", count)
		in.runList(ctx, trigger, c.Body, depth+1)
		if throttle {
			sleep(ctx, in.loopThrottle)
		}
		if count == 1 {
			break
		}
		if count > 1 {
			count--
		}
	}
}

func (in *Interpreter) function(ctx context.Context, trigger keystate.KeyValue, tag keystate.FunctionKey) {
	h, suspends, ok := in.registry.Lookup(tag)
	if !ok {
		in.skip(trigger, command.Function(tag), fmt.Errorf("%w: %s", ErrUnknownFunction, tag))
		return
	}
	var resumed <-chan struct{}
	if suspends {
		resumed = in.suspend.begin()
	}
	if err := h(ctx, Call{Trigger: trigger, Tag: tag}); err != nil {
		if suspends {
			in.suspend.resume()
		}
		in.skip(trigger, command.Function(tag), err)
		return
	}
	if suspends {
		in.awaitResume(ctx, trigger, resumed)
	}
}

// awaitResume blocks until the suspended function completes, the script is
// cancelled or ctx ends.
func (in *Interpreter) awaitResume(ctx context.Context, trigger keystate.KeyValue, resumed <-chan struct{}) {
	ticker := time.NewTicker(in.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-resumed:
			return
		case <-ctx.Done():
			in.suspend.resume()
			return
		case <-ticker.C:
			if !in.store.Running(trigger) {
				in.suspend.resume()
				return
			}
		}
	}
}

func (in *Interpreter) keyDown(ctx context.Context, trigger keystate.KeyValue, c command.KeyCommand) {
	if c.Key.IsZero() {
		in.skip(trigger, c, fmt.Errorf("%w: missing key", ErrMalformedCommand))
		return
	}
	if in.c.Output != nil {
		if err := in.c.Output.PressKey(ctx, c.Key.Name()); err != nil {
			in.logger.Warn("Failed to press key", "key", c.Key, "error", err)
		}
	}
	in.store.SetDown(c.Key, keystate.LockedDown)
}

func (in *Interpreter) selectKey(ctx context.Context, trigger keystate.KeyValue, c command.KeyCommand, key keystate.KeyValue) {
	if in.c.Selector == nil {
		in.skip(trigger, c, fmt.Errorf("%w: no key selector", ErrMalformedCommand))
		return
	}
	if err := in.c.Selector.SelectKey(ctx, key); err != nil {
		in.skip(trigger, c, err)
	}
}

func (in *Interpreter) plugin(ctx context.Context, trigger keystate.KeyValue, ref command.PluginRef) {
	if in.c.Plugins == nil {
		in.pluginFailed(trigger, ref, fmt.Errorf("plugin %q: plugins are not configured", ref.Name))
		return
	}
	pctx := map[string]string{"scratchpadText": ""}
	if in.c.Text != nil {
		pctx["scratchpadText"] = in.c.Text.ScratchpadText()
	}
	if err := in.c.Plugins.Run(ctx, pctx, ref); err != nil {
		in.pluginFailed(trigger, ref, err)
	}
}

func (in *Interpreter) pluginFailed(trigger keystate.KeyValue, ref command.PluginRef, err error) {
	cause := innermost(err)
	in.logger.Error("Plugin failed", "key", trigger, "plugin", ref.Name, "method", ref.Method, "error", err)
	in.c.Notifier.Notify("Plugin error", cause.Error())
	in.c.Notifier.ErrorSound()
}

func (in *Interpreter) skip(trigger keystate.KeyValue, c command.KeyCommand, err error) {
	in.logger.Warn("Skipping key command", "key", trigger, "command", c.Kind, "error", err)
}

func hasDirect(cmds []command.KeyCommand, kinds ...command.Kind) bool {
	for _, c := range cmds {
		for _, k := range kinds {
			if c.Kind == k {
				return true
			}
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// suspender parks a script inside a suspending function until resumed.
type suspender struct {
	mu sync.Mutex
	ch chan struct{}
}

func (s *suspender) begin() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		s.ch = make(chan struct{})
	}
	return s.ch
}

func (s *suspender) resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		close(s.ch)
		s.ch = nil
	}
}

func (s *suspender) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch != nil
}
