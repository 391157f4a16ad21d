// Package app wires the interaction core together and feeds it the input
// event stream.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/Alia5/gazekey/bounds"
	"github.com/Alia5/gazekey/command"
	"github.com/Alia5/gazekey/internal/config"
	"github.com/Alia5/gazekey/internal/input"
	"github.com/Alia5/gazekey/interpreter"
	"github.com/Alia5/gazekey/keystate"
	"github.com/Alia5/gazekey/output"
	"github.com/Alia5/gazekey/scroll"
	"github.com/Alia5/gazekey/selection"
)

// Config holds what the engine is built from. Bindings, Sink and Resolver
// are required.
type Config struct {
	Bindings *command.Bindings
	Sink     output.Sink
	Resolver bounds.Resolver
	Settings scroll.SettingsSource
	Plugins  interpreter.PluginRunner
	// Feedback receives frontend messages as JSON lines.
	Feedback io.Writer
	// Self is the keyboard's own window.
	Self        bounds.Handle
	Interpreter config.Interpreter
}

// Engine owns the key state and the components acting on it.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	store      *keystate.Store
	registry   *interpreter.Registry
	interp     *interpreter.Interpreter
	dispatcher *selection.Dispatcher
	scroll     *scroll.Controller
	feedback   *Feedback
	dock       dock

	mu         sync.Mutex
	scratchpad strings.Builder
	keyboards  []string
	resume     func(ctx context.Context)

	bg sync.WaitGroup
}

// New builds an Engine.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.Bindings == nil {
		return nil, errors.New("no key bindings")
	}
	if cfg.Sink == nil {
		return nil, errors.New("no output sink")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("no bounds resolver")
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		registry: interpreter.NewRegistry(),
		feedback: NewFeedback(cfg.Feedback, logger.With("component", "feedback")),
	}
	e.store = keystate.NewStore(append(defaultStoreOptions(), cfg.Bindings.StoreOptions()...)...)

	overrides := map[keystate.KeyValue]*interpreter.Override{}
	for _, b := range cfg.Bindings.Keys {
		if b.LockDownDelay > 0 {
			overrides[b.Key] = interpreter.NewOverride(b.LockDownDelay)
		}
	}
	opts := []interpreter.Option{
		interpreter.WithLogger(logger.With("component", "interpreter")),
		interpreter.WithOverrides(overrides),
	}
	if d := cfg.Interpreter.PollInterval; d > 0 {
		opts = append(opts, interpreter.WithPollInterval(d))
	}
	if d := cfg.Interpreter.LoopThrottle; d > 0 {
		opts = append(opts, interpreter.WithLoopThrottle(d))
	}
	if d := cfg.Interpreter.DefaultWait; d > 0 {
		opts = append(opts, interpreter.WithDefaultWait(d))
	}
	e.interp = interpreter.New(e.store, e.registry, interpreter.Collaborators{
		Output:   cfg.Sink,
		Selector: e,
		Windows:  e.feedback,
		Plugins:  cfg.Plugins,
		Text:     e,
		Notifier: e.feedback,
	}, opts...)

	e.dispatcher = selection.New(selection.Config{
		Store:           e.store,
		Runner:          e.interp,
		Scripts:         cfg.Bindings,
		Selector:        e,
		Screen:          cfg.Resolver,
		NonRepeatable:   cfg.Bindings.NonRepeatable,
		MouseActionKeys: mouseActionKeys,
		OnModeChange:    e.feedback.ModeChanged,
	}, logger.With("component", "selection"))

	e.scroll = scroll.New(scroll.Config{
		Store:      e.store,
		Resolver:   cfg.Resolver,
		Output:     cfg.Sink,
		Chooser:    e.dispatcher,
		Settings:   cfg.Settings,
		Overlay:    e.feedback,
		Notifier:   e.feedback,
		Docking:    &e.dock,
		Hits:       &e.dock,
		Self:       cfg.Self,
		OnActivate: e.releaseLockedMouseActions,
	}, logger.With("component", "scroll"))

	e.store.Subscribe(e.feedback.KeyChanged)
	e.registerFunctions()
	return e, nil
}

// Store returns the key state store.
func (e *Engine) Store() *keystate.Store { return e.store }

// Dispatcher returns the selection dispatcher.
func (e *Engine) Dispatcher() *selection.Dispatcher { return e.dispatcher }

// Scroll returns the look-to-scroll controller.
func (e *Engine) Scroll() *scroll.Controller { return e.scroll }

// Functions lists the function keys with a handler.
func (e *Engine) Functions() []keystate.FunctionKey { return e.registry.Tags() }

// Run handles events until the channel closes or ctx ends. Running scripts
// are stopped and every held key is released before it returns.
func (e *Engine) Run(ctx context.Context, events <-chan input.Event) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		e.dispatcher.Wait()
		e.bg.Wait()
		if err := e.releaseAll(context.Background()); err != nil {
			e.logger.Warn("Failed to release keys", "error", err)
		}
	}()

	e.logger.Info("Engine running")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				e.logger.Info("Input stream ended")
				return nil
			}
			e.Handle(ctx, ev)
		}
	}
}

// Handle processes one input event.
func (e *Engine) Handle(ctx context.Context, ev input.Event) {
	switch ev.Type {
	case input.Position:
		e.scroll.Update(ctx, ev.Point, ev.Time)
	case input.Key:
		if ov, ok := e.interp.Override(ev.Key); ok {
			ov.Focus(ev.Time)
		}
		e.dispatcher.Dispatch(ctx, selection.Trigger{Type: selection.KeyTrigger, Key: ev.Key, Points: ev.Points})
	case input.Leave:
		if ov, ok := e.interp.Override(ev.Key); ok {
			ov.LoseFocus()
		}
	case input.Point:
		e.dispatcher.Dispatch(ctx, selection.Trigger{Type: selection.PointTrigger, Key: ev.Key, Points: ev.Points})
	case input.Dock:
		e.dock.set(ev.Window, ev.Docked)
		e.logger.Debug("Keyboard window reported", "window", ev.Window, "docked", ev.Docked)
	default:
		e.logger.Warn("Unhandled input event", "type", ev.Type)
	}
}

// SelectKey performs a key that has no script: text is typed, latching
// keys are pressed or released, keyboard switches are announced and
// function keys run their handler.
func (e *Engine) SelectKey(ctx context.Context, key keystate.KeyValue) error {
	switch key.Kind {
	case keystate.KindFunction:
		h, _, ok := e.registry.Lookup(key.Func)
		if !ok {
			return fmt.Errorf("%w: %s", interpreter.ErrUnknownFunction, key.Func)
		}
		return h(ctx, interpreter.Call{Trigger: key, Tag: key.Func})
	case keystate.KindChangeKeyboard:
		e.changeKeyboard(key)
		return nil
	case keystate.KindCharacter:
		return e.selectCharacter(ctx, key)
	default:
		return fmt.Errorf("cannot select %q", key)
	}
}

func (e *Engine) selectCharacter(ctx context.Context, key keystate.KeyValue) error {
	if e.store.Latches(key) {
		prior := e.store.Down(key)
		next := e.store.ProgressDownState(key)
		switch {
		case prior == keystate.Up && next != keystate.Up:
			return e.cfg.Sink.PressKey(ctx, key.Text)
		case prior != keystate.Up && next == keystate.Up:
			return e.cfg.Sink.ReleaseKey(ctx, key.Text)
		}
		return nil
	}

	err := e.cfg.Sink.TypeText(ctx, key.Text)
	e.mu.Lock()
	e.scratchpad.WriteString(key.Text)
	e.mu.Unlock()
	return errors.Join(err, e.releaseUnlocked(ctx))
}

// releaseUnlocked lets go of latching keys that are Down but not locked, so
// a modifier applies to one character only.
func (e *Engine) releaseUnlocked(ctx context.Context) error {
	var errs []error
	for _, k := range e.store.DownKeys() {
		if k.Kind != keystate.KindCharacter || e.store.Down(k) != keystate.Down {
			continue
		}
		errs = append(errs, e.cfg.Sink.ReleaseKey(ctx, k.Text))
		e.store.SetDown(k, keystate.Up)
	}
	return errors.Join(errs...)
}

func (e *Engine) changeKeyboard(key keystate.KeyValue) {
	e.mu.Lock()
	if key.Replace && len(e.keyboards) > 0 {
		e.keyboards[len(e.keyboards)-1] = key.Keyboard
	} else {
		e.keyboards = append(e.keyboards, key.Keyboard)
	}
	e.mu.Unlock()

	e.logger.Info("Changing keyboard", "keyboard", key.Keyboard, "replace", key.Replace)
	e.feedback.KeyboardChanged(key.Keyboard, key.Replace)
	e.scroll.DeactivateUponSwitchingKeyboards()
}

// Keyboard returns the keyboard most recently switched to.
func (e *Engine) Keyboard() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.keyboards) == 0 {
		return "", false
	}
	return e.keyboards[len(e.keyboards)-1], true
}

// ScratchpadText returns the text typed so far.
func (e *Engine) ScratchpadText() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scratchpad.String()
}

// releaseAll releases every key that is not Up and ends any point action or
// look-to-scroll session.
func (e *Engine) releaseAll(ctx context.Context) error {
	e.mu.Lock()
	e.resume = nil
	e.mu.Unlock()
	if e.dispatcher.Mode() != selection.Keys {
		e.dispatcher.CancelPointAction(ctx)
	}

	var errs []error
	for _, k := range e.store.DownKeys() {
		if k.Kind == keystate.KindCharacter {
			errs = append(errs, e.cfg.Sink.ReleaseKey(ctx, k.Text))
		}
		e.store.SetDown(k, keystate.Up)
	}
	if e.scroll.State() != scroll.Idle {
		e.scroll.Toggle(ctx)
	}
	return errors.Join(errs...)
}
