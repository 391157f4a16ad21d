package app

import (
	"context"

	"github.com/Alia5/gazekey/geom"
	"github.com/Alia5/gazekey/interpreter"
	"github.com/Alia5/gazekey/keystate"
	"github.com/Alia5/gazekey/output"
	"github.com/Alia5/gazekey/scroll"
)

var (
	magnifierKey = keystate.Function(keystate.MouseMagnifier)

	mouseActionKeys = []keystate.KeyValue{
		keystate.Function(keystate.MouseMoveTo),
		keystate.Function(keystate.MouseMoveAndLeftClick),
		keystate.Function(keystate.MouseMoveAndLeftDoubleClick),
		keystate.Function(keystate.MouseMoveAndMiddleClick),
		keystate.Function(keystate.MouseMoveAndRightClick),
	}
)

// defaultStoreOptions declares how the built-in function keys latch.
// Binding files may add to it.
func defaultStoreOptions() []keystate.Option {
	toggles := append([]keystate.KeyValue{scroll.ActiveKey, scroll.SleepKey, magnifierKey}, mouseActionKeys...)
	return []keystate.Option{
		keystate.WithPressable(append(toggles, scroll.BoundsKey)...),
		keystate.WithLockable(toggles...),
	}
}

func (e *Engine) registerFunctions() {
	r := e.registry
	r.Register(keystate.LookToScrollActive, e.lookToScrollActive)
	r.Register(keystate.LookToScrollBounds, e.lookToScrollBounds)
	r.Register(keystate.Sleep, e.progress)
	r.Register(keystate.MouseMagnifier, e.progress)

	r.Register(keystate.MouseMoveTo, e.pointAction(e.moveTo), interpreter.Suspending())
	r.Register(keystate.MouseMoveAndLeftClick, e.pointAction(e.moveAndClick(output.ButtonLeft, 1)), interpreter.Suspending())
	r.Register(keystate.MouseMoveAndLeftDoubleClick, e.pointAction(e.moveAndClick(output.ButtonLeft, 2)), interpreter.Suspending())
	r.Register(keystate.MouseMoveAndMiddleClick, e.pointAction(e.moveAndClick(output.ButtonMiddle, 1)), interpreter.Suspending())
	r.Register(keystate.MouseMoveAndRightClick, e.pointAction(e.moveAndClick(output.ButtonRight, 1)), interpreter.Suspending())

	r.Register(keystate.MouseLeftClick, e.click(output.ButtonLeft))
	r.Register(keystate.MouseRightClick, e.click(output.ButtonRight))
	r.Register(keystate.MouseMiddleClick, e.click(output.ButtonMiddle))
	r.Register(keystate.RepeatLastMouseAction, e.repeatLastMouseAction)
	r.Register(keystate.ReleaseAll, func(ctx context.Context, _ interpreter.Call) error {
		return e.releaseAll(ctx)
	})
}

func (e *Engine) progress(_ context.Context, call interpreter.Call) error {
	e.store.ProgressDownState(keystate.Function(call.Tag))
	return nil
}

func (e *Engine) lookToScrollActive(ctx context.Context, call interpreter.Call) error {
	e.store.ProgressDownState(keystate.Function(call.Tag))
	e.scroll.Toggle(ctx)
	return nil
}

func (e *Engine) lookToScrollBounds(ctx context.Context, call interpreter.Call) error {
	if e.store.ProgressDownState(keystate.Function(call.Tag)) != keystate.Up {
		e.scroll.ChooseBounds(ctx)
	}
	return nil
}

// releaseLockedMouseActions runs when look-to-scroll activates.
func (e *Engine) releaseLockedMouseActions(ctx context.Context) {
	locked := false
	for _, k := range mouseActionKeys {
		if e.store.Down(k) == keystate.LockedDown {
			e.store.SetDown(k, keystate.Up)
			locked = true
		}
	}
	if locked {
		e.dispatcher.CancelPointAction(ctx)
	}
}

type mouseAction func(ctx context.Context, p geom.Point) error

func (e *Engine) moveTo(ctx context.Context, p geom.Point) error {
	return e.cfg.Sink.MovePointer(ctx, p)
}

func (e *Engine) moveAndClick(b output.Button, clicks int) mouseAction {
	return func(ctx context.Context, p geom.Point) error {
		if err := e.cfg.Sink.MovePointer(ctx, p); err != nil {
			return err
		}
		for range clicks {
			if err := e.cfg.Sink.Click(ctx, b); err != nil {
				return err
			}
		}
		return nil
	}
}

// pointAction arms act for the next chosen point. Selecting the key again
// while it is locked cancels it; a locked key re-arms after every point.
func (e *Engine) pointAction(act mouseAction) interpreter.Handler {
	return func(ctx context.Context, call interpreter.Call) error {
		key := keystate.Function(call.Tag)
		prior := e.store.Down(key)
		if e.store.ProgressDownState(key) == keystate.Up {
			e.logger.Info("Point action cancelled", "key", key)
			e.dispatcher.CancelPointAction(ctx)
			return nil
		}
		if prior != keystate.Up && e.pendingResume() {
			// Down to LockedDown keeps the armed action.
			return nil
		}

		e.dispatcher.SetPointActionKey(key)
		e.mu.Lock()
		if e.resume == nil {
			e.resume = e.scroll.SuspendForPointAction()
		}
		e.mu.Unlock()
		e.dispatcher.SetMagnifying(e.store.Down(magnifierKey).IsDownOrLockedDown())
		e.arm(key, act)
		return nil
	}
}

func (e *Engine) pendingResume() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resume != nil
}

func (e *Engine) arm(key keystate.KeyValue, act mouseAction) {
	e.dispatcher.ChoosePoint(func(ctx context.Context, p geom.Point, ok bool) {
		if !ok {
			e.finishPointAction(ctx)
			return
		}
		if err := act(ctx, p); err != nil {
			e.logger.Warn("Mouse action failed", "key", key, "point", p, "error", err)
			e.feedback.ErrorSound()
		}
		e.dispatcher.SetLastMouseAction(func(ctx context.Context) {
			if err := act(ctx, p); err != nil {
				e.logger.Warn("Repeated mouse action failed", "key", key, "point", p, "error", err)
			}
		})

		if e.store.Down(key) == keystate.LockedDown {
			e.arm(key, act)
			e.interp.ResumeCommands()
			return
		}
		e.store.SetDown(key, keystate.Up)
		e.dispatcher.ResetPointAction()
		e.finishPointAction(ctx)
	}, true)
}

// finishPointAction resumes a look-to-scroll session suspended for the
// point action.
func (e *Engine) finishPointAction(ctx context.Context) {
	e.mu.Lock()
	resume := e.resume
	e.resume = nil
	e.mu.Unlock()
	if resume == nil {
		return
	}
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		resume(ctx)
	}()
}

func (e *Engine) click(b output.Button) interpreter.Handler {
	return func(ctx context.Context, _ interpreter.Call) error {
		do := func(ctx context.Context) error { return e.cfg.Sink.Click(ctx, b) }
		e.dispatcher.SetLastMouseAction(func(ctx context.Context) {
			if err := do(ctx); err != nil {
				e.logger.Warn("Repeated click failed", "button", b, "error", err)
			}
		})
		return do(ctx)
	}
}

func (e *Engine) repeatLastMouseAction(ctx context.Context, _ interpreter.Call) error {
	if !e.dispatcher.RepeatLastMouseAction(ctx) {
		e.logger.Info("No mouse action to repeat")
	}
	return nil
}
