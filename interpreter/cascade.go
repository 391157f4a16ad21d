package interpreter

import (
	"context"
	"errors"
	"fmt"

	"github.com/Alia5/gazekey/keystate"
)

// Release releases targetKey and propagates the release one hop over the
// key family:
//
//   - every direct child of targetKey that is not Up is released;
//   - every direct parent that is not Up, has no running script and has no
//     child left down is released;
//   - the running flag of targetKey is cleared unless it is mainKey.
//
// Relations are read afresh on every call. Output errors do not stop the
// cascade; they are joined into the returned error.
func Release(ctx context.Context, store *keystate.Store, out Output, mainKey, targetKey keystate.KeyValue) error {
	var errs []error
	up := func(k keystate.KeyValue) {
		if out != nil {
			if err := out.ReleaseKey(ctx, k.Name()); err != nil {
				errs = append(errs, fmt.Errorf("release %s: %w", k, err))
			}
		}
		store.SetDown(k, keystate.Up)
	}

	up(targetKey)

	for _, child := range store.ChildrenOf(targetKey) {
		if store.Down(child) != keystate.Up {
			up(child)
		}
	}

	for _, parent := range store.ParentsOf(targetKey) {
		if store.Down(parent) == keystate.Up || store.Running(parent) {
			continue
		}
		if anyChildDown(store, parent) {
			continue
		}
		up(parent)
	}

	if targetKey != mainKey {
		store.SetRunning(targetKey, false)
	}
	return errors.Join(errs...)
}

func anyChildDown(store *keystate.Store, key keystate.KeyValue) bool {
	for _, c := range store.ChildrenOf(key) {
		if store.Down(c) != keystate.Up {
			return true
		}
	}
	return false
}

// Release runs the release cascade through the interpreter's output.
func (in *Interpreter) Release(ctx context.Context, mainKey, targetKey keystate.KeyValue) {
	if err := Release(ctx, in.store, in.c.Output, mainKey, targetKey); err != nil {
		in.logger.Warn("Release cascade output failed", "key", targetKey, "error", err)
	}
}

func (in *Interpreter) keyUp(ctx context.Context, key keystate.KeyValue) {
	if in.c.Output != nil {
		if err := in.c.Output.ReleaseKey(ctx, key.Name()); err != nil {
			in.logger.Warn("Failed to release key", "key", key, "error", err)
		}
	}
	in.store.SetDown(key, keystate.Up)
}
