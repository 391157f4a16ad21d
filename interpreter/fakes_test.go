package interpreter_test

import (
	"context"
	"strings"
	"sync"

	"github.com/Alia5/gazekey/command"
	"github.com/Alia5/gazekey/keystate"
)

type recorder struct {
	mu     sync.Mutex
	events []string
	typed  strings.Builder
	notes  []string
	sounds int
}

func (r *recorder) PressKey(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "down:"+name)
	return nil
}

func (r *recorder) ReleaseKey(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "up:"+name)
	return nil
}

func (r *recorder) SelectKey(_ context.Context, key keystate.KeyValue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch key.Kind {
	case keystate.KindCharacter:
		r.typed.WriteString(key.Text)
	default:
		r.events = append(r.events, "select:"+key.String())
	}
	return nil
}

func (r *recorder) ErrorSound() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sounds++
}

func (r *recorder) Notify(title, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, title+": "+message)
}

func (r *recorder) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.typed.String()
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type pluginFunc func(ctx context.Context, pctx map[string]string, ref command.PluginRef) error

func (f pluginFunc) Run(ctx context.Context, pctx map[string]string, ref command.PluginRef) error {
	return f(ctx, pctx, ref)
}

type scratchpad string

func (s scratchpad) ScratchpadText() string { return string(s) }
