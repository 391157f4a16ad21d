package interpreter

import (
	"context"
	"sort"
	"sync"

	"github.com/Alia5/gazekey/keystate"
)

// Call describes one invocation of a function key handler.
type Call struct {
	// Trigger is the key whose script issued the call. It is the function key
	// itself when the key was selected directly.
	Trigger keystate.KeyValue
	Tag     keystate.FunctionKey
}

// Handler performs the action behind a function key.
type Handler func(ctx context.Context, call Call) error

type entry struct {
	handler  Handler
	suspends bool
}

// RegisterOption adjusts how a handler is registered.
type RegisterOption func(*entry)

// Suspending marks a handler whose action completes only after the user
// supplies a point. Scripts calling it pause until ResumeCommands.
func Suspending() RegisterOption {
	return func(e *entry) { e.suspends = true }
}

// Registry maps function key tags to handlers.
type Registry struct {
	mu      sync.RWMutex
	entries map[keystate.FunctionKey]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: map[keystate.FunctionKey]entry{}}
}

// Register binds tag to h, replacing any previous handler.
func (r *Registry) Register(tag keystate.FunctionKey, h Handler, opts ...RegisterOption) {
	e := entry{handler: h}
	for _, o := range opts {
		o(&e)
	}
	r.mu.Lock()
	r.entries[tag] = e
	r.mu.Unlock()
}

// Lookup returns the handler bound to tag and whether it suspends scripts.
func (r *Registry) Lookup(tag keystate.FunctionKey) (h Handler, suspends bool, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[tag]
	return e.handler, e.suspends, ok
}

// Tags lists the registered tags in lexical order.
func (r *Registry) Tags() []keystate.FunctionKey {
	r.mu.RLock()
	out := make([]keystate.FunctionKey, 0, len(r.entries))
	for t := range r.entries {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
