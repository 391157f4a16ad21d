// Package keystate owns the per-key latch and running flags together with
// the declared key families and key groups.
package keystate

import (
	"sort"
	"strings"
	"sync"
)

// DownState is the press/lock latch of a key.
type DownState uint8

const (
	Up DownState = iota
	Down
	LockedDown
)

func (s DownState) String() string {
	switch s {
	case Down:
		return "Down"
	case LockedDown:
		return "LockedDown"
	default:
		return "Up"
	}
}

// IsDownOrLockedDown reports whether s is anything other than Up.
func (s DownState) IsDownOrLockedDown() bool { return s != Up }

// Relation declares child as a member of parent's family.
type Relation struct {
	Parent KeyValue
	Child  KeyValue
}

// ChangeKind tells which flag a Change refers to.
type ChangeKind uint8

const (
	DownChanged ChangeKind = iota
	RunningChanged
)

// Change is delivered to subscribers after a flag changed value. Down and
// Running hold the key's state right after the change.
type Change struct {
	Key     KeyValue
	Kind    ChangeKind
	Down    DownState
	Running bool
}

// Store holds key state for the lifetime of the application. Every method is
// safe for concurrent use; separate calls are not atomic with each other.
type Store struct {
	mu        sync.RWMutex
	down      map[KeyValue]DownState
	running   map[KeyValue]bool
	family    []Relation
	groups    map[string][]KeyValue
	pressable map[KeyValue]bool
	lockable  map[KeyValue]bool

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

// Option configures a Store.
type Option func(*Store)

// WithFamily declares parent/child relations.
func WithFamily(relations ...Relation) Option {
	return func(s *Store) { s.family = append(s.family, relations...) }
}

// WithGroup declares a named key group. Group names are case-insensitive.
func WithGroup(name string, keys ...KeyValue) Option {
	return func(s *Store) {
		n := strings.ToUpper(name)
		s.groups[n] = append(s.groups[n], keys...)
	}
}

// WithPressable marks keys that latch Down on their first press.
func WithPressable(keys ...KeyValue) Option {
	return func(s *Store) {
		for _, k := range keys {
			s.pressable[k] = true
		}
	}
}

// WithLockable marks keys that can be latched LockedDown.
func WithLockable(keys ...KeyValue) Option {
	return func(s *Store) {
		for _, k := range keys {
			s.lockable[k] = true
		}
	}
}

// NewStore creates an empty store. Undeclared keys read as Up and not
// running.
func NewStore(opts ...Option) *Store {
	s := &Store{
		down:      map[KeyValue]DownState{},
		running:   map[KeyValue]bool{},
		groups:    map[string][]KeyValue{},
		pressable: map[KeyValue]bool{},
		lockable:  map[KeyValue]bool{},
		subs:      map[int]func(Change){},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Down returns the latch state of key.
func (s *Store) Down(key KeyValue) DownState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.down[key]
}

// SetDown stores the latch state of key.
func (s *Store) SetDown(key KeyValue, state DownState) {
	s.mu.Lock()
	prev := s.down[key]
	if state == Up {
		delete(s.down, key)
	} else {
		s.down[key] = state
	}
	running := s.running[key]
	s.mu.Unlock()
	if prev != state {
		s.notify(Change{Key: key, Kind: DownChanged, Down: state, Running: running})
	}
}

// Running reports whether a script bound to key is in flight.
func (s *Store) Running(key KeyValue) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running[key]
}

// SetRunning stores the running flag of key.
func (s *Store) SetRunning(key KeyValue, running bool) {
	s.mu.Lock()
	prev := s.running[key]
	if running {
		s.running[key] = true
	} else {
		delete(s.running, key)
	}
	down := s.down[key]
	s.mu.Unlock()
	if prev != running {
		s.notify(Change{Key: key, Kind: RunningChanged, Down: down, Running: running})
	}
}

// ChildrenOf returns the direct children of key.
func (s *Store) ChildrenOf(key KeyValue) []KeyValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []KeyValue
	for _, r := range s.family {
		if r.Parent == key {
			out = append(out, r.Child)
		}
	}
	return out
}

// ParentsOf returns the direct parents of key.
func (s *Store) ParentsOf(key KeyValue) []KeyValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []KeyValue
	for _, r := range s.family {
		if r.Child == key {
			out = append(out, r.Parent)
		}
	}
	return out
}

// AddRelation declares child under parent at runtime.
func (s *Store) AddRelation(parent, child KeyValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.family {
		if r.Parent == parent && r.Child == child {
			return
		}
	}
	s.family = append(s.family, Relation{Parent: parent, Child: child})
}

// Group returns the members of a named key group.
func (s *Store) Group(name string) ([]KeyValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys, ok := s.groups[strings.ToUpper(name)]
	if !ok {
		return nil, false
	}
	out := make([]KeyValue, len(keys))
	copy(out, keys)
	return out, true
}

// DownKeys lists every key that is not Up, ordered by notation.
func (s *Store) DownKeys() []KeyValue {
	s.mu.RLock()
	out := make([]KeyValue, 0, len(s.down))
	for k := range s.down {
		out = append(out, k)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Snapshot copies every non-Up latch state.
func (s *Store) Snapshot() map[KeyValue]DownState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[KeyValue]DownState, len(s.down))
	for k, v := range s.down {
		out[k] = v
	}
	return out
}

// Restore makes the latch states equal to snap: keys missing from snap are
// set Up.
func (s *Store) Restore(snap map[KeyValue]DownState) {
	for _, k := range s.DownKeys() {
		if _, ok := snap[k]; !ok {
			s.SetDown(k, Up)
		}
	}
	for k, v := range snap {
		s.SetDown(k, v)
	}
}

// Latches reports whether key is pressable or lockable.
func (s *Store) Latches(key KeyValue) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pressable[key] || s.lockable[key]
}

// ProgressDownState advances the latch of key one step in the
// Up, Down, LockedDown cycle and returns the new state. Keys that can only be
// locked go straight from Up to LockedDown; keys that cannot be locked go
// from Down back to Up.
func (s *Store) ProgressDownState(key KeyValue) DownState {
	s.mu.RLock()
	cur := s.down[key]
	pressable := s.pressable[key]
	lockable := s.lockable[key]
	s.mu.RUnlock()

	next := Up
	switch {
	case cur == Up && pressable:
		next = Down
	case cur == Up && lockable && !pressable:
		next = LockedDown
	case cur == Down && lockable:
		next = LockedDown
	}
	s.SetDown(key, next)
	return next
}

// Subscribe registers fn for every subsequent change. fn runs on the
// mutating goroutine after the store lock is released. The returned func
// removes the subscription.
func (s *Store) Subscribe(fn func(Change)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}
