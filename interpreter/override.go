package interpreter

import (
	"sync/atomic"
	"time"
)

// Override replaces the default press/lock timing of one key. While a key
// with a positive LockDownDelay keeps focus its script stays running; the
// input layer reports focus through Focus and LoseFocus.
type Override struct {
	LockDownDelay time.Duration

	cancelAt atomic.Int64
}

func NewOverride(lockDownDelay time.Duration) *Override {
	return &Override{LockDownDelay: lockDownDelay}
}

// Focus records that the key was triggered at now and keeps focus until
// now+LockDownDelay unless refreshed.
func (o *Override) Focus(now time.Time) {
	o.cancelAt.Store(now.Add(o.LockDownDelay).UnixNano())
}

// LoseFocus clears the cancel time.
func (o *Override) LoseFocus() { o.cancelAt.Store(0) }

// CancelTime returns the recorded cancel time, if any.
func (o *Override) CancelTime() (time.Time, bool) {
	n := o.cancelAt.Load()
	if n == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, n), true
}

// Focused reports whether a cancel time is set.
func (o *Override) Focused() bool { return o.cancelAt.Load() != 0 }
