package plugin

import "errors"

var (
	// ErrDisabled is returned when plugins are turned off.
	ErrDisabled = errors.New("plugins are disabled")
	// ErrNotFound is returned when no plugin file exists for a name.
	ErrNotFound = errors.New("plugin not found")
	// ErrMethodNotFound is returned when a plugin lacks the called method.
	ErrMethodNotFound = errors.New("plugin method not found")
)
