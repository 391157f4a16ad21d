package interpreter

import "errors"

var (
	// ErrUnknownFunction is reported when a script names a function key with
	// no registered handler.
	ErrUnknownFunction = errors.New("unknown function key")
	// ErrMalformedCommand is reported for commands missing their payload.
	ErrMalformedCommand = errors.New("malformed command")
)

// innermost follows the Unwrap chain of err to its root cause.
func innermost(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
