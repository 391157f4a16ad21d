package scroll

import (
	"errors"
	"fmt"
)

var (
	ErrNoPoint           = errors.New("no point chosen")
	ErrNoWindow          = errors.New("no eligible window at point")
	ErrWindowMismatch    = errors.New("points resolve to different windows")
	ErrRectTooSmall      = errors.New("rectangle is smaller than the deadzone")
	ErrTargetInvalidated = errors.New("scroll target invalidated")
)

// AcquisitionError reports why a session could not start.
type AcquisitionError struct {
	Mode BoundsMode
	Err  error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire %s target: %v", e.Mode, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }
