// Package output defines where the interaction core sends simulated input
// and user feedback.
package output

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Alia5/gazekey/bounds"
	"github.com/Alia5/gazekey/geom"
)

// ErrNoBackend is returned by a Mux when no backend handles the call.
var ErrNoBackend = errors.New("no output backend")

// Button identifies a pointer button.
type Button uint8

const (
	ButtonLeft Button = iota
	ButtonRight
	ButtonMiddle
)

func (b Button) String() string {
	switch b {
	case ButtonRight:
		return "right"
	case ButtonMiddle:
		return "middle"
	default:
		return "left"
	}
}

// Keyboard simulates key presses. Names are key values as written in
// binding files ("a", "LeftShift", "Enter").
type Keyboard interface {
	PressKey(ctx context.Context, name string) error
	ReleaseKey(ctx context.Context, name string) error
	TypeText(ctx context.Context, text string) error
}

// Pointer simulates pointer movement, clicks and wheel scrolling. Wheel
// deltas are in wheel units (120 per notch); positive dy scrolls up and
// positive dx scrolls right.
type Pointer interface {
	MovePointer(ctx context.Context, p geom.Point) error
	ScrollWheel(ctx context.Context, dx, dy int) error
	Click(ctx context.Context, b Button) error
}

// Windows manipulates top-level windows.
type Windows interface {
	BringWindowToFront(ctx context.Context, h bounds.Handle) error
}

// Sink is the full output surface.
type Sink interface {
	Keyboard
	Pointer
	Windows
}

// Notifier gives the user audible and visible feedback.
type Notifier interface {
	ErrorSound()
	Notify(title, message string)
}

// Mux combines partial backends into a Sink. Calls for a missing backend
// return ErrNoBackend.
type Mux struct {
	Keyboard Keyboard
	Pointer  Pointer
	Windows  Windows
}

var _ Sink = (*Mux)(nil)

func (m *Mux) PressKey(ctx context.Context, name string) error {
	if m.Keyboard == nil {
		return ErrNoBackend
	}
	return m.Keyboard.PressKey(ctx, name)
}

func (m *Mux) ReleaseKey(ctx context.Context, name string) error {
	if m.Keyboard == nil {
		return ErrNoBackend
	}
	return m.Keyboard.ReleaseKey(ctx, name)
}

func (m *Mux) TypeText(ctx context.Context, text string) error {
	if m.Keyboard == nil {
		return ErrNoBackend
	}
	return m.Keyboard.TypeText(ctx, text)
}

func (m *Mux) MovePointer(ctx context.Context, p geom.Point) error {
	if m.Pointer == nil {
		return ErrNoBackend
	}
	return m.Pointer.MovePointer(ctx, p)
}

func (m *Mux) ScrollWheel(ctx context.Context, dx, dy int) error {
	if m.Pointer == nil {
		return ErrNoBackend
	}
	return m.Pointer.ScrollWheel(ctx, dx, dy)
}

func (m *Mux) Click(ctx context.Context, b Button) error {
	if m.Pointer == nil {
		return ErrNoBackend
	}
	return m.Pointer.Click(ctx, b)
}

func (m *Mux) BringWindowToFront(ctx context.Context, h bounds.Handle) error {
	if m.Windows == nil {
		return ErrNoBackend
	}
	return m.Windows.BringWindowToFront(ctx, h)
}

// LogSink records every call in the log instead of producing input. It
// serves dry runs.
type LogSink struct {
	Logger *slog.Logger
}

var _ Sink = LogSink{}

func (s LogSink) log() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s LogSink) PressKey(_ context.Context, name string) error {
	s.log().Info("press key", "key", name)
	return nil
}

func (s LogSink) ReleaseKey(_ context.Context, name string) error {
	s.log().Info("release key", "key", name)
	return nil
}

func (s LogSink) TypeText(_ context.Context, text string) error {
	s.log().Info("type text", "text", text)
	return nil
}

func (s LogSink) MovePointer(_ context.Context, p geom.Point) error {
	s.log().Info("move pointer", "point", p)
	return nil
}

func (s LogSink) ScrollWheel(_ context.Context, dx, dy int) error {
	s.log().Debug("scroll wheel", "dx", dx, "dy", dy)
	return nil
}

func (s LogSink) Click(_ context.Context, b Button) error {
	s.log().Info("click", "button", b)
	return nil
}

func (s LogSink) BringWindowToFront(_ context.Context, h bounds.Handle) error {
	s.log().Info("bring window to front", "window", h)
	return nil
}

// LogNotifier writes feedback to the log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) ErrorSound() {
	n.logger().Warn("error sound")
}

func (n LogNotifier) Notify(title, message string) {
	n.logger().Warn(title, "message", message)
}

func (n LogNotifier) logger() *slog.Logger {
	if n.Logger == nil {
		return slog.Default()
	}
	return n.Logger
}
