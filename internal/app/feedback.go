package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/Alia5/gazekey/geom"
	"github.com/Alia5/gazekey/keystate"
	"github.com/Alia5/gazekey/output"
	"github.com/Alia5/gazekey/scroll"
	"github.com/Alia5/gazekey/selection"
)

// Feedback reports to the frontend that renders the keyboard. Every message
// is one JSON line on the writer; with a nil writer messages are only
// logged.
type Feedback struct {
	logger *slog.Logger

	mu      sync.Mutex
	enc     *json.Encoder
	overlay scroll.Overlay
}

var (
	_ output.Notifier         = (*Feedback)(nil)
	_ scroll.OverlayPublisher = (*Feedback)(nil)
)

type feedbackMessage struct {
	Type     string       `json:"type"`
	Title    string       `json:"title,omitempty"`
	Message  string       `json:"message,omitempty"`
	Keyboard string       `json:"keyboard,omitempty"`
	Replace  *bool        `json:"replace,omitempty"`
	Spec     string       `json:"spec,omitempty"`
	Overlay  *wireOverlay `json:"overlay,omitempty"`
	Key      string       `json:"key,omitempty"`
	Down     string       `json:"down,omitempty"`
	Running  *bool        `json:"running,omitempty"`
	Mode     string       `json:"mode,omitempty"`
}

type wireOverlay struct {
	Active   bool       `json:"active"`
	Bounds   wireRect   `json:"bounds"`
	Deadzone wireRect   `json:"deadzone"`
	Margins  [4]float64 `json:"margins"`
	Opacity  float64    `json:"opacity"`
}

type wireRect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

func toWireRect(r geom.Rect) wireRect { return wireRect{X: r.X, Y: r.Y, W: r.W, H: r.H} }

// NewFeedback creates a Feedback writing to w.
func NewFeedback(w io.Writer, logger *slog.Logger) *Feedback {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Feedback{logger: logger}
	if w != nil {
		f.enc = json.NewEncoder(w)
	}
	return f
}

func (f *Feedback) send(m feedbackMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendLocked(m)
}

func (f *Feedback) sendLocked(m feedbackMessage) {
	if f.enc == nil {
		return
	}
	if err := f.enc.Encode(m); err != nil {
		f.logger.Warn("Failed to write feedback", "type", m.Type, "error", err)
	}
}

func (f *Feedback) ErrorSound() {
	f.logger.Warn("Error sound")
	f.send(feedbackMessage{Type: "errorSound"})
}

func (f *Feedback) Notify(title, message string) {
	f.logger.Warn(title, "message", message)
	f.send(feedbackMessage{Type: "notify", Title: title, Message: message})
}

// PublishOverlay forwards overlay changes. Repeats of the last overlay are
// dropped.
func (f *Feedback) PublishOverlay(o scroll.Overlay) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o == f.overlay {
		return
	}
	f.overlay = o
	f.sendLocked(feedbackMessage{Type: "overlay", Overlay: &wireOverlay{
		Active:   o.Active,
		Bounds:   toWireRect(o.Bounds),
		Deadzone: toWireRect(o.Deadzone),
		Margins:  [4]float64{o.Margins.Left, o.Margins.Top, o.Margins.Right, o.Margins.Bottom},
		Opacity:  o.Opacity,
	}})
}

// MoveWindow asks the frontend to move or resize the keyboard window.
func (f *Feedback) MoveWindow(_ context.Context, spec string) error {
	f.logger.Info("Moving keyboard window", "spec", spec)
	f.send(feedbackMessage{Type: "moveWindow", Spec: spec})
	return nil
}

// KeyboardChanged tells the frontend to show another keyboard.
func (f *Feedback) KeyboardChanged(name string, replace bool) {
	f.send(feedbackMessage{Type: "keyboard", Keyboard: name, Replace: &replace})
}

// KeyChanged reports the down and running state of a key after either
// changed, for highlighting.
func (f *Feedback) KeyChanged(c keystate.Change) {
	f.send(feedbackMessage{Type: "key", Key: c.Key.String(), Down: c.Down.String(), Running: &c.Running})
}

// ModeChanged reports a new selection mode.
func (f *Feedback) ModeChanged(m selection.Mode) {
	f.logger.Debug("Selection mode changed", "mode", m)
	f.send(feedbackMessage{Type: "mode", Mode: m.String()})
}
