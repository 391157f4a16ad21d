// Package input decodes the newline-delimited JSON stream of gaze samples
// and selection triggers that drives the engine.
package input

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Alia5/gazekey/geom"
	"github.com/Alia5/gazekey/keystate"
)

// Type tags an input event.
type Type string

const (
	// Position is a gaze or pointer sample.
	Position Type = "position"
	// Key is a completed selection of a key.
	Key Type = "key"
	// Point is a completed selection of a screen point.
	Point Type = "point"
	// Dock reports where the keyboard window is and whether it is docked.
	Dock Type = "dock"
	// Leave reports that the gaze left a key before it was selected.
	Leave Type = "leave"
)

// maxLine bounds a single event line.
const maxLine = 64 * 1024

var (
	errMissingKey  = errors.New("missing key")
	errLineTooLong = fmt.Errorf("line longer than %d bytes", maxLine)
)

// Event is one decoded line.
type Event struct {
	Type Type
	// Point is the sample position, or the first selected point.
	Point geom.Point
	// Points holds every point of a point selection.
	Points []geom.Point
	// Key is the selected key, or for Point events the key under the point.
	Key keystate.KeyValue
	// Time is the sample time; the decode time when the line has none.
	Time time.Time
	// Window and Docked describe the keyboard window for Dock events.
	Window geom.Rect
	Docked bool
}

type wireEvent struct {
	Type   string       `json:"type"`
	X      *float64     `json:"x,omitempty"`
	Y      *float64     `json:"y,omitempty"`
	T      *int64       `json:"t,omitempty"`
	Key    string       `json:"key,omitempty"`
	Points [][2]float64 `json:"points,omitempty"`
	Window *wireRect    `json:"window,omitempty"`
	Docked bool         `json:"docked,omitempty"`
}

type wireRect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Decoder reads events line by line.
type Decoder struct {
	r    *bufio.Reader
	line int
	now  func() time.Time
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 4096), now: time.Now}
}

// LineError is a malformed line. Decoding can continue after it.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }
func (e *LineError) Unwrap() error { return e.Err }

// Next returns the next event. Blank lines are skipped. It returns io.EOF
// at the end of input and a *LineError for a malformed line, including one
// longer than maxLine.
func (d *Decoder) Next() (Event, error) {
	for {
		data, read, tooLong, err := d.readLine()
		if !read {
			return Event{}, err
		}
		d.line++
		if tooLong {
			return Event{}, &LineError{Line: d.line, Err: errLineTooLong}
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			continue
		}
		ev, derr := d.decode([]byte(text))
		if derr != nil {
			return Event{}, &LineError{Line: d.line, Err: derr}
		}
		return ev, nil
	}
}

// readLine reads through the next newline. The content of an overlong line
// is discarded. read is false when nothing was left before err.
func (d *Decoder) readLine() (data []byte, read, tooLong bool, err error) {
	for {
		chunk, rerr := d.r.ReadSlice('\n')
		if len(chunk) > 0 {
			read = true
		}
		if !tooLong {
			if len(data)+len(chunk) > maxLine {
				tooLong, data = true, nil
			} else {
				data = append(data, chunk...)
			}
		}
		if errors.Is(rerr, bufio.ErrBufferFull) {
			continue
		}
		return data, read, tooLong, rerr
	}
}

func (d *Decoder) decode(data []byte) (Event, error) {
	var w wireEvent
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return Event{}, fmt.Errorf("decode: %w", err)
	}

	ev := Event{Type: Type(strings.ToLower(w.Type)), Time: d.now()}
	if w.T != nil {
		ev.Time = time.UnixMilli(*w.T)
	}
	if w.X != nil && w.Y != nil {
		ev.Point = geom.Pt(*w.X, *w.Y)
	}
	if w.Key != "" {
		k, err := keystate.ParseKeyValue(w.Key)
		if err != nil {
			return Event{}, err
		}
		ev.Key = k
	}

	switch ev.Type {
	case Position:
		if w.X == nil || w.Y == nil {
			return Event{}, errors.New("position without x and y")
		}
	case Key, Leave:
		if ev.Key.IsZero() {
			return Event{}, errMissingKey
		}
		if w.X != nil && w.Y != nil {
			ev.Points = []geom.Point{ev.Point}
		}
	case Point:
		for _, p := range w.Points {
			ev.Points = append(ev.Points, geom.Pt(p[0], p[1]))
		}
		if len(ev.Points) == 0 {
			if w.X == nil || w.Y == nil {
				return Event{}, errors.New("point without coordinates")
			}
			ev.Points = []geom.Point{ev.Point}
		}
		ev.Point = ev.Points[0]
	case Dock:
		if w.Window != nil {
			ev.Window = geom.Rect{X: w.Window.X, Y: w.Window.Y, W: w.Window.W, H: w.Window.H}
		}
		ev.Docked = w.Docked
	default:
		return Event{}, fmt.Errorf("unknown event type %q", w.Type)
	}
	return ev, nil
}
