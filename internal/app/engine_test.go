package app

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/gazekey/bounds"
	"github.com/Alia5/gazekey/command"
	"github.com/Alia5/gazekey/geom"
	"github.com/Alia5/gazekey/internal/config"
	"github.com/Alia5/gazekey/internal/input"
	"github.com/Alia5/gazekey/interpreter"
	"github.com/Alia5/gazekey/keystate"
	"github.com/Alia5/gazekey/output"
	"github.com/Alia5/gazekey/scroll"
	"github.com/Alia5/gazekey/selection"
)

type sink struct {
	mu    sync.Mutex
	calls []string
}

func (s *sink) record(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

func (s *sink) PressKey(_ context.Context, name string) error {
	s.record("press %s", name)
	return nil
}

func (s *sink) ReleaseKey(_ context.Context, name string) error {
	s.record("release %s", name)
	return nil
}

func (s *sink) TypeText(_ context.Context, text string) error {
	s.record("type %s", text)
	return nil
}

func (s *sink) MovePointer(_ context.Context, p geom.Point) error {
	s.record("move %s", p)
	return nil
}

func (s *sink) ScrollWheel(_ context.Context, _, _ int) error {
	s.record("scroll")
	return nil
}

func (s *sink) Click(_ context.Context, b output.Button) error {
	s.record("click %s", b)
	return nil
}

func (s *sink) BringWindowToFront(_ context.Context, h bounds.Handle) error {
	s.record("front %s", h)
	return nil
}

func (s *sink) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Keyboard returns the calls that are not pointer moves or scrolling.
func (s *sink) Keyboard() []string {
	var out []string
	for _, c := range s.Calls() {
		if !strings.HasPrefix(c, "move ") && c != "scroll" {
			out = append(out, c)
		}
	}
	return out
}

// lockedBuffer collects feedback written from script and resume goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	e        *Engine
	sink     *sink
	feedback *lockedBuffer
}

func newFixture(t *testing.T, b *command.Bindings, settings scroll.Settings) *fixture {
	t.Helper()
	f := &fixture{sink: &sink{}, feedback: &lockedBuffer{}}
	e, err := New(Config{
		Bindings:    b,
		Sink:        f.sink,
		Resolver:    ScreenResolver{Screen: geom.Rect{W: 1920, H: 1080}},
		Settings:    settings,
		Feedback:    f.feedback,
		Interpreter: config.Interpreter{PollInterval: time.Millisecond, LoopThrottle: 10 * time.Millisecond},
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	f.e = e
	return f
}

func (f *fixture) key(k keystate.KeyValue) {
	f.e.Handle(context.Background(), input.Event{Type: input.Key, Key: k, Time: time.Now()})
}

func (f *fixture) point(p geom.Point) {
	f.e.Handle(context.Background(), input.Event{Type: input.Point, Point: p, Points: []geom.Point{p}, Time: time.Now()})
}

var (
	shift      = keystate.Character("LeftShift")
	ctrl       = keystate.Character("Ctrl")
	activeKey  = keystate.Function(keystate.LookToScrollActive)
	moveTo     = keystate.Function(keystate.MouseMoveTo)
	rightClick = keystate.Function(keystate.MouseMoveAndRightClick)
)

func TestNewRequiresCollaborators(t *testing.T) {
	good := Config{Bindings: &command.Bindings{}, Sink: &sink{}, Resolver: ScreenResolver{}}
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "bindings", mutate: func(c *Config) { c.Bindings = nil }, want: "no key bindings"},
		{name: "sink", mutate: func(c *Config) { c.Sink = nil }, want: "no output sink"},
		{name: "resolver", mutate: func(c *Config) { c.Resolver = nil }, want: "no bounds resolver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := good
			tt.mutate(&c)
			_, err := New(c, nil)
			assert.EqualError(t, err, tt.want)
		})
	}

	_, err := New(good, nil)
	assert.NoError(t, err)
}

func TestCharacterKeys(t *testing.T) {
	b := &command.Bindings{
		Pressable: []keystate.KeyValue{shift, ctrl},
		Lockable:  []keystate.KeyValue{ctrl},
	}
	f := newFixture(t, b, scroll.DefaultSettings())

	f.key(shift)
	f.key(keystate.Character("a"))
	assert.Equal(t, []string{"press LeftShift", "type a", "release LeftShift"}, f.sink.Calls())
	assert.Equal(t, keystate.Up, f.e.Store().Down(shift))

	f.sink.calls = nil
	f.key(ctrl)
	f.key(ctrl)
	assert.Equal(t, keystate.LockedDown, f.e.Store().Down(ctrl))
	f.key(keystate.Character("b"))
	f.key(keystate.Character("c"))
	f.key(ctrl)
	assert.Equal(t, []string{"press Ctrl", "type b", "type c", "release Ctrl"}, f.sink.Calls())

	assert.Equal(t, "abc", f.e.ScratchpadText())
}

func TestUnknownFunctionKey(t *testing.T) {
	f := newFixture(t, &command.Bindings{}, scroll.DefaultSettings())
	err := f.e.SelectKey(context.Background(), keystate.Function("Teleport"))
	assert.ErrorIs(t, err, interpreter.ErrUnknownFunction)
}

func TestScriptedKey(t *testing.T) {
	macro := keystate.Character("greet")
	b := &command.Bindings{Keys: []command.Binding{{
		Key:      macro,
		Commands: []command.KeyCommand{command.Text("hi "), command.MoveWindow("MoveToTop"), command.Text("there")},
	}}}
	f := newFixture(t, b, scroll.DefaultSettings())

	f.key(macro)
	f.e.Dispatcher().Wait()

	assert.Equal(t, []string{"type hi ", "type there"}, f.sink.Calls())
	assert.Equal(t, "hi there", f.e.ScratchpadText())
	assert.Contains(t, f.feedback.String(), `{"type":"moveWindow","spec":"MoveToTop"}`)
	assert.Equal(t, keystate.Up, f.e.Store().Down(macro))
}

func TestPointActionAndRepeat(t *testing.T) {
	f := newFixture(t, &command.Bindings{}, scroll.DefaultSettings())

	f.key(rightClick)
	assert.Equal(t, selection.SinglePoint, f.e.Dispatcher().Mode())
	assert.Equal(t, keystate.Down, f.e.Store().Down(rightClick))

	f.point(geom.Pt(5, 6))
	assert.Equal(t, selection.Keys, f.e.Dispatcher().Mode())
	assert.Equal(t, keystate.Up, f.e.Store().Down(rightClick))
	assert.Equal(t, []string{"move (5.0,6.0)", "click right"}, f.sink.Calls())

	f.key(keystate.Function(keystate.RepeatLastMouseAction))
	assert.Equal(t, []string{"move (5.0,6.0)", "click right", "move (5.0,6.0)", "click right"}, f.sink.Calls())

	f.key(keystate.Function(keystate.MouseLeftClick))
	f.key(keystate.Function(keystate.RepeatLastMouseAction))
	assert.Equal(t, []string{"click left", "click left"}, f.sink.Calls()[4:])
}

func TestKeyStateAndModeReachFeedback(t *testing.T) {
	f := newFixture(t, &command.Bindings{}, scroll.DefaultSettings())

	f.key(rightClick)
	out := f.feedback.String()
	assert.Contains(t, out, `{"type":"key","key":"fn:MouseMoveAndRightClick","down":"Down","running":false}`)
	assert.Contains(t, out, `{"type":"mode","mode":"single-point"}`)

	f.point(geom.Pt(5, 6))
	out = f.feedback.String()
	assert.Contains(t, out, `{"type":"key","key":"fn:MouseMoveAndRightClick","down":"Up","running":false}`)
	assert.Contains(t, out, `{"type":"mode","mode":"keys"}`)
}

func TestLockedPointActionRepeatsUntilCancelled(t *testing.T) {
	f := newFixture(t, &command.Bindings{}, scroll.DefaultSettings())

	f.key(moveTo)
	f.key(moveTo)
	require.Equal(t, keystate.LockedDown, f.e.Store().Down(moveTo))

	f.point(geom.Pt(1, 1))
	f.point(geom.Pt(2, 2))
	assert.Equal(t, selection.SinglePoint, f.e.Dispatcher().Mode())

	f.key(moveTo)
	assert.Equal(t, keystate.Up, f.e.Store().Down(moveTo))
	assert.Equal(t, selection.Keys, f.e.Dispatcher().Mode())
	assert.Equal(t, []string{"move (1.0,1.0)", "move (2.0,2.0)"}, f.sink.Calls())
}

func TestScriptSuspendsForPointAction(t *testing.T) {
	clicker := keystate.Character("clicker")
	b := &command.Bindings{Keys: []command.Binding{{
		Key: clicker,
		Commands: []command.KeyCommand{
			command.Function(keystate.MouseMoveAndLeftDoubleClick),
			command.Text("done"),
		},
	}}}
	f := newFixture(t, b, scroll.DefaultSettings())

	f.key(clicker)
	require.Eventually(t, func() bool {
		return f.e.Dispatcher().Mode() == selection.SinglePoint
	}, time.Second, time.Millisecond)
	assert.Empty(t, f.sink.Calls())

	f.point(geom.Pt(10, 20))
	f.e.Dispatcher().Wait()

	assert.Equal(t, []string{"move (10.0,20.0)", "click left", "click left", "type done"}, f.sink.Calls())
}

func TestLookToScroll(t *testing.T) {
	f := newFixture(t, &command.Bindings{}, scroll.DefaultSettings())
	ctx := context.Background()

	f.key(activeKey)
	require.Equal(t, scroll.Active, f.e.Scroll().State())
	assert.Equal(t, []string{"move (960.0,540.0)"}, f.sink.Calls())

	now := time.Now()
	f.e.Handle(ctx, input.Event{Type: input.Position, Point: geom.Pt(960, 10), Time: now})
	f.e.Handle(ctx, input.Event{Type: input.Position, Point: geom.Pt(960, 10), Time: now.Add(100 * time.Millisecond)})
	assert.Contains(t, f.sink.Calls(), "scroll")
	assert.Contains(t, f.feedback.String(), `"type":"overlay"`)

	f.key(activeKey)
	assert.Equal(t, keystate.LockedDown, f.e.Store().Down(activeKey))
	assert.Equal(t, scroll.Active, f.e.Scroll().State())

	f.key(activeKey)
	assert.Equal(t, scroll.Idle, f.e.Scroll().State())
}

func TestLookToScrollIgnoresGazeOverKeyboard(t *testing.T) {
	f := newFixture(t, &command.Bindings{}, scroll.DefaultSettings())
	ctx := context.Background()
	f.e.Handle(ctx, input.Event{Type: input.Dock, Window: geom.Rect{Y: 800, W: 1920, H: 280}, Docked: true})

	f.key(activeKey)
	f.sink.calls = nil
	now := time.Now()
	f.e.Handle(ctx, input.Event{Type: input.Position, Point: geom.Pt(960, 900), Time: now})
	f.e.Handle(ctx, input.Event{Type: input.Position, Point: geom.Pt(960, 900), Time: now.Add(100 * time.Millisecond)})
	assert.Empty(t, f.sink.Calls())
}

func TestChangeKeyboard(t *testing.T) {
	settings := scroll.DefaultSettings()
	settings.DeactivateUponSwitchingKeyboards = true
	f := newFixture(t, &command.Bindings{}, settings)

	_, ok := f.e.Keyboard()
	assert.False(t, ok)

	f.key(activeKey)
	require.Equal(t, scroll.Active, f.e.Scroll().State())

	f.key(keystate.ChangeKeyboard("Numbers", false))
	name, ok := f.e.Keyboard()
	assert.True(t, ok)
	assert.Equal(t, "Numbers", name)
	assert.Equal(t, scroll.Idle, f.e.Scroll().State())
	assert.Equal(t, keystate.Up, f.e.Store().Down(activeKey))

	f.key(keystate.ChangeKeyboard("Symbols", true))
	name, _ = f.e.Keyboard()
	assert.Equal(t, "Symbols", name)
	assert.Len(t, f.e.keyboards, 1)
	assert.Contains(t, f.feedback.String(), `{"type":"keyboard","keyboard":"Symbols","replace":true}`)
}

func TestOverrideHoldsWhileFocused(t *testing.T) {
	hold := keystate.Character("hold")
	b := &command.Bindings{Keys: []command.Binding{{
		Key:           hold,
		Commands:      []command.KeyCommand{command.Text("x")},
		LockDownDelay: time.Hour,
	}}}
	f := newFixture(t, b, scroll.DefaultSettings())

	f.key(hold)
	require.Eventually(t, func() bool {
		return f.e.Store().Down(hold) == keystate.Down && f.e.Store().Running(hold)
	}, time.Second, time.Millisecond)

	f.e.Handle(context.Background(), input.Event{Type: input.Leave, Key: hold})
	f.e.Dispatcher().Wait()

	assert.False(t, f.e.Store().Running(hold))
	assert.Equal(t, keystate.Up, f.e.Store().Down(hold))
}

func TestReleaseAll(t *testing.T) {
	b := &command.Bindings{Lockable: []keystate.KeyValue{ctrl}}
	f := newFixture(t, b, scroll.DefaultSettings())

	f.key(ctrl)
	f.key(activeKey)
	f.key(rightClick)
	require.Equal(t, keystate.LockedDown, f.e.Store().Down(ctrl))

	f.key(keystate.Function(keystate.ReleaseAll))
	assert.Equal(t, selection.SinglePoint, f.e.Dispatcher().Mode(), "release all is not valid while choosing a point")

	f.key(rightClick)
	f.key(rightClick)
	require.Equal(t, selection.Keys, f.e.Dispatcher().Mode())

	f.key(keystate.Function(keystate.ReleaseAll))
	assert.Empty(t, f.e.Store().DownKeys())
	assert.Equal(t, scroll.Idle, f.e.Scroll().State())
	assert.Equal(t, []string{"press Ctrl", "release Ctrl"}, f.sink.Keyboard())
}

func TestRunReleasesKeysWhenInputEnds(t *testing.T) {
	b := &command.Bindings{Lockable: []keystate.KeyValue{ctrl}}
	f := newFixture(t, b, scroll.DefaultSettings())

	events := make(chan input.Event, 1)
	events <- input.Event{Type: input.Key, Key: ctrl, Time: time.Now()}
	close(events)

	require.NoError(t, f.e.Run(context.Background(), events))
	assert.Equal(t, []string{"press Ctrl", "release Ctrl"}, f.sink.Calls())
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, &command.Bindings{}, scroll.DefaultSettings())
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan input.Event)

	done := make(chan error, 1)
	go func() { done <- f.e.Run(ctx, events) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
