// Package viiper sends simulated keyboard and mouse input to virtual USB
// devices hosted by a VIIPER server.
package viiper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/Alia5/gazekey/geom"
	"github.com/Alia5/gazekey/output"
)

const (
	DeviceKeyboard = "keyboard"
	DeviceMouse    = "mouse"

	wheelUnitsPerNotch = 120
	defaultKeyDelay    = 8 * time.Millisecond
)

// ErrPointerUnknown is returned by MovePointer when the current pointer
// position cannot be determined.
var ErrPointerUnknown = errors.New("pointer position unknown")

// Config selects the server and the bus devices are attached to.
type Config struct {
	Addr     string
	Password string
	// BusID is the bus to use; 0 picks the first existing bus or creates one.
	BusID uint32
	// KeyDelay separates the press and release reports of typed text.
	KeyDelay time.Duration
	// PointerPosition reports the current pointer position, for absolute
	// moves with a relative mouse.
	PointerPosition func() (geom.Point, bool)
	// ReportLog receives every report sent.
	ReportLog func(device string, data []byte)
}

// Backend implements output.Keyboard and output.Pointer with a virtual
// keyboard and mouse.
type Backend struct {
	client  *Client
	cfg     Config
	logger  *slog.Logger
	busID   uint32
	created bool
	devices []*Device

	kbMu     sync.Mutex
	keyboard *DeviceStream
	kbState  KeyboardReport

	mouseMu   sync.Mutex
	mouse     *DeviceStream
	buttons   uint8
	wheelRest [2]int
	lastPos   geom.Point
	havePos   bool
}

var (
	_ output.Keyboard = (*Backend)(nil)
	_ output.Pointer  = (*Backend)(nil)
)

// Connect attaches a virtual keyboard and mouse and opens their streams.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tcfg := defaultTransportConfig()
	tcfg.Password = cfg.Password
	b := &Backend{
		client: NewClient(NewTransport(cfg.Addr, &tcfg)),
		cfg:    cfg,
		logger: logger,
	}
	if err := b.attach(ctx); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) attach(ctx context.Context) error {
	busID, created, err := b.pickBus(ctx)
	if err != nil {
		return err
	}
	b.busID, b.created = busID, created

	kb, err := b.addDevice(ctx, DeviceKeyboard)
	if err != nil {
		return err
	}
	ms, err := b.addDevice(ctx, DeviceMouse)
	if err != nil {
		kb.Close()
		return err
	}
	b.keyboard, b.mouse = kb, ms
	b.logger.Info("Virtual input devices attached", "addr", b.cfg.Addr, "bus", busID,
		"keyboard", kb.DevID, "mouse", ms.DevID)
	return nil
}

func (b *Backend) pickBus(ctx context.Context) (uint32, bool, error) {
	buses, err := b.client.BusList(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("list buses: %w", err)
	}
	if b.cfg.BusID != 0 {
		if slices.Contains(buses, b.cfg.BusID) {
			return b.cfg.BusID, false, nil
		}
		id, err := b.client.BusCreate(ctx, b.cfg.BusID)
		if err != nil {
			return 0, false, fmt.Errorf("create bus %d: %w", b.cfg.BusID, err)
		}
		return id, true, nil
	}
	if len(buses) > 0 {
		return slices.Min(buses), false, nil
	}
	id, err := b.client.BusCreate(ctx, 1)
	if err != nil {
		return 0, false, fmt.Errorf("create bus: %w", err)
	}
	return id, true, nil
}

func (b *Backend) addDevice(ctx context.Context, devType string) (*DeviceStream, error) {
	dev, err := b.client.DeviceAdd(ctx, b.busID, devType)
	if err != nil {
		return nil, fmt.Errorf("add %s: %w", devType, err)
	}
	b.devices = append(b.devices, dev)
	s, err := b.client.OpenStream(ctx, b.busID, dev.DevID)
	if err != nil {
		return nil, fmt.Errorf("open %s stream: %w", devType, err)
	}
	if b.cfg.ReportLog != nil {
		s.onWrite = func(data []byte) { b.cfg.ReportLog(devType, data) }
	}
	return s, nil
}

// Close releases everything held, closes the streams and detaches the
// devices. A bus created by Connect is removed.
func (b *Backend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if b.keyboard != nil {
		b.kbMu.Lock()
		b.kbState = KeyboardReport{}
		errs = append(errs, b.keyboard.WriteBinary(&b.kbState), b.keyboard.Close())
		b.kbMu.Unlock()
	}
	if b.mouse != nil {
		b.mouseMu.Lock()
		b.buttons = 0
		errs = append(errs, b.mouse.WriteBinary(&MouseReport{}), b.mouse.Close())
		b.mouseMu.Unlock()
	}
	if b.created {
		errs = append(errs, b.client.BusRemove(ctx, b.busID))
	} else {
		for _, d := range b.devices {
			errs = append(errs, b.client.DeviceRemove(ctx, b.busID, d.DevID))
		}
	}
	b.devices = nil
	return errors.Join(errs...)
}

func (b *Backend) sendKeyboard() error {
	if b.keyboard == nil {
		return output.ErrNoBackend
	}
	return b.keyboard.WriteBinary(&b.kbState)
}

func (b *Backend) sendMouse(r MouseReport) error {
	if b.mouse == nil {
		return output.ErrNoBackend
	}
	r.Buttons = b.buttons
	return b.mouse.WriteBinary(&r)
}

// PressKey holds the named key down.
func (b *Backend) PressKey(_ context.Context, name string) error {
	k, err := LookupKey(name)
	if err != nil {
		return err
	}
	b.kbMu.Lock()
	defer b.kbMu.Unlock()
	if k.Modifier != 0 {
		b.kbState.Modifiers |= k.Modifier
	} else {
		if k.Shift {
			b.kbState.Modifiers |= ModLeftShift
		}
		b.kbState.Press(k.Usage)
	}
	return b.sendKeyboard()
}

// ReleaseKey lets go of the named key.
func (b *Backend) ReleaseKey(_ context.Context, name string) error {
	k, err := LookupKey(name)
	if err != nil {
		return err
	}
	b.kbMu.Lock()
	defer b.kbMu.Unlock()
	if k.Modifier != 0 {
		b.kbState.Modifiers &^= k.Modifier
	} else {
		if k.Shift {
			b.kbState.Modifiers &^= ModLeftShift
		}
		b.kbState.Release(k.Usage)
	}
	return b.sendKeyboard()
}

// TypeText types text character by character on top of the held
// modifiers. Characters without a usage are skipped and reported.
func (b *Backend) TypeText(ctx context.Context, text string) error {
	delay := b.cfg.KeyDelay
	if delay <= 0 {
		delay = defaultKeyDelay
	}
	var skipped []rune
	for _, r := range text {
		cu, ok := charUsages[r]
		if !ok {
			skipped = append(skipped, r)
			continue
		}
		if err := b.tap(ctx, cu, delay); err != nil {
			return err
		}
	}
	if len(skipped) > 0 {
		return fmt.Errorf("no usage for %q", string(skipped))
	}
	return nil
}

func (b *Backend) tap(ctx context.Context, cu charUsage, delay time.Duration) error {
	b.kbMu.Lock()
	held := b.kbState.Modifiers
	if cu.shift {
		b.kbState.Modifiers |= ModLeftShift
	}
	b.kbState.Press(cu.usage)
	err := b.sendKeyboard()
	b.kbMu.Unlock()
	if err != nil {
		return err
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}

	b.kbMu.Lock()
	defer b.kbMu.Unlock()
	b.kbState.Release(cu.usage)
	b.kbState.Modifiers = held
	return b.sendKeyboard()
}

// ScrollWheel scrolls by wheel units. Units below a notch are carried to
// the next call.
func (b *Backend) ScrollWheel(_ context.Context, dx, dy int) error {
	b.mouseMu.Lock()
	defer b.mouseMu.Unlock()
	b.wheelRest[0] += dx
	b.wheelRest[1] += dy
	pan := b.wheelRest[0] / wheelUnitsPerNotch
	wheel := b.wheelRest[1] / wheelUnitsPerNotch
	if pan == 0 && wheel == 0 {
		return nil
	}
	b.wheelRest[0] -= pan * wheelUnitsPerNotch
	b.wheelRest[1] -= wheel * wheelUnitsPerNotch
	return b.sendMouse(MouseReport{Wheel: clamp16(wheel), Pan: clamp16(pan)})
}

// MovePointer moves the pointer to p with relative reports.
func (b *Backend) MovePointer(_ context.Context, p geom.Point) error {
	b.mouseMu.Lock()
	defer b.mouseMu.Unlock()
	from, ok := b.lastPos, b.havePos
	if b.cfg.PointerPosition != nil {
		if cur, known := b.cfg.PointerPosition(); known {
			from, ok = cur, true
		}
	}
	if !ok {
		return ErrPointerUnknown
	}
	dx := int(math.Round(p.X - from.X))
	dy := int(math.Round(p.Y - from.Y))
	for dx != 0 || dy != 0 {
		sx, sy := clamp16(dx), clamp16(dy)
		if err := b.sendMouse(MouseReport{DX: sx, DY: sy}); err != nil {
			return err
		}
		dx -= int(sx)
		dy -= int(sy)
	}
	b.lastPos, b.havePos = p, true
	return nil
}

// SetPointerPosition records where the pointer currently is.
func (b *Backend) SetPointerPosition(p geom.Point) {
	b.mouseMu.Lock()
	defer b.mouseMu.Unlock()
	b.lastPos, b.havePos = p, true
}

// Click presses and releases button.
func (b *Backend) Click(_ context.Context, button output.Button) error {
	bit := uint8(ButtonLeft)
	switch button {
	case output.ButtonRight:
		bit = ButtonRight
	case output.ButtonMiddle:
		bit = ButtonMiddle
	}
	b.mouseMu.Lock()
	defer b.mouseMu.Unlock()
	b.buttons |= bit
	if err := b.sendMouse(MouseReport{}); err != nil {
		b.buttons &^= bit
		return err
	}
	b.buttons &^= bit
	return b.sendMouse(MouseReport{})
}

func clamp16(v int) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}
