package viiper

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Modifier bits of the keyboard report.
const (
	ModLeftCtrl   = 0x01
	ModLeftShift  = 0x02
	ModLeftAlt    = 0x04
	ModLeftGUI    = 0x08
	ModRightCtrl  = 0x10
	ModRightShift = 0x20
	ModRightAlt   = 0x40
	ModRightGUI   = 0x80
)

// Mouse button bits.
const (
	ButtonLeft   = 0x01
	ButtonRight  = 0x02
	ButtonMiddle = 0x04
)

// HID keyboard usages that are not derived from a character.
const (
	usageA         = 0x04
	usage1         = 0x1E
	usage0         = 0x27
	usageEnter     = 0x28
	usageEscape    = 0x29
	usageBackspace = 0x2A
	usageTab       = 0x2B
	usageSpace     = 0x2C
	usageCapsLock  = 0x39
	usageF1        = 0x3A
	usageF13       = 0x68
)

var modifierNames = map[string]uint8{
	"ctrl": ModLeftCtrl, "leftctrl": ModLeftCtrl, "rightctrl": ModRightCtrl,
	"shift": ModLeftShift, "leftshift": ModLeftShift, "rightshift": ModRightShift,
	"alt": ModLeftAlt, "leftalt": ModLeftAlt, "rightalt": ModRightAlt, "altgr": ModRightAlt,
	"win": ModLeftGUI, "leftwin": ModLeftGUI, "rightwin": ModRightGUI,
	"gui": ModLeftGUI, "leftgui": ModLeftGUI, "rightgui": ModRightGUI,
}

var namedUsages = map[string]uint8{
	"enter": usageEnter, "return": usageEnter,
	"escape": usageEscape, "esc": usageEscape,
	"backspace": usageBackspace,
	"tab":       usageTab,
	"space":     usageSpace,
	"capslock":  usageCapsLock,
	"printscreen": 0x46, "scrolllock": 0x47, "pause": 0x48,
	"insert": 0x49, "home": 0x4A, "pageup": 0x4B,
	"delete": 0x4C, "end": 0x4D, "pagedown": 0x4E,
	"right": 0x4F, "left": 0x50, "down": 0x51, "up": 0x52,
	"arrowright": 0x4F, "arrowleft": 0x50, "arrowdown": 0x51, "arrowup": 0x52,
	"numlock": 0x53, "application": 0x65, "menu": 0x65,
	"mute": 0x7F, "volumeup": 0x80, "volumedown": 0x81,
	"mediaplaypause": 0xE8, "mediastop": 0xE9, "medianext": 0xEB, "mediaprevious": 0xEC,
}

// charUsages maps printable ASCII to a usage and whether Shift is needed.
var charUsages = buildCharUsages()

type charUsage struct {
	usage uint8
	shift bool
}

func buildCharUsages() map[rune]charUsage {
	m := make(map[rune]charUsage, 100)
	for i := 0; i < 26; i++ {
		m[rune('a'+i)] = charUsage{usage: uint8(usageA + i)}
		m[rune('A'+i)] = charUsage{usage: uint8(usageA + i), shift: true}
	}
	for i := 1; i <= 9; i++ {
		m[rune('0'+i)] = charUsage{usage: uint8(usage1 + i - 1)}
	}
	m['0'] = charUsage{usage: usage0}
	for i, r := range "!@#$%^&*()" {
		m[r] = charUsage{usage: uint8(usage1 + i), shift: true}
	}
	for _, p := range []struct {
		plain, shifted rune
		usage          uint8
	}{
		{'-', '_', 0x2D}, {'=', '+', 0x2E}, {'[', '{', 0x2F}, {']', '}', 0x30},
		{'\\', '|', 0x31}, {';', ':', 0x33}, {'\'', '"', 0x34}, {'`', '~', 0x35},
		{',', '<', 0x36}, {'.', '>', 0x37}, {'/', '?', 0x38},
	} {
		m[p.plain] = charUsage{usage: p.usage}
		m[p.shifted] = charUsage{usage: p.usage, shift: true}
	}
	m[' '] = charUsage{usage: usageSpace}
	m['\n'] = charUsage{usage: usageEnter}
	m['\r'] = charUsage{usage: usageEnter}
	m['\t'] = charUsage{usage: usageTab}
	return m
}

// Key is a resolved key name: either a modifier bit or a usage, optionally
// with Shift.
type Key struct {
	Modifier uint8
	Usage    uint8
	Shift    bool
}

// LookupKey resolves a key name as written in binding files. Single
// characters map to their US layout usage; longer names are matched without
// regard to case.
func LookupKey(name string) (Key, error) {
	if r := []rune(name); len(r) == 1 {
		if cu, ok := charUsages[r[0]]; ok {
			return Key{Usage: cu.usage, Shift: cu.shift}, nil
		}
		return Key{}, fmt.Errorf("no usage for character %q", name)
	}
	lower := strings.ToLower(name)
	if m, ok := modifierNames[lower]; ok {
		return Key{Modifier: m}, nil
	}
	if u, ok := namedUsages[lower]; ok {
		return Key{Usage: u}, nil
	}
	var n int
	if _, err := fmt.Sscanf(lower, "f%d", &n); err == nil && fmt.Sprintf("f%d", n) == lower {
		switch {
		case n >= 1 && n <= 12:
			return Key{Usage: uint8(usageF1 + n - 1)}, nil
		case n >= 13 && n <= 24:
			return Key{Usage: uint8(usageF13 + n - 13)}, nil
		}
	}
	return Key{}, fmt.Errorf("unknown key %q", name)
}

// KeyboardReport is the keyboard input state: a modifier byte and a bitmap
// of pressed usages.
type KeyboardReport struct {
	Modifiers uint8
	Keys      [32]uint8
}

// Press sets the bit for usage.
func (r *KeyboardReport) Press(usage uint8) { r.Keys[usage/8] |= 1 << (usage % 8) }

// Release clears the bit for usage.
func (r *KeyboardReport) Release(usage uint8) { r.Keys[usage/8] &^= 1 << (usage % 8) }

// Pressed reports whether usage is held.
func (r *KeyboardReport) Pressed(usage uint8) bool { return r.Keys[usage/8]&(1<<(usage%8)) != 0 }

// MarshalBinary encodes the report as modifiers, key count and the pressed
// usages in ascending order.
func (r *KeyboardReport) MarshalBinary() ([]byte, error) {
	b := []byte{r.Modifiers, 0}
	for u := 0; u < 256; u++ {
		if r.Pressed(uint8(u)) {
			b = append(b, uint8(u))
		}
	}
	b[1] = uint8(len(b) - 2)
	return b, nil
}

// MouseReport is a relative mouse input report.
type MouseReport struct {
	Buttons uint8
	DX, DY  int16
	Wheel   int16
	Pan     int16
}

// MarshalBinary encodes the report as 9 bytes: buttons, then DX, DY, Wheel
// and Pan as little-endian int16.
func (m *MouseReport) MarshalBinary() ([]byte, error) {
	b := make([]byte, 9)
	b[0] = m.Buttons
	binary.LittleEndian.PutUint16(b[1:], uint16(m.DX))
	binary.LittleEndian.PutUint16(b[3:], uint16(m.DY))
	binary.LittleEndian.PutUint16(b[5:], uint16(m.Wheel))
	binary.LittleEndian.PutUint16(b[7:], uint16(m.Pan))
	return b, nil
}
