package scroll

import (
	"fmt"
	"strings"
	"time"
)

// BoundsMode selects the region look-to-scroll operates within.
type BoundsMode uint8

const (
	ScreenCentred BoundsMode = iota
	ScreenPoint
	Window
	Subwindow
	Custom
)

var boundsModeNames = map[BoundsMode]string{
	ScreenCentred: "screen-centred",
	ScreenPoint:   "screen-point",
	Window:        "window",
	Subwindow:     "subwindow",
	Custom:        "custom",
}

func (m BoundsMode) String() string {
	if s, ok := boundsModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("BoundsMode(%d)", uint8(m))
}

// ParseBoundsMode accepts the names printed by BoundsMode.String.
func ParseBoundsMode(s string) (BoundsMode, error) {
	for m, name := range boundsModeNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown bounds mode %q", s)
}

// usesWindow reports whether the mode tracks a target window.
func (m BoundsMode) usesWindow() bool { return m == Window || m == Subwindow }

// Mode selects the axes that scroll.
type Mode uint8

const (
	Horizontal Mode = iota
	Vertical
	Cross
	Free
)

var modeNames = map[Mode]string{
	Horizontal: "horizontal",
	Vertical:   "vertical",
	Cross:      "cross",
	Free:       "free",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown scroll mode %q", s)
}

// Speed is a scroll speed preset.
type Speed uint8

const (
	Slow Speed = iota
	Medium
	Fast
)

var speedNames = map[Speed]string{
	Slow:   "slow",
	Medium: "medium",
	Fast:   "fast",
}

func (s Speed) String() string {
	if n, ok := speedNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Speed(%d)", uint8(s))
}

func ParseSpeed(s string) (Speed, error) {
	for sp, name := range speedNames {
		if strings.EqualFold(s, name) {
			return sp, nil
		}
	}
	return 0, fmt.Errorf("unknown scroll speed %q", s)
}

// Values returns the base speed (clicks per second) and the acceleration
// (clicks per second per pixel beyond the deadzone) of the preset. Both are
// the same number for every preset.
func (s Speed) Values() (base, acceleration float64) {
	switch s {
	case Fast:
		return 0.3, 0.3
	case Medium:
		return 0.1, 0.1
	default:
		return 0.03, 0.03
	}
}

// DefaultResumeDelay is the pause before a suspended session resumes.
const DefaultResumeDelay = 200 * time.Millisecond

// Settings configure look-to-scroll. BoundsMode and the deadzone are frozen
// when a session starts; Mode and Speed are read on every sample.
type Settings struct {
	BoundsMode BoundsMode
	Mode       Mode
	Speed      Speed

	// DeadzoneWidth and DeadzoneHeight are the full size of the deadzone
	// rectangle around the centre.
	DeadzoneWidth  float64
	DeadzoneHeight float64

	BringWindowToFront               bool
	CentrePointer                    bool
	ResumeAfterChoosingPoint         bool
	ResumeDelay                      time.Duration
	DeactivateUponSwitchingKeyboards bool
}

// DefaultSettings mirror the stock look-to-scroll configuration.
func DefaultSettings() Settings {
	return Settings{
		BoundsMode:               ScreenCentred,
		Mode:                     Free,
		Speed:                    Medium,
		DeadzoneWidth:            120,
		DeadzoneHeight:           120,
		BringWindowToFront:       true,
		CentrePointer:            true,
		ResumeAfterChoosingPoint: true,
		ResumeDelay:              DefaultResumeDelay,
	}
}

// ScrollSettings lets a fixed Settings value serve as a SettingsSource.
func (s Settings) ScrollSettings() Settings { return s }

// SettingsSource supplies the current settings.
type SettingsSource interface {
	ScrollSettings() Settings
}
