// Package config holds the user-facing settings of the engine and keeps the
// look-to-scroll settings current while the settings file changes.
package config

import (
	"fmt"
	"time"

	"github.com/Alia5/gazekey/scroll"
)

// Scroll are the look-to-scroll flags.
type Scroll struct {
	BoundsMode                       string        `help:"Region scrolled within: screen-centred, screen-point, window, subwindow or custom" default:"screen-centred" enum:"screen-centred,screen-point,window,subwindow,custom" env:"GAZEKEY_SCROLL_BOUNDS_MODE"`
	Mode                             string        `help:"Scroll axes: horizontal, vertical, cross or free" default:"free" enum:"horizontal,vertical,cross,free" env:"GAZEKEY_SCROLL_MODE"`
	Speed                            string        `help:"Scroll speed: slow, medium or fast" default:"medium" enum:"slow,medium,fast" env:"GAZEKEY_SCROLL_SPEED"`
	DeadzoneWidth                    float64       `help:"Width of the deadzone around the centre, in pixels" default:"120"`
	DeadzoneHeight                   float64       `help:"Height of the deadzone around the centre, in pixels" default:"120"`
	BringWindowToFront               bool          `help:"Bring the target window to the front when scrolling starts" default:"true" negatable:""`
	CentrePointer                    bool          `help:"Move the pointer to the centre when scrolling starts" default:"true" negatable:""`
	ResumeAfterChoosingPoint         bool          `help:"Resume scrolling after a point action completes" default:"true" negatable:""`
	ResumeDelay                      time.Duration `help:"Pause before scrolling resumes after a point action" default:"200ms"`
	DeactivateUponSwitchingKeyboards bool          `help:"Stop scrolling when the keyboard layout changes"`
	SettingsFile                     string        `help:"Settings file watched for live changes (json, yaml or toml)" type:"path" env:"GAZEKEY_SETTINGS_FILE"`
}

// Settings converts the flags to scroll settings.
func (s Scroll) Settings() (scroll.Settings, error) {
	out := scroll.Settings{
		DeadzoneWidth:                    s.DeadzoneWidth,
		DeadzoneHeight:                   s.DeadzoneHeight,
		BringWindowToFront:               s.BringWindowToFront,
		CentrePointer:                    s.CentrePointer,
		ResumeAfterChoosingPoint:         s.ResumeAfterChoosingPoint,
		ResumeDelay:                      s.ResumeDelay,
		DeactivateUponSwitchingKeyboards: s.DeactivateUponSwitchingKeyboards,
	}
	var err error
	if out.BoundsMode, err = scroll.ParseBoundsMode(s.BoundsMode); err != nil {
		return scroll.Settings{}, err
	}
	if out.Mode, err = scroll.ParseMode(s.Mode); err != nil {
		return scroll.Settings{}, err
	}
	if out.Speed, err = scroll.ParseSpeed(s.Speed); err != nil {
		return scroll.Settings{}, err
	}
	if err := validate(out); err != nil {
		return scroll.Settings{}, err
	}
	return out, nil
}

func validate(s scroll.Settings) error {
	if s.DeadzoneWidth < 0 || s.DeadzoneHeight < 0 {
		return fmt.Errorf("deadzone must not be negative, got %gx%g", s.DeadzoneWidth, s.DeadzoneHeight)
	}
	if s.ResumeDelay < 0 {
		return fmt.Errorf("resume delay must not be negative, got %s", s.ResumeDelay)
	}
	return nil
}

// Output selects and configures where simulated input goes.
type Output struct {
	Backend  string        `help:"Output backend: viiper or log" default:"viiper" enum:"viiper,log" env:"GAZEKEY_OUTPUT"`
	Addr     string        `help:"VIIPER API server address" default:"localhost:3242" env:"GAZEKEY_VIIPER_ADDR"`
	Password string        `help:"VIIPER API server password" env:"GAZEKEY_VIIPER_PASSWORD"`
	BusID    uint32        `help:"VIIPER bus to attach devices to (0 picks or creates one)" default:"0"`
	KeyDelay time.Duration `help:"Delay between press and release when typing text" default:"8ms"`
}

// Display selects the window system integration.
type Display struct {
	X11    bool   `name:"x11" help:"Resolve windows and warp the pointer through X11" default:"true" negatable:""`
	Name   string `help:"X display name (defaults to $DISPLAY)" env:"DISPLAY"`
	Window uint64 `help:"X window id of the keyboard, never chosen as a scroll target" env:"GAZEKEY_WINDOW"`
	// Screen is used as the primary screen when X11 is off.
	ScreenWidth  float64 `help:"Screen width when X11 is not used" default:"1920"`
	ScreenHeight float64 `help:"Screen height when X11 is not used" default:"1080"`
}

// Plugins configures the Lua plugin host.
type Plugins struct {
	Enabled bool          `help:"Allow key scripts to run Lua plugins" negatable:""`
	Dir     string        `help:"Directory holding <name>.lua plugins" type:"path" default:"plugins"`
	Timeout time.Duration `help:"Upper bound for a single plugin call" default:"10s"`
}

// Interpreter tunes script execution.
type Interpreter struct {
	PollInterval time.Duration `help:"Interval at which suspended scripts poll" default:"10ms"`
	LoopThrottle time.Duration `help:"Pause between iterations of an endless loop without waits" default:"500ms"`
	DefaultWait  time.Duration `help:"Wait used when a wait value cannot be parsed" default:"500ms"`
}
