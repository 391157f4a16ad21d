package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"

	"github.com/Alia5/gazekey/scroll"
)

// fileSettings is the settings file document. Absent fields keep the
// values given on the command line.
type fileSettings struct {
	BoundsMode                       *string  `json:"boundsMode" yaml:"boundsMode" toml:"boundsMode"`
	Mode                             *string  `json:"mode" yaml:"mode" toml:"mode"`
	Speed                            *string  `json:"speed" yaml:"speed" toml:"speed"`
	DeadzoneWidth                    *float64 `json:"deadzoneWidth" yaml:"deadzoneWidth" toml:"deadzoneWidth"`
	DeadzoneHeight                   *float64 `json:"deadzoneHeight" yaml:"deadzoneHeight" toml:"deadzoneHeight"`
	BringWindowToFront               *bool    `json:"bringWindowToFront" yaml:"bringWindowToFront" toml:"bringWindowToFront"`
	CentrePointer                    *bool    `json:"centrePointer" yaml:"centrePointer" toml:"centrePointer"`
	ResumeAfterChoosingPoint         *bool    `json:"resumeAfterChoosingPoint" yaml:"resumeAfterChoosingPoint" toml:"resumeAfterChoosingPoint"`
	ResumeDelay                      *string  `json:"resumeDelay" yaml:"resumeDelay" toml:"resumeDelay"`
	DeactivateUponSwitchingKeyboards *bool    `json:"deactivateUponSwitchingKeyboards" yaml:"deactivateUponSwitchingKeyboards" toml:"deactivateUponSwitchingKeyboards"`
}

func (f fileSettings) apply(s scroll.Settings) (scroll.Settings, error) {
	var err error
	if f.BoundsMode != nil {
		if s.BoundsMode, err = scroll.ParseBoundsMode(*f.BoundsMode); err != nil {
			return s, err
		}
	}
	if f.Mode != nil {
		if s.Mode, err = scroll.ParseMode(*f.Mode); err != nil {
			return s, err
		}
	}
	if f.Speed != nil {
		if s.Speed, err = scroll.ParseSpeed(*f.Speed); err != nil {
			return s, err
		}
	}
	if f.ResumeDelay != nil {
		if s.ResumeDelay, err = time.ParseDuration(*f.ResumeDelay); err != nil {
			return s, fmt.Errorf("resumeDelay: %w", err)
		}
	}
	setIf(&s.DeadzoneWidth, f.DeadzoneWidth)
	setIf(&s.DeadzoneHeight, f.DeadzoneHeight)
	setIf(&s.BringWindowToFront, f.BringWindowToFront)
	setIf(&s.CentrePointer, f.CentrePointer)
	setIf(&s.ResumeAfterChoosingPoint, f.ResumeAfterChoosingPoint)
	setIf(&s.DeactivateUponSwitchingKeyboards, f.DeactivateUponSwitchingKeyboards)
	return s, validate(s)
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// DecodeSettings overlays the settings document in data onto base. The
// format is "json", "yaml" or "toml".
func DecodeSettings(data []byte, format string, base scroll.Settings) (scroll.Settings, error) {
	var f fileSettings
	var err error
	switch format {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &f)
	case "toml":
		err = toml.Unmarshal(data, &f)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&f)
	}
	if err != nil {
		return base, fmt.Errorf("decode settings: %w", err)
	}
	return f.apply(base)
}

func formatOf(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// Live is a scroll.SettingsSource whose value follows a settings file.
type Live struct {
	base   scroll.Settings
	cur    atomic.Pointer[scroll.Settings]
	logger *slog.Logger
}

var _ scroll.SettingsSource = (*Live)(nil)

// NewLive starts from base, the command line settings.
func NewLive(base scroll.Settings, logger *slog.Logger) *Live {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Live{base: base, logger: logger}
	l.cur.Store(&base)
	return l
}

// ScrollSettings returns the current snapshot.
func (l *Live) ScrollSettings() scroll.Settings { return *l.cur.Load() }

// Load reads path and replaces the current settings. On error the current
// settings stay in place.
func (l *Live) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s, err := DecodeSettings(data, formatOf(path), l.base)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	l.cur.Store(&s)
	return nil
}

// Watch loads path and reloads it whenever it is written, until ctx ends.
// The directory is watched so editors that replace the file are followed.
func (l *Live) Watch(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := l.Load(abs); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return err
	}
	l.logger.Info("Watching settings file", "path", abs)

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if err := l.Load(abs); err != nil {
					l.logger.Warn("Settings reload failed", "path", abs, "error", err)
					continue
				}
				s := l.ScrollSettings()
				l.logger.Info("Settings reloaded", "mode", s.Mode, "speed", s.Speed, "bounds", s.BoundsMode)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Warn("Settings watcher error", "error", err)
			}
		}
	}()
	return nil
}
