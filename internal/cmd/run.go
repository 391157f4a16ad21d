package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/Alia5/gazekey/bounds"
	"github.com/Alia5/gazekey/bounds/x11"
	"github.com/Alia5/gazekey/command"
	"github.com/Alia5/gazekey/geom"
	"github.com/Alia5/gazekey/internal/app"
	"github.com/Alia5/gazekey/internal/config"
	"github.com/Alia5/gazekey/internal/input"
	"github.com/Alia5/gazekey/internal/log"
	"github.com/Alia5/gazekey/output"
	"github.com/Alia5/gazekey/output/viiper"
	"github.com/Alia5/gazekey/plugin"
)

// Run reads input events and drives the interaction core.
type Run struct {
	Bindings string `arg:"" help:"Key binding file (JSON, YAML or TOML)" type:"existingfile"`
	Listen   string `help:"Accept input event connections on this TCP address instead of reading stdin" env:"GAZEKEY_LISTEN"`
	Feedback string `help:"Write frontend feedback to this file, '-' for stdout (then send logs to --log.file)"`

	Scroll      config.Scroll      `embed:"" prefix:"scroll."`
	Output      config.Output      `embed:"" prefix:"output."`
	Display     config.Display     `embed:"" prefix:"display."`
	Plugins     config.Plugins     `embed:"" prefix:"plugins."`
	Interpreter config.Interpreter `embed:"" prefix:"interpreter."`
}

// Run is called by Kong when the run command is executed.
func (r *Run) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := r.Start(ctx, logger, rawLogger, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Start runs until ctx ends or the input ends.
func (r *Run) Start(ctx context.Context, logger *slog.Logger, rawLogger log.RawLogger, stdin io.Reader, stdout io.Writer) error {
	bindings, err := command.LoadBindings(r.Bindings)
	if err != nil {
		return err
	}
	logger.Info("Loaded key bindings", "file", r.Bindings, "keys", len(bindings.Keys))

	base, err := r.Scroll.Settings()
	if err != nil {
		return fmt.Errorf("scroll settings: %w", err)
	}
	live := config.NewLive(base, logger.With("component", "settings"))
	if r.Scroll.SettingsFile != "" {
		if err := live.Watch(ctx, r.Scroll.SettingsFile); err != nil {
			logger.Warn("Unable to watch settings file, using command line settings", "path", r.Scroll.SettingsFile, "error", err)
		}
	}

	var resolver bounds.Resolver = app.ScreenResolver{Screen: geom.Rect{W: r.Display.ScreenWidth, H: r.Display.ScreenHeight}}
	var xr *x11.Resolver
	if r.Display.X11 {
		xr, err = x11.Connect(r.Display.Name, logger.With("component", "x11"))
		if err != nil {
			logger.Warn("X11 unavailable, only screen bounds modes will work", "error", err)
			xr = nil
		} else {
			defer xr.Close()
			xr.SetSelf(bounds.Handle(r.Display.Window))
			resolver = xr
		}
	}

	sink, closeSink, err := r.sink(ctx, logger, rawLogger, xr)
	if err != nil {
		return err
	}
	defer closeSink()

	var feedback io.Writer
	switch r.Feedback {
	case "":
	case "-":
		feedback = stdout
	default:
		f, err := os.Create(r.Feedback)
		if err != nil {
			return fmt.Errorf("open feedback file: %w", err)
		}
		defer f.Close()
		feedback = f
	}

	host := plugin.New(plugin.Config{
		Dir:     r.Plugins.Dir,
		Enabled: r.Plugins.Enabled,
		Timeout: r.Plugins.Timeout,
	}, sink, logger.With("component", "plugin"))

	engine, err := app.New(app.Config{
		Bindings:    bindings,
		Sink:        sink,
		Resolver:    resolver,
		Settings:    live,
		Plugins:     host,
		Feedback:    feedback,
		Self:        bounds.Handle(r.Display.Window),
		Interpreter: r.Interpreter,
	}, logger)
	if err != nil {
		return err
	}

	events, err := r.events(ctx, logger, stdin)
	if err != nil {
		return err
	}
	return engine.Run(ctx, events)
}

func (r *Run) sink(ctx context.Context, logger *slog.Logger, rawLogger log.RawLogger, xr *x11.Resolver) (output.Sink, func(), error) {
	mux := &output.Mux{}
	if xr != nil {
		mux.Windows = xr
	}

	switch r.Output.Backend {
	case "log":
		ls := output.LogSink{Logger: logger.With("component", "output")}
		mux.Keyboard, mux.Pointer = ls, ls
		if xr == nil {
			mux.Windows = ls
		}
		return mux, func() {}, nil
	case "viiper":
		cfg := viiper.Config{
			Addr:      r.Output.Addr,
			Password:  r.Output.Password,
			BusID:     r.Output.BusID,
			KeyDelay:  r.Output.KeyDelay,
			ReportLog: rawLogger.Log,
		}
		if xr != nil {
			cfg.PointerPosition = xr.PointerPosition
		}
		b, err := viiper.Connect(ctx, cfg, logger.With("component", "viiper"))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to VIIPER at %s: %w", r.Output.Addr, err)
		}
		mux.Keyboard, mux.Pointer = b, b
		if xr != nil {
			mux.Pointer = app.WarpPointer{Pointer: b, Warp: xr}
		}
		return mux, func() {
			if err := b.Close(); err != nil {
				logger.Warn("Failed to detach virtual devices", "error", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown output backend %q", r.Output.Backend)
	}
}

func (r *Run) events(ctx context.Context, logger *slog.Logger, stdin io.Reader) (<-chan input.Event, error) {
	if r.Listen != "" {
		l, err := input.Listen(ctx, r.Listen, logger.With("component", "input"))
		if err != nil {
			return nil, fmt.Errorf("listen for input on %s: %w", r.Listen, err)
		}
		return l.Events(), nil
	}
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		logger.Info("Reading input events from the terminal, one JSON object per line")
	}
	return input.Stream(ctx, stdin, logger.With("component", "input")), nil
}
