package cmd

import (
	"fmt"
	"log/slog"

	"github.com/Alia5/gazekey/command"
	"github.com/Alia5/gazekey/geom"
	"github.com/Alia5/gazekey/internal/app"
	"github.com/Alia5/gazekey/keystate"
	"github.com/Alia5/gazekey/output"
	"github.com/Alia5/gazekey/plugin"
)

// ScriptCommand groups key binding subcommands.
type ScriptCommand struct {
	Check ScriptCheck `cmd:"" help:"Check a key binding file for unknown functions and missing plugins"`
}

// ScriptCheck loads a binding file and reports what would fail at run time.
type ScriptCheck struct {
	File      string `arg:"" help:"Key binding file (JSON, YAML or TOML)" type:"existingfile"`
	PluginDir string `help:"Directory holding <name>.lua plugins" type:"path" default:"plugins"`
}

// Run is called by Kong when the script check command is executed.
func (c *ScriptCheck) Run(logger *slog.Logger) error {
	bindings, err := command.LoadBindings(c.File)
	if err != nil {
		return err
	}

	ls := output.LogSink{Logger: slog.New(slog.DiscardHandler)}
	engine, err := app.New(app.Config{
		Bindings: bindings,
		Sink:     ls,
		Resolver: app.ScreenResolver{Screen: geom.Rect{W: 1, H: 1}},
	}, slog.New(slog.DiscardHandler))
	if err != nil {
		return err
	}
	host := plugin.New(plugin.Config{Dir: c.PluginDir, Enabled: true}, ls, logger)

	problems := checkBindings(bindings, engine.Functions(), host.Available)
	for _, p := range problems {
		logger.Warn(p)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s: %d problem(s)", c.File, len(problems))
	}
	logger.Info("Key bindings ok", "file", c.File, "keys", len(bindings.Keys))
	return nil
}

func checkBindings(b *command.Bindings, functions []keystate.FunctionKey, available func(string) bool) []string {
	known := make(map[keystate.FunctionKey]bool, len(functions))
	for _, f := range functions {
		known[f] = true
	}

	var problems []string
	for _, binding := range b.Keys {
		key := binding.Key
		if key.Kind == keystate.KindFunction && len(binding.Commands) == 0 && !known[key.Func] {
			problems = append(problems, fmt.Sprintf("key %s: unknown function %q", key, key.Func))
		}
		command.Walk(binding.Commands, func(cmd command.KeyCommand) bool {
			switch cmd.Kind {
			case command.KindFunction:
				if !known[keystate.FunctionKey(cmd.Value)] {
					problems = append(problems, fmt.Sprintf("key %s: unknown function %q", key, cmd.Value))
				}
			case command.KindPlugin:
				if !available(cmd.Plugin.Name) {
					problems = append(problems, fmt.Sprintf("key %s: plugin %q not found", key, cmd.Plugin.Name))
				}
			}
			return true
		})
	}
	return problems
}
