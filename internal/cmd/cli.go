// Package cmd holds the command line interface.
package cmd

// Log configures logging for every command.
type Log struct {
	Level   string `help:"Log level: trace, debug, info, warn or error" default:"info" env:"GAZEKEY_LOG_LEVEL"`
	File    string `help:"Also write logs to this file" type:"path" env:"GAZEKEY_LOG_FILE"`
	RawFile string `help:"Write every report sent to a virtual device to this file" type:"path"`
}

// CLI is the root of the command line.
type CLI struct {
	Config string `help:"Configuration file (JSON, YAML or TOML)" type:"path" env:"GAZEKEY_CONFIG"`
	Log    Log    `embed:"" prefix:"log."`

	Run       Run           `cmd:"" help:"Run the interaction core"`
	ConfigCmd ConfigCommand `cmd:"" name:"config" help:"Configuration helpers"`
	Script    ScriptCommand `cmd:"" help:"Key binding file helpers"`
	Install   Install       `cmd:"" help:"Install gazekey as a systemd user service"`
	Uninstall Uninstall     `cmd:"" help:"Remove the systemd user service"`
}
