package cmd

import "log/slog"

// Install registers gazekey as a service started with the user session.
type Install struct {
	Args []string `arg:"" optional:"" passthrough:"" help:"Arguments passed to gazekey run (key binding file first)"`
}

// Run is called by Kong when the install command is executed.
func (i *Install) Run(logger *slog.Logger) error {
	return install(logger, i.Args)
}

// Uninstall removes the service registered by Install.
type Uninstall struct{}

// Run is called by Kong when the uninstall command is executed.
func (u *Uninstall) Run(logger *slog.Logger) error {
	return uninstall(logger)
}
