//go:build linux

package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Alia5/gazekey/internal/configpaths"
)

const serviceName = "gazekey.service"

func servicePath() (string, error) {
	dir, err := configpaths.DefaultConfigDir()
	if err != nil {
		return "", err
	}
	// DefaultConfigDir is <config>/gazekey; user units live in <config>/systemd/user.
	return filepath.Join(filepath.Dir(dir), "systemd", "user", serviceName), nil
}

func install(logger *slog.Logger, args []string) error {
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exePath); err == nil {
		exePath = resolved
	}
	path, err := servicePath()
	if err != nil {
		return err
	}

	if err := configpaths.EnsureDir(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(systemdUnitContent(exePath, args)), 0o644); err != nil {
		return err
	}

	steps := [][]string{
		{"daemon-reload"},
		{"enable", serviceName},
		{"restart", serviceName},
	}
	for _, a := range steps {
		if err := runSystemctl(a...); err != nil {
			return err
		}
	}

	logger.Info("gazekey user service installed", "path", path, "exe", exePath)
	return nil
}

func uninstall(logger *slog.Logger) error {
	path, err := servicePath()
	if err != nil {
		return err
	}

	var errs []error
	if err := runSystemctl("stop", serviceName); err != nil {
		errs = append(errs, err)
	}
	if err := runSystemctl("disable", serviceName); err != nil {
		errs = append(errs, err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	if err := runSystemctl("daemon-reload"); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	logger.Info("gazekey user service removed", "path", path)
	return nil
}

func systemdUnitContent(exePath string, args []string) string {
	cmdline := []string{strconv.Quote(exePath), "run"}
	for _, a := range args {
		cmdline = append(cmdline, strconv.Quote(a))
	}
	return fmt.Sprintf(`[Unit]
Description=gazekey interaction core
After=graphical-session.target
PartOf=graphical-session.target

[Service]
Type=simple
ExecStart=%s
WorkingDirectory=%s
Restart=on-failure

[Install]
WantedBy=graphical-session.target
`, strings.Join(cmdline, " "), filepath.Dir(exePath))
}

func runSystemctl(args ...string) error {
	cmd := exec.Command("systemctl", append([]string{"--user"}, args...)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl --user %s failed: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return nil
}
