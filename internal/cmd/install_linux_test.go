//go:build linux

package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemdUnitContent(t *testing.T) {
	unit := systemdUnitContent("/opt/gazekey/gazekey", []string{"/home/me/keys.yaml", "--output.backend=log"})
	assert.Contains(t, unit, `ExecStart="/opt/gazekey/gazekey" run "/home/me/keys.yaml" "--output.backend=log"`)
	assert.Contains(t, unit, "WorkingDirectory=/opt/gazekey\n")
	assert.Contains(t, unit, "WantedBy=graphical-session.target")
}

func TestServicePath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/home/me/.config")
	p, err := servicePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/me/.config", "systemd", "user", "gazekey.service"), p)
}
