package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/gazekey/command"
)

type recordOutput struct {
	calls []string
	err   error
}

func (r *recordOutput) PressKey(_ context.Context, name string) error {
	r.calls = append(r.calls, "press:"+name)
	return r.err
}

func (r *recordOutput) ReleaseKey(_ context.Context, name string) error {
	r.calls = append(r.calls, "release:"+name)
	return r.err
}

func (r *recordOutput) TypeText(_ context.Context, text string) error {
	r.calls = append(r.calls, "type:"+text)
	return r.err
}

func writePlugin(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".lua"), []byte(src), 0o644))
}

func newHost(t *testing.T, out Output) (*Host, string) {
	dir := t.TempDir()
	return New(Config{Dir: dir, Enabled: true, Timeout: time.Second}, out, nil), dir
}

func TestRunCallsMethodWithContextAndArgs(t *testing.T) {
	out := &recordOutput{}
	h, dir := newHost(t, out)
	writePlugin(t, dir, "shout", `
function upper(ctx, args)
  gazekey.press("LeftShift")
  gazekey.type(string.upper(ctx.scratchpadText) .. args.suffix)
  gazekey.release("LeftShift")
end
`)

	err := h.Run(context.Background(), map[string]string{"scratchpadText": "hello"},
		command.PluginRef{Name: "shout", Method: "upper", Args: map[string]string{"suffix": "!"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"press:LeftShift", "type:HELLO!", "release:LeftShift"}, out.calls)
}

func TestRunErrors(t *testing.T) {
	h, dir := newHost(t, &recordOutput{})
	writePlugin(t, dir, "broken", `function go_wrong(ctx, args) error("boom") end`)
	writePlugin(t, dir, "syntax", `function (`)

	tests := []struct {
		name   string
		ref    command.PluginRef
		target error
		msg    string
	}{
		{"missing plugin", command.PluginRef{Name: "nope", Method: "x"}, ErrNotFound, ""},
		{"path escape", command.PluginRef{Name: "../broken", Method: "go_wrong"}, ErrNotFound, ""},
		{"missing method", command.PluginRef{Name: "broken", Method: "other"}, ErrMethodNotFound, ""},
		{"runtime error", command.PluginRef{Name: "broken", Method: "go_wrong"}, nil, "boom"},
		{"syntax error", command.PluginRef{Name: "syntax", Method: "x"}, nil, "load plugin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Run(context.Background(), nil, tt.ref)
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
			if tt.msg != "" {
				assert.ErrorContains(t, err, tt.msg)
			}
		})
	}
}

func TestRunDisabled(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "p", `function m() end`)
	h := New(Config{Dir: dir}, &recordOutput{}, nil)
	assert.ErrorIs(t, h.Run(context.Background(), nil, command.PluginRef{Name: "p", Method: "m"}), ErrDisabled)
}

func TestSandbox(t *testing.T) {
	h, dir := newHost(t, &recordOutput{})
	writePlugin(t, dir, "escape", `
function shell() os.execute("true") end
function file() io.open("/etc/passwd") end
function loader() require("os") end
function run_file() dofile("/etc/passwd") end
`)
	for _, method := range []string{"shell", "file", "loader", "run_file"} {
		t.Run(method, func(t *testing.T) {
			err := h.Run(context.Background(), nil, command.PluginRef{Name: "escape", Method: method})
			assert.Error(t, err)
		})
	}
}

func TestOutputErrorRaised(t *testing.T) {
	out := &recordOutput{err: errors.New("device gone")}
	h, dir := newHost(t, out)
	writePlugin(t, dir, "p", `function m() gazekey.press("a") end`)

	err := h.Run(context.Background(), nil, command.PluginRef{Name: "p", Method: "m"})
	assert.ErrorContains(t, err, "device gone")
}

func TestCancellationStopsPlugin(t *testing.T) {
	h, dir := newHost(t, &recordOutput{})
	writePlugin(t, dir, "spin", `
function forever() while true do end end
function nap() gazekey.sleep(60000) end
`)

	for _, method := range []string{"forever", "nap"} {
		t.Run(method, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			start := time.Now()
			err := h.Run(ctx, nil, command.PluginRef{Name: "spin", Method: method})
			assert.Error(t, err)
			assert.Less(t, time.Since(start), 5*time.Second)
		})
	}
}

func TestAvailable(t *testing.T) {
	h, dir := newHost(t, nil)
	writePlugin(t, dir, "here", `function m() end`)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder.lua"), 0o755))

	assert.True(t, h.Available("here"))
	assert.False(t, h.Available("absent"))
	assert.False(t, h.Available("folder"))
	assert.False(t, h.Available(""))
}
