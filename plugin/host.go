// Package plugin runs Lua plugins invoked from key scripts.
//
// A plugin is a file <dir>/<name>.lua defining global functions. A script
// calls one of them with two tables: the context (for example
// scratchpadText) and the arguments from the binding file. The gazekey
// table gives plugins access to simulated input.
package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/Alia5/gazekey/command"
)

// DefaultTimeout bounds a single plugin call.
const DefaultTimeout = 10 * time.Second

// Output is the simulated input exposed to plugins.
type Output interface {
	PressKey(ctx context.Context, name string) error
	ReleaseKey(ctx context.Context, name string) error
	TypeText(ctx context.Context, text string) error
}

// Config controls where plugins are found and whether they may run.
type Config struct {
	Dir     string
	Enabled bool
	Timeout time.Duration
}

// Host loads and runs plugins. Every call gets a fresh Lua state.
type Host struct {
	cfg    Config
	out    Output
	logger *slog.Logger
}

// New creates a host. A nil logger uses slog.Default().
func New(cfg Config, out Output, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Host{cfg: cfg, out: out, logger: logger}
}

func (h *Host) path(name string) (string, bool) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", false
	}
	return filepath.Join(h.cfg.Dir, name+".lua"), true
}

// Available reports whether a plugin file exists for name.
func (h *Host) Available(name string) bool {
	p, ok := h.path(name)
	if !ok {
		return false
	}
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}

// Run calls ref.Method of plugin ref.Name with pctx and ref.Args.
func (h *Host) Run(ctx context.Context, pctx map[string]string, ref command.PluginRef) error {
	if !h.cfg.Enabled {
		return fmt.Errorf("plugin %q: %w", ref.Name, ErrDisabled)
	}
	if !h.Available(ref.Name) {
		return fmt.Errorf("plugin %q: %w", ref.Name, ErrNotFound)
	}
	p, _ := h.path(ref.Name)

	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	L := newState()
	defer L.Close()
	L.SetContext(ctx)
	h.registerAPI(ctx, L, ref.Name)

	if err := L.DoFile(p); err != nil {
		return fmt.Errorf("load plugin %q: %w", ref.Name, err)
	}
	fn := L.GetGlobal(ref.Method)
	if fn.Type() != lua.LTFunction {
		return fmt.Errorf("plugin %q method %q: %w", ref.Name, ref.Method, ErrMethodNotFound)
	}

	h.logger.Debug("Running plugin", "plugin", ref.Name, "method", ref.Method)
	start := time.Now()
	err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, stringTable(L, pctx), stringTable(L, ref.Args))
	if err != nil {
		return fmt.Errorf("plugin %q method %q: %w", ref.Name, ref.Method, err)
	}
	h.logger.Debug("Plugin finished", "plugin", ref.Name, "method", ref.Method, "took", time.Since(start))
	return nil
}

// newState opens only the libraries without file, process or module
// loading access.
func newState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

func stringTable(L *lua.LState, m map[string]string) *lua.LTable {
	t := L.CreateTable(0, len(m))
	for k, v := range m {
		t.RawSetString(k, lua.LString(v))
	}
	return t
}

// registerAPI installs the gazekey table.
func (h *Host) registerAPI(ctx context.Context, L *lua.LState, name string) {
	logger := h.logger.With("plugin", name)
	call := func(op func(Output, context.Context, string) error) lua.LGFunction {
		return func(L *lua.LState) int {
			arg := L.CheckString(1)
			if h.out == nil {
				L.RaiseError("no output configured")
				return 0
			}
			if err := op(h.out, ctx, arg); err != nil {
				L.RaiseError("%s", err.Error())
			}
			return 0
		}
	}

	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"press":   call(Output.PressKey),
		"release": call(Output.ReleaseKey),
		"type":    call(Output.TypeText),
		"sleep": func(L *lua.LState) int {
			d := time.Duration(L.CheckInt(1)) * time.Millisecond
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				L.RaiseError("%s", ctx.Err().Error())
			case <-t.C:
			}
			return 0
		},
		"log": func(L *lua.LState) int {
			logger.Info(L.CheckString(1))
			return 0
		},
	})
	L.SetGlobal("gazekey", mod)
}
