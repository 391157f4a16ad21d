package command_test

import (
	"strings"
	"testing"
	"time"

	"github.com/Alia5/gazekey/command"
	"github.com/Alia5/gazekey/keystate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlBindings = `
keys:
  - key: K
    lockDownDelay: 300ms
    commands:
      - loop: 3
        body:
          - text: a
      - wait: 100
      - keyDown: LeftShift
      - function: fn:LookToScrollActive
      - changeKeyboard: Numbers
        replace: true
      - plugin:
          name: echo
          method: run
          args:
            mode: upper
families:
  - parent: K
    child: LeftShift
groups:
  shifts: [LeftShift, RightShift]
pressable: [K]
lockable: [K, LeftShift]
nonRepeatable: ["fn:Sleep", MouseMagnifier]
`

func TestDecodeBindingsYAML(t *testing.T) {
	b, err := command.DecodeBindings(strings.NewReader(yamlBindings), "yaml")
	require.NoError(t, err)

	k := keystate.Character("K")
	shift := keystate.Character("LeftShift")
	require.Len(t, b.Keys, 1)
	assert.Equal(t, 300*time.Millisecond, b.Keys[0].LockDownDelay)

	script, ok := b.Script(k)
	require.True(t, ok)
	assert.Equal(t, []command.KeyCommand{
		command.Loop(3, command.Text("a")),
		command.Wait(100),
		command.KeyDown(shift),
		command.Function(keystate.LookToScrollActive),
		command.ChangeKeyboard("Numbers", true),
		command.Plugin(command.PluginRef{Name: "echo", Method: "run", Args: map[string]string{"mode": "upper"}}),
	}, script)

	assert.Equal(t, []keystate.Relation{{Parent: k, Child: shift}}, b.Family)
	assert.Equal(t, []keystate.KeyValue{shift, keystate.Character("RightShift")}, b.Groups["SHIFTS"])
	assert.Equal(t, []keystate.KeyValue{k}, b.Pressable)
	assert.Equal(t, []keystate.FunctionKey{keystate.Sleep, keystate.MouseMagnifier}, b.NonRepeatable)
}

func TestDecodeBindingsTOML(t *testing.T) {
	doc := `
pressable = ["K"]

[[keys]]
key = "K"

[[keys.commands]]
loop = 2

[[keys.commands.body]]
keyToggle = "fn:Sleep"

[[keys.commands]]
keyUp = "shifts"
`
	b, err := command.DecodeBindings(strings.NewReader(doc), "toml")
	require.NoError(t, err)
	script, ok := b.Script(keystate.Character("K"))
	require.True(t, ok)
	assert.Equal(t, []command.KeyCommand{
		command.Loop(2, command.KeyToggle(keystate.Function(keystate.Sleep))),
		command.KeyUp(keystate.Character("shifts")),
	}, script)
}

func TestDecodeBindingsJSON(t *testing.T) {
	doc := `{"keys":[{"key":"fn:Sleep","commands":[{"wait":"soon"},{"text":""}]}]}`
	b, err := command.DecodeBindings(strings.NewReader(doc), "json")
	require.NoError(t, err)
	script, ok := b.Script(keystate.Function(keystate.Sleep))
	require.True(t, ok)
	assert.Equal(t, []command.KeyCommand{
		{Kind: command.KindWait, Value: "soon"},
		command.Text(""),
	}, script)
}

func TestDecodeBindingsErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "two commands in one entry",
			doc:     `{"keys":[{"key":"a","commands":[{"text":"a","wait":1}]}]}`,
			wantErr: "keys[0].commands[0]: expected exactly one command, found 2",
		},
		{
			name:    "empty entry",
			doc:     `{"keys":[{"key":"a","commands":[{}]}]}`,
			wantErr: "expected exactly one command, found 0",
		},
		{
			name:    "bad key",
			doc:     `{"keys":[{"key":"fn:"}]}`,
			wantErr: `keys[0]: invalid key "fn:"`,
		},
		{
			name:    "bad delay",
			doc:     `{"keys":[{"key":"a","lockDownDelay":"soon"}]}`,
			wantErr: "keys[0]: lockDownDelay",
		},
		{
			name:    "negative loop",
			doc:     `{"keys":[{"key":"a","commands":[{"loop":-1}]}]}`,
			wantErr: "negative loop count",
		},
		{
			name:    "unknown field",
			doc:     `{"keys":[{"key":"a","commands":[{"jump":1}]}]}`,
			wantErr: "decode bindings",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := command.DecodeBindings(strings.NewReader(tt.doc), "json")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAny(t *testing.T) {
	cmds := []command.KeyCommand{
		command.Text("a"),
		command.Loop(0, command.Loop(2, command.ChangeKeyboard("Alpha", false))),
	}
	assert.True(t, command.Any(cmds, func(c command.KeyCommand) bool { return c.Kind == command.KindChangeKeyboard }))
	assert.False(t, command.Any(cmds, func(c command.KeyCommand) bool { return c.Kind == command.KindWait }))
}
