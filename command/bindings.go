package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Alia5/gazekey/keystate"

	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"
)

// Binding attaches a script, and optionally a lock-down delay, to a key.
type Binding struct {
	Key           keystate.KeyValue
	Commands      []KeyCommand
	LockDownDelay time.Duration
}

// Bindings is the decoded content of a binding file.
type Bindings struct {
	Keys          []Binding
	Family        []keystate.Relation
	Groups        map[string][]keystate.KeyValue
	Pressable     []keystate.KeyValue
	Lockable      []keystate.KeyValue
	NonRepeatable []keystate.FunctionKey
}

// Script returns the commands bound to key.
func (b *Bindings) Script(key keystate.KeyValue) ([]KeyCommand, bool) {
	for _, k := range b.Keys {
		if k.Key == key {
			return k.Commands, len(k.Commands) > 0
		}
	}
	return nil, false
}

// StoreOptions converts the declared families, groups and latch capabilities
// into keystate options.
func (b *Bindings) StoreOptions() []keystate.Option {
	opts := []keystate.Option{
		keystate.WithFamily(b.Family...),
		keystate.WithPressable(b.Pressable...),
		keystate.WithLockable(b.Lockable...),
	}
	for name, keys := range b.Groups {
		opts = append(opts, keystate.WithGroup(name, keys...))
	}
	return opts
}

type fileBindings struct {
	Keys          []fileKey           `json:"keys" yaml:"keys" toml:"keys"`
	Families      []fileRelation      `json:"families" yaml:"families" toml:"families"`
	Groups        map[string][]string `json:"groups" yaml:"groups" toml:"groups"`
	Pressable     []string            `json:"pressable" yaml:"pressable" toml:"pressable"`
	Lockable      []string            `json:"lockable" yaml:"lockable" toml:"lockable"`
	NonRepeatable []string            `json:"nonRepeatable" yaml:"nonRepeatable" toml:"nonRepeatable"`
}

type fileKey struct {
	Key           string        `json:"key" yaml:"key" toml:"key"`
	LockDownDelay string        `json:"lockDownDelay" yaml:"lockDownDelay" toml:"lockDownDelay"`
	Commands      []fileCommand `json:"commands" yaml:"commands" toml:"commands"`
}

type fileRelation struct {
	Parent string `json:"parent" yaml:"parent" toml:"parent"`
	Child  string `json:"child" yaml:"child" toml:"child"`
}

type fileCommand struct {
	Loop           *int          `json:"loop,omitempty" yaml:"loop,omitempty" toml:"loop,omitempty"`
	Body           []fileCommand `json:"body,omitempty" yaml:"body,omitempty" toml:"body,omitempty"`
	Function       string        `json:"function,omitempty" yaml:"function,omitempty" toml:"function,omitempty"`
	ChangeKeyboard string        `json:"changeKeyboard,omitempty" yaml:"changeKeyboard,omitempty" toml:"changeKeyboard,omitempty"`
	Replace        bool          `json:"replace,omitempty" yaml:"replace,omitempty" toml:"replace,omitempty"`
	KeyDown        string        `json:"keyDown,omitempty" yaml:"keyDown,omitempty" toml:"keyDown,omitempty"`
	KeyToggle      string        `json:"keyToggle,omitempty" yaml:"keyToggle,omitempty" toml:"keyToggle,omitempty"`
	KeyUp          string        `json:"keyUp,omitempty" yaml:"keyUp,omitempty" toml:"keyUp,omitempty"`
	MoveWindow     string        `json:"moveWindow,omitempty" yaml:"moveWindow,omitempty" toml:"moveWindow,omitempty"`
	Text           *string       `json:"text,omitempty" yaml:"text,omitempty" toml:"text,omitempty"`
	Wait           any           `json:"wait,omitempty" yaml:"wait,omitempty" toml:"wait,omitempty"`
	Plugin         *filePlugin   `json:"plugin,omitempty" yaml:"plugin,omitempty" toml:"plugin,omitempty"`
}

type filePlugin struct {
	Name   string            `json:"name" yaml:"name" toml:"name"`
	Method string            `json:"method,omitempty" yaml:"method,omitempty" toml:"method,omitempty"`
	Args   map[string]string `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty"`
}

// LoadBindings reads a binding file, choosing the decoder by extension
// (.yaml/.yml, .toml, anything else JSON).
func LoadBindings(path string) (*Bindings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bindings: %w", err)
	}
	defer f.Close()
	b, err := DecodeBindings(f, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// FormatFromPath maps a file extension to a binding format name.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return "json"
	}
}

// DecodeBindings decodes a binding document in the given format ("json",
// "yaml" or "toml").
func DecodeBindings(r io.Reader, format string) (*Bindings, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read bindings: %w", err)
	}
	var raw fileBindings
	switch format {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &raw)
	case "toml":
		err = toml.Unmarshal(data, &raw)
	case "json", "":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&raw)
	default:
		return nil, fmt.Errorf("unsupported bindings format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode bindings: %w", err)
	}
	return raw.convert()
}

func (raw *fileBindings) convert() (*Bindings, error) {
	out := &Bindings{Groups: map[string][]keystate.KeyValue{}}
	var errs []error

	for i, k := range raw.Keys {
		key, err := keystate.ParseKeyValue(k.Key)
		if err != nil || key.IsZero() {
			errs = append(errs, fmt.Errorf("keys[%d]: invalid key %q", i, k.Key))
			continue
		}
		b := Binding{Key: key}
		if k.LockDownDelay != "" {
			d, err := time.ParseDuration(k.LockDownDelay)
			if err != nil {
				errs = append(errs, fmt.Errorf("keys[%d]: lockDownDelay: %w", i, err))
			}
			b.LockDownDelay = d
		}
		cmds, err := convertCommands(k.Commands, fmt.Sprintf("keys[%d].commands", i))
		if err != nil {
			errs = append(errs, err)
		}
		b.Commands = cmds
		out.Keys = append(out.Keys, b)
	}

	for i, r := range raw.Families {
		parent, perr := parseKey(r.Parent)
		child, cerr := parseKey(r.Child)
		if perr != nil || cerr != nil {
			errs = append(errs, fmt.Errorf("families[%d]: %w", i, errors.Join(perr, cerr)))
			continue
		}
		out.Family = append(out.Family, keystate.Relation{Parent: parent, Child: child})
	}

	for name, members := range raw.Groups {
		keys, err := parseKeys(members)
		if err != nil {
			errs = append(errs, fmt.Errorf("groups[%s]: %w", name, err))
			continue
		}
		out.Groups[strings.ToUpper(name)] = keys
	}

	var err error
	if out.Pressable, err = parseKeys(raw.Pressable); err != nil {
		errs = append(errs, fmt.Errorf("pressable: %w", err))
	}
	if out.Lockable, err = parseKeys(raw.Lockable); err != nil {
		errs = append(errs, fmt.Errorf("lockable: %w", err))
	}
	for _, tag := range raw.NonRepeatable {
		out.NonRepeatable = append(out.NonRepeatable, keystate.FunctionKey(strings.TrimPrefix(tag, "fn:")))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func parseKey(s string) (keystate.KeyValue, error) {
	k, err := keystate.ParseKeyValue(s)
	if err != nil {
		return k, err
	}
	if k.IsZero() {
		return k, errors.New("empty key")
	}
	return k, nil
}

func parseKeys(in []string) ([]keystate.KeyValue, error) {
	out := make([]keystate.KeyValue, 0, len(in))
	for _, s := range in {
		k, err := parseKey(s)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

func convertCommands(in []fileCommand, path string) ([]KeyCommand, error) {
	var out []KeyCommand
	var errs []error
	for i, c := range in {
		at := fmt.Sprintf("%s[%d]", path, i)
		cmd, err := c.convert(at)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, cmd)
	}
	return out, errors.Join(errs...)
}

func (c fileCommand) convert(at string) (KeyCommand, error) {
	var set []Kind
	if c.Loop != nil {
		set = append(set, KindLoop)
	}
	if c.Function != "" {
		set = append(set, KindFunction)
	}
	if c.ChangeKeyboard != "" {
		set = append(set, KindChangeKeyboard)
	}
	if c.KeyDown != "" {
		set = append(set, KindKeyDown)
	}
	if c.KeyToggle != "" {
		set = append(set, KindKeyToggle)
	}
	if c.KeyUp != "" {
		set = append(set, KindKeyUp)
	}
	if c.MoveWindow != "" {
		set = append(set, KindMoveWindow)
	}
	if c.Text != nil {
		set = append(set, KindText)
	}
	if c.Wait != nil {
		set = append(set, KindWait)
	}
	if c.Plugin != nil {
		set = append(set, KindPlugin)
	}
	if len(set) != 1 {
		return KeyCommand{}, fmt.Errorf("%s: expected exactly one command, found %d", at, len(set))
	}

	switch set[0] {
	case KindLoop:
		if *c.Loop < 0 {
			return KeyCommand{}, fmt.Errorf("%s: negative loop count", at)
		}
		body, err := convertCommands(c.Body, at+".body")
		if err != nil {
			return KeyCommand{}, err
		}
		return Loop(*c.Loop, body...), nil
	case KindFunction:
		return Function(keystate.FunctionKey(strings.TrimPrefix(c.Function, "fn:"))), nil
	case KindChangeKeyboard:
		return ChangeKeyboard(c.ChangeKeyboard, c.Replace), nil
	case KindKeyDown, KindKeyToggle, KindKeyUp:
		raw := c.KeyDown + c.KeyToggle + c.KeyUp
		k, err := parseKey(raw)
		if err != nil {
			return KeyCommand{}, fmt.Errorf("%s: %w", at, err)
		}
		return KeyCommand{Kind: set[0], Key: k}, nil
	case KindMoveWindow:
		return MoveWindow(c.MoveWindow), nil
	case KindText:
		return Text(*c.Text), nil
	case KindWait:
		return KeyCommand{Kind: KindWait, Value: waitValue(c.Wait)}, nil
	default:
		return Plugin(PluginRef{Name: c.Plugin.Name, Method: c.Plugin.Method, Args: c.Plugin.Args}), nil
	}
}

// waitValue keeps the raw wait text; unparseable values fall back to the
// default delay when the script runs.
func waitValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprint(t)
	}
}
