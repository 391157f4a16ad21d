package keystate

import (
	"fmt"
	"strings"
)

// Kind tags the variant held by a KeyValue.
type Kind uint8

const (
	KindNone Kind = iota
	KindCharacter
	KindFunction
	KindChangeKeyboard
)

func (k Kind) String() string {
	switch k {
	case KindCharacter:
		return "character"
	case KindFunction:
		return "function"
	case KindChangeKeyboard:
		return "changeKeyboard"
	default:
		return "none"
	}
}

// FunctionKey names a built-in action.
type FunctionKey string

// Function keys the interaction core itself relies on.
const (
	LookToScrollActive          FunctionKey = "LookToScrollActive"
	LookToScrollBounds          FunctionKey = "LookToScrollBounds"
	Sleep                       FunctionKey = "Sleep"
	MouseMagnifier              FunctionKey = "MouseMagnifier"
	RepeatLastKeyAction         FunctionKey = "RepeatLastKeyAction"
	RepeatLastMouseAction       FunctionKey = "RepeatLastMouseAction"
	ReleaseAll                  FunctionKey = "ReleaseAll"
	MouseMoveTo                 FunctionKey = "MouseMoveTo"
	MouseMoveAndLeftClick       FunctionKey = "MouseMoveAndLeftClick"
	MouseMoveAndLeftDoubleClick FunctionKey = "MouseMoveAndLeftDoubleClick"
	MouseMoveAndMiddleClick     FunctionKey = "MouseMoveAndMiddleClick"
	MouseMoveAndRightClick      FunctionKey = "MouseMoveAndRightClick"
	MouseLeftClick              FunctionKey = "MouseLeftClick"
	MouseRightClick             FunctionKey = "MouseRightClick"
	MouseMiddleClick            FunctionKey = "MouseMiddleClick"
)

// KeyValue identifies a key. It is comparable and used as a map key; the zero
// value means "no key".
type KeyValue struct {
	Kind     Kind
	Text     string
	Func     FunctionKey
	Keyboard string
	Replace  bool
}

// Character returns a key that produces text.
func Character(text string) KeyValue { return KeyValue{Kind: KindCharacter, Text: text} }

// Function returns a key bound to a built-in action.
func Function(tag FunctionKey) KeyValue { return KeyValue{Kind: KindFunction, Func: tag} }

// ChangeKeyboard returns a key that switches to the named keyboard. Replace
// drops the current keyboard from the back stack.
func ChangeKeyboard(target string, replace bool) KeyValue {
	return KeyValue{Kind: KindChangeKeyboard, Keyboard: target, Replace: replace}
}

// IsZero reports whether k is the "no key" value.
func (k KeyValue) IsZero() bool { return k == KeyValue{} }

// IsFunction reports whether k is the function key tag.
func (k KeyValue) IsFunction(tag FunctionKey) bool {
	return k.Kind == KindFunction && k.Func == tag
}

// Name is the identifier handed to output sinks when the key is pressed or
// released.
func (k KeyValue) Name() string {
	switch k.Kind {
	case KindFunction:
		return string(k.Func)
	case KindChangeKeyboard:
		return k.Keyboard
	default:
		return k.Text
	}
}

const (
	functionPrefix        = "fn:"
	keyboardPrefix        = "kb:"
	keyboardReplacePrefix = "kb!:"
)

// String renders k in the form accepted by ParseKeyValue.
func (k KeyValue) String() string {
	switch k.Kind {
	case KindFunction:
		return functionPrefix + string(k.Func)
	case KindChangeKeyboard:
		if k.Replace {
			return keyboardReplacePrefix + k.Keyboard
		}
		return keyboardPrefix + k.Keyboard
	case KindCharacter:
		return k.Text
	default:
		return ""
	}
}

// ParseKeyValue parses the textual key notation used in binding files and on
// the input stream:
//
//	fn:Sleep        function key
//	kb:Numbers      change keyboard
//	kb!:Numbers     change keyboard, replacing the current one
//	anything else   character key
func ParseKeyValue(s string) (KeyValue, error) {
	switch {
	case s == "":
		return KeyValue{}, nil
	case strings.HasPrefix(s, functionPrefix):
		tag := strings.TrimSpace(s[len(functionPrefix):])
		if tag == "" {
			return KeyValue{}, fmt.Errorf("function key %q: missing tag", s)
		}
		return Function(FunctionKey(tag)), nil
	case strings.HasPrefix(s, keyboardReplacePrefix):
		target := strings.TrimSpace(s[len(keyboardReplacePrefix):])
		if target == "" {
			return KeyValue{}, fmt.Errorf("keyboard key %q: missing target", s)
		}
		return ChangeKeyboard(target, true), nil
	case strings.HasPrefix(s, keyboardPrefix):
		target := strings.TrimSpace(s[len(keyboardPrefix):])
		if target == "" {
			return KeyValue{}, fmt.Errorf("keyboard key %q: missing target", s)
		}
		return ChangeKeyboard(target, false), nil
	default:
		return Character(s), nil
	}
}

// MustParse is ParseKeyValue for static tables; it panics on malformed input.
func MustParse(s string) KeyValue {
	k, err := ParseKeyValue(s)
	if err != nil {
		panic(err)
	}
	return k
}
