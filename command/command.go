// Package command defines the scripted command sequences bound to keys and
// the binding file format that declares them.
package command

import (
	"strconv"

	"github.com/Alia5/gazekey/keystate"
)

// Kind tags the variant held by a KeyCommand.
type Kind uint8

const (
	KindLoop Kind = iota + 1
	KindFunction
	KindChangeKeyboard
	KindKeyDown
	KindKeyToggle
	KindKeyUp
	KindMoveWindow
	KindText
	KindWait
	KindPlugin
)

func (k Kind) String() string {
	switch k {
	case KindLoop:
		return "Loop"
	case KindFunction:
		return "Function"
	case KindChangeKeyboard:
		return "ChangeKeyboard"
	case KindKeyDown:
		return "KeyDown"
	case KindKeyToggle:
		return "KeyToggle"
	case KindKeyUp:
		return "KeyUp"
	case KindMoveWindow:
		return "MoveWindow"
	case KindText:
		return "Text"
	case KindWait:
		return "Wait"
	case KindPlugin:
		return "Plugin"
	default:
		return "Unknown"
	}
}

// PluginRef names a plugin and the method to call on it.
type PluginRef struct {
	Name   string
	Method string
	Args   map[string]string
}

// KeyCommand is one step of a key script.
//
// Value carries the payload of Function (tag), MoveWindow (spec), Text
// (text) and Wait (milliseconds, parsed at execution time). Key carries the
// target of KeyDown, KeyToggle, KeyUp and ChangeKeyboard. Count and Body
// belong to Loop: Count 0 repeats until cancelled, Count 1 marks the final
// iteration.
type KeyCommand struct {
	Kind   Kind
	Value  string
	Key    keystate.KeyValue
	Count  int
	Body   []KeyCommand
	Plugin PluginRef
}

func Loop(count int, body ...KeyCommand) KeyCommand {
	return KeyCommand{Kind: KindLoop, Count: count, Body: body}
}

func Function(tag keystate.FunctionKey) KeyCommand {
	return KeyCommand{Kind: KindFunction, Value: string(tag)}
}

func ChangeKeyboard(target string, replace bool) KeyCommand {
	return KeyCommand{Kind: KindChangeKeyboard, Key: keystate.ChangeKeyboard(target, replace)}
}

func KeyDown(k keystate.KeyValue) KeyCommand   { return KeyCommand{Kind: KindKeyDown, Key: k} }
func KeyToggle(k keystate.KeyValue) KeyCommand { return KeyCommand{Kind: KindKeyToggle, Key: k} }
func KeyUp(k keystate.KeyValue) KeyCommand     { return KeyCommand{Kind: KindKeyUp, Key: k} }

func MoveWindow(spec string) KeyCommand { return KeyCommand{Kind: KindMoveWindow, Value: spec} }
func Text(value string) KeyCommand      { return KeyCommand{Kind: KindText, Value: value} }

func Wait(ms int) KeyCommand { return KeyCommand{Kind: KindWait, Value: strconv.Itoa(ms)} }

func Plugin(ref PluginRef) KeyCommand { return KeyCommand{Kind: KindPlugin, Plugin: ref} }

// Walk calls fn for every command in cmds, descending into loop bodies.
// Walking stops when fn returns false.
func Walk(cmds []KeyCommand, fn func(KeyCommand) bool) bool {
	for _, c := range cmds {
		if !fn(c) {
			return false
		}
		if c.Kind == KindLoop && !Walk(c.Body, fn) {
			return false
		}
	}
	return true
}

// Any reports whether pred holds for some command in cmds or a nested loop
// body.
func Any(cmds []KeyCommand, pred func(KeyCommand) bool) bool {
	found := false
	Walk(cmds, func(c KeyCommand) bool {
		if pred(c) {
			found = true
			return false
		}
		return true
	})
	return found
}
