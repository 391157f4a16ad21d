package interpreter_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Alia5/gazekey/interpreter"
	"github.com/Alia5/gazekey/keystate"

	"github.com/stretchr/testify/assert"
)

var (
	parentP = keystate.Character("P")
	childA  = keystate.Character("a")
	childB  = keystate.Character("b")
	grandC  = keystate.Character("c")
)

func familyStore() *keystate.Store {
	return keystate.NewStore(keystate.WithFamily(
		keystate.Relation{Parent: parentP, Child: childA},
		keystate.Relation{Parent: parentP, Child: childB},
		keystate.Relation{Parent: childA, Child: grandC},
	))
}

func TestReleaseCascade(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(s *keystate.Store)
		main       keystate.KeyValue
		target     keystate.KeyValue
		wantDown   map[keystate.KeyValue]keystate.DownState
		wantEvents []string
	}{
		{
			name: "last child down releases parent",
			setup: func(s *keystate.Store) {
				s.SetDown(parentP, keystate.LockedDown)
				s.SetDown(childA, keystate.LockedDown)
			},
			main:   parentP,
			target: childA,
			wantDown: map[keystate.KeyValue]keystate.DownState{
				parentP: keystate.Up, childA: keystate.Up, childB: keystate.Up,
			},
			wantEvents: []string{"up:a", "up:P"},
		},
		{
			name: "sibling still down keeps parent",
			setup: func(s *keystate.Store) {
				s.SetDown(parentP, keystate.LockedDown)
				s.SetDown(childA, keystate.LockedDown)
				s.SetDown(childB, keystate.Down)
			},
			main:   parentP,
			target: childA,
			wantDown: map[keystate.KeyValue]keystate.DownState{
				parentP: keystate.LockedDown, childA: keystate.Up, childB: keystate.Down,
			},
			wantEvents: []string{"up:a"},
		},
		{
			name: "running parent is kept",
			setup: func(s *keystate.Store) {
				s.SetDown(parentP, keystate.LockedDown)
				s.SetRunning(parentP, true)
				s.SetDown(childB, keystate.LockedDown)
			},
			main:   parentP,
			target: childB,
			wantDown: map[keystate.KeyValue]keystate.DownState{
				parentP: keystate.LockedDown, childB: keystate.Up,
			},
			wantEvents: []string{"up:b"},
		},
		{
			name: "children released one level only",
			setup: func(s *keystate.Store) {
				s.SetDown(parentP, keystate.LockedDown)
				s.SetDown(childA, keystate.LockedDown)
				s.SetDown(grandC, keystate.LockedDown)
			},
			main:   parentP,
			target: parentP,
			wantDown: map[keystate.KeyValue]keystate.DownState{
				parentP: keystate.Up, childA: keystate.Up, grandC: keystate.LockedDown,
			},
			wantEvents: []string{"up:P", "up:a"},
		},
		{
			name:   "parent already up is not released again",
			setup:  func(s *keystate.Store) { s.SetDown(childA, keystate.Down) },
			main:   childA,
			target: childA,
			wantDown: map[keystate.KeyValue]keystate.DownState{
				parentP: keystate.Up, childA: keystate.Up,
			},
			wantEvents: []string{"up:a"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := familyStore()
			tt.setup(s)
			rec := &recorder{}

			err := interpreter.Release(context.Background(), s, rec, tt.main, tt.target)

			assert.NoError(t, err)
			for k, want := range tt.wantDown {
				assert.Equal(t, want, s.Down(k), "key %s", k)
			}
			assert.Equal(t, tt.wantEvents, rec.Events())
		})
	}
}

func TestReleaseClearsRunningOfNonMainTarget(t *testing.T) {
	s := familyStore()
	s.SetRunning(childA, true)
	s.SetRunning(parentP, true)

	assert.NoError(t, interpreter.Release(context.Background(), s, nil, parentP, childA))
	assert.False(t, s.Running(childA))

	assert.NoError(t, interpreter.Release(context.Background(), s, nil, parentP, parentP))
	assert.True(t, s.Running(parentP))
}

type failingOutput struct{}

func (failingOutput) PressKey(context.Context, string) error   { return errors.New("offline") }
func (failingOutput) ReleaseKey(context.Context, string) error { return errors.New("offline") }

func TestReleaseContinuesOnOutputError(t *testing.T) {
	s := familyStore()
	s.SetDown(parentP, keystate.LockedDown)
	s.SetDown(childA, keystate.LockedDown)

	err := interpreter.Release(context.Background(), s, failingOutput{}, parentP, parentP)

	assert.ErrorContains(t, err, "offline")
	assert.Equal(t, keystate.Up, s.Down(parentP))
	assert.Equal(t, keystate.Up, s.Down(childA))
}
