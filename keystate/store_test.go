package keystate_test

import (
	"testing"

	"github.com/Alia5/gazekey/keystate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyValue(t *testing.T) {
	tests := []struct {
		in      string
		want    keystate.KeyValue
		wantErr bool
	}{
		{in: "a", want: keystate.Character("a")},
		{in: "fn:Sleep", want: keystate.Function(keystate.Sleep)},
		{in: "kb:Numbers", want: keystate.ChangeKeyboard("Numbers", false)},
		{in: "kb!:Numbers", want: keystate.ChangeKeyboard("Numbers", true)},
		{in: "", want: keystate.KeyValue{}},
		{in: "fn:", wantErr: true},
		{in: "kb: ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := keystate.ParseKeyValue(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestStoreDefaults(t *testing.T) {
	s := keystate.NewStore()
	k := keystate.Character("x")
	assert.Equal(t, keystate.Up, s.Down(k))
	assert.False(t, s.Running(k))
	assert.Empty(t, s.ChildrenOf(k))
	assert.Empty(t, s.ParentsOf(k))
}

func TestStoreFamily(t *testing.T) {
	parent := keystate.Character("P")
	a := keystate.Character("a")
	b := keystate.Character("b")
	s := keystate.NewStore(keystate.WithFamily(
		keystate.Relation{Parent: parent, Child: a},
		keystate.Relation{Parent: parent, Child: b},
	))
	assert.Equal(t, []keystate.KeyValue{a, b}, s.ChildrenOf(parent))
	assert.Equal(t, []keystate.KeyValue{parent}, s.ParentsOf(a))

	s.AddRelation(parent, a)
	assert.Len(t, s.ChildrenOf(parent), 2)
}

func TestStoreGroupCaseInsensitive(t *testing.T) {
	shift := keystate.Character("LeftShift")
	s := keystate.NewStore(keystate.WithGroup("Shifts", shift))
	got, ok := s.Group("SHIFTS")
	require.True(t, ok)
	assert.Equal(t, []keystate.KeyValue{shift}, got)
	_, ok = s.Group("ctrls")
	assert.False(t, ok)
}

func TestProgressDownState(t *testing.T) {
	both := keystate.Character("both")
	lockOnly := keystate.Character("lock")
	pressOnly := keystate.Character("press")
	plain := keystate.Character("plain")
	s := keystate.NewStore(
		keystate.WithPressable(both, pressOnly),
		keystate.WithLockable(both, lockOnly),
	)

	tests := []struct {
		name string
		key  keystate.KeyValue
		want []keystate.DownState
	}{
		{name: "press and lock", key: both, want: []keystate.DownState{keystate.Down, keystate.LockedDown, keystate.Up}},
		{name: "lock only", key: lockOnly, want: []keystate.DownState{keystate.LockedDown, keystate.Up}},
		{name: "press only", key: pressOnly, want: []keystate.DownState{keystate.Down, keystate.Up}},
		{name: "neither", key: plain, want: []keystate.DownState{keystate.Up}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, want := range tt.want {
				assert.Equal(t, want, s.ProgressDownState(tt.key))
				assert.Equal(t, want, s.Down(tt.key))
			}
		})
	}

	assert.True(t, s.Latches(both))
	assert.True(t, s.Latches(lockOnly))
	assert.True(t, s.Latches(pressOnly))
	assert.False(t, s.Latches(plain))
}

func TestSnapshotRestore(t *testing.T) {
	a := keystate.Character("a")
	b := keystate.Character("b")
	s := keystate.NewStore()
	s.SetDown(a, keystate.LockedDown)
	snap := s.Snapshot()

	s.SetDown(a, keystate.Up)
	s.SetDown(b, keystate.Down)
	s.Restore(snap)

	assert.Equal(t, keystate.LockedDown, s.Down(a))
	assert.Equal(t, keystate.Up, s.Down(b))
	assert.Equal(t, []keystate.KeyValue{a}, s.DownKeys())
}

func TestSubscribe(t *testing.T) {
	k := keystate.Function(keystate.Sleep)
	s := keystate.NewStore()
	var got []keystate.Change
	cancel := s.Subscribe(func(c keystate.Change) { got = append(got, c) })

	s.SetDown(k, keystate.Down)
	s.SetDown(k, keystate.Down)
	s.SetRunning(k, true)
	cancel()
	s.SetDown(k, keystate.Up)

	require.Len(t, got, 2)
	assert.Equal(t, keystate.Change{Key: k, Kind: keystate.DownChanged, Down: keystate.Down}, got[0])
	assert.Equal(t, keystate.Change{Key: k, Kind: keystate.RunningChanged, Down: keystate.Down, Running: true}, got[1])
}
