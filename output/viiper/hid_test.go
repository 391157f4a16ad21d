package viiper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupKey(t *testing.T) {
	tests := []struct {
		name string
		want Key
	}{
		{"a", Key{Usage: 0x04}},
		{"Z", Key{Usage: 0x1D, Shift: true}},
		{"1", Key{Usage: 0x1E}},
		{"0", Key{Usage: 0x27}},
		{"!", Key{Usage: 0x1E, Shift: true}},
		{"?", Key{Usage: 0x38, Shift: true}},
		{"Enter", Key{Usage: 0x28}},
		{"LeftShift", Key{Modifier: ModLeftShift}},
		{"AltGr", Key{Modifier: ModRightAlt}},
		{"F1", Key{Usage: 0x3A}},
		{"F12", Key{Usage: 0x45}},
		{"f13", Key{Usage: 0x68}},
		{"F24", Key{Usage: 0x73}},
		{"ArrowUp", Key{Usage: 0x52}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LookupKey(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookupKeyUnknown(t *testing.T) {
	for _, name := range []string{"F25", "F0", "f01", "Hyper", "é"} {
		_, err := LookupKey(name)
		assert.Error(t, err, name)
	}
}

func TestKeyboardReportMarshal(t *testing.T) {
	var r KeyboardReport
	r.Modifiers = ModLeftCtrl | ModLeftShift
	r.Press(0x1D)
	r.Press(0x04)
	r.Press(0x28)

	b, err := r.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 3, 0x04, 0x1D, 0x28}, b)

	r.Release(0x1D)
	assert.False(t, r.Pressed(0x1D))
	assert.True(t, r.Pressed(0x04))

	r = KeyboardReport{}
	b, err = r.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0}, b)
}

func TestMouseReportMarshal(t *testing.T) {
	m := MouseReport{Buttons: ButtonLeft | ButtonMiddle, DX: -2, DY: 300, Wheel: 1, Pan: -1}
	b, err := m.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x05, 0xFE, 0xFF, 0x2C, 0x01, 0x01, 0x00, 0xFF, 0xFF}, b)
}
