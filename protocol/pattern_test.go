package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternMatches(t *testing.T) {
	tests := []struct {
		name    string
		pattern *Pattern
		frame   Frame
		want    bool
	}{
		{"match at offset", &Pattern{Offset: 2, Data: []byte{0xA1}}, Frame{0x01, 0x02, 0xA1, 0x03}, true},
		{"frame too short", &Pattern{Offset: 2, Data: []byte{0xA1}}, Frame{0x01, 0x02}, false},
		{"window at end of frame", &Pattern{Offset: 1, Data: []byte{0x02, 0x03}}, Frame{0x01, 0x02, 0x03}, true},
		{"one byte differs", &Pattern{Offset: 0, Data: []byte{0x01, 0x03}}, Frame{0x01, 0x02, 0x03}, false},
		{"nil pattern", nil, Frame{0x01}, false},
		{"empty data", &Pattern{Offset: 0}, Frame{0x01}, false},
		{"empty frame", &Pattern{Offset: 0, Data: []byte{0x00}}, Frame{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pattern.Matches(tt.frame))
		})
	}
}

func TestNumericFieldDecode(t *testing.T) {
	field := NumericField{Offset: 0, Length: 2, Precision: 10}

	value, err := field.Decode(Frame{0x00, 0xC8})
	require.NoError(t, err)
	assert.Equal(t, 20.0, value)

	again, err := field.Decode(Frame{0x00, 0xC8})
	require.NoError(t, err)
	assert.Equal(t, value, again)

	field.Precision = 100
	scaled, err := field.Decode(Frame{0x00, 0xC8})
	require.NoError(t, err)
	assert.Equal(t, value/10, scaled)

	field.Precision = 0
	whole, err := field.Decode(Frame{0x00, 0xC8})
	require.NoError(t, err)
	assert.Equal(t, 200.0, whole)
}

func TestNumericFieldDecodeOffset(t *testing.T) {
	field := NumericField{Offset: 3, Length: 1, Precision: 1}

	value, err := field.Decode(Frame{0xFF, 0xFF, 0xFF, 0x17, 0xFF})
	require.NoError(t, err)
	assert.Equal(t, 23.0, value)
}

func TestNumericFieldDecodeTooShort(t *testing.T) {
	field := NumericField{Offset: 2, Length: 2}

	assert.False(t, field.Fits(Frame{0x00, 0x01, 0x02}))
	_, err := field.Decode(Frame{0x00, 0x01, 0x02})
	assert.ErrorIs(t, err, ErrFrameTooShort)
}

func TestNumericFieldEncode(t *testing.T) {
	field := NumericField{Offset: 1, Length: 2, Precision: 10}
	buf := []byte{0xAA, 0x00, 0x00, 0xBB}

	require.NoError(t, field.Encode(21.5, buf))
	assert.Equal(t, []byte{0xAA, 0x00, 0xD7, 0xBB}, buf)

	decoded, err := field.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, 21.5, decoded)

	assert.Error(t, field.Encode(-1, buf))
	assert.ErrorIs(t, field.Encode(1, []byte{0x00}), ErrFrameTooShort)
}

func TestFirstMatchPriority(t *testing.T) {
	shared := &Pattern{Offset: 0, Data: []byte{0x10}}
	rules := []Rule[string]{
		{Pattern: nil, State: "unconfigured"},
		{Pattern: &Pattern{Offset: 0, Data: []byte{0x20}}, State: "second"},
		{Pattern: shared, State: "first"},
		{Pattern: shared, State: "shadowed"},
	}

	state, ok := FirstMatch(Frame{0x10}, rules)
	assert.True(t, ok)
	assert.Equal(t, "first", state)

	state, ok = FirstMatch(Frame{0x20}, rules)
	assert.True(t, ok)
	assert.Equal(t, "second", state)

	_, ok = FirstMatch(Frame{0x30}, rules)
	assert.False(t, ok)
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"02 a1", []byte{0x02, 0xA1}},
		{"0x02,0xA1", []byte{0x02, 0xA1}},
		{"02A1", []byte{0x02, 0xA1}},
		{"0x2 0x3", []byte{0x02, 0x03}},
		{"", []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHex(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseHex("zz")
	assert.Error(t, err)
}

func TestHex(t *testing.T) {
	assert.Equal(t, "02 A1 FF", Hex([]byte{0x02, 0xA1, 0xFF}))
	assert.Equal(t, "", Hex(nil))
}
