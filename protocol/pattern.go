package protocol

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"
)

// Frame is one unit of bytes exchanged over the bus.
type Frame []byte

func (f Frame) String() string {
	return Hex(f)
}

var ErrFrameTooShort = errors.New("frame too short")

// Pattern recognizes a logical state by a fixed byte sequence at a fixed offset.
type Pattern struct {
	Offset int
	Data   []byte
}

// Matches reports whether the frame holds Data at Offset. Short frames never match.
func (p *Pattern) Matches(frame Frame) bool {
	if p == nil || len(p.Data) == 0 {
		return false
	}

	end := p.Offset + len(p.Data)
	if p.Offset < 0 || len(frame) < end {
		return false
	}

	return bytes.Equal(frame[p.Offset:end], p.Data)
}

func (p *Pattern) String() string {
	if p == nil {
		return "<none>"
	}

	return fmt.Sprintf("%v, offset: %d", Hex(p.Data), p.Offset)
}

// NumericField describes an unsigned big-endian integer inside a frame. Precision is
// the fixed-point divisor, 0 is treated as 1.
type NumericField struct {
	Offset    int
	Length    int
	Precision int
}

func (n NumericField) divisor() float64 {
	if n.Precision <= 0 {
		return 1
	}

	return float64(n.Precision)
}

// Fits reports whether the frame is long enough to be decoded.
func (n NumericField) Fits(frame Frame) bool {
	return n.Offset >= 0 && n.Length > 0 && len(frame) >= n.Offset+n.Length
}

func (n NumericField) Decode(frame Frame) (float64, error) {
	if !n.Fits(frame) {
		return 0, fmt.Errorf("%w: need %d bytes, got %d", ErrFrameTooShort, n.Offset+n.Length, len(frame))
	}

	var raw uint64
	for _, b := range frame[n.Offset : n.Offset+n.Length] {
		raw = raw<<8 | uint64(b)
	}

	return float64(raw) / n.divisor(), nil
}

// Encode writes value into buf at the field position, rounding to the nearest step.
func (n NumericField) Encode(value float64, buf []byte) error {
	if !n.Fits(buf) {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrFrameTooShort, n.Offset+n.Length, len(buf))
	}

	scaled := math.Round(value * n.divisor())
	if scaled < 0 || scaled > math.Pow(2, float64(8*n.Length))-1 {
		return fmt.Errorf("value %v does not fit in %d bytes", value, n.Length)
	}

	raw := uint64(scaled)
	for i := n.Offset + n.Length - 1; i >= n.Offset; i-- {
		buf[i] = byte(raw)
		raw >>= 8
	}

	return nil
}

func (n NumericField) String() string {
	return fmt.Sprintf("offset: %d, length: %d, precision: %d", n.Offset, n.Length, n.Precision)
}

// Rule maps a pattern to the state it represents.
type Rule[S any] struct {
	Pattern *Pattern
	State   S
}

// FirstMatch evaluates rules in order and returns the state of the first matching
// pattern. Rules without a pattern are skipped.
func FirstMatch[S any](frame Frame, rules []Rule[S]) (S, bool) {
	for _, rule := range rules {
		if rule.Pattern.Matches(frame) {
			return rule.State, true
		}
	}

	var zero S
	return zero, false
}

// Hex renders bytes the way they are written in configuration files.
func Hex(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}

	return strings.Join(parts, " ")
}

// ParseHex accepts "02 a1", "0x02,0xA1" and "02A1".
func ParseHex(s string) ([]byte, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ':' || unicode.IsSpace(r)
	})

	var buf strings.Builder
	for _, field := range fields {
		field = strings.TrimPrefix(strings.TrimPrefix(field, "0x"), "0X")
		if len(field) == 1 {
			field = "0" + field
		}
		buf.WriteString(field)
	}

	data, err := hex.DecodeString(buf.String())
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}

	return data, nil
}
