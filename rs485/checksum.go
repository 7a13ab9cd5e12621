package rs485

import (
	"fmt"
	"strings"
)

type Checksum int

const (
	ChecksumNone Checksum = iota
	ChecksumXor
	ChecksumAdd
)

func ParseChecksum(s string) (Checksum, error) {
	switch strings.ToLower(s) {
	case "", "none", "false":
		return ChecksumNone, nil
	case "xor", "true":
		return ChecksumXor, nil
	case "add", "sum":
		return ChecksumAdd, nil
	default:
		return ChecksumNone, fmt.Errorf("unknown checksum %q", s)
	}
}

func (c Checksum) String() string {
	switch c {
	case ChecksumXor:
		return "xor"
	case ChecksumAdd:
		return "add"
	default:
		return "none"
	}
}

func (c Checksum) compute(data []byte) byte {
	var sum byte
	for _, b := range data {
		switch c {
		case ChecksumXor:
			sum ^= b
		case ChecksumAdd:
			sum += b
		}
	}

	return sum
}

func (c Checksum) size() int {
	if c == ChecksumNone {
		return 0
	}

	return 1
}
