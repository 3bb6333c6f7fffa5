// Package bitcursor provides the bit-addressable buffer, read cursor and
// write accumulator used by the TEDS codec.
//
// TEDS transmits every field least-significant bit first while the buffer
// holds bits in natural left-to-right order (bit 0 is the most significant bit
// of byte 0). Reading a field therefore pads its window to a whole byte and
// reverses it before numeric interpretation; writing does the inverse.
package bitcursor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrOutOfRange is returned when a read asks for more bits than remain.
var ErrOutOfRange = errors.New("read past end of bit buffer")

// Buffer is an immutable, ordered sequence of bits addressed from 0.
type Buffer struct {
	data []byte
	n    int
}

// NewBuffer wraps data as a buffer of len(data)*8 bits. The slice is copied.
func NewBuffer(data []byte) Buffer {
	return NewBufferBits(data, len(data)*8)
}

// NewBufferBits wraps the first n bits of data. n is clamped to len(data)*8.
func NewBufferBits(data []byte, n int) Buffer {
	if n < 0 {
		n = 0
	}
	if max := len(data) * 8; n > max {
		n = max
	}
	cp := make([]byte, (n+7)/8)
	copy(cp, data)
	if rem := n % 8; rem != 0 {
		cp[len(cp)-1] &= 0xFF << (8 - rem)
	}
	return Buffer{data: cp, n: n}
}

// ParseBits builds a buffer from a string of '0' and '1' characters. Spaces and
// underscores are ignored so that fixtures can be grouped for readability.
func ParseBits(s string) (Buffer, error) {
	var w Writer
	for i, r := range s {
		switch r {
		case '0':
			w.appendBit(0)
		case '1':
			w.appendBit(1)
		case ' ', '_', '\n', '\t':
		default:
			return Buffer{}, fmt.Errorf("invalid bit character %q at offset %d", r, i)
		}
	}
	return w.Buffer(), nil
}

// Len returns the number of bits in the buffer.
func (b Buffer) Len() int {
	return b.n
}

// Bit returns bit i as 0 or 1. It panics if i is out of range.
func (b Buffer) Bit(i int) byte {
	if i < 0 || i >= b.n {
		panic(fmt.Sprintf("bitcursor: bit index %d out of range [0,%d)", i, b.n))
	}
	return (b.data[i/8] >> (7 - uint(i%8))) & 1
}

// Bytes returns the bits packed MSB-first. A trailing partial byte is padded
// with zero bits.
func (b Buffer) Bytes() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Slice returns the bits in [from, to).
func (b Buffer) Slice(from, to int) Buffer {
	if from < 0 || to > b.n || from > to {
		panic(fmt.Sprintf("bitcursor: slice [%d:%d] out of range [0,%d]", from, to, b.n))
	}
	var w Writer
	for i := from; i < to; i++ {
		w.appendBit(b.Bit(i))
	}
	return w.Buffer()
}

// Equal reports whether both buffers hold the same bit sequence.
func (b Buffer) Equal(other Buffer) bool {
	if b.n != other.n {
		return false
	}
	for i := range b.data {
		if b.data[i] != other.data[i] {
			return false
		}
	}
	return true
}

// String renders the buffer as a string of '0' and '1'.
func (b Buffer) String() string {
	var sb strings.Builder
	sb.Grow(b.n)
	for i := 0; i < b.n; i++ {
		sb.WriteByte('0' + b.Bit(i))
	}
	return sb.String()
}
