package bitcursor

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrOverflow is returned when a value does not fit the field width it is
// written into.
var ErrOverflow = errors.New("value does not fit field width")

// PadReverse zero-pads window to the next byte boundary, reverses the padded
// sequence and packs it MSB-first. The result is the field's unsigned value in
// big-endian byte order.
func PadReverse(window Buffer) []byte {
	padded := (window.n + 7) / 8 * 8
	out := make([]byte, padded/8)
	for j := 0; j < padded; j++ {
		k := padded - 1 - j
		if k >= window.n || window.Bit(k) == 0 {
			continue
		}
		out[j/8] |= 1 << (7 - uint(j%8))
	}
	return out
}

// Cursor reads fields sequentially from a Buffer. A Cursor is owned by exactly
// one decode call.
type Cursor struct {
	buf Buffer
	pos int
}

// NewCursor returns a cursor positioned at bit 0 of buf.
func NewCursor(buf Buffer) *Cursor {
	return &Cursor{buf: buf}
}

// Pos returns the number of bits consumed so far.
func (c *Cursor) Pos() int {
	return c.pos
}

// Remaining returns the number of unread bits.
func (c *Cursor) Remaining() int {
	return c.buf.n - c.pos
}

// Read consumes n bits and returns them padded and reversed, ready for
// numeric interpretation as a big-endian unsigned integer.
func (c *Cursor) Read(n int) ([]byte, error) {
	window, err := c.take(n)
	if err != nil {
		return nil, err
	}
	return PadReverse(window), nil
}

// ReadUint consumes n bits (at most 64) and returns their unsigned value.
func (c *Cursor) ReadUint(n int) (uint64, error) {
	if n > 64 {
		return 0, fmt.Errorf("cannot read %d bits into uint64", n)
	}
	window, err := c.take(n)
	if err != nil {
		return 0, err
	}
	var v uint64
	for k := 0; k < window.n; k++ {
		v |= uint64(window.Bit(k)) << uint(k)
	}
	return v, nil
}

// ReadRaw consumes n bits without any reordering.
func (c *Cursor) ReadRaw(n int) (Buffer, error) {
	return c.take(n)
}

// ReadRemainder consumes every bit from the current position to the end of
// the buffer. It never fails; an exhausted cursor yields an empty buffer.
func (c *Cursor) ReadRemainder() Buffer {
	window := c.buf.Slice(c.pos, c.buf.n)
	c.pos = c.buf.n
	return window
}

func (c *Cursor) take(n int) (Buffer, error) {
	if n < 0 {
		return Buffer{}, fmt.Errorf("negative read width %d", n)
	}
	if n > c.Remaining() {
		return Buffer{}, fmt.Errorf("%w: need %d bits at offset %d, %d remain", ErrOutOfRange, n, c.pos, c.Remaining())
	}
	window := c.buf.Slice(c.pos, c.pos+n)
	c.pos += n
	return window, nil
}

// Writer accumulates encoded fields into an output bit sequence. The zero
// value is ready to use.
type Writer struct {
	data []byte
	n    int
}

// Len returns the number of bits written.
func (w *Writer) Len() int {
	return w.n
}

// Write is the inverse of Cursor.Read: value holds a big-endian unsigned
// integer, which is padded to a byte boundary and reversed. Only the n logical
// bits are appended; the padding introduced for reversal is dropped so that a
// write is exactly as wide as the paired read.
func (w *Writer) Write(value []byte, n int) error {
	for k := n; k < len(value)*8; k++ {
		if value[len(value)-1-k/8]>>(uint(k%8))&1 != 0 {
			return fmt.Errorf("%w: %d-bit field", ErrOverflow, n)
		}
	}
	for k := 0; k < n; k++ {
		var bit byte
		if idx := len(value) - 1 - k/8; idx >= 0 {
			bit = value[idx] >> uint(k%8) & 1
		}
		w.appendBit(bit)
	}
	return nil
}

// WriteUint appends v as an n-bit field, least-significant bit first.
func (w *Writer) WriteUint(v uint64, n int) error {
	if n < 64 && v>>uint(n) != 0 {
		return fmt.Errorf("%w: %d does not fit %d bits", ErrOverflow, v, n)
	}
	for k := 0; k < n; k++ {
		var bit byte
		if k < 64 {
			bit = byte(v >> uint(k) & 1)
		}
		w.appendBit(bit)
	}
	return nil
}

// WriteRaw appends b without any reordering.
func (w *Writer) WriteRaw(b Buffer) {
	for i := 0; i < b.n; i++ {
		w.appendBit(b.Bit(i))
	}
}

// Buffer returns the bits written so far.
func (w *Writer) Buffer() Buffer {
	return NewBufferBits(w.data, w.n)
}

func (w *Writer) appendBit(bit byte) {
	if w.n%8 == 0 {
		w.data = append(w.data, 0)
	}
	if bit != 0 {
		w.data[w.n/8] |= 1 << (7 - uint(w.n%8))
	}
	w.n++
}

// FromWords converts a hardware integer list into a canonical TEDS bitstream.
// Acquisition hardware delivers each transmitted unit as a native integer; each
// one is expanded to its minimal binary width, reversed and padded to a whole
// byte, which is the encode-side transformation applied per word.
func FromWords(words []uint64) Buffer {
	var w Writer
	for _, word := range words {
		width := bits.Len64(word)
		if width == 0 {
			width = 1
		}
		padded := (width + 7) / 8 * 8
		// padded >= width so the value always fits.
		_ = w.WriteUint(word, padded)
	}
	return w.Buffer()
}
