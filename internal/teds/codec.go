package teds

import (
	"fmt"
	"math/bits"

	"github.com/banshee-data/teds/internal/monitoring"
	"github.com/banshee-data/teds/internal/teds/bitcursor"
	"github.com/banshee-data/teds/internal/teds/field"
	"github.com/banshee-data/teds/internal/teds/template"
)

// PreambleBits is the width of the vendor preamble.
const PreambleBits = 40

// Preamble is the fixed marker some vendors prefix to virtual TEDS files. It
// is compared in stream order, without per-field reversal.
var Preamble = bitcursor.NewBuffer([]byte{0xDA, 0x6E, 0x0C, 0xCC, 0xBA})

// Decode decodes a byte-aligned TEDS bitstream. Set hasPreamble for
// file-sourced streams that carry the vendor preamble.
func Decode(data []byte, hasPreamble bool) (*Document, error) {
	return DecodeBuffer(bitcursor.NewBuffer(data), hasPreamble)
}

// DecodeWords decodes a hardware integer list, one integer per transmitted
// unit, as delivered by acquisition hardware.
func DecodeWords(words []uint64) (*Document, error) {
	return DecodeBuffer(bitcursor.FromWords(words), false)
}

// DecodeBuffer decodes a TEDS bitstream of arbitrary bit length.
func DecodeBuffer(buf bitcursor.Buffer, hasPreamble bool) (*Document, error) {
	c := bitcursor.NewCursor(buf)
	if hasPreamble {
		got, err := c.ReadRaw(PreambleBits)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPreamble, err)
		}
		if !got.Equal(Preamble) {
			return nil, fmt.Errorf("%w: got %X", ErrInvalidPreamble, got.Bytes())
		}
	}

	doc := NewDocument()
	doc.preamble = hasPreamble
	res, err := template.Run(&decoder{c: c, doc: doc})
	if err != nil {
		return nil, err
	}
	if res.Legacy {
		monitoring.Logf("teds: sensor uses legacy TEDS version %d, decoding with version %d layout",
			res.Version, template.CurrentVersion)
	}
	doc.legacy = res.Legacy
	return doc, nil
}

// Encode encodes doc, packing the bits MSB-first and zero-padding the final
// byte. Use EncodeBuffer when the exact bit length matters.
func Encode(doc *Document) ([]byte, error) {
	buf, err := EncodeBuffer(doc)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeBuffer replays the template layout over doc and returns the encoded
// bitstream, prefixed by the preamble when doc carries one.
func EncodeBuffer(doc *Document) (bitcursor.Buffer, error) {
	return encode(doc, doc.preamble)
}

// EncodeWords encodes doc into the hardware integer list accepted by
// DecodeWords, one integer per byte. Hardware streams never carry the
// preamble.
func EncodeWords(doc *Document) ([]uint64, error) {
	buf, err := encode(doc, false)
	if err != nil {
		return nil, err
	}
	data := buf.Bytes()
	words := make([]uint64, len(data))
	for i, b := range data {
		words[i] = uint64(bits.Reverse8(b))
	}
	return words, nil
}

func encode(doc *Document, preamble bool) (bitcursor.Buffer, error) {
	var w bitcursor.Writer
	if preamble {
		w.WriteRaw(Preamble)
	}
	if _, err := template.Run(&encoder{w: &w, doc: doc}); err != nil {
		return bitcursor.Buffer{}, err
	}
	return w.Buffer(), nil
}

type decoder struct {
	c   *bitcursor.Cursor
	doc *Document
}

func (d *decoder) Field(name string, spec field.Spec) (field.Value, error) {
	v, err := field.Decode(spec, d.c)
	if err != nil {
		return field.Value{}, err
	}
	d.doc.Set(name, spec, v)
	return v, nil
}

type encoder struct {
	w   *bitcursor.Writer
	doc *Document
}

func (e *encoder) Field(name string, spec field.Spec) (field.Value, error) {
	if spec.Kind == field.ConstantFixed {
		return field.TextValue(spec.Label), nil
	}
	entry, ok := e.doc.Get(name)
	if !ok {
		return field.Value{}, ErrUnsetField
	}
	if err := field.Encode(spec, entry.Value, e.w); err != nil {
		return field.Value{}, err
	}
	return entry.Value, nil
}
