// Package teds decodes and encodes IEEE 1451.4 Transducer Electronic Data
// Sheets. A decode walks the template layout over a bitstream and yields a
// Document; an encode walks the same layout over a Document and yields the
// bitstream.
package teds

import (
	"fmt"
	"strings"

	"github.com/banshee-data/teds/internal/teds/field"
)

// Entry is one named field of a document.
type Entry struct {
	Name  string
	Spec  field.Spec
	Value field.Value
}

// Document is an insertion-ordered set of named fields. Documents are produced
// by Decode, or built by hand for sensors without a TEDS chip.
type Document struct {
	entries  []Entry
	index    map[string]int
	preamble bool
	legacy   bool
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{index: make(map[string]int)}
}

// Set stores a field. Setting an existing name replaces its value in place
// and keeps its position.
func (d *Document) Set(name string, spec field.Spec, v field.Value) {
	if d.index == nil {
		d.index = make(map[string]int)
	}
	if i, ok := d.index[name]; ok {
		d.entries[i] = Entry{Name: name, Spec: spec, Value: v}
		return
	}
	d.index[name] = len(d.entries)
	d.entries = append(d.entries, Entry{Name: name, Spec: spec, Value: v})
}

// Get returns the named entry.
func (d *Document) Get(name string) (Entry, bool) {
	i, ok := d.index[name]
	if !ok {
		return Entry{}, false
	}
	return d.entries[i], true
}

// Has reports whether the document holds name.
func (d *Document) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Entries returns the fields in order.
func (d *Document) Entries() []Entry {
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Names returns the field names in order.
func (d *Document) Names() []string {
	out := make([]string, len(d.entries))
	for i, e := range d.entries {
		out[i] = e.Name
	}
	return out
}

// Len returns the number of fields.
func (d *Document) Len() int {
	return len(d.entries)
}

// HasPreamble reports whether encoding prefixes the vendor preamble.
func (d *Document) HasPreamble() bool {
	return d.preamble
}

// SetPreamble controls whether encoding prefixes the vendor preamble.
func (d *Document) SetPreamble(on bool) {
	d.preamble = on
}

// Legacy reports whether the source declared a TEDS version other than 2.
func (d *Document) Legacy() bool {
	return d.legacy
}

// Uint returns the named field as an unsigned integer.
func (d *Document) Uint(name string) (uint64, error) {
	e, err := d.lookup(name)
	if err != nil {
		return 0, err
	}
	return e.Value.AsUint()
}

// Float returns the named field as a real number.
func (d *Document) Float(name string) (float64, error) {
	e, err := d.lookup(name)
	if err != nil {
		return 0, err
	}
	return e.Value.AsFloat()
}

// Text returns the named field's text.
func (d *Document) Text(name string) (string, error) {
	e, err := d.lookup(name)
	if err != nil {
		return "", err
	}
	return e.Value.Text(), nil
}

// TemplateID returns the template_id header field.
func (d *Document) TemplateID() (uint64, error) {
	return d.Uint("template_id")
}

func (d *Document) lookup(name string) (Entry, error) {
	e, ok := d.Get(name)
	if !ok || !e.Value.IsSet() {
		return Entry{}, fmt.Errorf("field %q: %w", name, ErrUnsetField)
	}
	return e, nil
}

func (d *Document) String() string {
	var sb strings.Builder
	for _, e := range d.entries {
		fmt.Fprintf(&sb, "%s: %s\n", e.Name, e.Value)
	}
	return sb.String()
}
