package teds

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/teds/internal/teds/bitcursor"
	"github.com/banshee-data/teds/internal/teds/field"
	"github.com/banshee-data/teds/internal/teds/template"
)

type jsonDocument struct {
	HasPreamble bool        `json:"has_preamble"`
	Legacy      bool        `json:"legacy,omitempty"`
	Fields      []jsonField `json:"fields"`
}

type jsonField struct {
	Name  string          `json:"name"`
	Kind  string          `json:"kind,omitempty"`
	Value json.RawMessage `json:"value"`
	Tail  string          `json:"tail,omitempty"`
}

// MarshalJSON renders the document as an ordered field list.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := jsonDocument{
		HasPreamble: d.preamble,
		Legacy:      d.legacy,
		Fields:      make([]jsonField, 0, len(d.entries)),
	}
	for _, e := range d.entries {
		raw, err := json.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", e.Name, err)
		}
		f := jsonField{Name: e.Name, Kind: e.Spec.Kind.String(), Value: raw}
		if tail := e.Value.Tail(); tail.Len() > 0 {
			f.Tail = tail.String()
		}
		out.Fields = append(out.Fields, f)
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds a document from its ordered field list. Field specs
// come from the template layouts, so only known names are accepted.
func (d *Document) UnmarshalJSON(data []byte) error {
	var in jsonDocument
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	doc := NewDocument()
	doc.preamble = in.HasPreamble
	doc.legacy = in.Legacy
	for _, f := range in.Fields {
		spec, ok := template.Lookup(f.Name)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownField, f.Name)
		}
		v, err := field.ParseJSON(spec, f.Value)
		if err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
		if spec.Kind == field.ConstantFixed {
			v = field.TextValue(spec.Label)
		}
		if f.Tail != "" {
			tail, err := bitcursor.ParseBits(f.Tail)
			if err != nil {
				return fmt.Errorf("field %q tail: %w", f.Name, err)
			}
			v = v.WithTail(tail)
		}
		doc.Set(f.Name, spec, v)
	}
	*d = *doc
	return nil
}
