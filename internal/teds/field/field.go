// Package field implements the closed set of TEDS field kinds. Each kind is a
// pair of pure functions between a fixed-width bit window and a typed Value.
package field

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/teds/internal/teds/bitcursor"
)

var (
	// ErrUnsetField is returned when encoding a field that has no value.
	ErrUnsetField = errors.New("field value is unset")
	// ErrUnsupportedKind is returned for declared but unimplemented kinds.
	ErrUnsupportedKind = errors.New("unsupported field kind")
)

// Kind identifies how a field's bits map to a value.
type Kind int

const (
	UnsignedInt Kind = iota
	ConstantLinear
	ConstantExponential
	Chr5String
	Ascii7String
	Date
	ConstantFixed
	Enum
)

var kindNames = map[Kind]string{
	UnsignedInt:         "uint",
	ConstantLinear:      "linear",
	ConstantExponential: "exponential",
	Chr5String:          "chr5",
	Ascii7String:        "ascii7",
	Date:                "date",
	ConstantFixed:       "fixed",
	Enum:                "enum",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Remainder is the width of a field that consumes every bit left in the stream.
const Remainder = -1

// Epoch is day zero of the Date kind.
var Epoch = time.Date(1998, time.January, 1, 0, 0, 0, 0, time.UTC)

// Spec describes one field: its kind, width in bits and kind parameters.
type Spec struct {
	Kind  Kind
	Len   int
	Start float64
	Step  float64
	Label string // ConstantFixed only
}

// Uint describes an n-bit unsigned integer.
func Uint(n int) Spec { return Spec{Kind: UnsignedInt, Len: n} }

// Linear describes value = start + raw*step.
func Linear(n int, start, step float64) Spec {
	return Spec{Kind: ConstantLinear, Len: n, Start: start, Step: step}
}

// Exponential describes value = start * (1+2*step)^raw.
func Exponential(n int, start, step float64) Spec {
	return Spec{Kind: ConstantExponential, Len: n, Start: start, Step: step}
}

// Chr5 describes a string of n/5 five-bit characters.
func Chr5(n int) Spec { return Spec{Kind: Chr5String, Len: n} }

// Ascii7 describes a string of seven-bit characters. Pass Remainder to consume
// the rest of the stream.
func Ascii7(n int) Spec { return Spec{Kind: Ascii7String, Len: n} }

// CalDate describes a 16-bit day count from Epoch.
func CalDate() Spec { return Spec{Kind: Date, Len: 16} }

// Fixed describes a zero-width, documentation-only field.
func Fixed(label string) Spec { return Spec{Kind: ConstantFixed, Label: label} }

// EnumOf describes an enumerated field. Enum fields are not implemented.
func EnumOf(n int) Spec { return Spec{Kind: Enum, Len: n} }

// Decode reads one field from c.
func Decode(s Spec, c *bitcursor.Cursor) (Value, error) {
	switch s.Kind {
	case UnsignedInt:
		raw, err := c.ReadUint(s.Len)
		if err != nil {
			return Value{}, err
		}
		return UintValue(raw), nil

	case ConstantLinear:
		raw, err := c.ReadUint(s.Len)
		if err != nil {
			return Value{}, err
		}
		return FloatValue(s.Start + float64(raw)*s.Step), nil

	case ConstantExponential:
		raw, err := c.ReadUint(s.Len)
		if err != nil {
			return Value{}, err
		}
		return FloatValue(s.Start * math.Pow(1+2*s.Step, float64(raw))), nil

	case Chr5String:
		return decodeChars(c, s.Len, 5, func(g uint64) rune { return rune(chr5Base + g) })

	case Ascii7String:
		if s.Len == Remainder {
			return decodeASCIIRemainder(c)
		}
		return decodeChars(c, s.Len, 7, func(g uint64) rune { return rune(g) })

	case Date:
		raw, err := c.ReadUint(s.Len)
		if err != nil {
			return Value{}, err
		}
		return DateValue(Epoch.AddDate(0, 0, int(raw))), nil

	case ConstantFixed:
		return TextValue(s.Label), nil

	default:
		return Value{}, fmt.Errorf("%w: %s", ErrUnsupportedKind, s.Kind)
	}
}

// Encode appends v to w according to s.
func Encode(s Spec, v Value, w *bitcursor.Writer) error {
	switch s.Kind {
	case ConstantFixed:
		return nil
	case Enum:
		return fmt.Errorf("%w: %s", ErrUnsupportedKind, s.Kind)
	}
	if !v.IsSet() {
		return ErrUnsetField
	}

	switch s.Kind {
	case UnsignedInt:
		raw, err := v.AsUint()
		if err != nil {
			return err
		}
		return w.WriteUint(raw, s.Len)

	case ConstantLinear:
		f, err := v.AsFloat()
		if err != nil {
			return err
		}
		return writeCode(w, (f-s.Start)/s.Step, s.Len)

	case ConstantExponential:
		f, err := v.AsFloat()
		if err != nil {
			return err
		}
		if f <= 0 || s.Start <= 0 {
			return fmt.Errorf("%w: exponential value %g must be positive", bitcursor.ErrOverflow, f)
		}
		return writeCode(w, math.Log(f/s.Start)/math.Log(1+2*s.Step), s.Len)

	case Chr5String:
		return encodeChr5(w, v.Text(), s.Len)

	case Ascii7String:
		return encodeASCII(w, v, s.Len)

	case Date:
		t, err := v.AsTime()
		if err != nil {
			return err
		}
		days := daysSinceEpoch(t)
		if days < 0 {
			return fmt.Errorf("%w: date %s precedes %s", bitcursor.ErrOverflow, t.Format(time.DateOnly), Epoch.Format(time.DateOnly))
		}
		return w.WriteUint(uint64(days), s.Len)

	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedKind, s.Kind)
	}
}

// writeCode rounds a scaled value's inverse to the nearest integer code. The
// wire only carries integer codes, so rounding is required for round trips.
func writeCode(w *bitcursor.Writer, code float64, n int) error {
	rounded := math.Round(code)
	if math.IsNaN(rounded) || rounded < 0 || rounded >= math.Ldexp(1, n) {
		return fmt.Errorf("%w: code %g outside %d-bit range", bitcursor.ErrOverflow, code, n)
	}
	return w.WriteUint(uint64(rounded), n)
}

func daysSinceEpoch(t time.Time) int {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(day.Sub(Epoch).Hours() / 24)
}
