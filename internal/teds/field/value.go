package field

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/teds/internal/teds/bitcursor"
)

// ErrWrongType is returned when a value cannot be read as the requested type.
var ErrWrongType = errors.New("value has wrong type")

type valueType int

const (
	unset valueType = iota
	uintType
	floatType
	textType
	timeType
)

// Value is a decoded field value. The zero Value is unset.
type Value struct {
	typ  valueType
	u    uint64
	f    float64
	s    string
	t    time.Time
	tail bitcursor.Buffer
}

// UintValue returns an unsigned integer value.
func UintValue(v uint64) Value { return Value{typ: uintType, u: v} }

// FloatValue returns a real value.
func FloatValue(v float64) Value { return Value{typ: floatType, f: v} }

// TextValue returns a string value.
func TextValue(v string) Value { return Value{typ: textType, s: v} }

// DateValue returns a calendar date value, truncated to the day in UTC.
func DateValue(v time.Time) Value {
	y, m, d := v.Date()
	return Value{typ: timeType, t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// IsSet reports whether the value carries data.
func (v Value) IsSet() bool {
	return v.typ != unset
}

// AsUint returns the value as an unsigned integer. Integral non-negative
// reals are accepted.
func (v Value) AsUint() (uint64, error) {
	switch v.typ {
	case uintType:
		return v.u, nil
	case floatType:
		if v.f >= 0 && v.f == math.Trunc(v.f) && v.f < math.Ldexp(1, 64) {
			return uint64(v.f), nil
		}
	}
	return 0, fmt.Errorf("%w: %s is not an unsigned integer", ErrWrongType, v)
}

// AsFloat returns the value as a real number.
func (v Value) AsFloat() (float64, error) {
	switch v.typ {
	case floatType:
		return v.f, nil
	case uintType:
		return float64(v.u), nil
	}
	return 0, fmt.Errorf("%w: %s is not numeric", ErrWrongType, v)
}

// AsTime returns the value as a date.
func (v Value) AsTime() (time.Time, error) {
	if v.typ != timeType {
		return time.Time{}, fmt.Errorf("%w: %s is not a date", ErrWrongType, v)
	}
	return v.t, nil
}

// Text returns the string form of a text value, or the formatted value for
// other types.
func (v Value) Text() string {
	if v.typ == textType {
		return v.s
	}
	return v.String()
}

// Tail returns the bits left over after the last whole character of a
// remainder text field.
func (v Value) Tail() bitcursor.Buffer {
	return v.tail
}

// WithTail returns a copy of v carrying trailing bits.
func (v Value) WithTail(tail bitcursor.Buffer) Value {
	v.tail = tail
	return v
}

func (v Value) String() string {
	switch v.typ {
	case uintType:
		return strconv.FormatUint(v.u, 10)
	case floatType:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case textType:
		return strconv.Quote(v.s)
	case timeType:
		return v.t.Format(time.DateOnly)
	}
	return "<unset>"
}

// Equal reports whether two values are identical.
func (v Value) Equal(other Value) bool {
	return v.typ == other.typ && v.u == other.u && v.f == other.f &&
		v.s == other.s && v.t.Equal(other.t) && v.tail.Equal(other.tail)
}

// MarshalJSON renders numbers as JSON numbers, text as strings and dates as
// YYYY-MM-DD. Unset values render as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.typ {
	case uintType:
		return json.Marshal(v.u)
	case floatType:
		return json.Marshal(v.f)
	case textType:
		return json.Marshal(v.s)
	case timeType:
		return json.Marshal(v.t.Format(time.DateOnly))
	}
	return []byte("null"), nil
}

// ParseJSON interprets raw JSON as a value for the given spec.
func ParseJSON(s Spec, raw json.RawMessage) (Value, error) {
	if len(raw) == 0 || strings.TrimSpace(string(raw)) == "null" {
		return Value{}, nil
	}
	switch s.Kind {
	case UnsignedInt:
		var u uint64
		if err := json.Unmarshal(raw, &u); err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrWrongType, err)
		}
		return UintValue(u), nil
	case ConstantLinear, ConstantExponential:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrWrongType, err)
		}
		return FloatValue(f), nil
	case Date:
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrWrongType, err)
		}
		t, err := time.Parse(time.DateOnly, str)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrWrongType, err)
		}
		return DateValue(t), nil
	default:
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrWrongType, err)
		}
		return TextValue(str), nil
	}
}
