package field

import (
	"fmt"
	"strings"

	"github.com/banshee-data/teds/internal/teds/bitcursor"
)

const (
	chr5Base   = 0x60 // '`', code 0
	chr5Mask   = 0x1F
	ascii7Mask = 0x7F
)

func decodeChars(c *bitcursor.Cursor, n, group int, toRune func(uint64) rune) (Value, error) {
	if n%group != 0 {
		return Value{}, fmt.Errorf("width %d is not a multiple of %d", n, group)
	}
	if n > c.Remaining() {
		// Fail before consuming any character.
		_, err := c.ReadRaw(n)
		return Value{}, err
	}
	var sb strings.Builder
	for i := 0; i < n/group; i++ {
		g, err := c.ReadUint(group)
		if err != nil {
			return Value{}, err
		}
		sb.WriteRune(toRune(g))
	}
	return TextValue(sb.String()), nil
}

// decodeASCIIRemainder consumes the rest of the stream. Whole 7-bit groups
// become characters; the leftover bits are kept on the value so re-encoding
// reproduces the original length. An empty remainder decodes to "".
func decodeASCIIRemainder(c *bitcursor.Cursor) (Value, error) {
	rest := bitcursor.NewCursor(c.ReadRemainder())
	var sb strings.Builder
	for rest.Remaining() >= 7 {
		g, err := rest.ReadUint(7)
		if err != nil {
			return Value{}, err
		}
		sb.WriteRune(rune(g))
	}
	return TextValue(sb.String()).WithTail(rest.ReadRemainder()), nil
}

func encodeChr5(w *bitcursor.Writer, s string, n int) error {
	count := n / 5
	if len(s) > count {
		return fmt.Errorf("%w: %q longer than %d characters", bitcursor.ErrOverflow, s, count)
	}
	for i := 0; i < count; i++ {
		var code uint64
		if i < len(s) {
			code = uint64(s[i]) & chr5Mask
		}
		if err := w.WriteUint(code, 5); err != nil {
			return err
		}
	}
	return nil
}

func encodeASCII(w *bitcursor.Writer, v Value, n int) error {
	s := v.Text()
	if n != Remainder && len(s)*7 > n {
		return fmt.Errorf("%w: %q longer than %d characters", bitcursor.ErrOverflow, s, n/7)
	}
	for i := 0; i < len(s); i++ {
		if s[i] > ascii7Mask {
			return fmt.Errorf("%w: byte 0x%02x is not 7-bit ASCII", bitcursor.ErrOverflow, s[i])
		}
		if err := w.WriteUint(uint64(s[i]), 7); err != nil {
			return err
		}
	}
	if n == Remainder {
		w.WriteRaw(v.Tail())
		return nil
	}
	// Fixed-width fields are padded with NUL characters.
	for i := len(s); i < n/7; i++ {
		if err := w.WriteUint(0, 7); err != nil {
			return err
		}
	}
	return nil
}
