// Package vteds reads and writes virtual TEDS dump files.
//
// Vendor tooling stores a virtual TEDS as one byte per bit: 0x00 for a zero
// and 0x01 for a one, with the 40-bit vendor preamble in front of the
// standard payload. Hand-edited files using ASCII '0' and '1' are accepted on
// read; line breaks are ignored.
package vteds

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/banshee-data/teds/internal/security"
	"github.com/banshee-data/teds/internal/teds"
	"github.com/banshee-data/teds/internal/teds/bitcursor"
)

// Extension is the conventional suffix of virtual TEDS files.
const Extension = ".ted"

// maxFileSize bounds dump files; a full TEDS EEPROM is 256 bits.
const maxFileSize = 64 * 1024

// ErrInvalidDump is returned for bytes that are not a bit marker.
var ErrInvalidDump = errors.New("invalid virtual TEDS dump")

// Read extracts the bitstream from a dump.
func Read(r io.Reader) (bitcursor.Buffer, error) {
	br := bufio.NewReader(io.LimitReader(r, maxFileSize+1))
	var bits []byte
	offset := 0
	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return bitcursor.Buffer{}, err
		}
		if offset++; offset > maxFileSize {
			return bitcursor.Buffer{}, fmt.Errorf("%w: larger than %d bytes", ErrInvalidDump, maxFileSize)
		}
		switch b {
		case 0x00, '0':
			bits = append(bits, '0')
		case 0x01, '1':
			bits = append(bits, '1')
		case '\r', '\n':
		default:
			return bitcursor.Buffer{}, fmt.Errorf("%w: byte 0x%02x at offset %d", ErrInvalidDump, b, offset-1)
		}
	}
	return bitcursor.ParseBits(string(bits))
}

// Write stores buf as a dump, one byte per bit.
func Write(w io.Writer, buf bitcursor.Buffer) error {
	out := make([]byte, buf.Len())
	for i := range out {
		out[i] = buf.Bit(i)
	}
	_, err := w.Write(out)
	return err
}

// Load reads a dump file and decodes it. Dump files carry the vendor
// preamble unless hasPreamble is false.
func Load(path string, hasPreamble bool) (*teds.Document, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open dump: %w", err)
	}
	defer f.Close()

	buf, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read dump %s: %w", path, err)
	}
	doc, err := teds.DecodeBuffer(buf, hasPreamble)
	if err != nil {
		return nil, fmt.Errorf("failed to decode dump %s: %w", path, err)
	}
	return doc, nil
}

// FileName derives a dump file name from the identity fields of doc.
func FileName(doc *teds.Document) string {
	manufacturer, _ := doc.Uint("manufacturer_id")
	model, _ := doc.Uint("model_number")
	serial, _ := doc.Uint("serial_number")
	return security.SanitizeFilename(fmt.Sprintf("%d-%d-%d", manufacturer, model, serial)) + Extension
}

// Save encodes doc into name inside dir. The name must not escape dir.
func Save(dir, name string, doc *teds.Document) (string, error) {
	if filepath.Ext(name) == "" {
		name += Extension
	}
	path := filepath.Join(dir, name)
	if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
		return "", err
	}

	buf, err := teds.EncodeBuffer(doc)
	if err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create dump: %w", err)
	}
	if err := Write(f, buf); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write dump: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close dump: %w", err)
	}
	return path, nil
}
