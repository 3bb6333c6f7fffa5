package teds

import (
	"errors"

	"github.com/banshee-data/teds/internal/teds/bitcursor"
	"github.com/banshee-data/teds/internal/teds/field"
	"github.com/banshee-data/teds/internal/teds/template"
)

// Every failure aborts the whole decode or encode; no partial document is
// returned. Callers match with errors.Is.
var (
	ErrInvalidPreamble     = errors.New("invalid vendor preamble")
	ErrUnknownField        = errors.New("unknown field name")
	ErrUnsupportedTemplate = template.ErrUnsupportedTemplate
	ErrUnsupportedBranch   = template.ErrUnsupportedBranch
	ErrInvalidTemplate     = template.ErrInvalidTemplate
	ErrOutOfRange          = bitcursor.ErrOutOfRange
	ErrValueOutOfRange     = bitcursor.ErrOverflow
	ErrUnsetField          = field.ErrUnsetField
	ErrUnsupportedKind     = field.ErrUnsupportedKind
	ErrWrongType           = field.ErrWrongType
)
