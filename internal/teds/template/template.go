// Package template walks the TEDS field layout: a fixed header, a body chosen
// by template id and selector bits, and a common trailer.
//
// The same walk serves decoding and encoding. A Driver supplies the value of
// each field in order; a decoding driver reads it from the bitstream, an
// encoding driver looks it up in a document and writes it out. Either way the
// returned value steers later branches.
package template

import (
	"errors"
	"fmt"

	"github.com/banshee-data/teds/internal/teds/field"
)

var (
	// ErrUnsupportedTemplate is returned for template ids with no layout.
	ErrUnsupportedTemplate = errors.New("unsupported template")
	// ErrUnsupportedBranch is returned for declared but unimplemented bodies.
	ErrUnsupportedBranch = errors.New("unsupported template branch")
	// ErrInvalidTemplate is returned when selector values match no branch.
	ErrInvalidTemplate = errors.New("invalid template")
)

// Template ids with a known layout.
const (
	AccelerometerForce uint64 = 25
	Thermocouple       uint64 = 36
)

// CurrentVersion is the TEDS version the layouts follow. Other versions are
// decoded with the same layout and flagged as legacy.
const CurrentVersion = 2

// Driver supplies the value of each field as the template is walked.
type Driver interface {
	Field(name string, spec field.Spec) (field.Value, error)
}

// Result summarises a completed walk.
type Result struct {
	TemplateID uint64
	Family     string
	Branch     string
	Version    uint64
	// Legacy is set when Version differs from CurrentVersion.
	Legacy bool
}

type family struct {
	name string
	body func(Driver) (string, error)
}

var families = map[uint64]family{
	AccelerometerForce: {"accelerometer/force", accelForceBody},
	Thermocouple:       {"thermocouple", thermocoupleBody},
}

// FamilyName returns the sensor family of a template id.
func FamilyName(id uint64) (string, bool) {
	f, ok := families[id]
	return f.name, ok
}

type selector struct {
	accelForce, extended uint64
}

type branch struct {
	name        string
	fields      Section
	unsupported bool
}

var accelBranches = map[selector]branch{
	{0, 0}: {name: "accelerometer", fields: accelBasic},
	{1, 0}: {name: "force", unsupported: true},
	{0, 1}: {name: "accelerometer extended", fields: accelExtended},
	{1, 1}: {name: "force extended", unsupported: true},
}

// Run walks header, body and trailer, asking d for every field in order.
func Run(d Driver) (Result, error) {
	hdr, err := Header.run(d)
	if err != nil {
		return Result{}, err
	}

	var res Result
	if res.TemplateID, err = hdr.uint("template_id"); err != nil {
		return Result{}, err
	}
	if res.Version, err = hdr.uint("version_number"); err != nil {
		return Result{}, err
	}
	res.Legacy = res.Version != CurrentVersion

	fam, ok := families[res.TemplateID]
	if !ok {
		return Result{}, fmt.Errorf("%w: id %d", ErrUnsupportedTemplate, res.TemplateID)
	}
	res.Family = fam.name
	if res.Branch, err = fam.body(d); err != nil {
		return Result{}, err
	}

	if _, err := Trailer.run(d); err != nil {
		return Result{}, err
	}
	return res, nil
}

func accelForceBody(d Driver) (string, error) {
	sel, err := accelSelectors.run(d)
	if err != nil {
		return "", err
	}
	af, errAF := sel.uint("acceleration_force")
	ext, errExt := sel.uint("extended_functionality")
	if errAF != nil || errExt != nil {
		return "", fmt.Errorf("%w: selector bits are not integers", ErrInvalidTemplate)
	}
	br, ok := accelBranches[selector{af, ext}]
	if !ok {
		return "", fmt.Errorf("%w: acceleration_force=%d extended_functionality=%d", ErrInvalidTemplate, af, ext)
	}
	if br.unsupported {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedBranch, br.name)
	}
	if _, err := br.fields.run(d); err != nil {
		return "", err
	}

	common, err := accelCommon.run(d)
	if err != nil {
		return "", err
	}
	tf, err := common.uint("transfer_function")
	if err != nil {
		return "", err
	}
	if tf == 1 {
		if _, err := transferFunction.run(d); err != nil {
			return "", err
		}
	}

	if _, err := referenceConditions.run(d); err != nil {
		return "", err
	}
	return br.name, nil
}

func thermocoupleBody(d Driver) (string, error) {
	if _, err := thermocouple.run(d); err != nil {
		return "", err
	}
	return "thermocouple", nil
}

type values map[string]field.Value

func (v values) uint(name string) (uint64, error) {
	u, err := v[name].AsUint()
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", name, err)
	}
	return u, nil
}

func (s Section) run(d Driver) (values, error) {
	out := make(values, len(s))
	for _, def := range s {
		v, err := d.Field(def.Name, def.Spec)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", def.Name, err)
		}
		out[def.Name] = v
	}
	return out, nil
}
