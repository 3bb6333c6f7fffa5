// Package units converts TEDS quantities into the units acquisition
// hardware expects.
//
// TEDS stores accelerometer sensitivity in V/(m/s²) and force sensitivity in
// V/N. Channel setup wants mV/g and mV/N respectively.
package units

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"gonum.org/v1/gonum/unit"
	"gonum.org/v1/gonum/unit/constant"
)

// Sensitivity unit names.
const (
	VoltsPerMS2     = "V/(m/s²)"
	MillivoltsPerG  = "mV/g"
	VoltsPerNewton  = "V/N"
	MillivoltsPerN  = "mV/N"
	MillivoltsPerMS = "mV/(m/s²)"
)

// Accepted sensitivity units per sensor kind. The first entry is the unit
// channel setup uses by default.
var (
	AccelerationUnits = []string{MillivoltsPerG, MillivoltsPerMS, VoltsPerMS2}
	ForceUnits        = []string{MillivoltsPerN, VoltsPerNewton}
)

// ErrUnknownUnit is returned for a unit that does not apply to the sensor.
var ErrUnknownUnit = errors.New("unknown sensitivity unit")

// Gravity is standard gravity in m/s².
var Gravity = float64(constant.StandardGravity)

// AccelSensitivityMVPerG converts V/(m/s²) to mV/g.
func AccelSensitivityMVPerG(vPerMS2 float64) float64 {
	return vPerMS2 * Gravity / unit.Milli
}

// ForceSensitivityMVPerN converts V/N to mV/N.
func ForceSensitivityMVPerN(vPerN float64) float64 {
	return vPerN / unit.Milli
}

// ConvertSensitivity converts a TEDS sensitivity into target. Accelerometers
// (acceleration true) take a V/(m/s²) input, force sensors a V/N input.
func ConvertSensitivity(value float64, acceleration bool, target string) (float64, error) {
	valid := ForceUnits
	if acceleration {
		valid = AccelerationUnits
	}
	if !slices.Contains(valid, target) {
		return 0, fmt.Errorf("%w %q: expected one of %s", ErrUnknownUnit, target, strings.Join(valid, ", "))
	}
	switch target {
	case MillivoltsPerG:
		return AccelSensitivityMVPerG(value), nil
	case MillivoltsPerN:
		return ForceSensitivityMVPerN(value), nil
	case MillivoltsPerMS:
		return value / unit.Milli, nil
	default:
		return value, nil
	}
}

// Range converts a channel voltage range into physical limits for a sensor
// with sensitivity sens (volts per physical unit). A negative sensitivity
// swaps the limits so that min stays below max.
func Range(vmin, vmax, sens float64) (lo, hi float64, err error) {
	if sens == 0 {
		return 0, 0, fmt.Errorf("sensitivity must be non-zero")
	}
	if vmin >= vmax {
		return 0, 0, fmt.Errorf("invalid voltage range [%g, %g]", vmin, vmax)
	}
	lo, hi = vmin/sens, vmax/sens
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi, nil
}

// CelsiusToKelvin converts a TEDS temperature (°C) to a gonum temperature.
func CelsiusToKelvin(c float64) unit.Temperature {
	return unit.Temperature(c + 273.15)
}
