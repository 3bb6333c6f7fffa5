package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccelSensitivityMVPerG(t *testing.T) {
	// 10.2 mV/(m/s²) is 100 mV/g to within a rounding of g.
	assert.InDelta(t, 100.0, AccelSensitivityMVPerG(0.0102), 0.05)
	assert.InDelta(t, 9.80665, AccelSensitivityMVPerG(0.001), 1e-9)
	assert.Zero(t, AccelSensitivityMVPerG(0))
}

func TestForceSensitivityMVPerN(t *testing.T) {
	assert.InDelta(t, 22.5, ForceSensitivityMVPerN(0.0225), 1e-9)
}

func TestConvertSensitivity(t *testing.T) {
	tests := []struct {
		name         string
		acceleration bool
		target       string
		want         float64
		wantErr      bool
	}{
		{"accel V/(m/s²)", true, VoltsPerMS2, 0.002, false},
		{"accel mV/(m/s²)", true, MillivoltsPerMS, 2, false},
		{"accel mV/g", true, MillivoltsPerG, 19.6133, false},
		{"force V/N", false, VoltsPerNewton, 0.002, false},
		{"force mV/N", false, MillivoltsPerN, 2, false},
		{"force in mV/g", false, MillivoltsPerG, 0, true},
		{"accel in mV/N", true, MillivoltsPerN, 0, true},
		{"nonsense", true, "furlongs", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConvertSensitivity(0.002, tt.acceleration, tt.target)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownUnit)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	_, err := ConvertSensitivity(1, true, "furlongs")
	assert.ErrorContains(t, err, "mV/g, mV/(m/s²), V/(m/s²)")
}

func TestRange(t *testing.T) {
	lo, hi, err := Range(-5, 5, 0.01)
	require.NoError(t, err)
	assert.InDelta(t, -500, lo, 1e-9)
	assert.InDelta(t, 500, hi, 1e-9)

	lo, hi, err = Range(-1, 4, -0.01)
	require.NoError(t, err)
	assert.InDelta(t, -400, lo, 1e-9)
	assert.InDelta(t, 100, hi, 1e-9)

	_, _, err = Range(-5, 5, 0)
	assert.Error(t, err)
	_, _, err = Range(5, 5, 1)
	assert.Error(t, err)
}

func TestCelsiusToKelvin(t *testing.T) {
	assert.InDelta(t, 0.0, float64(CelsiusToKelvin(-273.15)), 1e-9)
	assert.InDelta(t, 296.15, float64(CelsiusToKelvin(23)), 1e-9)
}
