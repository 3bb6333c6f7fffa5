// Package testutil provides shared test utilities and fixtures.
//
// Fixtures build complete TEDS documents for the supported templates so that
// packages above the codec can exercise real bitstreams.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/teds/internal/teds"
	"github.com/banshee-data/teds/internal/teds/field"
	"github.com/banshee-data/teds/internal/teds/template"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewJSONRequest creates a test HTTP request carrying a JSON body.
func NewJSONRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// Field is one named value for BuildDocument.
type Field struct {
	Name  string
	Value field.Value
}

// BuildDocument assembles a document from template field names in order.
func BuildDocument(t testing.TB, fields ...Field) *teds.Document {
	t.Helper()
	d := teds.NewDocument()
	for _, f := range fields {
		spec, ok := template.Lookup(f.Name)
		if !ok {
			t.Fatalf("unknown TEDS field %q", f.Name)
		}
		d.Set(f.Name, spec, f.Value)
	}
	return d
}

// CalibrationDate is the calibration date used by all fixtures.
var CalibrationDate = time.Date(2023, time.May, 17, 0, 0, 0, 0, time.UTC)

func headerFields(templateID uint64, serial uint64) []Field {
	return []Field{
		{"manufacturer_id", field.UintValue(43)},
		{"model_number", field.UintValue(3321)},
		{"version_letter", field.UintValue(1)},
		{"version_number", field.UintValue(template.CurrentVersion)},
		{"serial_number", field.UintValue(serial)},
		{"start_selector", field.UintValue(0)},
		{"template_id", field.UintValue(templateID)},
	}
}

func trailerFields(userData string) []Field {
	return []Field{
		{"calibration_date", field.DateValue(CalibrationDate)},
		{"calibration_initials", field.TextValue("mjr")},
		{"calibration_period", field.UintValue(365)},
		{"measurement_location_id", field.UintValue(12)},
		{"end_selector", field.UintValue(0)},
		{"extended_end_selector", field.UintValue(0)},
		{"user_data", field.TextValue(userData)},
	}
}

// AccelerometerDocument returns a basic accelerometer document with a
// reference sensitivity of 0.0102 V/(m/s²) and no transfer function.
func AccelerometerDocument(t testing.TB, serial uint64) *teds.Document {
	t.Helper()
	fields := headerFields(template.AccelerometerForce, serial)
	fields = append(fields,
		Field{"acceleration_force", field.UintValue(0)},
		Field{"extended_functionality", field.UintValue(0)},
		Field{"sens_ref", field.FloatValue(0.0102)},
		Field{"tf_hp_s", field.FloatValue(0.3)},
		Field{"direction", field.UintValue(2)},
		Field{"transducer_weight", field.FloatValue(8.5)},
		Field{"sign", field.UintValue(0)},
		Field{"transfer_function", field.UintValue(0)},
		Field{"ref_req", field.FloatValue(100)},
		Field{"ref_temp", field.FloatValue(23)},
	)
	return BuildDocument(t, append(fields, trailerFields("bench 3")...)...)
}

// ExtendedAccelerometerDocument returns an extended accelerometer document
// with two sensitivity ranges, defaulting to the first.
func ExtendedAccelerometerDocument(t testing.TB, serial uint64) *teds.Document {
	t.Helper()
	fields := headerFields(template.AccelerometerForce, serial)
	fields = append(fields,
		Field{"acceleration_force", field.UintValue(0)},
		Field{"extended_functionality", field.UintValue(1)},
		Field{"default_fr", field.UintValue(1)},
		Field{"multiplexer_capable", field.UintValue(0)},
		Field{"sens_ref_01", field.FloatValue(0.001)},
		Field{"tf_hp_s_01", field.FloatValue(0.5)},
		Field{"sens_ref_10", field.FloatValue(0.01)},
		Field{"tf_hp_s_10", field.FloatValue(0.25)},
		Field{"direction", field.UintValue(1)},
		Field{"transducer_weight", field.FloatValue(2)},
		Field{"sign", field.UintValue(0)},
		Field{"transfer_function", field.UintValue(0)},
		Field{"ref_req", field.FloatValue(160)},
		Field{"ref_temp", field.FloatValue(24)},
	)
	return BuildDocument(t, append(fields, trailerFields("")...)...)
}

// ThermocoupleDocument returns a type K thermocouple document.
func ThermocoupleDocument(t testing.TB, serial uint64) *teds.Document {
	t.Helper()
	fields := headerFields(template.Thermocouple, serial)
	fields = append(fields,
		Field{"minimum_temperature", field.FloatValue(-200)},
		Field{"maximum_temperature", field.FloatValue(1250)},
		Field{"minimum_electrical_output", field.FloatValue(-0.006)},
		Field{"maximum_electrical_output", field.FloatValue(0.05)},
		Field{"thermocouple_type", field.UintValue(3)},
		Field{"cjc_required_or_compensated", field.UintValue(1)},
		Field{"thermocouple_resistance", field.FloatValue(120)},
		Field{"sensor_response_time", field.FloatValue(0.5)},
	)
	return BuildDocument(t, append(fields, trailerFields("")...)...)
}

// EncodeDocument encodes d or fails the test.
func EncodeDocument(t testing.TB, d *teds.Document) []byte {
	t.Helper()
	data, err := teds.Encode(d)
	if err != nil {
		t.Fatalf("encode TEDS: %v", err)
	}
	return data
}
