package template

import "github.com/banshee-data/teds/internal/teds/field"

// Def names one field of a template section.
type Def struct {
	Name string
	Spec field.Spec
}

// Section is an ordered run of fields read or written back to back.
type Section []Def

// Header is read first for every TEDS regardless of sensor class.
var Header = Section{
	{"manufacturer_id", field.Uint(14)},
	{"model_number", field.Uint(15)},
	{"version_letter", field.Uint(5)},
	{"version_number", field.Uint(6)},
	{"serial_number", field.Uint(24)},
	{"start_selector", field.Uint(2)},
	{"template_id", field.Uint(8)},
}

// Trailer closes every template.
var Trailer = Section{
	{"calibration_date", field.CalDate()},
	{"calibration_initials", field.Chr5(15)},
	{"calibration_period", field.Uint(12)},
	{"measurement_location_id", field.Uint(11)},
	{"end_selector", field.Uint(2)},
	{"extended_end_selector", field.Uint(1)},
	{"user_data", field.Ascii7(field.Remainder)},
}

var accelSelectors = Section{
	{"acceleration_force", field.Uint(1)},
	{"extended_functionality", field.Uint(1)},
}

var accelBasic = Section{
	{"sens_ref", field.Exponential(16, 5e-7, 0.00015)},
	{"tf_hp_s", field.Exponential(8, 0.005, 0.03)},
}

var accelExtended = Section{
	{"passive", field.Fixed("0")},
	{"passive_ctrl_function_mask", field.Fixed("0b11")},
	{"passive_read_write", field.Fixed("3")},
	{"passive_function_type", field.Fixed("0")},
	{"passive_function", field.Fixed("xx,00")},
	{"sens_initialize", field.Fixed("0")},
	{"sens_ctrl_function_mask", field.Fixed("0")},
	{"sens_read_write", field.Fixed("3")},
	{"sens_function_type", field.Fixed("1")},
	{"sens_function_10", field.Fixed("10")},
	{"sens_function_01", field.Fixed("10")},
	{"default_fr", field.Uint(2)},
	{"multiplexer_capable", field.Uint(1)},
	{"sens_ref_01", field.Exponential(16, 5e-7, 0.00015)},
	{"sens_ref_10", field.Exponential(16, 5e-7, 0.00015)},
	{"tf_hp_s_01", field.Exponential(8, 0.005, 0.03)},
	{"tf_hp_s_10", field.Exponential(8, 0.005, 0.03)},
}

var accelCommon = Section{
	{"direction", field.Uint(2)},
	{"transducer_weight", field.Exponential(6, 0.1, 0.1)},
	{"elec_sig_type", field.Fixed("Voltage Sensor")},
	{"map_method", field.Fixed("Linear")},
	{"ac_dc_coupling", field.Fixed("AC")},
	{"sign", field.Uint(1)},
	{"transfer_function", field.Uint(1)},
}

var transferFunction = Section{
	{"tf_sp", field.Exponential(7, 10, 0.05)},
	{"tf_kpr", field.Exponential(9, 100, 0.01)},
	{"tf_kpq", field.Exponential(9, 0.4, 0.01)},
	{"tf_sl", field.Linear(7, -6.3, 0.1)},
	{"temp_coef", field.Linear(6, -0.8, 0.025)},
}

var referenceConditions = Section{
	{"ref_req", field.Exponential(8, 0.35, 0.0175)},
	{"ref_temp", field.Linear(5, 15, 0.5)},
}

var thermocouple = Section{
	{"elec_sig_type", field.Fixed("Voltage Sensor")},
	{"minimum_temperature", field.Linear(11, -273, 1)},
	{"maximum_temperature", field.Linear(11, -273, 1)},
	{"minimum_electrical_output", field.Linear(7, -0.025, 0.001)},
	{"maximum_electrical_output", field.Linear(7, -0.025, 0.001)},
	{"mapping_method", field.Fixed("Voltage Sensor")},
	{"thermocouple_type", field.Uint(4)},
	{"cjc_required_or_compensated", field.Uint(1)},
	{"thermocouple_resistance", field.Exponential(12, 1, 0.0015)},
	{"sensor_response_time", field.Exponential(6, 1e-6, 0.15)},
}

var index = buildIndex(Header, Trailer, accelSelectors, accelBasic, accelExtended,
	accelCommon, transferFunction, referenceConditions, thermocouple)

func buildIndex(sections ...Section) map[string]field.Spec {
	m := make(map[string]field.Spec)
	for _, s := range sections {
		for _, d := range s {
			if _, ok := m[d.Name]; !ok {
				m[d.Name] = d.Spec
			}
		}
	}
	return m
}

// Lookup returns the spec of a named field in any supported template.
func Lookup(name string) (field.Spec, bool) {
	s, ok := index[name]
	return s, ok
}
