// Package channel turns TEDS documents into acquisition channel settings.
//
// A channel gets its sensor description from one of three places: TEDS
// words read from the hardware, a virtual TEDS dump file, or a manually
// assembled document for sensors without TEDS memory.
package channel

import (
	"errors"
	"fmt"
	"slices"

	"github.com/banshee-data/teds/internal/monitoring"
	"github.com/banshee-data/teds/internal/teds"
	"github.com/banshee-data/teds/internal/teds/template"
	"github.com/banshee-data/teds/internal/units"
	"github.com/banshee-data/teds/internal/vteds"
)

// Source records where a channel's sensor description came from.
type Source string

const (
	SourceNone     Source = ""
	SourceHardware Source = "hardware"
	SourceVirtual  Source = "virtual"
	SourceManual   Source = "manual"
	SourceStored   Source = "stored"
)

// Measurement kinds.
const (
	KindAcceleration = "acceleration"
	KindForce        = "force"
	KindTemperature  = "temperature"
)

// Directions accepted by SetDirection.
var Directions = []string{"Scalar", "+X", "-X", "+Y", "-Y", "+Z", "-Z"}

var (
	ErrNoSensorInfo     = errors.New("channel has no sensor information")
	ErrInvalidDirection = errors.New("invalid direction")
)

// VoltageRange is the input range of the acquisition channel in volts.
type VoltageRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Channel is one analog input and the sensor attached to it.
type Channel struct {
	Name        string
	DisplayName string
	HasTEDS     bool
	Range       VoltageRange
	// SensitivityUnit overrides the exported sensitivity unit. Empty selects
	// mV/g for accelerometers and mV/N for force sensors.
	SensitivityUnit string

	direction string
	source    Source
	info      *teds.Document
}

// Config is the acquisition setup derived from a channel.
type Config struct {
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name,omitempty"`
	Source      Source  `json:"source"`
	Family      string  `json:"family,omitempty"`
	Kind        string  `json:"kind"`
	Direction   string  `json:"direction"`
	Response    bool    `json:"response"`
	Sensitivity float64 `json:"sensitivity,omitempty"`
	SensitivityUnit string  `json:"sensitivity_unit,omitempty"`
	Min             float64 `json:"min"`
	Max             float64 `json:"max"`
}

// New returns a channel with the default +Z direction.
func New(name string, hasTEDS bool, r VoltageRange) *Channel {
	return &Channel{Name: name, HasTEDS: hasTEDS, Range: r, direction: "+Z"}
}

// Direction returns the measurement direction.
func (c *Channel) Direction() string { return c.direction }

// SetDirection sets the measurement direction, one of Directions.
func (c *Channel) SetDirection(d string) error {
	if !slices.Contains(Directions, d) {
		return fmt.Errorf("%w %q", ErrInvalidDirection, d)
	}
	c.direction = d
	return nil
}

// Info returns the sensor document, or nil before one is set.
func (c *Channel) Info() *teds.Document { return c.info }

// Source reports where the sensor document came from.
func (c *Channel) Source() Source { return c.source }

// SetFromWords decodes hardware TEDS words.
func (c *Channel) SetFromWords(words []uint64) error {
	doc, err := teds.DecodeWords(words)
	if err != nil {
		return fmt.Errorf("channel %s: %w", c.Name, err)
	}
	c.info, c.source = doc, SourceHardware
	return nil
}

// SetFromDump loads a virtual TEDS dump, which always carries the preamble.
func (c *Channel) SetFromDump(path string) error {
	doc, err := vteds.Load(path, true)
	if err != nil {
		return fmt.Errorf("channel %s: %w", c.Name, err)
	}
	c.info, c.source = doc, SourceVirtual
	return nil
}

// SetDocument attaches an already decoded document, such as one loaded from
// the sensor database.
func (c *Channel) SetDocument(doc *teds.Document, src Source) error {
	if doc == nil {
		return fmt.Errorf("channel %s: %w", c.Name, ErrNoSensorInfo)
	}
	c.info, c.source = doc, src
	return nil
}

// SetFromInfo uses a manually assembled document. It must carry sens_ref;
// acceleration_force defaults to an accelerometer when absent.
func (c *Channel) SetFromInfo(doc *teds.Document) error {
	if doc == nil {
		return fmt.Errorf("channel %s: %w", c.Name, ErrNoSensorInfo)
	}
	sens, err := doc.Float("sens_ref")
	if err != nil {
		return fmt.Errorf("channel %s: %w", c.Name, err)
	}
	if _, _, err := units.Range(c.Range.Min, c.Range.Max, sens); err != nil {
		return fmt.Errorf("channel %s: %w", c.Name, err)
	}
	monitoring.Logf("channel %s: manual sensor info, sens_ref=%g", c.Name, sens)
	c.info, c.source = doc, SourceManual
	return nil
}

// IsResponse reports whether the sensor measures the structure's response
// (an accelerometer) rather than the excitation (a force sensor).
func (c *Channel) IsResponse() bool {
	if c.info == nil {
		return false
	}
	af, err := c.info.Uint("acceleration_force")
	if err != nil {
		return c.source == SourceManual
	}
	return af == 0
}

// Config derives the acquisition setup for the channel.
func (c *Channel) Config() (Config, error) {
	if c.info == nil {
		return Config{}, fmt.Errorf("channel %s: %w", c.Name, ErrNoSensorInfo)
	}
	cfg := Config{
		Name:        c.Name,
		DisplayName: c.DisplayName,
		Source:      c.source,
		Direction:   c.direction,
	}
	if id, err := c.info.TemplateID(); err == nil {
		cfg.Family, _ = template.FamilyName(id)
		if id == template.Thermocouple {
			return c.thermocoupleConfig(cfg)
		}
	}

	sens, err := Sensitivity(c.info)
	if err != nil {
		return Config{}, fmt.Errorf("channel %s: %w", c.Name, err)
	}
	cfg.Min, cfg.Max, err = units.Range(c.Range.Min, c.Range.Max, sens)
	if err != nil {
		return Config{}, fmt.Errorf("channel %s: %w", c.Name, err)
	}

	cfg.Response = c.IsResponse()
	cfg.Kind = KindForce
	cfg.SensitivityUnit = units.ForceUnits[0]
	if cfg.Response {
		cfg.Kind = KindAcceleration
		cfg.SensitivityUnit = units.AccelerationUnits[0]
	}
	if c.SensitivityUnit != "" {
		cfg.SensitivityUnit = c.SensitivityUnit
	}
	cfg.Sensitivity, err = units.ConvertSensitivity(sens, cfg.Response, cfg.SensitivityUnit)
	if err != nil {
		return Config{}, fmt.Errorf("channel %s: %w", c.Name, err)
	}
	return cfg, nil
}

func (c *Channel) thermocoupleConfig(cfg Config) (Config, error) {
	lo, err := c.info.Float("minimum_temperature")
	if err != nil {
		return Config{}, fmt.Errorf("channel %s: %w", c.Name, err)
	}
	hi, err := c.info.Float("maximum_temperature")
	if err != nil {
		return Config{}, fmt.Errorf("channel %s: %w", c.Name, err)
	}
	cfg.Kind = KindTemperature
	cfg.Min, cfg.Max = lo, hi
	return cfg, nil
}

// Sensitivity returns the reference sensitivity of an accelerometer or
// force document in volts per physical unit. Extended accelerometers report
// the range selected by default_fr: 2 selects sens_ref_10, anything else
// sens_ref_01.
func Sensitivity(doc *teds.Document) (float64, error) {
	if doc.Has("sens_ref") {
		return doc.Float("sens_ref")
	}
	name := "sens_ref_01"
	if fr, err := doc.Uint("default_fr"); err == nil && fr == 2 {
		name = "sens_ref_10"
	}
	return doc.Float(name)
}
