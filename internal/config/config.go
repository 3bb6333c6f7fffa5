package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/teds/internal/acquire"
)

// ExampleConfigPath is the checked-in example configuration.
const ExampleConfigPath = "config/teds.example.json"

// Defaults applied by the Get* accessors.
const (
	DefaultDatabasePath = "teds.db"
	DefaultListen       = "localhost:8088"
	DefaultDumpDir      = "dumps"
	DefaultReadTimeout  = 2 * time.Second
)

// Config is the service configuration. Every field is optional; omitted
// fields fall back to the defaults returned by the Get* methods.
type Config struct {
	DatabasePath *string `json:"database_path,omitempty"`
	Listen       *string `json:"listen,omitempty"`
	DumpDir      *string `json:"dump_dir,omitempty"`

	// HasPreamble is the default for decode requests that do not say.
	HasPreamble *bool `json:"has_preamble,omitempty"`

	// Serial acquisition
	SerialPort  *string `json:"serial_port,omitempty"`
	BaudRate    *int    `json:"baud_rate,omitempty"`
	DataBits    *int    `json:"data_bits,omitempty"`
	StopBits    *int    `json:"stop_bits,omitempty"`
	Parity      *string `json:"parity,omitempty"`
	ReadCommand *string `json:"read_command,omitempty"`
	ReadTimeout *string `json:"read_timeout,omitempty"` // duration string like "2s"
}

// EmptyConfig returns a Config with every field unset.
func EmptyConfig() *Config {
	return &Config{}
}

// LoadConfig loads a Config from a JSON file. The file must have a .json
// extension and be under 1MB. Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()

	cfg := EmptyConfig()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are set.
func (c *Config) Validate() error {
	if c.ReadTimeout != nil && *c.ReadTimeout != "" {
		d, err := time.ParseDuration(*c.ReadTimeout)
		if err != nil {
			return fmt.Errorf("invalid read_timeout '%s': %w", *c.ReadTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("read_timeout must be positive, got %s", d)
		}
	}
	if c.BaudRate != nil && *c.BaudRate < 0 {
		return fmt.Errorf("baud_rate must be non-negative, got %d", *c.BaudRate)
	}
	if _, err := c.PortOptions().Normalize(); err != nil {
		return err
	}
	return nil
}

// GetDatabasePath returns database_path or the default.
func (c *Config) GetDatabasePath() string {
	return stringOr(c.DatabasePath, DefaultDatabasePath)
}

// GetListen returns listen or the default.
func (c *Config) GetListen() string {
	return stringOr(c.Listen, DefaultListen)
}

// GetDumpDir returns dump_dir or the default.
func (c *Config) GetDumpDir() string {
	return stringOr(c.DumpDir, DefaultDumpDir)
}

// GetSerialPort returns serial_port, or "" when acquisition is disabled.
func (c *Config) GetSerialPort() string {
	return stringOr(c.SerialPort, "")
}

// GetHasPreamble returns has_preamble or false.
func (c *Config) GetHasPreamble() bool {
	if c.HasPreamble == nil {
		return false
	}
	return *c.HasPreamble
}

// GetReadTimeout parses read_timeout, falling back to the default.
func (c *Config) GetReadTimeout() time.Duration {
	if c.ReadTimeout == nil || *c.ReadTimeout == "" {
		return DefaultReadTimeout
	}
	d, err := time.ParseDuration(*c.ReadTimeout)
	if err != nil || d <= 0 {
		return DefaultReadTimeout
	}
	return d
}

// PortOptions converts the serial settings for the acquire package. Unset
// values stay zero so acquire applies its own defaults.
func (c *Config) PortOptions() acquire.PortOptions {
	opts := acquire.PortOptions{
		Parity:  stringOr(c.Parity, ""),
		Command: stringOr(c.ReadCommand, ""),
		Timeout: c.GetReadTimeout(),
	}
	if c.BaudRate != nil {
		opts.BaudRate = *c.BaudRate
	}
	if c.DataBits != nil {
		opts.DataBits = *c.DataBits
	}
	if c.StopBits != nil {
		opts.StopBits = *c.StopBits
	}
	return opts
}

func stringOr(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}
