package robot

import (
	"encoding/json"
	"os"
	"time"
)

// Jog and sampling defaults.
const (
	DefaultStep            = 50
	DefaultHz              = 30
	DefaultCommandInterval = 20 * time.Millisecond
)

// Config holds the arm configuration written by setup
type Config struct {
	Port              string `json:"port"`
	BaudRate          int    `json:"baud_rate,omitempty"`
	LimitsFile        string `json:"limits_file,omitempty"`
	Step              int    `json:"step,omitempty"`
	Hz                int    `json:"hz,omitempty"`
	Speed             int    `json:"speed,omitempty"`
	Acceleration      int    `json:"acceleration,omitempty"`
	CommandIntervalMS int    `json:"command_interval_ms,omitempty"`
}

// WithDefaults fills unset fields with built-in defaults
func (c Config) WithDefaults() Config {
	if c.LimitsFile == "" {
		c.LimitsFile = DefaultLimitsFile
	}
	if c.Step == 0 {
		c.Step = DefaultStep
	}
	if c.Hz == 0 {
		c.Hz = DefaultHz
	}
	if c.Speed == 0 {
		c.Speed = DefaultSpeed
	}
	if c.Acceleration == 0 {
		c.Acceleration = DefaultAcceleration
	}
	if c.CommandIntervalMS == 0 {
		c.CommandIntervalMS = int(DefaultCommandInterval / time.Millisecond)
	}
	return c
}

// CommandInterval returns the minimum time between bus commands
func (c Config) CommandInterval() time.Duration {
	return time.Duration(c.CommandIntervalMS) * time.Millisecond
}

// LoadConfigFrom loads configuration from a specific file
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
