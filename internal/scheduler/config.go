// Package scheduler runs the background callback reminder sweep.
package scheduler

import "time"

// Config defines the sweep cadence.
type Config struct {
	// Interval is the time between sweeps.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
	// BatchSize caps how many due callbacks one sweep looks at.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

// DefaultConfig returns the default sweep configuration.
func DefaultConfig() *Config {
	return &Config{
		Interval:  time.Minute,
		BatchSize: 200,
	}
}
