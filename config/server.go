// Package config contains the configuration types shared by the smart meter
// server components, loaded from a single yaml file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hblackburnRedev/SmartMeter/logging"
)

// ServerConfig is the configuration for the telemetry server.
type ServerConfig struct {
	// ListenAddr is the address the WebSocket endpoint listens on
	// (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// APIKey is the shared key connecting meters must present.
	APIKey string `yaml:"api_key"`

	// ReadingsDir is the root directory holding per-client profiles and
	// daily ledger files.
	ReadingsDir string `yaml:"readings_dir"`

	// RateTablePath is the path to the headered per-region tariff CSV.
	RateTablePath string `yaml:"rate_table_path"`

	// GridAlerts configures the background grid status broadcaster.
	GridAlerts GridAlertsConfig `yaml:"grid_alerts"`

	// Metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// PProf configuration.
	PProf PprofConfig `yaml:"pprof"`

	// Logging configuration.
	Logging logging.Config `yaml:"logging"`
}

// GridAlertsConfig configures the grid status broadcaster intervals.
// Each cycle waits a random duration in [DownAfterMin, DownAfterMax] before
// broadcasting "down", then a random duration in [UpAfterMin, UpAfterMax]
// before broadcasting "up".
type GridAlertsConfig struct {
	// Enabled turns on the broadcaster.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Default: 10
	DownAfterMinSeconds int `yaml:"down_after_min_seconds,omitempty"`
	// Default: 30
	DownAfterMaxSeconds int `yaml:"down_after_max_seconds,omitempty"`
	// Default: 5
	UpAfterMinSeconds int `yaml:"up_after_min_seconds,omitempty"`
	// Default: 10
	UpAfterMaxSeconds int `yaml:"up_after_max_seconds,omitempty"`
}

// DownAfterMin returns the lower bound of the outage interval.
func (g *GridAlertsConfig) DownAfterMin() time.Duration {
	return time.Duration(g.DownAfterMinSeconds) * time.Second
}

// DownAfterMax returns the upper bound of the outage interval.
func (g *GridAlertsConfig) DownAfterMax() time.Duration {
	return time.Duration(g.DownAfterMaxSeconds) * time.Second
}

// UpAfterMin returns the lower bound of the recovery interval.
func (g *GridAlertsConfig) UpAfterMin() time.Duration {
	return time.Duration(g.UpAfterMinSeconds) * time.Second
}

// UpAfterMax returns the upper bound of the recovery interval.
func (g *GridAlertsConfig) UpAfterMax() time.Duration {
	return time.Duration(g.UpAfterMaxSeconds) * time.Second
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
// APIKey, ReadingsDir and RateTablePath have no defaults and must be set.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr: ":8080",
		GridAlerts: GridAlertsConfig{
			Enabled:             true,
			DownAfterMinSeconds: 10,
			DownAfterMaxSeconds: 30,
			UpAfterMinSeconds:   5,
			UpAfterMaxSeconds:   10,
		},
		Metrics: DefaultMetricsConfig(),
		PProf:   DefaultPprofConfig(),
		Logging: logging.DefaultConfig(),
	}
}

// LoadServerConfig reads and validates a ServerConfig from a yaml file.
// Fields absent from the file keep their defaults.
func LoadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultServerConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for missing or inconsistent values.
func (c *ServerConfig) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}
	if c.ReadingsDir == "" {
		return fmt.Errorf("readings_dir is required")
	}
	if c.RateTablePath == "" {
		return fmt.Errorf("rate_table_path is required")
	}
	if err := c.GridAlerts.validate(); err != nil {
		return err
	}
	return nil
}

func (g *GridAlertsConfig) validate() error {
	if !g.Enabled {
		return nil
	}
	if g.DownAfterMinSeconds <= 0 || g.UpAfterMinSeconds <= 0 {
		return fmt.Errorf("grid_alerts intervals must be positive")
	}
	if g.DownAfterMaxSeconds < g.DownAfterMinSeconds {
		return fmt.Errorf("grid_alerts down_after_max_seconds must be >= down_after_min_seconds")
	}
	if g.UpAfterMaxSeconds < g.UpAfterMinSeconds {
		return fmt.Errorf("grid_alerts up_after_max_seconds must be >= up_after_min_seconds")
	}
	return nil
}
