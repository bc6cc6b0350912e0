package config

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled turns on the metrics HTTP server.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Addr is the listen address for the metrics server (e.g., ":9090").
	Addr string `yaml:"addr"`
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled: true,
		Addr:    ":9090",
	}
}

// PprofConfig contains pprof profiling server configuration.
type PprofConfig struct {
	// Enabled turns on the pprof HTTP server.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Addr is the listen address for the pprof server (e.g., ":6060").
	Addr string `yaml:"addr"`
}

// DefaultPprofConfig returns the default pprof configuration.
func DefaultPprofConfig() PprofConfig {
	return PprofConfig{
		Enabled: false,
		Addr:    ":6060",
	}
}
