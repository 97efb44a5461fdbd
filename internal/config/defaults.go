package config

import "github.com/tonimelisma/workitems-go/internal/tfs"

// Default values for configuration options, layer 0 of the override chain.
const (
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
	defaultConnectTimeout   = "10s"
	defaultDataTimeout      = "60s"
	defaultBatchConcurrency = tfs.DefaultBatchConcurrency
	defaultAPIVersion       = tfs.DefaultAPIVersion
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Profiles: make(map[string]Profile),
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
			APIVersion:     defaultAPIVersion,
		},
		Query: QueryConfig{
			BatchConcurrency: defaultBatchConcurrency,
		},
	}
}
