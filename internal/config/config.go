// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for workitems. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags) with
// named profiles, each describing one collection and how to authenticate
// against it.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	DefaultProfile string             `toml:"default_profile"`
	Profiles       map[string]Profile `toml:"profile"`
	Logging        LoggingConfig      `toml:"logging"`
	Network        NetworkConfig      `toml:"network"`
	Query          QueryConfig        `toml:"query"`
	Snapshot       SnapshotConfig     `toml:"snapshot"`
}

// LoggingConfig controls log output: level and handler format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level" json:"log_level" yaml:"log_level"`
	LogFormat string `toml:"log_format" json:"log_format" yaml:"log_format"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout    string  `toml:"connect_timeout" json:"connect_timeout" yaml:"connect_timeout"`
	DataTimeout       string  `toml:"data_timeout" json:"data_timeout" yaml:"data_timeout"`
	UserAgent         string  `toml:"user_agent" json:"user_agent" yaml:"user_agent"`
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second" yaml:"requests_per_second"`
	APIVersion        string  `toml:"api_version" json:"api_version" yaml:"api_version"`
}

// QueryConfig controls query execution.
type QueryConfig struct {
	BatchConcurrency int `toml:"batch_concurrency" json:"batch_concurrency" yaml:"batch_concurrency"`
	DefaultTop       int `toml:"default_top" json:"default_top" yaml:"default_top"`
}

// SnapshotConfig locates the snapshot database.
type SnapshotConfig struct {
	DBPath string `toml:"db_path" json:"db_path" yaml:"db_path"`
}

// CLIOverrides holds values from CLI flags. Empty strings mean "not
// specified".
type CLIOverrides struct {
	ConfigPath string // --config
	Profile    string // --profile
	URL        string // --url
}
