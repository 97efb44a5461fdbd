package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal with "did you mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with defaults.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// ConfigPath picks the config file path: CLI > env > default.
func ConfigPath(env EnvOverrides, cli CLIOverrides) string {
	if cli.ConfigPath != "" {
		return cli.ConfigPath
	}

	if env.ConfigPath != "" {
		return env.ConfigPath
	}

	return DefaultConfigPath()
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags. It returns
// a validated profile ready for use.
func Resolve(env EnvOverrides, cli CLIOverrides) (*ResolvedProfile, error) {
	cfgPath := ConfigPath(env, cli)

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	profileName := cli.Profile
	if profileName == "" {
		profileName = env.Profile
	}

	// Without any profile, synthesize one so env-only setups (CI) work.
	if len(cfg.Profiles) == 0 {
		name := defaultProfileName
		if profileName != "" {
			name = profileName
		}

		cfg.Profiles = map[string]Profile{name: {}}
	}

	resolved, err := ResolveProfile(cfg, profileName)
	if err != nil {
		return nil, err
	}

	resolved.ConfigPath = cfgPath

	if env.URL != "" {
		resolved.URL = env.URL
	}

	if cli.URL != "" {
		resolved.URL = cli.URL
	}

	resolved.PAT = env.PAT
	if env.Password != "" {
		resolved.Password = env.Password
	}

	if err := ValidateResolved(resolved); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolved, nil
}
