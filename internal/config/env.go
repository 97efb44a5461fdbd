package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig   = "WORKITEMS_CONFIG"
	EnvProfile  = "WORKITEMS_PROFILE"
	EnvURL      = "WORKITEMS_URL"
	EnvPAT      = "WORKITEMS_PAT"
	EnvPassword = "WORKITEMS_PASSWORD"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // WORKITEMS_CONFIG: override config file path
	Profile    string // WORKITEMS_PROFILE: active profile name
	URL        string // WORKITEMS_URL: collection URL override
	PAT        string // WORKITEMS_PAT: wins over the keyring
	Password   string // WORKITEMS_PASSWORD: NTLM password
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not modify a Config.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Profile:    os.Getenv(EnvProfile),
		URL:        os.Getenv(EnvURL),
		PAT:        os.Getenv(EnvPAT),
		Password:   os.Getenv(EnvPassword),
	}
}
