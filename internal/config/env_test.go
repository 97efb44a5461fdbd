package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadEnvOverrides(t *testing.T) {
	t.Setenv(EnvConfig, "/tmp/c.toml")
	t.Setenv(EnvProfile, "ci")
	t.Setenv(EnvURL, "https://dev.azure.com/ci")
	t.Setenv(EnvPAT, "pat")
	t.Setenv(EnvPassword, "pw")

	assert.Equal(t, EnvOverrides{
		ConfigPath: "/tmp/c.toml",
		Profile:    "ci",
		URL:        "https://dev.azure.com/ci",
		PAT:        "pat",
		Password:   "pw",
	}, ReadEnvOverrides())
}

func TestConfigPath_Precedence(t *testing.T) {
	assert.Equal(t, "/cli", ConfigPath(EnvOverrides{ConfigPath: "/env"}, CLIOverrides{ConfigPath: "/cli"}))
	assert.Equal(t, "/env", ConfigPath(EnvOverrides{ConfigPath: "/env"}, CLIOverrides{}))
	assert.Equal(t, DefaultConfigPath(), ConfigPath(EnvOverrides{}, CLIOverrides{}))
}
