package config

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Profiles = map[string]Profile{
		"work": {URL: "https://dev.azure.com/contoso", Project: "Fabrikam"},
	}

	rp, err := ResolveProfile(cfg, "work")
	require.NoError(t, err)

	rp.PAT = "super-secret"

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(rp, &buf))

	out := buf.String()
	assert.Contains(t, out, `profile "work"`)
	assert.Contains(t, out, "[profile.work]")
	assert.Contains(t, out, `"https://dev.azure.com/contoso"`)
	assert.Contains(t, out, `project   = "Fabrikam"`)
	assert.Contains(t, out, "[logging]")
	assert.Contains(t, out, "[network]")
	assert.Contains(t, out, "[query]")
	assert.Contains(t, out, "[snapshot]")
	assert.Contains(t, out, EnvPAT+": set")
	assert.NotContains(t, out, "super-secret")
	assert.NotContains(t, out, "username")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestRenderEffective_WriteError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Profiles = map[string]Profile{"p": {}}

	rp, err := ResolveProfile(cfg, "p")
	require.NoError(t, err)

	assert.EqualError(t, RenderEffective(rp, failingWriter{}), "disk full")
}
