package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/workitems-go/internal/config"
	"github.com/tonimelisma/workitems-go/internal/tokenfile"
)

func TestTokenState(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		tok  oauth2.Token
		want string
	}{
		{"refresh token", oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: now.Add(-time.Hour)}, credStateValid},
		{"unexpired", oauth2.Token{AccessToken: "a", Expiry: now.Add(time.Hour)}, credStateValid},
		{"expired", oauth2.Token{AccessToken: "a", Expiry: now.Add(-time.Hour)}, credStateExpired},
		{"no expiry", oauth2.Token{AccessToken: "a"}, credStateValid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := tt.tok
			assert.Equal(t, tt.want, tokenState(&tokenfile.File{Token: &tok}, now))
		})
	}
}

func TestCredentialState(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	logger := slog.New(slog.DiscardHandler)

	tokenPath := filepath.Join(dir, "tok.json")
	require.NoError(t, tokenfile.Save(tokenPath, &tokenfile.File{
		Token: &oauth2.Token{AccessToken: "a", RefreshToken: "r"},
		Meta:  tokenfile.Meta{DisplayName: "Alice"},
	}))

	corrupt := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{"), 0o600))

	tests := []struct {
		name     string
		rp       config.ResolvedProfile
		env      config.EnvOverrides
		want     string
		wantName string
	}{
		{"ntlm with password", config.ResolvedProfile{Auth: config.AuthNTLM}, config.EnvOverrides{Password: "pw"}, credStatePassEnv, ""},
		{"ntlm without password", config.ResolvedProfile{Auth: config.AuthNTLM}, config.EnvOverrides{}, credStateMissing, ""},
		{"pat from env", config.ResolvedProfile{Auth: config.AuthPAT}, config.EnvOverrides{PAT: "p"}, credStateEnv, ""},
		{"pat in keyring", config.ResolvedProfile{Auth: config.AuthPAT}, config.EnvOverrides{}, credStateKeyring, ""},
		{"oauth cached", config.ResolvedProfile{Auth: config.AuthOAuth, TokenPath: tokenPath}, config.EnvOverrides{}, credStateValid, "Alice"},
		{"oauth missing", config.ResolvedProfile{Auth: config.AuthOAuth, TokenPath: filepath.Join(dir, "none.json")}, config.EnvOverrides{}, credStateMissing, ""},
		{"oauth unreadable", config.ResolvedProfile{Auth: config.AuthOAuth, TokenPath: corrupt}, config.EnvOverrides{}, credStateExpired, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, name := credentialState(&tt.rp, tt.env, now, logger)
			assert.Equal(t, tt.want, state)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

func TestStatus_NoProfiles(t *testing.T) {
	cliEnv(t, "")

	out, _, err := runCLI(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "No profiles configured.")
}

func TestStatus_ListsProfiles(t *testing.T) {
	cliEnv(t, `
default_profile = "onprem"

[profile.cloud]
url = "https://dev.azure.com/contoso"

[profile.onprem]
url      = "http://tfs:8080/tfs/DefaultCollection"
auth     = "ntlm"
domain   = "CORP"
username = "bob"
`)
	t.Setenv(config.EnvPassword, "pw")

	out, _, err := runCLI(t, "", "status")
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace([]byte(out)), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "PROFILE")
	assert.Contains(t, string(lines[1]), "cloud")
	assert.Contains(t, string(lines[1]), credStateMissing)
	assert.Contains(t, string(lines[2]), "onprem *")
	assert.Contains(t, string(lines[2]), credStatePassEnv)

	out, _, err = runCLI(t, "", "status", "--json")
	require.NoError(t, err)

	var got []statusProfile
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)
	assert.Equal(t, statusProfile{
		Name:        "cloud",
		URL:         "https://dev.azure.com/contoso",
		Auth:        config.AuthOAuth,
		Credentials: credStateMissing,
	}, got[0])
	assert.True(t, got[1].Default)
}

func TestSortedProfileNames(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Profiles = map[string]config.Profile{"b": {}, "a": {}, "c": {}}

	assert.Equal(t, []string{"a", "b", "c"}, sortedProfileNames(cfg))
}
