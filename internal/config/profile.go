package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tonimelisma/workitems-go/internal/tfs"
)

// Authentication modes.
const (
	AuthOAuth = "oauth"
	AuthPAT   = "pat"
	AuthNTLM  = "ntlm"
)

// Default profile name when neither --profile nor default_profile is set.
const defaultProfileName = "default"

// Profile describes one collection and how to authenticate against it.
type Profile struct {
	URL      string `toml:"url"`
	Auth     string `toml:"auth"`
	Tenant   string `toml:"tenant"`
	ClientID string `toml:"client_id"`
	Project  string `toml:"project"`
	Domain   string `toml:"domain"`
	Username string `toml:"username"`
}

// ResolvedProfile is a profile after the override chain, with global
// sections attached and paths filled in.
type ResolvedProfile struct {
	Name       string
	ConfigPath string

	URL      string
	Auth     string
	Tenant   string
	ClientID string
	Project  string
	Domain   string
	Username string

	// Secrets from the environment. Never rendered or logged.
	PAT      string
	Password string

	TokenPath string
	DBPath    string

	Logging  LoggingConfig
	Network  NetworkConfig
	Query    QueryConfig
	Snapshot SnapshotConfig
}

// ConnectTimeout parses network.connect_timeout. Values have already been
// validated, so parse failures fall back to the default.
func (rp *ResolvedProfile) ConnectTimeout() time.Duration {
	return parseDurationOr(rp.Network.ConnectTimeout, defaultConnectTimeout)
}

// DataTimeout parses network.data_timeout.
func (rp *ResolvedProfile) DataTimeout() time.Duration {
	return parseDurationOr(rp.Network.DataTimeout, defaultDataTimeout)
}

func parseDurationOr(value, fallback string) time.Duration {
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}

	d, _ := time.ParseDuration(fallback)

	return d
}

// ResolveProfile selects profileName (or the default profile) and attaches
// the global sections.
func ResolveProfile(cfg *Config, profileName string) (*ResolvedProfile, error) {
	name, err := resolveProfileName(cfg, profileName)
	if err != nil {
		return nil, err
	}

	p := cfg.Profiles[name]

	resolved := &ResolvedProfile{
		Name:     name,
		URL:      p.URL,
		Auth:     p.Auth,
		Tenant:   p.Tenant,
		ClientID: p.ClientID,
		Project:  p.Project,
		Domain:   p.Domain,
		Username: p.Username,
		Logging:  cfg.Logging,
		Network:  cfg.Network,
		Query:    cfg.Query,
		Snapshot: cfg.Snapshot,
	}

	if resolved.Auth == "" {
		resolved.Auth = AuthOAuth
	}

	if resolved.Tenant == "" {
		resolved.Tenant = tfs.DefaultTenant
	}

	resolved.TokenPath = ProfileTokenPath(name)

	resolved.DBPath = expandTilde(cfg.Snapshot.DBPath)
	if resolved.DBPath == "" {
		resolved.DBPath = DefaultSnapshotPath()
	}

	return resolved, nil
}

func resolveProfileName(cfg *Config, profileName string) (string, error) {
	if len(cfg.Profiles) == 0 {
		return "", fmt.Errorf("no profiles defined in config")
	}

	if profileName == "" {
		profileName = cfg.DefaultProfile
	}

	if profileName != "" {
		if _, ok := cfg.Profiles[profileName]; !ok {
			return "", fmt.Errorf("profile %q not found in config (have: %s)",
				profileName, strings.Join(profileNames(cfg), ", "))
		}

		return profileName, nil
	}

	if _, ok := cfg.Profiles[defaultProfileName]; ok {
		return defaultProfileName, nil
	}

	if len(cfg.Profiles) == 1 {
		for name := range cfg.Profiles {
			return name, nil
		}
	}

	return "", fmt.Errorf(
		"multiple profiles defined but none named %q and no default_profile; use --profile to select one",
		defaultProfileName)
}

func profileNames(cfg *Config) []string {
	names := make([]string, 0, len(cfg.Profiles))
	for name := range cfg.Profiles {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// expandTilde replaces a leading "~/" with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[2:])
}

// ProfileTokenPath returns the OAuth token file path for a profile.
// Format: {dataDir}/tokens/{sanitized profile}.json
func ProfileTokenPath(profileName string) string {
	return inDir(DefaultDataDir(), "tokens", sanitizeFileName(profileName)+".json")
}

// sanitizeFileName maps characters outside [A-Za-z0-9._-] to '_'.
func sanitizeFileName(name string) string {
	if name == "" {
		return defaultProfileName
	}

	var b strings.Builder

	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	s := b.String()
	if strings.Trim(s, ".") == "" {
		return strings.Repeat("_", len(s))
	}

	return s
}
