package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// configFilePermissions is the permission mode for config files.
const configFilePermissions = 0o644

// configDirPermissions is the permission mode for config directories.
const configDirPermissions = 0o755

// configTemplate is written on first login. Global settings are present as
// commented-out defaults so users can discover every option. Later edits
// are text-level appends, preserving user changes.
const configTemplate = `# workitems configuration

# default_profile = "work"

# [logging]
# log_level  = "info"     # debug, info, warn, error
# log_format = "auto"     # auto, text, json

# [network]
# connect_timeout     = "10s"
# data_timeout        = "60s"
# requests_per_second = 0
# api_version         = "7.1"

# [query]
# batch_concurrency = 4
# default_top       = 0

# [snapshot]
# db_path = ""

# Profiles are added by 'workitems login'.
`

// profileSection renders a [profile.NAME] section. The leading blank line
// separates it from what precedes it.
func profileSection(name string, p Profile) string {
	var b strings.Builder

	fmt.Fprintf(&b, "\n[profile.%s]\n", quoteKey(name))
	fmt.Fprintf(&b, "url  = %q\n", p.URL)

	if p.Auth != "" {
		fmt.Fprintf(&b, "auth = %q\n", p.Auth)
	}

	for _, kv := range [][2]string{
		{"tenant", p.Tenant},
		{"client_id", p.ClientID},
		{"project", p.Project},
		{"domain", p.Domain},
		{"username", p.Username},
	} {
		if kv[1] != "" {
			fmt.Fprintf(&b, "%s = %q\n", kv[0], kv[1])
		}
	}

	return b.String()
}

// quoteKey quotes a TOML key unless it is a valid bare key.
func quoteKey(key string) string {
	if key == "" {
		return `""`
	}

	for _, r := range key {
		bare := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
		if !bare {
			return fmt.Sprintf("%q", key)
		}
	}

	return key
}

// SaveProfile adds a profile section to the config file at path, creating
// the file from the template if needed. An existing profile of the same
// name is left untouched and reported as an error.
func SaveProfile(path, name string, p Profile) error {
	data, err := os.ReadFile(path)

	switch {
	case os.IsNotExist(err):
		slog.Info("creating config file with profile", "path", path, "profile", name)

		return atomicWriteFile(path, []byte(configTemplate+profileSection(name, p)))
	case err != nil:
		return fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Load(path)
	if err != nil {
		return err
	}

	if _, exists := cfg.Profiles[name]; exists {
		return fmt.Errorf("profile %q already exists in %s", name, path)
	}

	slog.Info("appending profile to config", "path", path, "profile", name)

	content := string(data)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	return atomicWriteFile(path, []byte(content+profileSection(name, p)))
}

// atomicWriteFile writes data to path via a temp file and rename, so a
// crash never leaves a truncated config.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
