// Package testutil provides shared test environment helpers for E2E tests.
// It depends only on stdlib so that E2E tests (which cannot import
// internal/) can use it.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables read by the E2E suite.
const (
	EnvE2EURL      = "WORKITEMS_E2E_URL"
	EnvE2EProject  = "WORKITEMS_E2E_PROJECT"
	EnvE2EPAT      = "WORKITEMS_E2E_PAT"
	EnvE2EAllowed  = "WORKITEMS_ALLOWED_TEST_COLLECTIONS"
	dotEnvFileName = ".env"
)

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// LoadModuleDotEnv loads .env from the module root.
func LoadModuleDotEnv() {
	LoadDotEnv(filepath.Join(FindModuleRoot(".."), dotEnvFileName))
}

// CheckAllowlist reports whether collectionURL appears in the
// comma-separated allowlist. Trailing slashes and case are ignored.
func CheckAllowlist(allowlist, collectionURL string) error {
	if allowlist == "" {
		return fmt.Errorf("%s not set", EnvE2EAllowed)
	}

	if collectionURL == "" {
		return fmt.Errorf("%s not set", EnvE2EURL)
	}

	want := normalizeURL(collectionURL)

	for _, a := range strings.Split(allowlist, ",") {
		if normalizeURL(a) == want {
			return nil
		}
	}

	return fmt.Errorf("%s=%q is not in %s=%q", EnvE2EURL, collectionURL, EnvE2EAllowed, allowlist)
}

// ValidateAllowlist crashes the process unless WORKITEMS_E2E_URL names a
// collection listed in WORKITEMS_ALLOWED_TEST_COLLECTIONS.
func ValidateAllowlist() {
	if err := CheckAllowlist(os.Getenv(EnvE2EAllowed), os.Getenv(EnvE2EURL)); err != nil {
		fmt.Fprintln(os.Stderr, "FATAL: "+err.Error())
		fmt.Fprintln(os.Stderr, "Example: "+EnvE2EAllowed+"=https://dev.azure.com/contoso-test")
		os.Exit(1)
	}
}

func normalizeURL(u string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(u), "/"))
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

// IsolatedEnv points HOME and the XDG directories below root and returns
// the variables as KEY=VALUE pairs for exec.Cmd.Env. The directories are
// created.
func IsolatedEnv(root string) ([]string, error) {
	vars := map[string]string{
		"HOME":            filepath.Join(root, "home"),
		"XDG_CONFIG_HOME": filepath.Join(root, "config"),
		"XDG_DATA_HOME":   filepath.Join(root, "data"),
		"XDG_CACHE_HOME":  filepath.Join(root, "cache"),
	}

	env := make([]string, 0, len(vars))

	for _, k := range []string{"HOME", "XDG_CONFIG_HOME", "XDG_DATA_HOME", "XDG_CACHE_HOME"} {
		if err := os.MkdirAll(vars[k], 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", vars[k], err)
		}

		env = append(env, k+"="+vars[k])
	}

	return env, nil
}
