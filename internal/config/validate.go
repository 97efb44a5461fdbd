package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validation range constants.
const (
	minBatchConcurrency = 1
	maxBatchConcurrency = 32
	minConnectTimeout   = 1 * time.Second
	minDataTimeout      = 5 * time.Second
)

// Validate checks all configuration values and returns every error found,
// so users can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateProfiles(cfg)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateQuery(&cfg.Query)...)

	return errors.Join(errs...)
}

// ValidateResolved checks the profile after env and CLI overrides.
func ValidateResolved(rp *ResolvedProfile) error {
	var errs []error

	if rp.URL != "" {
		if err := validateURL(rp.URL); err != nil {
			errs = append(errs, fmt.Errorf("url: %w", err))
		}
	}

	if rp.Auth == AuthNTLM && (rp.Domain == "" || rp.Username == "") {
		errs = append(errs, errors.New("auth = \"ntlm\" requires domain and username"))
	}

	return errors.Join(errs...)
}

var validAuthModes = map[string]bool{
	"":        true,
	AuthOAuth: true,
	AuthPAT:   true,
	AuthNTLM:  true,
}

func validateProfiles(cfg *Config) []error {
	var errs []error

	if cfg.DefaultProfile != "" {
		if _, ok := cfg.Profiles[cfg.DefaultProfile]; !ok {
			errs = append(errs, fmt.Errorf("default_profile: profile %q is not defined", cfg.DefaultProfile))
		}
	}

	for _, name := range profileNames(cfg) {
		p := cfg.Profiles[name]

		if !validAuthModes[p.Auth] {
			errs = append(errs, fmt.Errorf("profile.%s.auth: must be one of oauth, pat, ntlm; got %q", name, p.Auth))
		}

		if p.URL != "" {
			if err := validateURL(p.URL); err != nil {
				errs = append(errs, fmt.Errorf("profile.%s.url: %w", name, err))
			}
		}
	}

	return errs
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", raw)
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("data_timeout", n.DataTimeout, minDataTimeout)...)

	if n.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("requests_per_second: must be >= 0, got %g", n.RequestsPerSecond))
	}

	if strings.TrimSpace(n.APIVersion) == "" {
		errs = append(errs, errors.New("api_version: must not be empty"))
	}

	return errs
}

func validateQuery(q *QueryConfig) []error {
	var errs []error

	if q.BatchConcurrency < minBatchConcurrency || q.BatchConcurrency > maxBatchConcurrency {
		errs = append(errs, fmt.Errorf("batch_concurrency: must be between %d and %d, got %d",
			minBatchConcurrency, maxBatchConcurrency, q.BatchConcurrency))
	}

	if q.DefaultTop < 0 {
		errs = append(errs, fmt.Errorf("default_top: must be >= 0, got %d", q.DefaultTop))
	}

	return errs
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}
