package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as an annotated summary
// to w. Secrets are reported as set or unset, never printed.
func RenderEffective(rp *ResolvedProfile, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration for profile %q\n", rp.Name)

	if rp.ConfigPath != "" {
		ew.printf("# Config file: %s\n", rp.ConfigPath)
	}

	ew.printf("\n")

	renderProfileSection(ew, rp)
	renderLoggingSection(ew, &rp.Logging)
	renderNetworkSection(ew, &rp.Network)
	renderQuerySection(ew, &rp.Query)
	renderPathsSection(ew, rp)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderProfileSection(ew *errWriter, rp *ResolvedProfile) {
	ew.printf("[profile.%s]\n", rp.Name)
	ew.printf("  url       = %q\n", rp.URL)
	ew.printf("  auth      = %q\n", rp.Auth)

	if rp.Auth == AuthOAuth {
		ew.printf("  tenant    = %q\n", rp.Tenant)

		if rp.ClientID != "" {
			ew.printf("  client_id = %q\n", rp.ClientID)
		}
	}

	if rp.Project != "" {
		ew.printf("  project   = %q\n", rp.Project)
	}

	if rp.Domain != "" || rp.Username != "" {
		ew.printf("  domain    = %q\n", rp.Domain)
		ew.printf("  username  = %q\n", rp.Username)
	}

	ew.printf("  # %s: %s\n", EnvPAT, setOrUnset(rp.PAT))
	ew.printf("  # %s: %s\n", EnvPassword, setOrUnset(rp.Password))
	ew.printf("\n")
}

func setOrUnset(s string) string {
	if s == "" {
		return "unset"
	}

	return "set"
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", l.LogLevel)
	ew.printf("  log_format = %q\n", l.LogFormat)
	ew.printf("\n")
}

func renderNetworkSection(ew *errWriter, n *NetworkConfig) {
	ew.printf("[network]\n")
	ew.printf("  connect_timeout     = %q\n", n.ConnectTimeout)
	ew.printf("  data_timeout        = %q\n", n.DataTimeout)

	if n.UserAgent != "" {
		ew.printf("  user_agent          = %q\n", n.UserAgent)
	}

	ew.printf("  requests_per_second = %g\n", n.RequestsPerSecond)
	ew.printf("  api_version         = %q\n", n.APIVersion)
	ew.printf("\n")
}

func renderQuerySection(ew *errWriter, q *QueryConfig) {
	ew.printf("[query]\n")
	ew.printf("  batch_concurrency = %d\n", q.BatchConcurrency)
	ew.printf("  default_top       = %d\n", q.DefaultTop)
	ew.printf("\n")
}

func renderPathsSection(ew *errWriter, rp *ResolvedProfile) {
	ew.printf("[snapshot]\n")
	ew.printf("  db_path = %q\n", rp.DBPath)
	ew.printf("\n")
	ew.printf("# token file: %s\n", rp.TokenPath)
}
