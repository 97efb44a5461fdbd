package main

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/workitems-go/internal/config"
	"github.com/tonimelisma/workitems-go/internal/tokenfile"
)

// Credential state constants for status reporting.
const (
	credStateMissing = "missing"
	credStateExpired = "expired"
	credStateValid   = "valid"
	credStateEnv     = "from environment"
	credStatePassEnv = "password from environment"
	credStateKeyring = "keyring"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show all profiles and their credential state",
		Long: `Display every configured profile with its collection URL, auth mode and
cached credential state. Reads local files only; nothing is sent to the
server and the keyring is not opened.`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE:        runStatus,
	}
}

// statusProfile is one row of `status`.
type statusProfile struct {
	Name        string `json:"name" yaml:"name"`
	Default     bool   `json:"default" yaml:"default"`
	URL         string `json:"url" yaml:"url"`
	Auth        string `json:"auth" yaml:"auth"`
	Credentials string `json:"credentials" yaml:"credentials"`
	DisplayName string `json:"displayName,omitempty" yaml:"display_name,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	cfgPath := config.ConfigPath(cc.Env, config.CLIOverrides{ConfigPath: cc.Flags.ConfigPath})

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	w := cmd.OutOrStdout()

	if len(cfg.Profiles) == 0 {
		fmt.Fprintln(w, "No profiles configured. Run 'workitems login --url <collection>' to get started.")
		return nil
	}

	profiles := buildStatusProfiles(cfg, cc.Env, time.Now(), cc.Logger)

	if done, err := writeStructured(w, cc.Flags.Format(), profiles); done {
		return err
	}

	printStatusText(w, profiles)

	return nil
}

// buildStatusProfiles reports every profile in name order.
func buildStatusProfiles(cfg *config.Config, env config.EnvOverrides, now time.Time, logger *slog.Logger) []statusProfile {
	defaultName := ""
	if rp, err := config.ResolveProfile(cfg, ""); err == nil {
		defaultName = rp.Name
	}

	out := make([]statusProfile, 0, len(cfg.Profiles))

	for _, name := range sortedProfileNames(cfg) {
		rp, err := config.ResolveProfile(cfg, name)
		if err != nil {
			continue
		}

		sp := statusProfile{
			Name:    name,
			Default: name == defaultName,
			URL:     rp.URL,
			Auth:    rp.Auth,
		}

		sp.Credentials, sp.DisplayName = credentialState(rp, env, now, logger)
		out = append(out, sp)
	}

	return out
}

// credentialState inspects the local credential cache for rp. PATs in the
// keyring are not probed: opening the keyring may prompt.
func credentialState(rp *config.ResolvedProfile, env config.EnvOverrides, now time.Time, logger *slog.Logger) (state, displayName string) {
	switch rp.Auth {
	case config.AuthNTLM:
		if env.Password != "" {
			return credStatePassEnv, ""
		}

		return credStateMissing, ""
	case config.AuthPAT:
		if env.PAT != "" {
			return credStateEnv, ""
		}

		return credStateKeyring, ""
	}

	tf, err := tokenfile.Load(rp.TokenPath)
	if err != nil {
		logger.Debug("could not read token file for status", slog.String("error", err.Error()))
		return credStateExpired, ""
	}

	if tf == nil {
		return credStateMissing, ""
	}

	return tokenState(tf, now), tf.Meta.DisplayName
}

// tokenState reports whether a cached token is still usable. An expired
// access token with a refresh token counts as valid.
func tokenState(tf *tokenfile.File, now time.Time) string {
	if tf.Token.RefreshToken != "" {
		return credStateValid
	}

	if !tf.Token.Expiry.IsZero() && tf.Token.Expiry.Before(now) {
		return credStateExpired
	}

	return credStateValid
}

func sortedProfileNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Profiles))
	for name := range cfg.Profiles {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

func printStatusText(w io.Writer, profiles []statusProfile) {
	rows := make([][]string, 0, len(profiles))

	for _, p := range profiles {
		name := p.Name
		if p.Default {
			name += " *"
		}

		creds := p.Credentials
		if p.DisplayName != "" {
			creds = fmt.Sprintf("%s (%s)", creds, p.DisplayName)
		}

		rows = append(rows, []string{name, p.Auth, p.URL, creds})
	}

	printTable(w, []string{"PROFILE", "AUTH", "URL", "CREDENTIALS"}, rows)
}
