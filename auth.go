package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/workitems-go/internal/config"
	"github.com/tonimelisma/workitems-go/internal/tfs"
	"github.com/tonimelisma/workitems-go/internal/tokenfile"
	"github.com/tonimelisma/workitems-go/internal/workitems"
)

// loginTimeout bounds the device code flow. Entra ID device codes expire
// after 15 minutes.
const loginTimeout = 15 * time.Minute

func newLoginCmd() *cobra.Command {
	var (
		usePAT bool
		url    string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with the collection",
		Long: `Authenticate with the collection of the selected profile.

By default this runs the Entra ID device code flow and caches the token.
With --pat, a personal access token is read from stdin and stored in the
OS keyring instead.

With --url, a profile pointing at that collection is added to the config
file when it does not exist yet.

Examples:
  workitems login --url https://dev.azure.com/contoso
  echo "$PAT" | workitems login --pat --profile onprem --url http://tfs:8080/tfs/DefaultCollection`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd, url, usePAT)
		},
	}

	cmd.Flags().BoolVar(&usePAT, "pat", false, "read a personal access token from stdin and store it in the keyring")
	cmd.Flags().StringVar(&url, "url", "", "collection URL; adds a profile for it if needed")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove cached credentials for the profile",
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the identity the server authenticates",
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, url string, usePAT bool) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger

	var pat string

	if usePAT {
		var err error

		pat, err = readSecret(cmd.InOrStdin())
		if err != nil {
			return err
		}
	}

	auth := config.AuthOAuth
	if usePAT {
		auth = config.AuthPAT
	}

	if url != "" {
		if err := ensureProfile(cmd, cc, url, auth); err != nil {
			return err
		}
	}

	rp, err := config.Resolve(cc.Env, config.CLIOverrides{
		ConfigPath: cc.Flags.ConfigPath,
		Profile:    cc.Flags.Profile,
		URL:        url,
	})
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if rp.URL == "" {
		return fmt.Errorf("profile %q has no collection URL: pass --url", rp.Name)
	}

	logger.Info("login started", slog.String("profile", rp.Name), slog.String("url", rp.URL))

	ctx, cancel := shutdownContext(cmd.Context(), logger)
	defer cancel()

	if usePAT {
		return loginPAT(ctx, cmd, cc, rp, pat)
	}

	return loginOAuth(ctx, cmd, cc, rp)
}

// readSecret reads the first line of r. Surrounding whitespace is dropped.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading token from stdin: %w", err)
	}

	secret := strings.TrimSpace(line)
	if secret == "" {
		return "", errors.New("no token on stdin")
	}

	return secret, nil
}

// ensureProfile adds a profile for url when the selected one is missing.
func ensureProfile(cmd *cobra.Command, cc *CLIContext, url, auth string) error {
	cfgPath := config.ConfigPath(cc.Env, config.CLIOverrides{ConfigPath: cc.Flags.ConfigPath})

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	name := cc.Flags.Profile
	if name == "" {
		name = cc.Env.Profile
	}

	if name == "" {
		name = "default"
	}

	if _, exists := cfg.Profiles[name]; exists {
		return nil
	}

	if err := config.SaveProfile(cfgPath, name, config.Profile{URL: url, Auth: auth}); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}

	// login runs against the new profile even if another one is the default.
	cc.Flags.Profile = name

	statusf(cmd.ErrOrStderr(), cc.Flags.Quiet, "Added profile %q to %s\n", name, cfgPath)

	return nil
}

func loginPAT(ctx context.Context, cmd *cobra.Command, cc *CLIContext, rp *config.ResolvedProfile, pat string) error {
	ex := newExtractor(rp, workitems.CachedCredentials{PAT: pat}, cc.Logger)
	if err := ex.Connect(ctx, rp.URL, workitems.Credentials{}); err != nil {
		return connectError(err, rp)
	}

	store, err := openCredStore(cc.Logger)
	if err != nil {
		return err
	}

	if err := store.Save(rp.URL, pat); err != nil {
		return err
	}

	cc.Logger.Info("login successful", slog.String("profile", rp.Name))
	statusf(cmd.ErrOrStderr(), cc.Flags.Quiet, "Logged in as %s. Token stored in keyring.\n", displayName(ex.Identity()))

	return nil
}

func loginOAuth(ctx context.Context, cmd *cobra.Command, cc *CLIContext, rp *config.ResolvedProfile) error {
	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	stderr := cmd.ErrOrStderr()

	_, err := tfs.Login(ctx, rp.TokenPath, tfs.LoginParams{
		ClientID:      rp.ClientID,
		Tenant:        rp.Tenant,
		CollectionURL: rp.URL,
	}, func(da tfs.DeviceAuth) {
		// Device code prompts must always be visible, even with --quiet.
		fmt.Fprintf(stderr, "To sign in, visit: %s\n", da.VerificationURI)
		fmt.Fprintf(stderr, "Enter code: %s\n", da.UserCode)
	}, cc.Logger)
	if err != nil {
		return err
	}

	// Connect through the token file, the path later commands take.
	ex := newExtractor(rp, workitems.CachedCredentials{TokenPath: rp.TokenPath}, cc.Logger)
	if err := ex.Connect(ctx, rp.URL, workitems.Credentials{}); err != nil {
		return connectError(err, rp)
	}

	conn := ex.Identity()
	if err := tokenfile.UpdateMeta(rp.TokenPath, func(m *tokenfile.Meta) {
		m.DisplayName = conn.DisplayName
		m.Account = conn.Account
		m.VerifiedAt = time.Now().UTC()
	}); err != nil {
		cc.Logger.Warn("could not record identity in token file", slog.String("error", err.Error()))
	}

	cc.Logger.Info("login successful", slog.String("profile", rp.Name))
	statusf(stderr, cc.Flags.Quiet, "Logged in as %s.\n", displayName(conn))

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	rp := cc.Cfg

	cc.Logger.Info("logout started", slog.String("profile", rp.Name))

	if err := tfs.Logout(rp.TokenPath, cc.Logger); err != nil {
		return err
	}

	if rp.URL != "" {
		store, err := openCredStore(cc.Logger)
		if err != nil {
			cc.Logger.Warn("keyring unavailable, PAT not removed", slog.String("error", err.Error()))
		} else if err := store.Delete(rp.URL); err != nil {
			return err
		}
	}

	statusf(cmd.ErrOrStderr(), cc.Flags.Quiet, "Logged out of profile %q.\n", rp.Name)

	return nil
}

// whoamiOutput is the schema for `whoami --json` and `--yaml`.
type whoamiOutput struct {
	Profile     string `json:"profile" yaml:"profile"`
	URL         string `json:"url" yaml:"url"`
	UserID      string `json:"userId" yaml:"user_id"`
	DisplayName string `json:"displayName" yaml:"display_name"`
	Account     string `json:"account,omitempty" yaml:"account,omitempty"`
	InstanceID  string `json:"instanceId,omitempty" yaml:"instance_id,omitempty"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	ctx, cancel := shutdownContext(cmd.Context(), cc.Logger)
	defer cancel()

	ex, err := connect(ctx, cc)
	if err != nil {
		return err
	}

	conn := ex.Identity()
	out := whoamiOutput{
		Profile:     cc.Cfg.Name,
		URL:         ex.ServerURL(),
		UserID:      conn.UserID,
		DisplayName: conn.DisplayName,
		Account:     conn.Account,
		InstanceID:  conn.InstanceID,
	}

	w := cmd.OutOrStdout()
	if done, err := writeStructured(w, cc.Flags.Format(), out); done {
		return err
	}

	fmt.Fprintf(w, "User:       %s\n", displayName(conn))
	fmt.Fprintf(w, "ID:         %s\n", out.UserID)
	fmt.Fprintf(w, "Collection: %s\n", out.URL)
	fmt.Fprintf(w, "Profile:    %s\n", out.Profile)

	return nil
}

// displayName renders an identity as "Name (account)".
func displayName(conn *tfs.Connection) string {
	if conn == nil {
		return "(unknown)"
	}

	if conn.Account != "" && conn.Account != conn.DisplayName {
		return fmt.Sprintf("%s (%s)", conn.DisplayName, conn.Account)
	}

	return conn.DisplayName
}
