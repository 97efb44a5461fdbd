package tfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/tonimelisma/workitems-go/internal/tokenfile"
)

// DefaultClientID is the public Entra ID client used by Azure DevOps tooling
// (Visual Studio / Git Credential Manager). Profiles may override it.
const DefaultClientID = "872cd9fa-d31f-45e0-9eab-6e460a02d1f1"

// DefaultTenant accepts any work or school account.
const DefaultTenant = "organizations"

// azureDevOpsScope is the resource scope of Azure DevOps Services.
const azureDevOpsScope = "499b84ac-1321-427f-aa17-267ca6975798/.default"

// LoginParams identifies the Entra ID application and tenant to sign in
// with. Zero values fall back to DefaultClientID and DefaultTenant.
type LoginParams struct {
	ClientID      string
	Tenant        string
	CollectionURL string // stored in the token file for display only
}

func (p LoginParams) withDefaults() LoginParams {
	if p.ClientID == "" {
		p.ClientID = DefaultClientID
	}

	if p.Tenant == "" {
		p.Tenant = DefaultTenant
	}

	return p
}

// DeviceAuth holds the device code response fields that the CLI displays to the user.
type DeviceAuth struct {
	UserCode        string
	VerificationURI string
}

// Login performs the device code OAuth2 flow:
//  1. Requests a device code from Entra ID
//  2. Calls display so the CLI can show the user code and verification URL
//  3. Polls until the user authorizes (blocking, respects ctx cancellation)
//  4. Saves the token and login parameters to tokenPath
//  5. Returns a TokenSource for use with BearerAuth
//
// The returned TokenSource binds ctx to the underlying oauth2 token source.
// ctx must outlive the TokenSource or silent refresh will fail.
func Login(
	ctx context.Context,
	tokenPath string,
	params LoginParams,
	display func(DeviceAuth),
	logger *slog.Logger,
) (TokenSource, error) {
	params = params.withDefaults()
	cfg := oauthConfig(tokenPath, params, logger)

	return doLogin(ctx, tokenPath, cfg, params, display, logger)
}

// doLogin implements the device code flow. Accepts a pre-built oauth2.Config
// so tests can inject a mock endpoint.
func doLogin(
	ctx context.Context,
	tokenPath string,
	cfg *oauth2.Config,
	params LoginParams,
	display func(DeviceAuth),
	logger *slog.Logger,
) (TokenSource, error) {
	logger.Info("starting device code auth flow",
		slog.String("path", tokenPath),
		slog.String("tenant", params.Tenant),
	)

	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("tfs: device auth request failed: %w", err)
	}

	display(DeviceAuth{
		UserCode:        da.UserCode,
		VerificationURI: da.VerificationURI,
	})

	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("tfs: device code authorization failed: %w", err)
	}

	tf := &tokenfile.File{
		Token: tok,
		Meta: tokenfile.Meta{
			CollectionURL: params.CollectionURL,
			Tenant:        params.Tenant,
			ClientID:      params.ClientID,
		},
	}

	if saveErr := tokenfile.Save(tokenPath, tf); saveErr != nil {
		return nil, fmt.Errorf("tfs: saving token: %w", saveErr)
	}

	logger.Info("login successful",
		slog.String("path", tokenPath),
		slog.Time("expiry", tok.Expiry),
	)

	return &tokenBridge{src: cfg.TokenSource(ctx, tok), logger: logger}, nil
}

// TokenSourceFromPath loads a cached token and returns a TokenSource with
// auto-refresh and auto-persistence via OnTokenChange. The client ID and
// tenant saved at login are reused for refresh.
// Returns ErrNotLoggedIn if no token file exists at the path.
func TokenSourceFromPath(ctx context.Context, tokenPath string, logger *slog.Logger) (TokenSource, error) {
	tf, err := tokenfile.Load(tokenPath)
	if err != nil {
		return nil, err
	}

	if tf == nil {
		return nil, ErrNotLoggedIn
	}

	expired := !tf.Token.Expiry.IsZero() && tf.Token.Expiry.Before(time.Now())
	logger.Debug("loaded cached token",
		slog.String("path", tokenPath),
		slog.Time("expiry", tf.Token.Expiry),
		slog.Bool("expired", expired),
	)

	params := LoginParams{
		ClientID:      tf.Meta.ClientID,
		Tenant:        tf.Meta.Tenant,
		CollectionURL: tf.Meta.CollectionURL,
	}.withDefaults()

	cfg := oauthConfig(tokenPath, params, logger)

	return &tokenBridge{src: cfg.TokenSource(ctx, tf.Token), logger: logger}, nil
}

// Logout removes the cached token file at the given path.
// Returns nil if the token file does not exist (already logged out).
func Logout(tokenPath string, logger *slog.Logger) error {
	err := os.Remove(tokenPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("logout: no token file to remove", slog.String("path", tokenPath))
		return nil
	}

	if err != nil {
		return fmt.Errorf("tfs: removing token file: %w", err)
	}

	logger.Info("logout: removed token file", slog.String("path", tokenPath))

	return nil
}

// oauthConfig builds an oauth2.Config with OnTokenChange wired to persist
// refreshed tokens without touching the stored metadata.
func oauthConfig(tokenPath string, params LoginParams, logger *slog.Logger) *oauth2.Config {
	return &oauth2.Config{
		ClientID: params.ClientID,
		Scopes:   []string{azureDevOpsScope, "offline_access"},
		Endpoint: microsoft.AzureADEndpoint(params.Tenant),
		// Called by ReuseTokenSource after each silent refresh, outside its mutex.
		OnTokenChange: func(tok *oauth2.Token) {
			if err := tokenfile.SaveToken(tokenPath, tok); err != nil {
				logger.Warn("failed to persist refreshed token",
					slog.String("path", tokenPath),
					slog.String("error", err.Error()),
				)

				return
			}

			logger.Debug("persisted refreshed token",
				slog.String("path", tokenPath),
				slog.Time("new_expiry", tok.Expiry),
			)
		},
	}
}

// tokenBridge adapts oauth2.TokenSource to tfs.TokenSource.
type tokenBridge struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

func (b *tokenBridge) Token() (string, error) {
	t, err := b.src.Token()
	if err != nil {
		b.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("tfs: obtaining token: %w", err)
	}

	return t.AccessToken, nil
}
