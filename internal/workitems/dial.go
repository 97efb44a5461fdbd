package workitems

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/workitems-go/internal/credstore"
	"github.com/tonimelisma/workitems-go/internal/tfs"
)

// PATLoader looks up a cached personal access token. *credstore.Store
// satisfies it.
type PATLoader interface {
	Load(collectionURL string) (string, error)
}

// CachedCredentials resolves the credentials used when Connect is not given
// explicit ones. Sources are tried in order: PAT, Keyring, TokenPath.
type CachedCredentials struct {
	// PAT is used as-is when set, typically from the environment.
	PAT string //nolint:gosec // held in memory only
	// Keyring is consulted for a PAT keyed by the collection URL.
	Keyring PATLoader
	// TokenPath is the OAuth token cache written by login.
	TokenPath string
}

// Authorizer returns the first available cached credential for serverURL.
func (c CachedCredentials) Authorizer(ctx context.Context, serverURL string, logger *slog.Logger) (tfs.Authorizer, error) {
	if c.PAT != "" {
		logger.Debug("using PAT from environment")
		return tfs.BasicAuth{Secret: c.PAT}, nil
	}

	if c.Keyring != nil {
		pat, err := c.Keyring.Load(serverURL)

		switch {
		case err == nil:
			logger.Debug("using PAT from keyring")
			return tfs.BasicAuth{Secret: pat}, nil
		case errors.Is(err, credstore.ErrNotFound):
		default:
			logger.Warn("keyring lookup failed", slog.String("error", err.Error()))
		}
	}

	if c.TokenPath != "" {
		ts, err := tfs.TokenSourceFromPath(ctx, c.TokenPath, logger)
		if err == nil {
			logger.Debug("using cached OAuth token", slog.String("path", c.TokenPath))
			return tfs.BearerAuth{Source: ts}, nil
		}

		if !errors.Is(err, tfs.ErrNotLoggedIn) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("no cached credentials for %s: %w", serverURL, tfs.ErrNotLoggedIn)
}

// ClientDialer builds *tfs.Client sessions.
type ClientDialer struct {
	// HTTPClient carries timeouts and the base transport. nil uses
	// http.DefaultClient.
	HTTPClient *http.Client
	Cached     CachedCredentials
	Options    []tfs.Option
	Logger     *slog.Logger
}

// Dial implements Dialer.
func (d *ClientDialer) Dial(ctx context.Context, serverURL string, creds Credentials) (Store, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hc := d.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}

	if creds.Explicit() {
		ntlm := *hc
		ntlm.Transport = tfs.NTLMTransport(hc.Transport)

		auth := tfs.BasicAuth{
			Username: tfs.DomainUser(creds.Domain, creds.Username),
			Secret:   creds.Password,
		}

		return tfs.NewClient(serverURL, &ntlm, auth, logger, d.Options...), nil
	}

	auth, err := d.Cached.Authorizer(ctx, serverURL, logger)
	if err != nil {
		return nil, err
	}

	return tfs.NewClient(serverURL, hc, auth, logger, d.Options...), nil
}
