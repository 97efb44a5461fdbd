package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/tonimelisma/workitems-go/internal/config"
	"github.com/tonimelisma/workitems-go/internal/credstore"
	"github.com/tonimelisma/workitems-go/internal/tfs"
	"github.com/tonimelisma/workitems-go/internal/workitems"
)

// newHTTPClient builds the client shared by every request of a session.
// The data timeout bounds each request including the body read.
func newHTTPClient(rp *config.ResolvedProfile) *http.Client {
	dialer := &net.Dialer{Timeout: rp.ConnectTimeout()}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = rp.ConnectTimeout()

	return &http.Client{
		Transport: transport,
		Timeout:   rp.DataTimeout(),
	}
}

// clientOptions maps the network and query sections onto tfs options.
func clientOptions(rp *config.ResolvedProfile) []tfs.Option {
	ua := rp.Network.UserAgent
	if ua == "" {
		ua = "workitems/" + version
	}

	return []tfs.Option{
		tfs.WithAPIVersion(rp.Network.APIVersion),
		tfs.WithUserAgent(ua),
		tfs.WithRateLimit(rp.Network.RequestsPerSecond),
		tfs.WithBatchConcurrency(rp.Query.BatchConcurrency),
	}
}

// openCredStore opens the PAT keyring. Setting WORKITEMS_KEYRING_PASSWORD
// selects the encrypted file backend under the data directory.
func openCredStore(logger *slog.Logger) (*credstore.Store, error) {
	return credstore.Open(credstore.Options{
		FileDir:      config.DefaultKeyringDir(),
		FilePassword: os.Getenv(credstore.EnvFilePassword),
	}, logger)
}

// cachedCredentials returns the credential sources for rp. The keyring is
// skipped when a PAT came from the environment, and a keyring that cannot
// be opened only costs the PAT lookup.
func cachedCredentials(rp *config.ResolvedProfile, logger *slog.Logger) workitems.CachedCredentials {
	cached := workitems.CachedCredentials{PAT: rp.PAT}

	if cached.PAT == "" {
		store, err := openCredStore(logger)
		if err != nil {
			logger.Warn("keyring unavailable", slog.String("error", err.Error()))
		} else {
			cached.Keyring = store
		}
	}

	if rp.Auth == config.AuthOAuth {
		cached.TokenPath = rp.TokenPath
	}

	return cached
}

// explicitCredentials returns domain credentials for ntlm profiles. The
// password only ever comes from the environment.
func explicitCredentials(rp *config.ResolvedProfile) (workitems.Credentials, error) {
	if rp.Auth != config.AuthNTLM {
		return workitems.Credentials{}, nil
	}

	if rp.Password == "" {
		return workitems.Credentials{}, fmt.Errorf("profile %q uses ntlm auth: set %s", rp.Name, config.EnvPassword)
	}

	return workitems.Credentials{
		Domain:   rp.Domain,
		Username: rp.Username,
		Password: rp.Password,
	}, nil
}

// newExtractor builds an unconnected Extractor for rp that authenticates
// with cached.
func newExtractor(rp *config.ResolvedProfile, cached workitems.CachedCredentials, logger *slog.Logger) *workitems.Extractor {
	dialer := &workitems.ClientDialer{
		HTTPClient: newHTTPClient(rp),
		Cached:     cached,
		Options:    clientOptions(rp),
		Logger:     logger,
	}

	return workitems.NewExtractor(dialer, logger)
}

// connect returns an Extractor authenticated against the profile's
// collection.
func connect(ctx context.Context, cc *CLIContext) (*workitems.Extractor, error) {
	rp := cc.Cfg

	creds, err := explicitCredentials(rp)
	if err != nil {
		return nil, err
	}

	ex := newExtractor(rp, cachedCredentials(rp, cc.Logger), cc.Logger)

	if err := ex.Connect(ctx, rp.URL, creds); err != nil {
		return nil, connectError(err, rp)
	}

	cc.Logger.Debug("connected",
		slog.String("profile", rp.Name),
		slog.String("url", rp.URL),
	)

	return ex, nil
}

// connectError turns the common setup failures into actionable messages.
func connectError(err error, rp *config.ResolvedProfile) error {
	switch {
	case errors.Is(err, workitems.ErrEmptyURL):
		return fmt.Errorf("profile %q has no collection URL: set url in the config, %s, or run 'workitems login --url'",
			rp.Name, config.EnvURL)
	case errors.Is(err, tfs.ErrNotLoggedIn):
		return fmt.Errorf("not logged in to %s: run 'workitems login' or set %s: %w", rp.URL, config.EnvPAT, err)
	case errors.Is(err, tfs.ErrUnauthorized):
		return fmt.Errorf("credentials for %s were rejected: run 'workitems login' again: %w", rp.URL, err)
	}

	return err
}
