package tfs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

type connectionDataResponse struct {
	AuthenticatedUser struct {
		ID                  string `json:"id"`
		ProviderDisplayName string `json:"providerDisplayName"`
		Properties          struct {
			Account struct {
				Value string `json:"$value"` //nolint:tagliatelle // server property bag key
			} `json:"Account"` //nolint:tagliatelle // server property bag key
		} `json:"properties"`
	} `json:"authenticatedUser"`
	InstanceID string `json:"instanceId"`
}

// ConnectionData returns the identity the server authenticated for this
// client's credentials.
func (c *Client) ConnectionData(ctx context.Context) (*Connection, error) {
	var cd connectionDataResponse
	if _, err := c.getJSON(ctx, "_apis/connectionData", nil, &cd); err != nil {
		return nil, err
	}

	return &Connection{
		UserID:      cd.AuthenticatedUser.ID,
		DisplayName: cd.AuthenticatedUser.ProviderDisplayName,
		Account:     cd.AuthenticatedUser.Properties.Account.Value,
		InstanceID:  cd.InstanceID,
	}, nil
}

// EnsureAuthenticated verifies the credentials against the server. It
// fails with ErrUnauthorized when the server only grants anonymous access.
func (c *Client) EnsureAuthenticated(ctx context.Context) (*Connection, error) {
	conn, err := c.ConnectionData(ctx)
	if err != nil {
		return nil, err
	}

	if conn.UserID == "" || strings.EqualFold(conn.DisplayName, "anonymous") {
		return nil, fmt.Errorf("tfs: %s accepted the connection anonymously: %w", c.baseURL, ErrUnauthorized)
	}

	c.logger.Info("authenticated",
		slog.String("collection", c.baseURL),
		slog.String("user", conn.DisplayName),
	)

	return conn, nil
}
