package tfs

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/go-ntlmssp"
)

// TokenSource provides OAuth2 bearer tokens. Defined at the consumer per Go
// convention "accept interfaces, return structs". auth.go provides the real
// implementation backed by golang.org/x/oauth2.
type TokenSource interface {
	Token() (string, error)
}

// BasicAuth sends HTTP basic credentials. With an empty Username, Secret is
// treated as a personal access token (the server ignores the user part).
// With a DOMAIN\user Username over an NTLM transport, the negotiator reads
// these credentials and upgrades the exchange.
type BasicAuth struct {
	Username string
	Secret   string
}

// Authorize implements Authorizer.
func (b BasicAuth) Authorize(req *http.Request) error {
	if b.Secret == "" {
		return errors.New("tfs: empty secret")
	}

	req.SetBasicAuth(b.Username, b.Secret)

	return nil
}

// BearerAuth sends OAuth bearer tokens from Source.
type BearerAuth struct {
	Source TokenSource
}

// Authorize implements Authorizer.
func (b BearerAuth) Authorize(req *http.Request) error {
	tok, err := b.Source.Token()
	if err != nil {
		return fmt.Errorf("obtaining token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)

	return nil
}

// DomainUser formats an NTLM account name. An empty domain yields the bare
// user name.
func DomainUser(domain, user string) string {
	if domain == "" {
		return user
	}

	return domain + `\` + user
}

// NTLMTransport wraps base with NTLM/Negotiate handshake support for
// on-premises servers using Windows authentication. Requests must carry
// basic credentials (see BasicAuth); the negotiator consumes them.
// A nil base uses http.DefaultTransport.
func NTLMTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}

	return ntlmssp.Negotiator{RoundTripper: base}
}
