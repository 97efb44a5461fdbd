// Package credstore caches personal access tokens in the OS keyring, keyed by
// collection URL. On headless machines an encrypted file backend can be
// selected by supplying a file password.
package credstore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/99designs/keyring"
)

// ServiceName namespaces entries in the keyring.
const ServiceName = "workitems"

// EnvFilePassword selects the encrypted file backend when set.
const EnvFilePassword = "WORKITEMS_KEYRING_PASSWORD"

// ErrNotFound is returned by Load when no PAT is cached for the URL.
var ErrNotFound = errors.New("credstore: no cached credential")

// Options controls backend selection.
type Options struct {
	// FileDir is where the file backend keeps its entries.
	FileDir string
	// FilePassword, when non-empty, restricts the store to the encrypted file
	// backend. Native backends are used otherwise.
	FilePassword string
}

// Store is a thread-safe PAT cache.
type Store struct {
	mu     sync.Mutex
	ring   keyring.Keyring
	logger *slog.Logger
}

// Open opens the keyring described by opts.
func Open(opts Options, logger *slog.Logger) (*Store, error) {
	cfg := keyring.Config{
		ServiceName:              ServiceName,
		PassPrefix:               ServiceName,
		WinCredPrefix:            ServiceName,
		KeychainTrustApplication: true,
		LibSecretCollectionName:  ServiceName,
	}

	if opts.FilePassword != "" {
		if opts.FileDir == "" {
			return nil, errors.New("credstore: file backend requires a directory")
		}

		cfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
		cfg.FileDir = opts.FileDir
		cfg.FilePasswordFunc = keyring.FixedStringPrompt(opts.FilePassword)
	} else {
		cfg.AllowedBackends = []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.WinCredBackend,
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.PassBackend,
		}
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("credstore: opening keyring: %w", err)
	}

	return New(ring, logger), nil
}

// New wraps an already opened keyring.
func New(ring keyring.Keyring, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{ring: ring, logger: logger}
}

// Save caches pat for collectionURL, replacing any previous entry.
func (s *Store) Save(collectionURL, pat string) error {
	if pat == "" {
		return errors.New("credstore: refusing to save empty credential")
	}

	key, err := Key(collectionURL)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ring.Set(keyring.Item{
		Key:         key,
		Data:        []byte(pat),
		Label:       "workitems PAT for " + key,
		Description: "personal access token",
	}); err != nil {
		return fmt.Errorf("credstore: saving %s: %w", key, err)
	}

	s.logger.Info("cached credential", slog.String("collection", key))

	return nil
}

// Load returns the PAT cached for collectionURL.
func (s *Store) Load(collectionURL string) (string, error) {
	key, err := Key(collectionURL)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}

	if err != nil {
		return "", fmt.Errorf("credstore: loading %s: %w", key, err)
	}

	if len(item.Data) == 0 {
		return "", ErrNotFound
	}

	return string(item.Data), nil
}

// Delete removes the entry for collectionURL. Deleting a missing entry is
// not an error.
func (s *Store) Delete(collectionURL string) error {
	key, err := Key(collectionURL)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("credstore: deleting %s: %w", key, err)
	}

	s.logger.Info("removed cached credential", slog.String("collection", key))

	return nil
}

// Key normalizes a collection URL into a keyring key: lower-case scheme and
// host, default ports dropped, no trailing slash, no query or fragment.
func Key(collectionURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(collectionURL))
	if err != nil {
		return "", fmt.Errorf("credstore: invalid collection URL: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("credstore: collection URL %q must be absolute", collectionURL)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())

	if port := u.Port(); port != "" && !(scheme == "https" && port == "443") && !(scheme == "http" && port == "80") {
		host += ":" + port
	}

	return scheme + "://" + host + strings.TrimRight(u.EscapedPath(), "/"), nil
}
