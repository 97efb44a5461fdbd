// Package tokenfile persists cached OAuth sessions. A token file stores the
// OAuth2 token together with the login parameters needed to refresh it and
// the identity last reported by the server, so `whoami --offline` works
// without a round trip. Leaf package: imported by both config/ and tfs/.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the tokens directory.
const DirPerms = 0o700

// Meta is the non-secret session metadata stored beside the token.
type Meta struct {
	CollectionURL string    `json:"collection_url,omitempty"`
	Tenant        string    `json:"tenant,omitempty"`
	ClientID      string    `json:"client_id,omitempty"`
	DisplayName   string    `json:"display_name,omitempty"`
	Account       string    `json:"account,omitempty"`
	VerifiedAt    time.Time `json:"verified_at,omitzero"`
}

// File is the on-disk format.
type File struct {
	Token *oauth2.Token `json:"token"`
	Meta  Meta          `json:"meta"`
}

// Load reads a token file. Returns (nil, nil) if the file does not exist.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if tf.Token == nil {
		return nil, fmt.Errorf("tokenfile: %s missing token field (re-login required)", path)
	}

	return &tf, nil
}

// Save writes a token file atomically (write-to-temp + fsync + rename)
// with 0600 permissions. Never logs token values.
func Save(path string, tf *File) error {
	if tf == nil || tf.Token == nil {
		return errors.New("tokenfile: refusing to save empty token")
	}

	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := writeAndSync(tmp, data); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// writeAndSync restricts permissions, writes data, flushes it to stable
// storage and closes f.
func writeAndSync(f *os.File, data []byte) error {
	if err := f.Chmod(FilePerms); err != nil {
		f.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	return nil
}

// SaveToken replaces the token in an existing file, keeping its metadata.
// Used after a silent refresh. A missing file is created with empty Meta.
func SaveToken(path string, tok *oauth2.Token) error {
	tf, err := Load(path)
	if err != nil {
		return err
	}

	if tf == nil {
		tf = &File{}
	}

	tf.Token = tok

	return Save(path, tf)
}

// UpdateMeta applies fn to the stored metadata and saves the result.
// Returns an error if no token file exists at path.
func UpdateMeta(path string, fn func(*Meta)) error {
	tf, err := Load(path)
	if err != nil {
		return fmt.Errorf("reading token for metadata update: %w", err)
	}

	if tf == nil {
		return fmt.Errorf("tokenfile: no token file at %s", path)
	}

	fn(&tf.Meta)

	return Save(path, tf)
}
