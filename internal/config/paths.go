package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

const (
	appName          = "workitems"
	configFileName   = "config.toml"
	snapshotFileName = "snapshots.db"
	keyringDirName   = "keyring"
)

// baseDir describes where one kind of directory lives on each platform.
// xdgVar is honored on Linux only; fallback is relative to the home dir.
type baseDir struct {
	xdgVar   string
	fallback []string
	darwin   []string
}

var (
	configBase = baseDir{
		xdgVar:   "XDG_CONFIG_HOME",
		fallback: []string{".config"},
		darwin:   []string{"Library", "Application Support"},
	}
	// macOS keeps config and data in the same directory.
	dataBase = baseDir{
		xdgVar:   "XDG_DATA_HOME",
		fallback: []string{".local", "share"},
		darwin:   []string{"Library", "Application Support"},
	}
)

// resolve returns the application directory for b, or "" when the home
// directory is unknown and no XDG override applies.
func (b baseDir) resolve() string {
	if runtime.GOOS == platformLinux {
		if xdg := os.Getenv(b.xdgVar); xdg != "" {
			return filepath.Join(xdg, appName)
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	parts := b.fallback
	if runtime.GOOS == platformDarwin {
		parts = b.darwin
	}

	return filepath.Join(append(append([]string{home}, parts...), appName)...)
}

// DefaultConfigDir returns the platform-specific directory for config files:
// $XDG_CONFIG_HOME/workitems on Linux, ~/Library/Application Support/workitems
// on macOS, ~/.config/workitems elsewhere.
func DefaultConfigDir() string {
	return configBase.resolve()
}

// DefaultDataDir returns the directory for tokens, the file keyring and the
// snapshot database.
func DefaultDataDir() string {
	return dataBase.resolve()
}

// inDir joins name onto dir, keeping "" when dir is unknown.
func inDir(dir string, name ...string) string {
	if dir == "" {
		return ""
	}

	return filepath.Join(append([]string{dir}, name...)...)
}

// DefaultConfigPath is the config file used when neither WORKITEMS_CONFIG
// nor --config is given.
func DefaultConfigPath() string {
	return inDir(DefaultConfigDir(), configFileName)
}

// DefaultSnapshotPath returns the default snapshot database location.
func DefaultSnapshotPath() string {
	return inDir(DefaultDataDir(), snapshotFileName)
}

// DefaultKeyringDir returns the directory used by the file keyring backend.
func DefaultKeyringDir() string {
	return inDir(DefaultDataDir(), keyringDirName)
}
