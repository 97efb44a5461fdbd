package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/workitems-go/internal/config"
	"github.com/tonimelisma/workitems-go/internal/credstore"
	"github.com/tonimelisma/workitems-go/internal/tfs"
	"github.com/tonimelisma/workitems-go/internal/tokenfile"
)

func basicAuth(pat string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(":"+pat))
}

// The file keyring lands under XDG_DATA_HOME only on Linux.
func skipUnlessLinux(t *testing.T) {
	t.Helper()

	if runtime.GOOS != "linux" {
		t.Skip("file keyring directory follows XDG only on linux")
	}
}

func TestLoginPAT_StoresInKeyringAndLogout(t *testing.T) {
	skipUnlessLinux(t)

	srv := newFakeTFS(t)
	cfgPath := cliEnv(t, "")
	t.Setenv(credstore.EnvFilePassword, "test")

	_, stderr, err := runCLI(t, "my-pat\n", "login", "--pat", "--url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, stderr, `Added profile "default"`)
	assert.Contains(t, stderr, "Logged in as Alice (alice@contoso.com). Token stored in keyring.")
	assert.Equal(t, []string{basicAuth("my-pat")}, srv.authSeen)

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[profile.default]")
	assert.Contains(t, string(data), `"pat"`)
	assert.Contains(t, string(data), srv.URL)

	// Later commands find the PAT in the keyring.
	out, _, err := runCLI(t, "", "get", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "item 1")
	assert.Equal(t, basicAuth("my-pat"), srv.authSeen[len(srv.authSeen)-1])

	_, stderr, err = runCLI(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, stderr, `Logged out of profile "default".`)

	_, _, err = runCLI(t, "", "get", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")

	// Logging out twice is fine.
	_, _, err = runCLI(t, "", "logout")
	require.NoError(t, err)
}

func TestLoginPAT_ExistingProfileKept(t *testing.T) {
	skipUnlessLinux(t)

	srv := newFakeTFS(t)
	body := fmt.Sprintf("[profile.work]\nurl = %q\nauth = \"pat\"\n", srv.URL)
	cfgPath := cliEnv(t, body)
	t.Setenv(credstore.EnvFilePassword, "test")

	_, stderr, err := runCLI(t, "p2\n", "login", "--pat", "--quiet")
	require.NoError(t, err)
	assert.Empty(t, stderr)

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
}

func TestLoginPAT_RejectedCredentialNotStored(t *testing.T) {
	skipUnlessLinux(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	cliEnv(t, "")
	t.Setenv(credstore.EnvFilePassword, "test")

	_, _, err := runCLI(t, "bad\n", "login", "--pat", "--url", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")

	store, err := openCredStore(nil)
	require.NoError(t, err)

	_, err = store.Load(srv.URL)
	assert.ErrorIs(t, err, credstore.ErrNotFound)
}

func TestLogin_NoURL(t *testing.T) {
	cliEnv(t, "")

	_, _, err := runCLI(t, "tok\n", "login", "--pat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pass --url")
}

func TestLoginPAT_EmptyStdin(t *testing.T) {
	cliEnv(t, "")

	_, _, err := runCLI(t, "\n", "login", "--pat", "--url", "https://dev.azure.com/contoso")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token on stdin")
}

func TestReadSecret(t *testing.T) {
	got, err := readSecret(strings.NewReader("  abc \nsecond line\n"))
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	got, err = readSecret(strings.NewReader("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", got)

	_, err = readSecret(strings.NewReader(""))
	require.Error(t, err)

	_, err = readSecret(iotest.ErrReader(errors.New("boom")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestLogout_RemovesTokenFile(t *testing.T) {
	skipUnlessLinux(t)

	cfgPath := cliEnv(t, "[profile.work]\nurl = \"https://dev.azure.com/contoso\"\n")

	rp, err := config.Resolve(config.ReadEnvOverrides(), config.CLIOverrides{ConfigPath: cfgPath})
	require.NoError(t, err)

	require.NoError(t, tokenfile.Save(rp.TokenPath, &tokenfile.File{
		Token: &oauth2.Token{AccessToken: "a", RefreshToken: "r"},
	}))

	// The file keyring keeps the native backends out of the test.
	t.Setenv(credstore.EnvFilePassword, "test")

	_, stderr, err := runCLI(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, stderr, `Logged out of profile "work".`)

	_, err = os.Stat(rp.TokenPath)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, filepath.Join(filepath.Dir(rp.TokenPath), "work.json"), rp.TokenPath)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "(unknown)", displayName(nil))
	assert.Equal(t, "Alice", displayName(&tfs.Connection{DisplayName: "Alice"}))
	assert.Equal(t, "Alice", displayName(&tfs.Connection{DisplayName: "Alice", Account: "Alice"}))
	assert.Equal(t, "Alice (a@x)", displayName(&tfs.Connection{DisplayName: "Alice", Account: "a@x"}))
}
