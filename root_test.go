package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/workitems-go/internal/config"
	"github.com/tonimelisma/workitems-go/internal/credstore"
)

// fakeTFS emulates the collection endpoints the CLI reaches. Work item
// states live in items so tests can change them between snapshot runs.
type fakeTFS struct {
	*httptest.Server

	mu        sync.Mutex
	items     map[int]fakeItem
	wiqlPaths []string
	wiqlTops  []string
	authSeen  []string
}

type fakeItem struct {
	Rev   int
	State string
}

func newFakeTFS(t *testing.T) *fakeTFS {
	t.Helper()

	f := &fakeTFS{items: map[int]fakeItem{
		1: {Rev: 1, State: "New"},
		2: {Rev: 4, State: "Active"},
		3: {Rev: 2, State: "Active"},
	}}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /_apis/connectionData", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.authSeen = append(f.authSeen, r.Header.Get("Authorization"))
		f.mu.Unlock()

		fmt.Fprint(w, `{"authenticatedUser":{"id":"u-1","providerDisplayName":"Alice",
			"properties":{"Account":{"$value":"alice@contoso.com"}}},"instanceId":"inst-1"}`)
	})

	mux.HandleFunc("GET /_apis/wit/workitems/{id}", func(w http.ResponseWriter, r *http.Request) {
		var id int
		fmt.Sscanf(r.PathValue("id"), "%d", &id)

		body, ok := f.itemJSON(id)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `{"message":"TF401232: Work item %d does not exist."}`, id)

			return
		}

		fmt.Fprint(w, body)
	})

	mux.HandleFunc("POST /_apis/wit/workitemsbatch", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs []int `json:"ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		parts := make([]string, 0, len(req.IDs))
		for _, id := range req.IDs {
			if body, ok := f.itemJSON(id); ok {
				parts = append(parts, body)
			}
		}

		fmt.Fprintf(w, `{"count":%d,"value":[%s]}`, len(parts), strings.Join(parts, ","))
	})

	wiql := func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.wiqlPaths = append(f.wiqlPaths, r.URL.Path)
		f.wiqlTops = append(f.wiqlTops, r.URL.Query().Get("$top"))
		ids := f.sortedIDs()
		f.mu.Unlock()

		refs := make([]string, 0, len(ids))
		for _, id := range ids {
			refs = append(refs, fmt.Sprintf(`{"id":%d}`, id))
		}

		fmt.Fprintf(w, `{"queryType":"flat","workItems":[%s]}`, strings.Join(refs, ","))
	}
	mux.HandleFunc("POST /_apis/wit/wiql", wiql)
	mux.HandleFunc("POST /Fabrikam/_apis/wit/wiql", wiql)

	mux.HandleFunc("GET /Fabrikam/_apis/wit/wiql/q-active", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"queryType":"flat","workItems":[{"id":3},{"id":2}]}`)
	})

	mux.HandleFunc("GET /_apis/projects", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"count":2,"value":[{"id":"p1","name":"Fabrikam"},{"id":"p2","name":"Contoso"}]}`)
	})

	mux.HandleFunc("GET /Fabrikam/_apis/wit/queries", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"count":2,"value":[
			{"id":"f-my","name":"My Queries","path":"My Queries","isFolder":true},
			{"id":"f-shared","name":"Shared Queries","path":"Shared Queries","isFolder":true,"hasChildren":true,"children":[
				{"id":"q-active","name":"Active Bugs","path":"Shared Queries/Active Bugs","wiql":"SELECT 1"},
				{"id":"f-team","name":"Team","path":"Shared Queries/Team","isFolder":true,"hasChildren":true,"children":[
					{"id":"q-mine","name":"Mine","path":"Shared Queries/Team/Mine","wiql":"SELECT 2"}
				]}
			]}
		]}`)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)

	return f
}

// sortedIDs must be called with mu held.
func (f *fakeTFS) sortedIDs() []int {
	ids := make([]int, 0, len(f.items))
	for id := 1; len(ids) < len(f.items); id++ {
		if _, ok := f.items[id]; ok {
			ids = append(ids, id)
		}
	}

	return ids
}

func (f *fakeTFS) itemJSON(id int) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	it, ok := f.items[id]
	if !ok {
		return "", false
	}

	return fmt.Sprintf(`{"id":%d,"rev":%d,"fields":{"System.Title":"item %d","System.State":%q,
		"System.WorkItemType":"Bug","System.TeamProject":"Fabrikam",
		"System.AssignedTo":{"displayName":"Alice","uniqueName":"alice@contoso.com"}}}`,
		id, it.Rev, id, it.State), true
}

func (f *fakeTFS) setItem(id int, it fakeItem) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items[id] = it
}

func (f *fakeTFS) deleteItem(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.items, id)
}

// cliEnv points every path the CLI touches into a temp dir and returns the
// config file path.
func cliEnv(t *testing.T, configBody string) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))

	for _, k := range []string{config.EnvConfig, config.EnvProfile, config.EnvURL, config.EnvPAT, config.EnvPassword} {
		t.Setenv(k, "")
	}

	path := filepath.Join(dir, "config.toml")
	if configBody != "" {
		require.NoError(t, os.WriteFile(path, []byte(configBody), 0o600))
	}

	t.Setenv(config.EnvConfig, path)

	return path
}

// connectedEnv configures a PAT profile against srv with a snapshot db in a
// temp dir.
func connectedEnv(t *testing.T, srv *fakeTFS) string {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "snap.db")
	body := fmt.Sprintf(`
[profile.work]
url     = %q
auth    = "pat"
project = "Fabrikam"

[snapshot]
db_path = %q
`, srv.URL, dbPath)

	path := cliEnv(t, body)
	t.Setenv(config.EnvPAT, "env-pat")

	return path
}

// runCLI executes the root command with args and captures its output.
func runCLI(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	var out, errOut bytes.Buffer

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))

	err = cmd.ExecuteContext(context.Background())

	return out.String(), errOut.String(), err
}

// --- buildLogger tests ---

func TestBuildLogger_Levels(t *testing.T) {
	tests := []struct {
		name    string
		logging *config.LoggingConfig
		flags   CLIFlags
		enabled slog.Level
		off     slog.Level
	}{
		{"default warn", nil, CLIFlags{}, slog.LevelWarn, slog.LevelInfo},
		{"config info", &config.LoggingConfig{LogLevel: "info"}, CLIFlags{}, slog.LevelInfo, slog.LevelDebug},
		{"config error", &config.LoggingConfig{LogLevel: "error"}, CLIFlags{}, slog.LevelError, slog.LevelWarn},
		{"verbose wins", &config.LoggingConfig{LogLevel: "error"}, CLIFlags{Verbose: true}, slog.LevelDebug, slog.LevelDebug - 1},
		{"quiet wins", &config.LoggingConfig{LogLevel: "debug"}, CLIFlags{Quiet: true}, slog.LevelError, slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := buildLogger(io.Discard, tt.logging, tt.flags)
			assert.True(t, logger.Handler().Enabled(context.Background(), tt.enabled))
			assert.False(t, logger.Handler().Enabled(context.Background(), tt.off))
		})
	}
}

func TestBuildLogger_Format(t *testing.T) {
	var buf bytes.Buffer

	// A buffer is not a terminal, so auto means JSON.
	buildLogger(&buf, &config.LoggingConfig{LogLevel: "info", LogFormat: "auto"}, CLIFlags{}).Info("hello")
	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())), buf.String())

	buf.Reset()
	buildLogger(&buf, &config.LoggingConfig{LogLevel: "info", LogFormat: "text"}, CLIFlags{}).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestIsTerminal_NonFile(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))
}

func TestMustCLIContext_PanicsWithout(t *testing.T) {
	assert.Panics(t, func() { mustCLIContext(context.Background()) })
}

// --- command tests ---

func TestGet_Table(t *testing.T) {
	srv := newFakeTFS(t)
	connectedEnv(t, srv)

	out, _, err := runCLI(t, "", "get", "2")
	require.NoError(t, err)

	assert.Contains(t, out, "ID:          2")
	assert.Contains(t, out, "Title:       item 2")
	assert.Contains(t, out, "State:       Active")
	assert.Contains(t, out, "Assigned To: Alice")

	want := "Basic " + base64.StdEncoding.EncodeToString([]byte(":env-pat"))
	assert.Equal(t, []string{want}, srv.authSeen)
}

func TestGet_JSONAndYAML(t *testing.T) {
	srv := newFakeTFS(t)
	connectedEnv(t, srv)

	out, _, err := runCLI(t, "", "get", "3", "--json")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.EqualValues(t, 3, got["id"])
	assert.Equal(t, "item 3", got["title"])
	assert.Equal(t, "Alice", got["assignedTo"])

	out, _, err = runCLI(t, "", "get", "3", "--yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "id: 3\n")
	assert.Contains(t, out, "assigned_to: Alice\n")
}

func TestGet_Errors(t *testing.T) {
	srv := newFakeTFS(t)
	connectedEnv(t, srv)

	_, _, err := runCLI(t, "", "get", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid work item id "abc"`)

	_, _, err = runCLI(t, "", "get", "99")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TF401232")

	_, _, err = runCLI(t, "", "get", "1", "--json", "--yaml")
	require.Error(t, err)
}

func TestQuery_UsesProfileProjectAndTop(t *testing.T) {
	srv := newFakeTFS(t)
	connectedEnv(t, srv)

	out, _, err := runCLI(t, "", "query", "--top", "2", "SELECT [System.Id] FROM WorkItems")
	require.NoError(t, err)

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "TITLE")
	assert.Contains(t, out, "item 1")
	assert.Contains(t, out, "item 2")
	assert.NotContains(t, out, "item 3")

	assert.Equal(t, []string{"/Fabrikam/_apis/wit/wiql"}, srv.wiqlPaths)
	assert.Equal(t, []string{"2"}, srv.wiqlTops)
}

func TestQuery_ProjectFlagOverrides(t *testing.T) {
	srv := newFakeTFS(t)
	connectedEnv(t, srv)

	out, _, err := runCLI(t, "", "query", "--json", "--project", "Fabrikam", "SELECT [System.Id] FROM WorkItems")
	require.NoError(t, err)

	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	assert.Len(t, items, 3)
	assert.Equal(t, []string{""}, srv.wiqlTops)
}

func TestSaved(t *testing.T) {
	srv := newFakeTFS(t)
	connectedEnv(t, srv)

	out, _, err := runCLI(t, "", "saved", "Fabrikam", "shared queries", "ACTIVE BUGS", "--json")
	require.NoError(t, err)

	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 2)
	assert.EqualValues(t, 3, items[0]["id"])
	assert.EqualValues(t, 2, items[1]["id"])

	_, _, err = runCLI(t, "", "saved", "Fabrikam", "Shared Queries", "Team")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "folder")
}

func TestProjectsFoldersQueries(t *testing.T) {
	srv := newFakeTFS(t)
	connectedEnv(t, srv)

	out, _, err := runCLI(t, "", "projects")
	require.NoError(t, err)
	assert.Equal(t, "Fabrikam\nContoso\n", out)

	out, _, err = runCLI(t, "", "folders")
	require.NoError(t, err)
	assert.Equal(t, "My Queries\nShared Queries\n", out)

	out, _, err = runCLI(t, "", "queries", "Shared Queries")
	require.NoError(t, err)
	assert.Equal(t, "Active Bugs\nMine\n", out)

	out, _, err = runCLI(t, "", "queries", "Fabrikam", "Shared Queries", "--tree")
	require.NoError(t, err)
	assert.Equal(t, "Shared Queries/\n  Active Bugs\n  Team/\n    Mine\n", out)

	out, _, err = runCLI(t, "", "queries", "Shared Queries", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `["Active Bugs","Mine"]`, out)
}

func TestFolders_NoDefaultProject(t *testing.T) {
	srv := newFakeTFS(t)
	cliEnv(t, fmt.Sprintf("[profile.x]\nurl = %q\n", srv.URL))
	t.Setenv(config.EnvPAT, "p")

	_, _, err := runCLI(t, "", "folders")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no default project")
}

func TestWhoami(t *testing.T) {
	srv := newFakeTFS(t)
	connectedEnv(t, srv)

	out, _, err := runCLI(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "User:       Alice (alice@contoso.com)")
	assert.Contains(t, out, "Profile:    work")

	out, _, err = runCLI(t, "", "whoami", "--json")
	require.NoError(t, err)

	var got whoamiOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, whoamiOutput{
		Profile:     "work",
		URL:         srv.URL,
		UserID:      "u-1",
		DisplayName: "Alice",
		Account:     "alice@contoso.com",
		InstanceID:  "inst-1",
	}, got)
}

func TestConnect_NoURL(t *testing.T) {
	cliEnv(t, "")
	t.Setenv(config.EnvPAT, "p")

	_, _, err := runCLI(t, "", "projects")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no collection URL")
}

func TestConnect_NTLMNeedsPassword(t *testing.T) {
	cliEnv(t, "[profile.onprem]\nurl = \"http://tfs.invalid/tfs\"\nauth = \"ntlm\"\ndomain = \"CORP\"\nusername = \"bob\"\n")

	_, _, err := runCLI(t, "", "projects")
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.EnvPassword)
}

func TestConnect_NotLoggedIn(t *testing.T) {
	srv := newFakeTFS(t)
	cliEnv(t, fmt.Sprintf("[profile.x]\nurl = %q\n", srv.URL))
	// A file keyring with no entries, so the native backends are not probed.
	t.Setenv(credstore.EnvFilePassword, "test")

	_, _, err := runCLI(t, "", "projects")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
	assert.Contains(t, err.Error(), "workitems login")
}

func TestConfigShow(t *testing.T) {
	srv := newFakeTFS(t)
	connectedEnv(t, srv)

	out, _, err := runCLI(t, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "[profile.work]")
	assert.Contains(t, out, config.EnvPAT+": set")
	assert.NotContains(t, out, "env-pat")

	out, _, err = runCLI(t, "", "config", "show", "--json")
	require.NoError(t, err)
	assert.NotContains(t, out, "env-pat")

	var got configShowOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "work", got.Profile)
	assert.True(t, got.PATSet)
	assert.Equal(t, "pat", got.Auth)
	assert.Equal(t, config.DefaultConfig().Network.APIVersion, got.Network.APIVersion)
}

func TestConfig_UnknownKeyFailsEarly(t *testing.T) {
	cliEnv(t, "[profile.x]\nurll = \"https://x\"\n")

	_, _, err := runCLI(t, "", "projects")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
	assert.Contains(t, err.Error(), `did you mean "url"`)
}
