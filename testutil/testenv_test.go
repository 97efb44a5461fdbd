package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(`
# comment
WORKITEMS_TESTUTIL_A="quoted"
export WORKITEMS_TESTUTIL_B = plain
WORKITEMS_TESTUTIL_C=from-file
not a pair
`), 0o600))

	t.Setenv("WORKITEMS_TESTUTIL_A", "")
	t.Setenv("WORKITEMS_TESTUTIL_B", "")
	t.Setenv("WORKITEMS_TESTUTIL_C", "from-env")

	LoadDotEnv(path)

	assert.Equal(t, "quoted", os.Getenv("WORKITEMS_TESTUTIL_A"))
	assert.Equal(t, "plain", os.Getenv("WORKITEMS_TESTUTIL_B"))
	assert.Equal(t, "from-env", os.Getenv("WORKITEMS_TESTUTIL_C"))
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	assert.NotPanics(t, func() { LoadDotEnv(filepath.Join(t.TempDir(), "none")) })
}

func TestCheckAllowlist(t *testing.T) {
	const list = "https://dev.azure.com/a-test, http://tfs:8080/tfs/Test/"

	assert.NoError(t, CheckAllowlist(list, "https://dev.azure.com/a-test"))
	assert.NoError(t, CheckAllowlist(list, "HTTP://TFS:8080/tfs/test"))

	err := CheckAllowlist(list, "https://dev.azure.com/prod")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not in")

	assert.ErrorContains(t, CheckAllowlist("", "https://x"), EnvE2EAllowed)
	assert.ErrorContains(t, CheckAllowlist(list, ""), EnvE2EURL)
}

func TestFindModuleRoot(t *testing.T) {
	root := FindModuleRoot("fallback")
	_, err := os.Stat(filepath.Join(root, "go.mod"))
	assert.NoError(t, err)
}

func TestIsolatedEnv(t *testing.T) {
	root := t.TempDir()

	env, err := IsolatedEnv(root)
	require.NoError(t, err)
	require.Len(t, env, 4)

	for _, kv := range env {
		_, dir, ok := strings.Cut(kv, "=")
		require.True(t, ok)
		assert.True(t, strings.HasPrefix(dir, root), kv)
		assert.DirExists(t, dir)
	}
}
