package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeLaterWins(t *testing.T) {
	got := Merge(Vars{"A": "1", "B": "1"}, nil, Vars{"B": "2"})
	assert.Equal(t, Vars{"A": "1", "B": "2"}, got)
}

func TestLookupAndGetOr(t *testing.T) {
	v := Vars{"SET": " value ", "BLANK": "  "}

	got, ok := v.Lookup("SET")
	assert.True(t, ok)
	assert.Equal(t, "value", got)

	_, ok = v.Lookup("BLANK")
	assert.False(t, ok)

	assert.Equal(t, "fallback", v.GetOr("BLANK", "fallback"))
	assert.Equal(t, "fallback", Vars(nil).GetOr("SET", "fallback"))
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.env"), []byte("DATABRICKS_HOST=https://a\nUAT_WAREHOUSE_ID=wh-a\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.env"), []byte("# comment\nUAT_WAREHOUSE_ID=\"wh-b\"\n"), 0o600))

	vars, err := LoadEnvFiles(dir, []string{"a.env", "", "b.env"}, false)
	require.NoError(t, err)
	assert.Equal(t, "https://a", vars["DATABRICKS_HOST"])
	assert.Equal(t, "wh-b", vars["UAT_WAREHOUSE_ID"])
}

func TestLoadEnvFilesMissing(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadEnvFiles(dir, []string{"missing.env"}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.env")

	vars, err := LoadEnvFiles(dir, []string{"missing.env"}, true)
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func TestFromOSOverridesFileValues(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LVDASH_TEST_KEY=file\nLVDASH_TEST_ONLY_FILE=file\n"), 0o600))
	t.Setenv("LVDASH_TEST_KEY", "process")

	fileVars, err := LoadEnvFiles(dir, []string{".env"}, false)
	require.NoError(t, err)
	vars := Merge(fileVars, FromOS())
	assert.Equal(t, "process", vars["LVDASH_TEST_KEY"])
	assert.Equal(t, "file", vars["LVDASH_TEST_ONLY_FILE"])
}
