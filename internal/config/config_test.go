package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelkucherov/CoreSync/internal/coresync"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "coresync.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesOntoDefaults(t *testing.T) {
	path := writeTempConfig(t, `{"tables": [{"name": "widgets", "direction": "pull_only"}]}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Dialect) // unset, falls back to Default()
	require.Len(t, cfg.Tables, 1)
	assert.Equal(t, "widgets", cfg.Tables[0].Name)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `{"dialect": "postgres", "dsn": "postgres://x", "max_conns": 16, "variant": "prod"}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Dialect)
	assert.Equal(t, "postgres://x", cfg.DSN)
	assert.Equal(t, 16, cfg.MaxConns)
	assert.Equal(t, "prod", cfg.Variant)
}

func TestLoadMissingFileIsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestLoadMalformedJSONIsError(t *testing.T) {
	path := writeTempConfig(t, `{not json`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestDescriptorsDefaultsToBidirectional(t *testing.T) {
	cfg := &Config{Tables: []TableConfig{{Name: "widgets"}}}
	descs, err := cfg.Descriptors()
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, coresync.Bidirectional, descs[0].Direction)
}

func TestDescriptorsRejectsUnknownDirection(t *testing.T) {
	cfg := &Config{Tables: []TableConfig{{Name: "widgets", Direction: "sideways"}}}
	_, err := cfg.Descriptors()
	require.Error(t, err)
}

func TestDescriptorsMapsAllDirections(t *testing.T) {
	cfg := &Config{Tables: []TableConfig{
		{Name: "a", Direction: "bidirectional"},
		{Name: "b", Direction: "pull_only"},
	}}
	descs, err := cfg.Descriptors()
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.Equal(t, coresync.Bidirectional, descs[0].Direction)
	assert.Equal(t, coresync.PullOnly, descs[1].Direction)
}
