package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://from-env:27017")
	t.Setenv("COLLECTION_NAME", "")
	os.Unsetenv("COLLECTION_NAME") //nolint:errcheck // restored by t.Setenv cleanup

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MONGO_URI=mongodb://from-file:27017\nCOLLECTION_NAME=snapshots\n"), 0o600))

	loaded, err := LoadDotEnv(path)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, "mongodb://from-env:27017", os.Getenv("MONGO_URI"))
	assert.Equal(t, "snapshots", os.Getenv("COLLECTION_NAME"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "snapshots", cfg.Mongo.Collection)
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	loaded, err := LoadDotEnv(filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	assert.False(t, loaded)
}
