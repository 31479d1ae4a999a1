package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsValidate(t *testing.T) {
	good := Params{DataShards: 10, ParityShards: 5, ChunkSize: 1 << 20, CompressionLevel: 3}
	assert.NoError(t, good.Validate())

	bad := good
	bad.DataShards = 0
	assert.Error(t, bad.Validate())

	bad = good
	bad.ParityShards = 0
	assert.Error(t, bad.Validate())

	bad = good
	bad.DataShards, bad.ParityShards = 200, 100
	assert.Error(t, bad.Validate())

	bad = good
	bad.ChunkSize = 0
	assert.Error(t, bad.Validate())

	bad = good
	bad.CompressionLevel = 23
	assert.Error(t, bad.Validate())

	// Level is not checked when compression is off.
	bad = good
	bad.CompressionLevel = 0
	bad.NoCompression = true
	assert.NoError(t, bad.Validate())
	assert.Equal(t, 0, bad.Level())
	assert.Equal(t, 3, good.Level())
}

func TestParseSize(t *testing.T) {
	cases := map[string]int64{
		"100":     100,
		"1KB":     1024,
		"1MB":     1 << 20,
		"1GB":     1 << 30,
		"1TB":     1 << 40,
		"100mb":   100 << 20,
		"100B":    100,
		"50b":     50,
		" 1 KB ":  1024,
		"  100  ": 100,
	}
	for in, want := range cases {
		got, err := ParseSize(in)
		require.NoError(t, err, "ParseSize(%q)", in)
		assert.Equal(t, want, got, "ParseSize(%q)", in)
	}

	for _, in := range []string{"abc", "GB", "100XB", "-5", ""} {
		_, err := ParseSize(in)
		assert.Error(t, err, "ParseSize(%q)", in)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load()
	require.NoError(t, err)
	assert.Nil(t, cfg.Defaults.DataShards)
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "ectar"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ectar", "config.toml"), []byte(
		"[defaults]\ndata_shards = 8\nparity_shards = 4\nchunk_size = \"256MB\"\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.Defaults.DataShards)
	assert.Equal(t, 8, *cfg.Defaults.DataShards)
	require.NotNil(t, cfg.Defaults.ChunkSize)
	assert.Equal(t, "256MB", *cfg.Defaults.ChunkSize)
}
