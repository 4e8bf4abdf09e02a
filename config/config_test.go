package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverlaysOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("chunk_size = 1048576\nsnapshots_to_pack = 8\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(1048576), cfg.ChunkSize)
	require.Equal(t, 8, cfg.SnapshotsToPack)
	require.Equal(t, Default().CacheCapacityBytes, cfg.CacheCapacityBytes)
}

