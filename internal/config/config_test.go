package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PGBR_REPO_PATH", "PGBR_STANZA", "PGBR_BLOCK_SIZE", "PGBR_CHECKSUM_SIZE",
		"PGBR_COMPRESS", "PGBR_CIPHER_PASSPHRASE", "PGBR_METRICS_ADDR", "PGBR_REDIS_ADDR", "PGBR_WORKER_COUNT", "IN_CONTAINER",
	} {
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadWithNoEnvVarsAppliesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "./repo", cfg.RepoPath)
	assert.Equal(t, "main", cfg.StanzaName)
	assert.Equal(t, 1024*1024, cfg.BlockSize)
	assert.Equal(t, 6, cfg.ChecksumSize)
	assert.Equal(t, "zstd", cfg.CompressType)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.False(t, cfg.InContainer)
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("PGBR_REPO_PATH", "/var/lib/pgbr")
	os.Setenv("PGBR_STANZA", "main")
	defer clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1024*1024, cfg.BlockSize)
	assert.Equal(t, 6, cfg.ChecksumSize)
	assert.Equal(t, "zstd", cfg.CompressType)
	assert.False(t, cfg.InContainer)
}

func TestLoadRejectsInvalidCompressType(t *testing.T) {
	clearEnv(t)
	os.Setenv("PGBR_REPO_PATH", "/var/lib/pgbr")
	os.Setenv("PGBR_STANZA", "main")
	os.Setenv("PGBR_COMPRESS", "rar")
	defer clearEnv(t)

	_, err := Load()
	assert.Error(t, err)
}
