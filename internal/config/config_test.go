package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CARDSENTRY_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8040, cfg.Port)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "http://localhost:8090", cfg.ProviderBaseURL)
	assert.True(t, filepath.IsAbs(cfg.DataDir))

	require.NotNil(t, cfg.Backup)
	assert.False(t, cfg.Backup.Enabled)
	assert.Equal(t, 14, cfg.Backup.RetainCount)
}

func TestLoadFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CARDSENTRY_DATA_DIR", dir)
	t.Setenv("PORT", "9001")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PROVIDER_BASE_URL", "https://provider.example.com")
	t.Setenv("PROVIDER_TOKEN", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 9001, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "https://provider.example.com", cfg.ProviderBaseURL)
	assert.Equal(t, "secret", cfg.ProviderToken)
}

func TestLoadBackupEnabledByBucket(t *testing.T) {
	t.Setenv("CARDSENTRY_DATA_DIR", t.TempDir())
	t.Setenv("BACKUP_S3_BUCKET", "cardsentry-backups")
	t.Setenv("BACKUP_S3_ENDPOINT", "https://s3.example.com")
	t.Setenv("BACKUP_RETAIN_COUNT", "7")

	cfg, err := Load()
	require.NoError(t, err)

	require.NotNil(t, cfg.Backup)
	assert.True(t, cfg.Backup.Enabled)
	assert.Equal(t, "cardsentry-backups", cfg.Backup.Bucket)
	assert.Equal(t, "https://s3.example.com", cfg.Backup.Endpoint)
	assert.Equal(t, 7, cfg.Backup.RetainCount)
}

func TestLoadInvalidIntFallsBack(t *testing.T) {
	t.Setenv("CARDSENTRY_DATA_DIR", t.TempDir())
	t.Setenv("PORT", "not-a-port")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8040, cfg.Port)
}
