package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPortalBaseURL, cfg.Portal.BaseURL)
	assert.Equal(t, 20, cfg.Portal.MaxConcurrency)
	assert.Equal(t, 45*time.Second, cfg.Portal.CallTimeout)
	assert.Equal(t, 2*time.Second, cfg.Portal.FailureBackoff)
	assert.Equal(t, 100, cfg.Portal.PendingPageSize)
	assert.Equal(t, 1000, cfg.Portal.PendingMaxPages)
	assert.Equal(t, int64(20), cfg.Sync.TenantID)
	assert.Equal(t, int64(44), cfg.Sync.InsuranceCompanyID)
	assert.Equal(t, "downloads/processados", cfg.Sync.ProcessedDir)
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoad_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORTAL_MAX_CONCURRENCY", "5")
	t.Setenv("PORTAL_CALL_TIMEOUT", "10s")
	t.Setenv("PORTAL_FAILURE_BACKOFF", "3")
	t.Setenv("SYNC_TENANT_ID", "7")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Portal.MaxConcurrency)
	assert.Equal(t, 10*time.Second, cfg.Portal.CallTimeout)
	assert.Equal(t, 3*time.Second, cfg.Portal.FailureBackoff)
	assert.Equal(t, int64(7), cfg.Sync.TenantID)
	assert.True(t, cfg.Redis.Enabled())
	assert.True(t, cfg.Log.Pretty)
}

func TestLoad_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("PORTAL_MAX_CONCURRENCY", "0")
	_, err := Load()
	assert.ErrorContains(t, err, "PORTAL_MAX_CONCURRENCY")

	t.Setenv("PORTAL_MAX_CONCURRENCY", "3")
	t.Setenv("PORTAL_CALL_TIMEOUT", "soon")
	_, err = Load()
	assert.ErrorContains(t, err, "PORTAL_CALL_TIMEOUT")
}

func TestDBConfig_ConnectionString(t *testing.T) {
	c := DBConfig{Host: "db", Port: 5432, User: "sync", Password: "p@ss", DBName: "corretora", SSLMode: "disable"}
	assert.Equal(t, "postgres://sync:p%40ss@db:5432/corretora?sslmode=disable", c.ConnectionString())

	c.DatabaseURL = "postgres://override"
	assert.Equal(t, "postgres://override", c.ConnectionString())
}
