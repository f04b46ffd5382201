package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.ProposalTTL)
	assert.Equal(t, 5000, cfg.Scheduler.MaxBacktracks)
	assert.Equal(t, []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}, cfg.Scheduler.WorkingDays)
	assert.Equal(t, CatalogSourcePostgres, cfg.Catalog.Source)
	assert.Equal(t, 1, cfg.Jobs.Concurrency)
}

func TestLoadReadsEnvironment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SCHEDULER_MAX_BACKTRACKS", "250")
	t.Setenv("SCHEDULER_WORKING_DAYS", "Monday, Wednesday ,")
	t.Setenv("SCHEDULER_DEFAULT_TIMEOUT", "not-a-duration")
	t.Setenv("CATALOG_SOURCE", "FILE")
	t.Setenv("JOBS_CONCURRENCY", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Scheduler.MaxBacktracks)
	assert.Equal(t, []string{"Monday", "Wednesday"}, cfg.Scheduler.WorkingDays)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.DefaultTimeout)
	assert.Equal(t, CatalogSourceFile, cfg.Catalog.Source)
	assert.Equal(t, 4, cfg.Jobs.Concurrency)
}

func chdirTemp(t *testing.T) {
	t.Helper()
	previous, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(previous) })
}
