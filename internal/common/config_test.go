package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, 1, config.Worker.Concurrency)
	assert.Equal(t, time.Second, config.Worker.GetPollBackoff())
	assert.False(t, config.IsProduction())
}

func TestLoadConfigSkipsMissingFiles(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	assert.Equal(t, NewDefaultConfig(), config)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobqueue.toml")
	contents := `
environment = "staging"
family = "quotes"

[storage]
dsn = "postgres://user:pass@db:5432/quotes"

[worker]
concurrency = 4
poll_backoff = "2s"

[logging]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", config.Environment)
	assert.Equal(t, "quotes", config.Family)
	assert.Equal(t, "postgres://user:pass@db:5432/quotes", config.Storage.DSN)
	assert.Equal(t, 4, config.Worker.Concurrency)
	assert.Equal(t, 2*time.Second, config.Worker.GetPollBackoff())
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoadConfigLaterFileOverridesEarlier(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	override := filepath.Join(dir, "override.toml")

	require.NoError(t, os.WriteFile(base, []byte(`
environment = "development"

[worker]
concurrency = 1
`), 0o644))
	require.NoError(t, os.WriteFile(override, []byte(`
environment = "production"
`), 0o644))

	config, err := LoadConfig(base, override)
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, 1, config.Worker.Concurrency)
	assert.True(t, config.IsProduction())
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("JOBQUEUE_ENV", "production")
	t.Setenv("JOBQUEUE_DSN", "postgres://override/db")
	t.Setenv("JOBQUEUE_LOG_LEVEL", "warn")
	t.Setenv("JOBQUEUE_CONCURRENCY", "8")
	t.Setenv("JOBQUEUE_POLL_BACKOFF", "500ms")

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, "postgres://override/db", config.Storage.DSN)
	assert.Equal(t, "warn", config.Logging.Level)
	assert.Equal(t, 8, config.Worker.Concurrency)
	assert.Equal(t, 500*time.Millisecond, config.Worker.GetPollBackoff())
	assert.True(t, config.IsProduction())
}

func TestApplyEnvOverridesIgnoresMalformedConcurrency(t *testing.T) {
	t.Setenv("JOBQUEUE_CONCURRENCY", "not-a-number")

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, NewDefaultConfig().Worker.Concurrency, config.Worker.Concurrency)
}

func TestGetPollBackoffDefaultsOnMalformedValue(t *testing.T) {
	w := WorkerConfig{PollBackoff: "not-a-duration"}
	assert.Equal(t, time.Second, w.GetPollBackoff())
}

func TestIsProductionAcceptsProdAlias(t *testing.T) {
	config := NewDefaultConfig()
	config.Environment = "  PROD  "
	assert.True(t, config.IsProduction())
}
