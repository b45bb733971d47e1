package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expolis/backend/services/reconcile-service/internal/parser"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EXPOLIS_DB_DSN", "postgres://expolis@localhost/expolis")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, parser.DefaultFormats(), cfg.TimeFormats)
	assert.False(t, cfg.Reconcile.SkipMalformed)
	assert.Zero(t, cfg.Reconcile.QueryTimeout)
	assert.False(t, cfg.RedisEnabled())
	assert.Equal(t, 7*24*time.Hour, cfg.SummaryTTL())
}

func TestLoadFromFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconcile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: SQLite
  dsn: replica.db
redis:
  addr: localhost:6379
  ttlSeconds: 60
reconcile:
  skip_malformed: true
  queries_per_second: 20
time_formats:
  store: "2006-01-02 15:04:05"
`), 0o600))
	t.Setenv("EXPOLIS_QUERY_TIMEOUT", "3s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "replica.db", cfg.Database.DSN)
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, time.Minute, cfg.SummaryTTL())
	assert.True(t, cfg.Reconcile.SkipMalformed)
	assert.Equal(t, 20.0, cfg.Reconcile.QueriesPerSecond)
	assert.Equal(t, 3*time.Second, cfg.Reconcile.QueryTimeout)
	assert.Equal(t, parser.DefaultSourceFormat, cfg.TimeFormats.Source)
	assert.Equal(t, "2006-01-02 15:04:05", cfg.TimeFormats.Store)
}

func TestLoadValidation(t *testing.T) {
	_, err := Load("")
	assert.EqualError(t, err, "config: database dsn required")

	t.Setenv("EXPOLIS_DB_DSN", "x")
	t.Setenv("EXPOLIS_DB_DRIVER", "mysql")
	_, err = Load("")
	assert.ErrorContains(t, err, "unsupported database driver")

	t.Setenv("EXPOLIS_DB_DRIVER", "postgres")
	t.Setenv("EXPOLIS_QPS", "-1")
	_, err = Load("")
	assert.ErrorContains(t, err, "queries_per_second")
}
