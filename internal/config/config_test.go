package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/morikuni/failure/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/wayback-etl/internal/wayback"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	assert.Empty(t, cfg.Mongo.Database)
	assert.Empty(t, cfg.Mongo.Collection)
	assert.Equal(t, StoreMongo, cfg.Store.Provider)
	assert.Equal(t, 5, cfg.HTTP.MaxAttempts)
	assert.Equal(t, 20*time.Second, cfg.FetchTimeout())
	assert.Equal(t, time.Second, cfg.InitialBackoff())
	assert.Equal(t, wayback.DefaultArchive(), cfg.ArchiveEndpoints())
	assert.Equal(t, []string{"https://example.com"}, cfg.DefaultURLs)
	assert.Equal(t, RawArchiveNone, cfg.RawArchive.Provider)
	assert.False(t, cfg.NotificationsEnabled())
}

func TestLoadWithFileOverrides(t *testing.T) {
	path := writeConfig(t, `
mongo:
  uri: mongodb://db:27017
  database: archive
  collection: snapshots
store:
  provider: postgres
postgres:
  dsn: postgres://localhost/wayback
  max_conns: 8
http:
  timeout_seconds: 5
  max_attempts: 3
  backoff_initial_ms: 250
  requests_per_second: 2.5
  burst: 3
archive:
  cdx_limit: 50
raw_archive:
  provider: local
  dir: /tmp/raw
pubsub:
  project_id: demo
  topic: records
logging:
  development: false
  level: warn
default_urls: ["https://golang.org", "https://go.dev"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mongodb://db:27017", cfg.Mongo.URI)
	assert.Equal(t, "archive", cfg.Mongo.Database)
	assert.Equal(t, "snapshots", cfg.Mongo.Collection)
	assert.Equal(t, StorePostgres, cfg.Store.Provider)
	assert.Equal(t, int32(8), cfg.Postgres.MaxConns)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout())
	assert.Equal(t, 3, cfg.HTTP.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.InitialBackoff())
	assert.InDelta(t, 2.5, cfg.HTTP.RequestsPerSecond, 0.001)
	assert.Equal(t, 3, cfg.HTTP.Burst)
	assert.Equal(t, 50, cfg.ArchiveEndpoints().CDXLimit)
	assert.Equal(t, wayback.DefaultCDXURL, cfg.ArchiveEndpoints().CDXURL)
	assert.Equal(t, "/tmp/raw", cfg.RawArchive.Dir)
	assert.True(t, cfg.NotificationsEnabled())
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, []string{"https://golang.org", "https://go.dev"}, cfg.DefaultURLs)
}

func TestLoadLegacyEnvironment(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://legacy:27017")
	t.Setenv("MONGO_DB", "wayback")
	t.Setenv("COLLECTION_NAME", "snapshots")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "mongodb://legacy:27017", cfg.Mongo.URI)
	assert.Equal(t, "wayback", cfg.Mongo.Database)
	assert.Equal(t, "snapshots", cfg.Mongo.Collection)
}

func TestLoadPrefixedEnvironmentWins(t *testing.T) {
	t.Setenv("MONGO_DB", "legacy")
	t.Setenv("WAYBACK_MONGO_DATABASE", "prefixed")
	t.Setenv("WAYBACK_HTTP_MAX_ATTEMPTS", "2")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "prefixed", cfg.Mongo.Database)
	assert.Equal(t, 2, cfg.HTTP.MaxAttempts)
}

func TestLoadEnvironmentOnlyKeys(t *testing.T) {
	t.Setenv("WAYBACK_STORE_PROVIDER", "postgres")
	t.Setenv("WAYBACK_POSTGRES_DSN", "postgres://etl@localhost:5432/wayback")
	t.Setenv("WAYBACK_RAW_ARCHIVE_PROVIDER", "gcs")
	t.Setenv("WAYBACK_RAW_ARCHIVE_GCS_BUCKET", "wayback-raw")
	t.Setenv("WAYBACK_PUBSUB_PROJECT_ID", "etl-project")
	t.Setenv("WAYBACK_PUBSUB_TOPIC", "wayback-records")
	t.Setenv("WAYBACK_METRICS_PUSHGATEWAY_URL", "http://pushgateway:9091")
	t.Setenv("WAYBACK_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, cfg.Store.Provider)
	assert.Equal(t, "postgres://etl@localhost:5432/wayback", cfg.Postgres.DSN)
	assert.Equal(t, RawArchiveGCS, cfg.RawArchive.Provider)
	assert.Equal(t, "wayback-raw", cfg.RawArchive.GCSBucket)
	assert.Equal(t, "etl-project", cfg.PubSub.ProjectID)
	assert.Equal(t, "wayback-records", cfg.PubSub.Topic)
	assert.True(t, cfg.NotificationsEnabled())
	assert.Equal(t, "http://pushgateway:9091", cfg.Metrics.PushgatewayURL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	tests := map[string]func(*Config){
		"zero timeout":         func(c *Config) { c.HTTP.TimeoutSeconds = 0 },
		"zero attempts":        func(c *Config) { c.HTTP.MaxAttempts = 0 },
		"zero backoff":         func(c *Config) { c.HTTP.BackoffInitialMs = 0 },
		"zero cdx limit":       func(c *Config) { c.Archive.CDXLimit = 0 },
		"negative rps":         func(c *Config) { c.HTTP.RequestsPerSecond = -1 },
		"unknown store":        func(c *Config) { c.Store.Provider = "sqlite" },
		"postgres without dsn": func(c *Config) { c.Store.Provider = StorePostgres },
		"local without dir": func(c *Config) {
			c.RawArchive.Provider = RawArchiveLocal
			c.RawArchive.Dir = ""
		},
		"gcs without bucket":   func(c *Config) { c.RawArchive.Provider = RawArchiveGCS },
		"unknown raw archive":  func(c *Config) { c.RawArchive.Provider = "s3" },
		"pubsub without topic": func(c *Config) { c.PubSub.ProjectID = "demo" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, failure.Is(err, wayback.ErrInvalidConfig))
		})
	}

	require.NoError(t, base.Validate())
}
