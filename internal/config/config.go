// Package config loads and validates wayback-etl configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/morikuni/failure/v2"
	"github.com/spf13/viper"

	"github.com/JakeFAU/wayback-etl/internal/wayback"
)

// Store and raw archive providers.
const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	RawArchiveNone  = "none"
	RawArchiveLocal = "local"
	RawArchiveGCS   = "gcs"
)

// Config captures every knob of a run.
type Config struct {
	Mongo       MongoConfig      `mapstructure:"mongo"`
	Store       StoreConfig      `mapstructure:"store"`
	Postgres    PostgresConfig   `mapstructure:"postgres"`
	HTTP        HTTPConfig       `mapstructure:"http"`
	Archive     ArchiveConfig    `mapstructure:"archive"`
	RawArchive  RawArchiveConfig `mapstructure:"raw_archive"`
	PubSub      PubSubConfig     `mapstructure:"pubsub"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
	Logging     LoggingConfig    `mapstructure:"logging"`
	DefaultURLs []string         `mapstructure:"default_urls"`
}

// MongoConfig locates the document store. Database and Collection have no
// defaults; leaving them empty fails the first insert.
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// StoreConfig selects the record store implementation.
type StoreConfig struct {
	Provider string `mapstructure:"provider"`
}

// PostgresConfig configures the JSONB record store.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// HTTPConfig configures fetch retries.
type HTTPConfig struct {
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxAttempts      int    `mapstructure:"max_attempts"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	UserAgent        string `mapstructure:"user_agent"`
	// RequestsPerSecond paces calls per archive host; zero disables pacing.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// ArchiveConfig points at the archive endpoints.
type ArchiveConfig struct {
	AvailableURL string `mapstructure:"available_url"`
	CDXURL       string `mapstructure:"cdx_url"`
	TimemapURL   string `mapstructure:"timemap_url"`
	CDXLimit     int    `mapstructure:"cdx_limit"`
}

// RawArchiveConfig controls where fetched payloads are kept verbatim.
type RawArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig enables record notifications when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig enables a Pushgateway push at the end of a run.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// legacyEnv maps keys to the unprefixed variables the tool has always read.
var legacyEnv = map[string]string{
	"mongo.uri":        "MONGO_URI",
	"mongo.database":   "MONGO_DB",
	"mongo.collection": "COLLECTION_NAME",
}

// Load builds a Config from defaults, the environment and an optional file.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WAYBACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, "WAYBACK_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("store.provider", StoreMongo)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 4)
	v.SetDefault("http.timeout_seconds", 20)
	v.SetDefault("http.max_attempts", 5)
	v.SetDefault("http.backoff_initial_ms", 1000)
	v.SetDefault("http.user_agent", "wayback-etl/0.1")
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("archive.available_url", wayback.DefaultAvailableURL)
	v.SetDefault("archive.cdx_url", wayback.DefaultCDXURL)
	v.SetDefault("archive.timemap_url", wayback.DefaultTimemapURL)
	v.SetDefault("archive.cdx_limit", wayback.DefaultCDXLimit)
	v.SetDefault("raw_archive.provider", RawArchiveNone)
	v.SetDefault("raw_archive.dir", "raw")
	v.SetDefault("raw_archive.gcs_bucket", "")
	v.SetDefault("raw_archive.prefix", "wayback")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "wayback_etl")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("default_urls", []string{"https://example.com"})
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch {
	case c.HTTP.TimeoutSeconds <= 0:
		return invalid("http.timeout_seconds must be > 0")
	case c.HTTP.MaxAttempts <= 0:
		return invalid("http.max_attempts must be > 0")
	case c.HTTP.BackoffInitialMs <= 0:
		return invalid("http.backoff_initial_ms must be > 0")
	case c.HTTP.RequestsPerSecond < 0:
		return invalid("http.requests_per_second must be >= 0")
	case c.Archive.CDXLimit <= 0:
		return invalid("archive.cdx_limit must be > 0")
	}

	switch c.Store.Provider {
	case StoreMongo, StoreMemory:
	case StorePostgres:
		if c.Postgres.DSN == "" {
			return invalid("postgres.dsn is required when store.provider is postgres")
		}
	default:
		return invalid(fmt.Sprintf("unknown store.provider %q", c.Store.Provider))
	}

	switch c.RawArchive.Provider {
	case RawArchiveNone, "":
	case RawArchiveLocal:
		if c.RawArchive.Dir == "" {
			return invalid("raw_archive.dir is required when raw_archive.provider is local")
		}
	case RawArchiveGCS:
		if c.RawArchive.GCSBucket == "" {
			return invalid("raw_archive.gcs_bucket is required when raw_archive.provider is gcs")
		}
	default:
		return invalid(fmt.Sprintf("unknown raw_archive.provider %q", c.RawArchive.Provider))
	}

	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		return invalid("pubsub.project_id and pubsub.topic must be set together")
	}
	return nil
}

func invalid(msg string) error {
	return failure.New(wayback.ErrInvalidConfig, failure.Message(msg))
}

// ArchiveEndpoints converts the archive section into endpoint locations.
func (c Config) ArchiveEndpoints() wayback.Archive {
	return wayback.Archive{
		AvailableURL: c.Archive.AvailableURL,
		CDXURL:       c.Archive.CDXURL,
		TimemapURL:   c.Archive.TimemapURL,
		CDXLimit:     c.Archive.CDXLimit,
	}
}

// FetchTimeout is the per-attempt deadline.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// InitialBackoff is the first wait between attempts.
func (c Config) InitialBackoff() time.Duration {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond
}

// NotificationsEnabled reports whether records are announced on Pub/Sub.
func (c Config) NotificationsEnabled() bool {
	return c.PubSub.ProjectID != "" && c.PubSub.Topic != ""
}
