// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/realtime-content-feed/internal/adapter/googlenews"
	"github.com/JakeFAU/realtime-content-feed/internal/adapter/rss"
	"github.com/JakeFAU/realtime-content-feed/internal/adapter/youtube"
	"github.com/JakeFAU/realtime-content-feed/internal/classify"
)

// EnvPrefix prefixes every environment override, e.g. FEED_SERVER_PORT.
const EnvPrefix = "FEED"

// Storage and archive backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Geo        GeoConfig        `mapstructure:"geo"`
	Adapters   AdaptersConfig   `mapstructure:"adapters"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	Storage    StorageConfig    `mapstructure:"storage"`
	DB         DBConfig         `mapstructure:"db"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API key checking.
type AuthConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	CounterBuffer int  `mapstructure:"counter_buffer"`
}

// EngineConfig governs aggregation runs.
type EngineConfig struct {
	Concurrency           int `mapstructure:"concurrency"`
	AdapterTimeoutSeconds int `mapstructure:"adapter_timeout_seconds"`
	IntervalSeconds       int `mapstructure:"interval_seconds"`
}

// ClassifierConfig selects the deployment's taxonomy.
type ClassifierConfig struct {
	Taxonomy string `mapstructure:"taxonomy"`
}

// GeoConfig optionally replaces the built-in gazetteer.
type GeoConfig struct {
	GazetteerFile string `mapstructure:"gazetteer_file"`
}

// AdaptersConfig enables and tunes each source.
type AdaptersConfig struct {
	GoogleNews GoogleNewsConfig `mapstructure:"googlenews"`
	YouTube    YouTubeConfig    `mapstructure:"youtube"`
	Nitter     NitterConfig     `mapstructure:"nitter"`
	Instagram  InstagramConfig  `mapstructure:"instagram"`
	RSS        RSSConfig        `mapstructure:"rss"`
}

// GoogleNewsConfig tunes the Google News adapter. Empty Queries uses the
// built-in list.
type GoogleNewsConfig struct {
	Enabled       bool               `mapstructure:"enabled"`
	ItemsPerQuery int                `mapstructure:"items_per_query"`
	Enrich        bool               `mapstructure:"enrich"`
	Queries       []googlenews.Query `mapstructure:"queries"`
}

// YouTubeConfig tunes the YouTube adapter.
type YouTubeConfig struct {
	Enabled         bool              `mapstructure:"enabled"`
	ItemsPerChannel int               `mapstructure:"items_per_channel"`
	Channels        []youtube.Channel `mapstructure:"channels"`
}

// NitterConfig tunes the X (Twitter) mirror adapter.
type NitterConfig struct {
	Enabled             bool     `mapstructure:"enabled"`
	Instances           []string `mapstructure:"instances"`
	Accounts            []string `mapstructure:"accounts"`
	ItemsPerAccount     int      `mapstructure:"items_per_account"`
	ProbeTimeoutSeconds int      `mapstructure:"probe_timeout_seconds"`
	FeedTimeoutSeconds  int      `mapstructure:"feed_timeout_seconds"`
}

// InstagramConfig tunes the headless Instagram adapter.
type InstagramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Page     string `mapstructure:"page"`
	MaxPosts int    `mapstructure:"max_posts"`
}

// RSSConfig lists arbitrary feeds.
type RSSConfig struct {
	Enabled        bool         `mapstructure:"enabled"`
	ItemsPerSource int          `mapstructure:"items_per_source"`
	Sources        []rss.Source `mapstructure:"sources"`
}

// HTTPConfig configures outbound feed and article requests.
type HTTPConfig struct {
	TimeoutSeconds       int     `mapstructure:"timeout_seconds"`
	EnrichTimeoutSeconds int     `mapstructure:"enrich_timeout_seconds"`
	UserAgent            string  `mapstructure:"user_agent"`
	PerHostRPS           float64 `mapstructure:"per_host_rps"`
	Burst                int     `mapstructure:"burst"`
	RespectRobots        bool    `mapstructure:"respect_robots"`
}

// HeadlessConfig configures the headless browser.
type HeadlessConfig struct {
	MaxParallel        int `mapstructure:"max_parallel"`
	NavTimeoutSeconds  int `mapstructure:"nav_timeout_seconds"`
	WaitTimeoutSeconds int `mapstructure:"wait_timeout_seconds"`
}

// StorageConfig selects the record store.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	Migrate                bool   `mapstructure:"migrate"`
}

// ArchiveConfig controls raw adapter output archiving.
type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Backend   string `mapstructure:"backend"`
	Prefix    string `mapstructure:"prefix"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PubSubConfig holds ingest notification settings. An empty TopicName
// disables notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TracingConfig controls OpenTelemetry spans.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.counter_buffer", 1024)
	v.SetDefault("engine.concurrency", 1)
	v.SetDefault("engine.adapter_timeout_seconds", 300)
	v.SetDefault("engine.interval_seconds", 0)
	v.SetDefault("classifier.taxonomy", classify.TaxonomyHazard)
	v.SetDefault("adapters.googlenews.enabled", true)
	v.SetDefault("adapters.googlenews.items_per_query", 20)
	v.SetDefault("adapters.googlenews.enrich", true)
	v.SetDefault("adapters.youtube.enabled", true)
	v.SetDefault("adapters.youtube.items_per_channel", 4)
	v.SetDefault("adapters.nitter.enabled", true)
	v.SetDefault("adapters.nitter.items_per_account", 5)
	v.SetDefault("adapters.nitter.probe_timeout_seconds", 5)
	v.SetDefault("adapters.nitter.feed_timeout_seconds", 8)
	v.SetDefault("adapters.instagram.enabled", false)
	v.SetDefault("adapters.instagram.max_posts", 10)
	v.SetDefault("adapters.rss.enabled", false)
	v.SetDefault("adapters.rss.items_per_source", 20)
	v.SetDefault("http.timeout_seconds", 5)
	v.SetDefault("http.enrich_timeout_seconds", 4)
	v.SetDefault("http.per_host_rps", 5.0)
	v.SetDefault("http.burst", 5)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("headless.wait_timeout_seconds", 5)
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("db.migrate", true)
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.backend", BackendMemory)
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "realtime-content-feed")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Engine.Concurrency <= 0 {
		return fmt.Errorf("engine.concurrency must be > 0")
	}
	if c.Engine.IntervalSeconds < 0 {
		return fmt.Errorf("engine.interval_seconds must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if _, err := classify.ForName(c.Classifier.Taxonomy); err != nil {
		return fmt.Errorf("classifier.taxonomy: %w", err)
	}
	if c.Adapters.Instagram.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when the instagram adapter is enabled")
	}
	if c.Adapters.RSS.Enabled && len(c.Adapters.RSS.Sources) == 0 {
		return fmt.Errorf("adapters.rss.sources must be set when the rss adapter is enabled")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when storage.backend is postgres")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if c.Archive.Enabled {
		switch c.Archive.Backend {
		case BackendMemory:
		case BackendLocal:
			if c.Archive.BaseDir == "" {
				return fmt.Errorf("archive.base_dir must be set for the local archive")
			}
		case BackendGCS:
			if c.Archive.GCSBucket == "" {
				return fmt.Errorf("archive.gcs_bucket must be set for the gcs archive")
			}
		default:
			return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
		}
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0,1]")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is")
	}
	return nil
}

// Seconds converts a seconds knob to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Interval is the periodic run interval; zero disables the ticker.
func (c Config) Interval() time.Duration {
	return Seconds(c.Engine.IntervalSeconds)
}
