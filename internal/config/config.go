// Package config loads and validates archiver configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/qa-archiver/internal/crawler"
)

// Storage backends for media and exports.
const (
	StorageLocal  = "local"
	StorageMemory = "memory"
	StorageGCS    = "gcs"
)

// Item table backends.
const (
	ItemsMemory   = "memory"
	ItemsSQLite   = "sqlite"
	ItemsPostgres = "postgres"
)

// Config captures all archiver configuration knobs loaded via Viper.
type Config struct {
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Session  SessionConfig  `mapstructure:"session"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Items    ItemsConfig    `mapstructure:"items"`
	Output   OutputConfig   `mapstructure:"output"`
	Progress ProgressConfig `mapstructure:"progress"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CrawlerConfig bounds the traversal.
type CrawlerConfig struct {
	// Seeds are kind:key ids or platform URLs.
	Seeds          []string `mapstructure:"seeds"`
	MaxConcurrency int      `mapstructure:"max_concurrency"`
	MaxDepth       int      `mapstructure:"max_depth"`
	MaxItems       int      `mapstructure:"max_items"`
	ResumePending  bool     `mapstructure:"resume_pending"`
	// ListMembers follows the paged answers, items and activities of
	// questions, collections and users.
	ListMembers bool `mapstructure:"list_members"`
	// MaxPages bounds the listing pages read per container; zero reads all.
	MaxPages int `mapstructure:"max_pages"`
}

// FetchConfig configures the HTTP fetcher, its retries and request spacing.
type FetchConfig struct {
	APIBase        string        `mapstructure:"api_base"`
	UserAgent      string        `mapstructure:"user_agent"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxOutstanding int           `mapstructure:"max_outstanding"`
	MinInterval    time.Duration `mapstructure:"min_interval"`
	Burst          int           `mapstructure:"burst"`
	RetryLimit     int           `mapstructure:"retry_limit"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	MaxBodyBytes   int           `mapstructure:"max_body_bytes"`
	MaxMediaBytes  int64         `mapstructure:"max_media_bytes"`
}

// SessionConfig holds the credentials attached to every request.
type SessionConfig struct {
	Cookie string `mapstructure:"cookie"`
	Token  string `mapstructure:"token"`
}

// StorageConfig selects where media objects and exports are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// ItemsConfig selects the item table.
type ItemsConfig struct {
	Backend          string        `mapstructure:"backend"`
	SQLitePath       string        `mapstructure:"sqlite_path"`
	PostgresDSN      string        `mapstructure:"postgres_dsn"`
	PostgresTable    string        `mapstructure:"postgres_table"`
	PostgresMaxConns int32         `mapstructure:"postgres_max_conns"`
	PostgresLifetime time.Duration `mapstructure:"postgres_conn_lifetime"`
}

// OutputConfig controls the per-item export written after a crawl.
type OutputConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	WriteRaw bool `mapstructure:"write_raw"`
}

// ProgressConfig wires the progress hub, its sinks and the status server.
type ProgressConfig struct {
	BufferSize     int    `mapstructure:"buffer_size"`
	LogEvents      bool   `mapstructure:"log_events"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	StatusAddr     string `mapstructure:"status_addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARCHIVER")
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
	v.SetDefault("crawler.seeds", []string{})
	v.SetDefault("crawler.max_concurrency", 4)
	v.SetDefault("crawler.max_depth", 2)
	v.SetDefault("crawler.max_items", 0)
	v.SetDefault("crawler.resume_pending", true)
	v.SetDefault("crawler.list_members", true)
	v.SetDefault("crawler.max_pages", 50)
	v.SetDefault("fetch.api_base", crawler.DefaultAPIBase)
	v.SetDefault("fetch.user_agent", "qa-archiver/0.1")
	v.SetDefault("fetch.timeout", "15s")
	v.SetDefault("fetch.max_outstanding", 4)
	v.SetDefault("fetch.min_interval", "500ms")
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("fetch.retry_limit", crawler.DefaultRetryLimit)
	v.SetDefault("fetch.backoff_base", "250ms")
	v.SetDefault("fetch.backoff_max", "5s")
	v.SetDefault("fetch.max_body_bytes", 32<<20)
	v.SetDefault("fetch.max_media_bytes", 64<<20)
	v.SetDefault("session.cookie", "")
	v.SetDefault("session.token", "")
	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.base_dir", "archive")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("items.backend", ItemsSQLite)
	v.SetDefault("items.sqlite_path", "archive/items.db")
	v.SetDefault("items.postgres_dsn", "")
	v.SetDefault("items.postgres_table", "items")
	v.SetDefault("items.postgres_max_conns", 4)
	v.SetDefault("items.postgres_conn_lifetime", "30m")
	v.SetDefault("output.enabled", true)
	v.SetDefault("output.write_raw", false)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.log_events", true)
	v.SetDefault("progress.metrics_enabled", false)
	v.SetDefault("progress.status_addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.CrawlConfig().Validate(); err != nil {
		return fmt.Errorf("crawler: %w", err)
	}
	if c.Crawler.MaxPages < 0 {
		return fmt.Errorf("crawler.max_pages must be >= 0")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Fetch.MaxOutstanding <= 0 {
		return fmt.Errorf("fetch.max_outstanding must be > 0")
	}
	if c.Fetch.MinInterval < 0 {
		return fmt.Errorf("fetch.min_interval must be >= 0")
	}
	if c.Fetch.BackoffMax > 0 && c.Fetch.BackoffMax < c.Fetch.BackoffBase {
		return fmt.Errorf("fetch.backoff_max must be >= fetch.backoff_base")
	}
	if _, err := crawler.NewEndpoints(c.Fetch.APIBase); err != nil {
		return fmt.Errorf("fetch.api_base: %w", err)
	}

	switch c.Storage.Backend {
	case StorageLocal:
		if strings.TrimSpace(c.Storage.BaseDir) == "" {
			return fmt.Errorf("storage.base_dir is required for the local backend")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("storage.backend %q must be one of local, memory, gcs", c.Storage.Backend)
	}

	switch c.Items.Backend {
	case ItemsSQLite:
		if strings.TrimSpace(c.Items.SQLitePath) == "" {
			return fmt.Errorf("items.sqlite_path is required for the sqlite backend")
		}
	case ItemsPostgres:
		if c.Items.PostgresDSN == "" {
			return fmt.Errorf("items.postgres_dsn is required for the postgres backend")
		}
	case ItemsMemory:
	default:
		return fmt.Errorf("items.backend %q must be one of memory, sqlite, postgres", c.Items.Backend)
	}

	if c.Progress.BufferSize < 0 {
		return fmt.Errorf("progress.buffer_size must be >= 0")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

// CrawlConfig converts the crawler and fetch sections into the core config.
func (c Config) CrawlConfig() crawler.Config {
	return crawler.Config{
		MaxConcurrency: c.Crawler.MaxConcurrency,
		MaxDepth:       c.Crawler.MaxDepth,
		MaxItems:       c.Crawler.MaxItems,
		RetryLimit:     c.Fetch.RetryLimit,
		BackoffBase:    c.Fetch.BackoffBase,
	}
}

// CrawlSession returns the session attached to every fetch.
func (c Config) CrawlSession() crawler.Session {
	return crawler.Session{
		Cookie:    c.Session.Cookie,
		Token:     c.Session.Token,
		UserAgent: c.Fetch.UserAgent,
	}
}
