// Package config defines the exit engine configuration and its validation.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration. Fields come from a TOML file and are
// then overridden by EXITENGINE_* environment variables.
type Config struct {
	Mode         string             `toml:"mode"`
	LogLevel     string             `toml:"log_level"`
	Store        StoreConfig        `toml:"store"`
	Postgres     PostgresConfig     `toml:"postgres"`
	SQLite       SQLiteConfig       `toml:"sqlite"`
	Redis        RedisConfig        `toml:"redis"`
	S3           S3Config           `toml:"s3"`
	Venue        VenueConfig        `toml:"venue"`
	Signing      SigningConfig      `toml:"signing"`
	Monitor      MonitorConfig      `toml:"monitor"`
	LinkedOrders LinkedOrdersConfig `toml:"linked_orders"`
	Archive      ArchiveConfig      `toml:"archive"`
	Notify       NotifyConfig       `toml:"notify"`
}

// StoreConfig selects the persistence backend: postgres, sqlite or memory.
type StoreConfig struct {
	Backend string `toml:"backend"`
}

// PostgresConfig holds PostgreSQL connection parameters. DSN wins over the
// discrete fields when set.
type PostgresConfig struct {
	DSN             string   `toml:"dsn"`
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	Database        string   `toml:"database"`
	User            string   `toml:"user"`
	Password        string   `toml:"password"`
	SSLMode         string   `toml:"ssl_mode"`
	PoolMaxConns    int      `toml:"pool_max_conns"`
	PoolMinConns    int      `toml:"pool_min_conns"`
	MaxConnLifetime duration `toml:"max_conn_lifetime"`
	RunMigrations   bool     `toml:"run_migrations"`
}

type SQLiteConfig struct {
	Path        string   `toml:"path"`
	BusyTimeout duration `toml:"busy_timeout"`
}

// RedisConfig holds Redis connection parameters. Without Redis the engine
// runs single-instance: in-process run gates and no event bus.
type RedisConfig struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	PoolSize    int      `toml:"pool_size"`
	MaxRetries  int      `toml:"max_retries"`
	TLSEnabled  bool     `toml:"tls_enabled"`
	Namespace   string   `toml:"namespace"`
	PriceMaxAge duration `toml:"price_max_age"`
}

type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// VenueConfig selects and tunes the trading venue. Kind "paper" fills against
// the price cache; "sdex" talks to the venue gateway.
type VenueConfig struct {
	Kind          string   `toml:"kind"`
	BaseURL       string   `toml:"base_url"`
	StreamURL     string   `toml:"stream_url"`
	HTTPTimeout   duration `toml:"http_timeout"`
	CallTimeout   duration `toml:"call_timeout"`
	APIKey        string   `toml:"api_key"`
	APISecret     string   `toml:"api_secret"`
	APIPassphrase string   `toml:"api_passphrase"`

	RatePerSecond float64 `toml:"rate_per_second"`
	RateBurst     int     `toml:"rate_burst"`
	// SharedRateLimit caps venue calls across all instances per
	// SharedRateWindow. Zero disables it. Requires Redis.
	SharedRateLimit  int      `toml:"shared_rate_limit"`
	SharedRateWindow duration `toml:"shared_rate_window"`

	PaperSlippageBps   float64  `toml:"paper_slippage_bps"`
	PaperMatchInterval duration `toml:"paper_match_interval"`
}

// SigningConfig locates the per-user venue signing keys.
type SigningConfig struct {
	KeyringPath     string `toml:"keyring_path"`
	KeyringPassword string `toml:"keyring_password"`
	DefaultSeed     string `toml:"default_seed"`
}

type MonitorConfig struct {
	Interval     duration `toml:"interval"`
	Concurrency  int      `toml:"concurrency"`
	PriceTimeout duration `toml:"price_timeout"`
	// DistributedGate uses a Redis lease so only one instance ticks at a time.
	DistributedGate bool     `toml:"distributed_gate"`
	LeaseTTL        duration `toml:"lease_ttl"`
}

type LinkedOrdersConfig struct {
	Interval    duration `toml:"interval"`
	Concurrency int      `toml:"concurrency"`
	FillStream  bool     `toml:"fill_stream"`
	FillBuffer  int      `toml:"fill_buffer"`
}

// ArchiveConfig drives the retention export to S3.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
}

// NotifyConfig configures operator notifications. Events filters by event
// name; "position.*" matches a whole family.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	WebhookURL        string   `toml:"webhook_url"`
	WebhookSecret     string   `toml:"webhook_secret"`
	Events            []string `toml:"events"`
	AlertDedupTTL     duration `toml:"alert_dedup_ttl"`
}

// duration wraps time.Duration so TOML values like "30s" decode.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config for a single paper-trading instance on SQLite.
func Defaults() Config {
	return Config{
		Mode:     "full",
		LogLevel: "info",
		Store:    StoreConfig{Backend: "sqlite"},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "exitengine",
			User:            "postgres",
			SSLMode:         "disable",
			PoolMaxConns:    10,
			PoolMinConns:    2,
			MaxConnLifetime: duration{time.Hour},
			RunMigrations:   true,
		},
		SQLite: SQLiteConfig{
			Path:        "exitengine.db",
			BusyTimeout: duration{5 * time.Second},
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PoolSize:    20,
			MaxRetries:  3,
			Namespace:   "exitengine",
			PriceMaxAge: duration{2 * time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "exitengine-archive",
			ForcePathStyle: true,
		},
		Venue: VenueConfig{
			Kind:               "paper",
			HTTPTimeout:        duration{30 * time.Second},
			CallTimeout:        duration{15 * time.Second},
			RatePerSecond:      10,
			RateBurst:          5,
			SharedRateWindow:   duration{time.Second},
			PaperSlippageBps:   10,
			PaperMatchInterval: duration{5 * time.Second},
		},
		Monitor: MonitorConfig{
			Interval:     duration{30 * time.Second},
			Concurrency:  10,
			PriceTimeout: duration{10 * time.Second},
			LeaseTTL:     duration{2 * time.Minute},
		},
		LinkedOrders: LinkedOrdersConfig{
			Interval:    duration{10 * time.Second},
			Concurrency: 10,
			FillStream:  true,
			FillBuffer:  64,
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
			Cron:          "0 3 * * *",
		},
		Notify: NotifyConfig{
			Events: []string{
				"position.stop_loss_failed",
				"position.take_profit_failed",
				"position.close_failed",
				"advanced_order.failed",
			},
			AlertDedupTTL: duration{15 * time.Minute},
		},
	}
}

var validModes = map[string]bool{
	"monitor": true,
	"linked":  true,
	"full":    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if !validModes[strings.ToLower(c.Mode)] {
		add("unknown mode %q (valid: monitor, linked, full)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	switch strings.ToLower(c.Store.Backend) {
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				add("postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
			}
			if c.Postgres.Database == "" {
				add("postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			add("postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			add("sqlite: path must not be empty")
		}
	case "memory":
		if c.Venue.Kind == "sdex" {
			add("store: memory backend cannot be used with a live venue")
		}
	default:
		add("store: unknown backend %q (valid: postgres, sqlite, memory)", c.Store.Backend)
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}
	// The monitor and the paper venue both price from the Redis cache.
	mode := strings.ToLower(c.Mode)
	if !c.Redis.Enabled && (mode != "linked" || c.Venue.Kind == "paper") {
		add("redis: prices come from the redis price cache; enable redis")
	}
	if c.Monitor.DistributedGate && !c.Redis.Enabled {
		add("monitor: distributed_gate requires redis.enabled")
	}
	if c.Venue.SharedRateLimit > 0 && !c.Redis.Enabled {
		add("venue: shared_rate_limit requires redis.enabled")
	}

	switch c.Venue.Kind {
	case "paper":
		if c.Venue.PaperSlippageBps < 0 {
			add("venue: paper_slippage_bps must be >= 0")
		}
	case "sdex":
		if c.Venue.BaseURL == "" {
			add("venue: base_url is required for the sdex venue")
		}
		if c.LinkedOrders.FillStream && c.Venue.StreamURL == "" {
			add("venue: stream_url is required when linked_orders.fill_stream is set")
		}
		ak, as := c.Venue.APIKey != "", c.Venue.APISecret != ""
		if ak != as {
			add("venue: api_key and api_secret must be set together")
		}
		if c.Signing.KeyringPath == "" && c.Signing.DefaultSeed == "" {
			add("signing: keyring_path or default_seed is required for the sdex venue")
		}
	default:
		add("venue: unknown kind %q (valid: paper, sdex)", c.Venue.Kind)
	}
	if c.Signing.KeyringPath != "" && c.Signing.KeyringPassword == "" {
		add("signing: keyring_password is required when keyring_path is set")
	}

	if c.Monitor.Interval.Duration <= 0 {
		add("monitor: interval must be positive")
	}
	if c.Monitor.Concurrency < 1 {
		add("monitor: concurrency must be >= 1")
	}
	if c.Monitor.DistributedGate && c.Monitor.LeaseTTL.Duration < c.Monitor.Interval.Duration {
		add("monitor: lease_ttl must be at least the tick interval")
	}
	if c.LinkedOrders.Interval.Duration <= 0 {
		add("linked_orders: interval must be positive")
	}
	if c.LinkedOrders.Concurrency < 1 {
		add("linked_orders: concurrency must be >= 1")
	}

	if c.Archive.Enabled {
		if c.Archive.RetentionDays < 1 {
			add("archive: retention_days must be >= 1")
		}
		if len(strings.Fields(c.Archive.Cron)) != 5 {
			add("archive: cron must have 5 fields")
		}
		if c.S3.Bucket == "" || c.S3.Region == "" {
			add("s3: bucket and region are required when archive is enabled")
		}
		if strings.ToLower(c.Store.Backend) == "memory" {
			add("archive: nothing to archive with the memory backend")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		add("notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.New(strings.Join(errs, "; ")))
	}
	return nil
}
