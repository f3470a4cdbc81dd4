package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path over Defaults, then applies EXITENGINE_*
// environment overrides. A .env file in the working directory is loaded
// first when present. An empty path skips the file. The result is not
// validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "EXITENGINE_MODE")
	setStr(&cfg.LogLevel, "EXITENGINE_LOG_LEVEL")
	setStr(&cfg.Store.Backend, "EXITENGINE_STORE_BACKEND")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "EXITENGINE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.Host, "EXITENGINE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "EXITENGINE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "EXITENGINE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "EXITENGINE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "EXITENGINE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "EXITENGINE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "EXITENGINE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "EXITENGINE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "EXITENGINE_POSTGRES_RUN_MIGRATIONS")

	// ── SQLite ──
	setStr(&cfg.SQLite.Path, "EXITENGINE_SQLITE_PATH")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "EXITENGINE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "EXITENGINE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "EXITENGINE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "EXITENGINE_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "EXITENGINE_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "EXITENGINE_REDIS_NAMESPACE")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "EXITENGINE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "EXITENGINE_S3_REGION")
	setStr(&cfg.S3.Bucket, "EXITENGINE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "EXITENGINE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "EXITENGINE_S3_SECRET_KEY")

	// ── Venue ──
	setStr(&cfg.Venue.Kind, "EXITENGINE_VENUE_KIND")
	setStr(&cfg.Venue.BaseURL, "EXITENGINE_VENUE_BASE_URL")
	setStr(&cfg.Venue.StreamURL, "EXITENGINE_VENUE_STREAM_URL")
	setStr(&cfg.Venue.APIKey, "EXITENGINE_VENUE_API_KEY")
	setStr(&cfg.Venue.APISecret, "EXITENGINE_VENUE_API_SECRET")
	setStr(&cfg.Venue.APIPassphrase, "EXITENGINE_VENUE_API_PASSPHRASE")
	setFloat64(&cfg.Venue.RatePerSecond, "EXITENGINE_VENUE_RATE_PER_SECOND")
	setInt(&cfg.Venue.SharedRateLimit, "EXITENGINE_VENUE_SHARED_RATE_LIMIT")

	// ── Signing ──
	setStr(&cfg.Signing.KeyringPath, "EXITENGINE_SIGNING_KEYRING_PATH")
	setStr(&cfg.Signing.KeyringPassword, "EXITENGINE_SIGNING_KEYRING_PASSWORD")
	setStr(&cfg.Signing.DefaultSeed, "EXITENGINE_SIGNING_DEFAULT_SEED")

	// ── Monitor ──
	setDuration(&cfg.Monitor.Interval, "EXITENGINE_MONITOR_INTERVAL")
	setInt(&cfg.Monitor.Concurrency, "EXITENGINE_MONITOR_CONCURRENCY")
	setBool(&cfg.Monitor.DistributedGate, "EXITENGINE_MONITOR_DISTRIBUTED_GATE")

	// ── Linked orders ──
	setDuration(&cfg.LinkedOrders.Interval, "EXITENGINE_LINKED_ORDERS_INTERVAL")
	setBool(&cfg.LinkedOrders.FillStream, "EXITENGINE_LINKED_ORDERS_FILL_STREAM")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "EXITENGINE_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "EXITENGINE_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "EXITENGINE_ARCHIVE_CRON")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "EXITENGINE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "EXITENGINE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "EXITENGINE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookURL, "EXITENGINE_NOTIFY_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookSecret, "EXITENGINE_NOTIFY_WEBHOOK_SECRET")
	setStringSlice(&cfg.Notify.Events, "EXITENGINE_NOTIFY_EVENTS")
}

// Typed env helpers. Each only writes when the variable is set and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
