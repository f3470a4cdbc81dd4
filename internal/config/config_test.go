package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paperConfig() Config {
	cfg := Defaults()
	cfg.Redis.Enabled = true
	return cfg
}

func TestDefaultsNeedRedis(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enable redis")

	cfg = paperConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := paperConfig()
	cfg.Mode = "arbitrage"
	cfg.Store.Backend = "mongo"
	cfg.Monitor.Concurrency = 0
	cfg.Notify.TelegramToken = "tok"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "arbitrage"`)
	assert.Contains(t, msg, `unknown backend "mongo"`)
	assert.Contains(t, msg, "monitor: concurrency")
	assert.Contains(t, msg, "telegram_token and telegram_chat_id")
}

func TestValidateSdexVenue(t *testing.T) {
	cfg := paperConfig()
	cfg.Venue.Kind = "sdex"
	cfg.Venue.APIKey = "k"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "base_url is required")
	assert.Contains(t, msg, "stream_url is required")
	assert.Contains(t, msg, "api_key and api_secret")
	assert.Contains(t, msg, "keyring_path or default_seed")

	cfg.Venue.BaseURL = "https://gateway.example"
	cfg.Venue.StreamURL = "wss://gateway.example/stream"
	cfg.Venue.APISecret = "c2VjcmV0"
	cfg.Signing.KeyringPath = "keys.json"
	cfg.Signing.KeyringPassword = "pw"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRedisDependents(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "linked"
	cfg.Venue.Kind = "sdex"
	cfg.Venue.BaseURL = "https://gateway.example"
	cfg.LinkedOrders.FillStream = false
	cfg.Signing.DefaultSeed = "seed"
	require.NoError(t, cfg.Validate())

	cfg.Monitor.DistributedGate = true
	cfg.Venue.SharedRateLimit = 50
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "distributed_gate requires redis")
	assert.Contains(t, err.Error(), "shared_rate_limit requires redis")

	cfg.Redis.Enabled = true
	cfg.Monitor.LeaseTTL = duration{time.Second}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lease_ttl")
}

func TestValidateArchive(t *testing.T) {
	cfg := paperConfig()
	cfg.Archive.Enabled = true
	cfg.Archive.Cron = "0 3 * *"
	cfg.Archive.RetentionDays = 0
	cfg.S3.Bucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "retention_days")
	assert.Contains(t, msg, "cron must have 5 fields")
	assert.Contains(t, msg, "bucket and region")
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exitengine.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "monitor"

[store]
backend = "postgres"

[postgres]
host = "db"

[monitor]
interval = "45s"
concurrency = 4

[notify]
events = ["position.*"]
`), 0o600))

	t.Chdir(dir)
	t.Setenv("EXITENGINE_MONITOR_CONCURRENCY", "8")
	t.Setenv("EXITENGINE_REDIS_ENABLED", "true")
	t.Setenv("EXITENGINE_NOTIFY_EVENTS", " position.closed , ,advanced_order.* ")
	t.Setenv("EXITENGINE_LINKED_ORDERS_INTERVAL", "not-a-duration")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "db", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port, "unset keys keep their defaults")
	assert.Equal(t, 45*time.Second, cfg.Monitor.Interval.Duration)
	assert.Equal(t, 8, cfg.Monitor.Concurrency)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"position.closed", "advanced_order.*"}, cfg.Notify.Events)
	assert.Equal(t, 10*time.Second, cfg.LinkedOrders.Interval.Duration, "unparsable overrides are ignored")
	assert.NoError(t, cfg.Validate())
}

func TestLoadWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults().Monitor, cfg.Monitor)
}

func TestLoadRejectsBadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte(`[monitor]
interval = "soon"
`), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := paperConfig()
	cfg.Postgres.Password = "pg-secret"
	cfg.Venue.APISecret = "api-secret"
	cfg.Signing.DefaultSeed = "seed"
	cfg.Notify.WebhookSecret = ""

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Venue.APISecret)
	assert.Equal(t, "***", out.Signing.DefaultSeed)
	assert.Empty(t, out.Notify.WebhookSecret, "empty secrets stay empty")
	assert.Equal(t, "pg-secret", cfg.Postgres.Password, "original untouched")

	out.Notify.Events[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Notify.Events[0])
}
