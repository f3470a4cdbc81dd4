package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// linkedConfig runs against the in-memory store and a stub venue, without
// Redis or S3.
func linkedConfig(t *testing.T) *config.Config {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := config.Defaults()
	cfg.Mode = "linked"
	cfg.Store.Backend = "memory"
	cfg.Venue.Kind = "sdex"
	cfg.Venue.BaseURL = srv.URL + "/"
	cfg.LinkedOrders.FillStream = false
	cfg.Signing.DefaultSeed = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"
	return &cfg
}

func TestWireWithoutRedis(t *testing.T) {
	cfg := linkedConfig(t)
	deps, cleanup, err := Wire(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.Store)
	assert.NotNil(t, deps.Venue)
	assert.NotNil(t, deps.Keys)
	assert.NotNil(t, deps.Coordinator)
	assert.NotNil(t, deps.OCO)
	assert.NotNil(t, deps.Iceberg)
	assert.NotNil(t, deps.Positions)
	assert.NotNil(t, deps.Queries)
	assert.Nil(t, deps.PriceCache)
	assert.Nil(t, deps.SignalBus)
	assert.Nil(t, deps.Paper)
	assert.Nil(t, deps.FillStream)
	assert.Nil(t, deps.Archiver)
	assert.False(t, deps.Notifier.Enabled())
}

func TestWireRejectsPaperWithoutRedis(t *testing.T) {
	cfg := linkedConfig(t)
	cfg.Venue.Kind = "paper"
	_, _, err := Wire(context.Background(), cfg, discardLogger())
	assert.ErrorContains(t, err, "paper venue")
}

func TestWireRejectsUnknownBackend(t *testing.T) {
	cfg := linkedConfig(t)
	cfg.Store.Backend = "mongo"
	_, _, err := Wire(context.Background(), cfg, discardLogger())
	assert.ErrorContains(t, err, "wire: store")
}

func TestLinkedModeRunsUntilCancelled(t *testing.T) {
	cfg := linkedConfig(t)
	a := New(cfg, discardLogger())
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := a.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMonitorModeNeedsPrices(t *testing.T) {
	cfg := linkedConfig(t)
	cfg.Mode = "monitor"
	a := New(cfg, discardLogger())
	defer a.Close()

	err := a.Run(context.Background())
	assert.ErrorContains(t, err, "price cache")
}

func TestBuildSenders(t *testing.T) {
	cfg := config.Defaults()
	assert.Empty(t, buildSenders(&cfg))

	cfg.Notify.TelegramToken = "tok"
	cfg.Notify.TelegramChatID = "42"
	cfg.Notify.DiscordWebhookURL = "https://discord.example/hook"
	cfg.Notify.WebhookURL = "https://ops.example/events"
	cfg.Notify.WebhookSecret = "c2VjcmV0"

	senders := buildSenders(&cfg)
	require.Len(t, senders, 3)
	names := make([]string, 0, len(senders))
	for _, s := range senders {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"telegram", "discord", "webhook"}, names)
}
