package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/pharuq411/StellarSwipe-Backends-sub000/internal/blob/s3"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/announce"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/cache/redis"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/config"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/crypto"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/executor"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/linkedorder"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/notify"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/platform/sdex"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/service"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/store/memory"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/store/postgres"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/store/sqlite"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/venue"
)

// Dependencies bundles everything the run modes need. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Store domain.Store

	// Redis-backed; nil when redis is disabled.
	PriceCache  domain.PriceCache
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus

	// Venue is the rate-limited gateway every engine talks to.
	Venue      domain.VenueGateway
	Paper      *venue.Paper
	FillStream *sdex.FillStream
	Keys       domain.KeyResolver

	Notifier    *notify.Notifier
	Announcer   *announce.Announcer
	Coordinator *executor.Coordinator
	OCO         *linkedorder.OCOEngine
	Iceberg     *linkedorder.IcebergEngine

	Positions *service.PositionService
	Queries   *service.OrderQueryService

	// Archiver is nil unless archiving is enabled.
	Archiver domain.Archiver
}

// Wire constructs all concrete dependencies from cfg and returns them with a
// cleanup function that releases resources in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(stage string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", stage, err)
	}

	deps := &Dependencies{}

	// --- Store ---
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fail("store", err)
	}
	closers = append(closers, store.Close)
	deps.Store = store

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  cfg.Redis.Namespace,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.PriceMaxAge.Duration)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		if cfg.Venue.SharedRateLimit > 0 {
			deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Venue.SharedRateLimit, cfg.Venue.SharedRateWindow.Duration)
		}
	}

	// --- Venue ---
	var gateway domain.VenueGateway
	switch cfg.Venue.Kind {
	case "paper":
		if deps.PriceCache == nil {
			return fail("venue", fmt.Errorf("paper venue needs the redis price cache"))
		}
		deps.Paper = venue.NewPaper(deps.PriceCache, venue.PaperConfig{
			SlippageBps:   cfg.Venue.PaperSlippageBps,
			MatchInterval: cfg.Venue.PaperMatchInterval.Duration,
		}, logger)
		gateway = deps.Paper
	case "sdex":
		var auth *crypto.HMACAuth
		if cfg.Venue.APIKey != "" {
			auth = &crypto.HMACAuth{
				Key:        cfg.Venue.APIKey,
				Secret:     cfg.Venue.APISecret,
				Passphrase: cfg.Venue.APIPassphrase,
			}
		}
		gateway = sdex.NewClient(strings.TrimRight(cfg.Venue.BaseURL, "/"), cfg.Venue.HTTPTimeout.Duration, auth)
		if cfg.LinkedOrders.FillStream && cfg.Venue.StreamURL != "" {
			deps.FillStream = sdex.NewFillStream(sdex.StreamConfig{URL: cfg.Venue.StreamURL}, auth, logger)
		}
	default:
		return fail("venue", fmt.Errorf("unknown kind %q", cfg.Venue.Kind))
	}
	deps.Venue = venue.NewRateLimited(gateway, cfg.Venue.RatePerSecond, cfg.Venue.RateBurst,
		deps.RateLimiter, "venue:"+cfg.Venue.Kind)

	// --- Signing keys ---
	if cfg.Signing.KeyringPath != "" || cfg.Signing.DefaultSeed != "" {
		kr, err := crypto.LoadKeyring(crypto.KeyringConfig{
			Path:        cfg.Signing.KeyringPath,
			Password:    cfg.Signing.KeyringPassword,
			DefaultSeed: cfg.Signing.DefaultSeed,
		})
		if err != nil {
			return fail("keyring", err)
		}
		logger.Info("keyring loaded", slog.Int("keys", kr.Len()))
		deps.Keys = kr
	}

	// --- Notifications and events ---
	deps.Notifier = notify.NewNotifier(buildSenders(cfg), cfg.Notify.Events, logger)
	var alerter announce.Alerter
	if deps.Notifier.Enabled() {
		alerter = deps.Notifier
	}
	deps.Announcer = announce.New(deps.SignalBus, store.Audit(), alerter, cfg.Notify.AlertDedupTTL.Duration, logger)

	// --- Engines and services ---
	callTimeout := cfg.Venue.CallTimeout.Duration
	deps.Coordinator = executor.NewCoordinator(store, deps.Venue, deps.Keys, deps.Announcer, callTimeout, logger)
	deps.OCO = linkedorder.NewOCOEngine(store, deps.Venue, deps.Keys, deps.Announcer, callTimeout, logger)
	deps.Iceberg = linkedorder.NewIcebergEngine(store, deps.Venue, deps.Keys, deps.Announcer, callTimeout, logger)

	var prices domain.PriceSource
	if deps.PriceCache != nil {
		prices = deps.PriceCache
	}
	deps.Positions = service.NewPositionService(store.Positions(), prices, deps.Coordinator, deps.Announcer, logger)
	deps.Queries = service.NewOrderQueryService(store)

	// --- S3 archive ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.Warn("s3 bucket not reachable, archive runs will retry",
				slog.String("bucket", cfg.S3.Bucket),
				slog.String("error", err.Error()),
			)
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			store.Positions(),
			store.AdvancedOrders(),
			store.Audit(),
		)
	}

	return deps, cleanup, nil
}

// openStore opens the configured persistence backend.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.Store, error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:             cfg.Postgres.DSN,
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			Database:        cfg.Postgres.Database,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxConns:        cfg.Postgres.PoolMaxConns,
			MinConns:        cfg.Postgres.PoolMinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime.Duration,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				pgClient.Close()
				return nil, fmt.Errorf("migrations: %w", err)
			}
		}
		return postgres.NewStore(pgClient), nil
	case "sqlite":
		return sqlite.New(ctx, sqlite.Config{
			Path:        cfg.SQLite.Path,
			BusyTimeout: cfg.SQLite.BusyTimeout.Duration,
		}, logger)
	case "memory":
		logger.Warn("using the in-memory store; state is lost on restart")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Store.Backend)
	}
}

func buildSenders(cfg *config.Config) []notify.Sender {
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if cfg.Notify.WebhookURL != "" {
		var auth *crypto.HMACAuth
		if cfg.Notify.WebhookSecret != "" {
			auth = &crypto.HMACAuth{Key: "exitengine", Secret: cfg.Notify.WebhookSecret}
		}
		senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL, auth))
	}
	return senders
}
