package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/linkstash/linkstash/internal/config"
	"github.com/linkstash/linkstash/internal/enrich"
	"github.com/linkstash/linkstash/internal/httpserver"
	"github.com/linkstash/linkstash/internal/httpserver/deps"
	"github.com/linkstash/linkstash/internal/logger"
	"github.com/linkstash/linkstash/internal/metadata"
	"github.com/linkstash/linkstash/internal/postgres"
	"github.com/linkstash/linkstash/internal/redis"
	"github.com/linkstash/linkstash/internal/scheduler"
	pgstore "github.com/linkstash/linkstash/internal/store/postgres"
	redisstore "github.com/linkstash/linkstash/internal/store/redis"
	"github.com/linkstash/linkstash/internal/stream"
	"github.com/linkstash/linkstash/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	db          *sql.DB
	redisClient *goredis.Client
	listener    *pgstore.Listener
	hub         *stream.Hub
	reconciler  *scheduler.MetadataReconciler
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// Postgres is the source of truth - fail fast if unavailable
	db, err := postgres.New(postgres.ConnectOptions{
		DSN:            cfg.DatabaseDSN,
		MaxOpenConns:   cfg.DBMaxOpenConns,
		ConnectTimeout: cfg.DBConnectTimeout,
		RetryInterval:  cfg.DBRetryInterval,
		MaxWait:        cfg.DBMaxWait,
		PingTimeout:    cfg.DBPingTimeout,
	}, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to connect to Postgres: %v", err)
		os.Exit(1)
	}

	store := pgstore.NewStore(db, loggerClient)
	if err := store.EnsureSchema(context.Background()); err != nil {
		loggerClient.Errorf("Failed to ensure schema: %v", err)
		os.Exit(1)
	}

	// Redis backs the extraction-result cache - fail fast if unavailable
	loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
	redisClient, err := redis.New(redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}

	cache := redisstore.NewCache(redisClient)
	extractor := metadata.NewExtractor(cfg.ExtractTimeout, cfg.ExtractUserAgent, loggerClient)
	enricher := enrich.New(store, cache, extractor,
		cfg.MetadataRetryCooldown, cfg.MetadataCacheTTL, loggerClient)

	// Change stream: Postgres NOTIFY in, websocket fan-out.
	listener, err := pgstore.NewListener(cfg.DatabaseDSN,
		cfg.ListenerMinBackoff, cfg.ListenerMaxBackoff, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to open change stream listener: %v", err)
		os.Exit(1)
	}
	hub := stream.NewHub(loggerClient)

	// Create manual reconcile trigger channel
	reconcileTrigger := make(chan struct{}, 1)

	reconciler := scheduler.NewMetadataReconciler(
		store,
		loggerClient,
		cfg.ReconcileInterval,
		reconcileTrigger,
	)

	// Dependencies passed to routes.
	d := deps.Deps{
		Logger:           loggerClient,
		StartTime:        time.Now(),
		Version:          version.Version,
		Commit:           version.Commit,
		BuildDate:        version.BuildDate,
		GoVersion:        version.GoVersion,
		TimeNow:          time.Now,
		AdminCIDRS:       cfg.AdminCIDRS,
		TrustProxy:       cfg.TrustProxy,
		DB:               db,
		RedisClient:      redisClient,
		Store:            store,
		Extractor:        extractor,
		Enricher:         enricher,
		Hub:              hub,
		ReconcileTrigger: reconcileTrigger,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		db:          db,
		redisClient: redisClient,
		listener:    listener,
		hub:         hub,
		reconciler:  reconciler,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting linkstash v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("linkstash %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the change stream pipeline
	a.listener.Start(ctx)
	go a.hub.Run(ctx, a.listener.Events())
	a.logger.Info("change stream started")

	// Start the metadata reconciliation job
	if err := a.reconciler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start metadata reconciler: %w", err)
	}
	a.logger.Info("metadata reconciler started",
		logger.Duration("interval", a.cfg.ReconcileInterval))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	a.reconciler.Stop()

	if err := a.listener.Close(); err != nil {
		a.logger.Warnf("failed to close change stream listener: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	if err := a.db.Close(); err != nil {
		a.logger.Warnf("failed to close postgres: %v", err)
	}

	a.logger.Info("✅ linkstash stopped cleanly")
	return nil
}
