package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/talmeida/linktrace/config"
	appmodel "github.com/talmeida/linktrace/internal/app/model"
	apprepository "github.com/talmeida/linktrace/internal/app/repository"
	appserver "github.com/talmeida/linktrace/internal/app/server"
	appservice "github.com/talmeida/linktrace/internal/app/service"
	httputil "github.com/talmeida/linktrace/internal/http/util"
	"github.com/talmeida/linktrace/internal/infra/logger"
	infraNATS "github.com/talmeida/linktrace/internal/infra/nats"
	infraPostgres "github.com/talmeida/linktrace/internal/infra/postgres"
	infraPrometheus "github.com/talmeida/linktrace/internal/infra/prometheus"
	infraRedis "github.com/talmeida/linktrace/internal/infra/redis"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	isDev := os.Getenv("APP_ENV") != "production"
	log := logger.MustInit(logger.Config{
		Development: isDev,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("addr", cfg.Server.Addr),
		zap.String("base_url", cfg.Server.BaseURL),
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.Int("redis_port", cfg.Redis.Port),
		zap.String("nats_host", cfg.NATS.Host),
		zap.Int("nats_port", cfg.NATS.Port),
		zap.Bool("enforce_link_state", cfg.Redirect.EnforceLinkState),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := infraPostgres.AutoMigrate(ctx, gormDB,
		&appmodel.Link{}, &appmodel.AccessLogEntry{}); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()
	log.Info("Connected to Postgres successfully")

	redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Connected to Redis successfully")

	natsConn, js, err := infraNATS.Connect(cfg.NATS)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Drain()
	log.Info("Connected to NATS successfully")

	metrics := infraPrometheus.NewMetrics()
	if !isDev {
		promServer := infraPrometheus.NewServer(cfg.Prometheus)
		go func() {
			log.Info("Starting Prometheus metrics server",
				zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	linkRepo := apprepository.NewLinkRepository(gormDB)
	accessLogRepo := apprepository.NewAccessLogRepository(gormDB)

	slugs, err := linkRepo.AllSlugs(ctx)
	if err != nil {
		log.Fatal("Failed to load slugs for the negative filter", zap.Error(err))
	}
	slugFilter := appservice.NewSlugFilter(slugs)
	log.Info("Seeded slug filter", zap.Int("slugs", len(slugs)))

	linkCache := appservice.NewLinkCache(redisClient, cfg.Redirect.CacheTTL, log)

	enricher := appservice.NewEnricher(appservice.EnricherDeps{
		Logger:     log,
		Geo:        appservice.NewIPWhoisProvider(cfg.Redirect.GeoBaseURL, cfg.Redirect.GeoTimeout),
		Metrics:    metrics,
		GeoTimeout: cfg.Redirect.GeoTimeout,
	})

	publisher := appservice.NewAccessPublisher(js)

	engine := appservice.NewRedirectEngine(appservice.RedirectEngineDeps{
		Logger:           log,
		Links:            linkRepo,
		Cache:            linkCache,
		Filter:           slugFilter,
		Enricher:         enricher,
		Publisher:        publisher,
		Metrics:          metrics,
		EnforceLinkState: cfg.Redirect.EnforceLinkState,
	})

	callback := appservice.NewCallbackDispatcher(appservice.CallbackDeps{
		Logger:  log,
		Signer:  httputil.NewPayloadSigner([]byte(cfg.Auth.JWTSecret)),
		Metrics: metrics,
		Timeout: cfg.Redirect.CallbackTimeout,
	})

	consumer := appservice.NewAccessConsumer(appservice.AccessConsumerDeps{
		JetStream: js,
		Logger:    log,
		Logs:      accessLogRepo,
		Links:     linkRepo,
		Cache:     linkCache,
		Callback:  callback,
		Metrics:   metrics,
	})
	if err := consumer.Start(); err != nil {
		log.Fatal("Failed to start access event consumer", zap.Error(err))
	}
	defer consumer.Stop()
	log.Info("Access event consumer started")

	linkService := appservice.NewLinkService(appservice.LinkServiceDeps{
		Logger: log,
		Repo:   linkRepo,
		QR:     appservice.NewQRGenerator(cfg.Server.StaticDir, cfg.Server.BaseURL),
		Filter: slugFilter,
		Cache:  linkCache,
	})

	dashboard := appservice.NewDashboard(log, pool)

	if cfg.Retention.Enabled {
		retention := appservice.NewAccessRetention(log, accessLogRepo,
			cfg.Retention.MaxAge, cfg.Retention.Interval)
		retention.Start()
		defer retention.Stop()
		log.Info("Access log retention job started",
			zap.Duration("max_age", cfg.Retention.MaxAge),
			zap.Duration("interval", cfg.Retention.Interval))
	}

	server := appserver.New(appserver.Dependencies{
		Logger:      log,
		Config:      cfg,
		Redis:       redisClient,
		Engine:      engine,
		LinkService: linkService,
		Dashboard:   dashboard,
		AccessLogs:  accessLogRepo,
		Metrics:     metrics,
	})

	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}
	if err := server.Listen(addr); err != nil {
		log.Fatal("Fiber server exited", zap.Error(err))
	}
}
