package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/vidproxy/vidproxy/internal/api/handler"
	"github.com/vidproxy/vidproxy/internal/api/middleware"
	"github.com/vidproxy/vidproxy/internal/background"
	"github.com/vidproxy/vidproxy/internal/config"
	"github.com/vidproxy/vidproxy/internal/domain/model"
	"github.com/vidproxy/vidproxy/internal/domain/repository"
	"github.com/vidproxy/vidproxy/internal/imquery"
	"github.com/vidproxy/vidproxy/internal/infrastructure/cache"
	"github.com/vidproxy/vidproxy/internal/infrastructure/postgres"
	"github.com/vidproxy/vidproxy/internal/infrastructure/queue"
	"github.com/vidproxy/vidproxy/internal/infrastructure/storage"
	"github.com/vidproxy/vidproxy/internal/options"
	"github.com/vidproxy/vidproxy/internal/origin"
	"github.com/vidproxy/vidproxy/internal/transform"
	"github.com/vidproxy/vidproxy/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	routing, err := config.LoadRouting(cfg.Routing.Path)
	if err != nil {
		return fmt.Errorf("failed to load routing config: %w", err)
	}

	ctx := context.Background()

	variantRedis := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.VariantDB,
	})
	defer variantRedis.Close()
	versionRedis := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.VersionDB,
	})
	defer versionRedis.Close()

	engineCfg := cache.DefaultEngineConfig()
	engineCfg.Retries = cfg.Cache.StoreRetries
	if cfg.Cache.StoreIndefinitely {
		engineCfg.TTL = 0
	} else {
		engineCfg.TTL = time.Duration(cfg.Cache.TTLOK) * time.Second
	}
	engine := cache.NewEngine(variantRedis, engineCfg)
	versions := cache.NewVersionStore(versionRedis)

	buckets, err := bucketClients(ctx, cfg, routing)
	if err != nil {
		return err
	}
	fetcher := origin.NewFetcher(&http.Client{}, buckets, origin.FetcherConfig{})

	transformer := transform.NewClient(&http.Client{}, transform.ClientConfig{
		BasePath: cfg.Transform.BasePath,
		Timeout:  cfg.Transform.Timeout,
	})

	var index repository.VariantIndex
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Postgres.DSN()))
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer pgClient.Close()
		index = postgres.NewVariantIndex(pgClient.Pool())
	} else {
		logger.Warn("variant index disabled, tag purges unavailable")
	}

	svc := usecase.NewVariantService(engine, versions, fetcher, transformer, index, usecase.VariantServiceConfig{
		BypassParameters:  cfg.Cache.BypassQueryParameters,
		DisableVersioning: !cfg.Cache.EnableVersioning,
		DisableCacheTags:  !cfg.Cache.EnableCacheTags,
	})

	var purgeQueue repository.PurgeQueue
	if cfg.RabbitMQ.Enabled {
		qc, err := queue.NewClient(ctx, queue.DefaultClientConfig(cfg.RabbitMQ.URL()))
		if err != nil {
			return fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		defer qc.Close()
		purgeQueue = qc
	}
	purgeSvc := usecase.NewPurgeService(engine, index, purgeQueue)

	executor := background.NewExecutor()

	imq := imquery.NewResolver(routing.Breakpoints, routing.Derivatives)
	resolver := options.NewResolver(routing, imq)
	variantHandler := handler.NewVariantHandler(svc, engine, routing, resolver, handler.VariantHandlerConfig{
		DefaultMaxAge: cfg.Cache.TTLOK,
	})
	adminHandler := handler.NewAdminHandler(purgeSvc, index)

	r := setupRouter(logger, executor, variantHandler, adminHandler, cfg.Debug.AllowDebugHeaders)

	// Purge consumer: external systems publish evictions through the broker.
	purgeCtx, stopPurge := context.WithCancel(ctx)
	defer stopPurge()
	if purgeQueue != nil {
		go func() {
			if err := purgeSvc.Run(purgeCtx); err != nil && purgeCtx.Err() == nil {
				logger.Error("purge consumer stopped", slog.Any("error", err))
			}
		}()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting gateway", slog.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down gateway", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	stopPurge()

	// Let accepted background stores finish before exiting.
	if err := executor.Drain(shutdownCtx); err != nil {
		logger.Warn("background executor drain incomplete", slog.Any("error", err))
	}

	logger.Info("gateway stopped")
	return nil
}

func setupRouter(logger *slog.Logger, executor *background.Executor, variant *handler.VariantHandler, admin *handler.AdminHandler, allowDebug bool) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Executor(executor))
	r.Use(middleware.WithTrace(allowDebug))

	r.Get("/healthz", handler.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/debug", handler.Debug)

	r.Post("/admin/purge", admin.Purge)
	r.Get("/admin/variants", admin.ListVariants)

	// Everything else is a media path.
	r.NotFound(variant.Serve)

	return r
}

// bucketClients creates one storage client per bucket the routing config
// references.
func bucketClients(ctx context.Context, cfg *config.Config, routing *config.Routing) (map[string]repository.ObjectStorage, error) {
	buckets := make(map[string]repository.ObjectStorage)
	for _, o := range routing.Origins {
		for _, s := range o.Sources {
			if s.Type != model.SourceBucket || s.Bucket == "" {
				continue
			}
			if _, ok := buckets[s.Bucket]; ok {
				continue
			}
			client, err := storage.NewClient(ctx, storage.ClientConfig{
				Endpoint:  cfg.MinIO.Endpoint,
				AccessKey: cfg.MinIO.AccessKey,
				SecretKey: cfg.MinIO.SecretKey,
				Bucket:    s.Bucket,
				UseSSL:    cfg.MinIO.UseSSL,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create storage client for bucket %q: %w", s.Bucket, err)
			}
			buckets[s.Bucket] = client
		}
	}
	return buckets, nil
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
