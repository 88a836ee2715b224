package main

import (
	"context"
	"errors"
	_ "expvar"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nulzo/model-helpers/internal/analytics"
	"github.com/nulzo/model-helpers/internal/capability"
	"github.com/nulzo/model-helpers/internal/config"
	"github.com/nulzo/model-helpers/internal/gateway"
	"github.com/nulzo/model-helpers/internal/platform/logger"
	"github.com/nulzo/model-helpers/internal/platform/otel"
	"github.com/nulzo/model-helpers/internal/pricing"
	"github.com/nulzo/model-helpers/internal/server"
	"github.com/nulzo/model-helpers/internal/store/cache"
	"github.com/nulzo/model-helpers/internal/store/sqlite"
	"go.uber.org/zap"
)

const debugAddr = "127.0.0.1:6060"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Initialize(logger.FromSettings(cfg.Log.Level, cfg.Log.Format))
	defer logger.Sync()
	log := logger.Get()

	if cfg.Tracing.Enabled {
		shutdown, err := otel.InitTracer(cfg.Tracing.ServiceName, log, os.Stdout)
		if err != nil {
			log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	table, err := capability.NewTable(cfg.Models...)
	if err != nil {
		log.Fatal("Invalid model configuration", zap.Error(err))
	}
	resolver := capability.NewResolver(table, log.Named("capability"))
	log.Info("Capability table loaded", zap.Int("models", table.Len()))

	repo, err := sqlite.NewSQLiteStorage(cfg.Database.DSN, log)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ingestor := analytics.NewIngestor(log.Named("analytics"), repo)
	ingestor.Start(context.Background())

	opts := []gateway.Option{gateway.WithPricing(pricing.NewCalculator(log.Named("pricing")))}
	if cfg.Cache.Enabled {
		opts = append(opts, gateway.WithCache(newCache(ctx, cfg, log), cfg.Cache.TTL))
	}

	service := gateway.NewService(log.Named("gateway"), resolver, ingestor, opts...)
	gateway.BootstrapInvokers(service, cfg, resolver, log)

	srv := server.New(cfg, log, service, analytics.NewService(repo))

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Server.Env != "production" {
		go func() {
			// expvar and pprof on the default mux
			if err := http.ListenAndServe(debugAddr, nil); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Debug server stopped", zap.Error(err))
			}
		}()
	}

	go func() {
		log.Info("Starting server", zap.String("port", cfg.Server.Port), zap.String("env", cfg.Server.Env))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}

	ingestor.Stop()
}

// newCache prefers Redis and falls back to memory when it is unreachable.
func newCache(ctx context.Context, cfg *config.Config, log *zap.Logger) cache.CacheService {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache()
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rc, err := cache.NewRedisCache(pingCtx, cache.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn("Redis unavailable, using in-memory cache", zap.Error(err))
		return cache.NewMemoryCache()
	}
	return rc
}
