// Package main provides the entry point for the ThreatGate server, a
// threat item decision engine: feed intake, normalization, enrichment,
// verification, and routing behind an HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tcollier/threatgate/internal/api"
	"github.com/tcollier/threatgate/internal/config"
	"github.com/tcollier/threatgate/internal/enrichment"
	"github.com/tcollier/threatgate/internal/feedquality"
	"github.com/tcollier/threatgate/internal/intake"
	"github.com/tcollier/threatgate/internal/model"
	"github.com/tcollier/threatgate/internal/normalization"
	"github.com/tcollier/threatgate/internal/observability"
	"github.com/tcollier/threatgate/internal/pipeline"
	"github.com/tcollier/threatgate/internal/routing"
	"github.com/tcollier/threatgate/internal/storage"
	"github.com/tcollier/threatgate/internal/verification"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ThreatGate %s (commit: %s, built: %s)\n", api.Version, api.GitCommit, api.BuildTime)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(observability.Config{
		ServiceName:    "threatgate",
		ServiceVersion: api.Version,
		LogLevel:       cfg.Logging.Level,
		LogFormat:      cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting threatgate",
		zap.String("version", api.Version),
		zap.String("config", *configPath))

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	normalizer := normalization.New(logger)
	deduper := normalization.NewDeduper(logger)
	store := storage.NewMemoryStore()
	scorer := feedquality.NewScorer(logger)
	breaker := feedquality.NewBreaker(cfg.FeedQuality.LowQualityFloor, cfg.FeedQuality.BreakerStrikes, metrics, logger)

	providers := buildProviders(cfg.Enrichment)
	enricher := enrichment.NewMerger(providers, logger, cfg.Enrichment.NVD.Timeout)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Addr,
			Password:    os.Getenv(cfg.Redis.PasswordEnv),
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			DialTimeout: cfg.Redis.DialTimeout,
		})
	}

	verifier := buildVerifier(cfg, providers, redisClient, metrics, logger)

	engine := routing.New(cfg.Organization, metrics, logger)
	pipe := pipeline.New(cfg.Pipeline, pipeline.Deps{
		Normalizer: normalizer,
		Deduper:    deduper,
		Enricher:   enricher,
		Verifier:   verifier,
		Engine:     engine,
		Store:      store,
		Scorer:     scorer,
		Breaker:    breaker,
		Metrics:    metrics,
		Logger:     logger,
	})

	var limiter *api.RateLimiter
	if redisClient != nil {
		limiter = api.NewRateLimiter(redisClient, cfg.Server.RateLimitPerMinute, logger)
	}

	server := api.NewServer(cfg.Server, api.Deps{
		Feeds:      cfg.Feeds,
		Pipeline:   pipe,
		Normalizer: normalizer,
		Deduper:    deduper,
		Verifier:   verifier,
		Store:      store,
		Scorer:     scorer,
		Breaker:    breaker,
		Limiter:    limiter,
		Registry:   registry,
		Logger:     logger,
	})

	if len(cfg.Feeds) > 0 && cfg.Intake.PollInterval > 0 {
		poller := intake.NewPoller(cfg.Intake, cfg.Feeds, pipe, logger)
		go poller.Run(ctx)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("stopped")
	return nil
}

func buildProviders(cfg config.EnrichmentConfig) []enrichment.Provider {
	var providers []enrichment.Provider
	if cfg.NVD.Enabled {
		providers = append(providers, enrichment.NewNVDProvider(cfg.NVD))
	}
	if cfg.KEV.Enabled {
		providers = append(providers, enrichment.NewKEVProvider(cfg.KEV))
	}
	if cfg.EPSS.Enabled {
		providers = append(providers, enrichment.NewEPSSProvider(cfg.EPSS))
	}
	return providers
}

// buildVerifier wires the structured sources from the enrichment
// providers and picks the Redis result store when one is configured.
func buildVerifier(cfg *config.Config, providers []enrichment.Provider, redisClient *redis.Client, metrics *observability.Metrics, logger *zap.Logger) *verification.Verifier {
	var sources []verification.StructuredSource
	for _, p := range providers {
		switch p.(type) {
		case *enrichment.NVDProvider:
			sources = append(sources, verification.NewRegistrySource(p))
		case *enrichment.KEVProvider:
			sources = append(sources, verification.NewCatalogSource(p))
		}
	}

	var grounding verification.GroundingProvider
	if cfg.Verification.Method == model.MethodGrounding || cfg.Verification.Method == model.MethodHybrid {
		grounding = verification.NewHTTPGroundingProvider(
			os.Getenv("GROUNDING_API_URL"),
			os.Getenv("GROUNDING_API_KEY"),
			cfg.Verification.GroundingTimeout)
	}

	var resultStore verification.ResultStore = verification.NewMemoryResultStore()
	if redisClient != nil {
		resultStore = verification.NewRedisResultStore(redisClient)
	}

	return verification.New(cfg.Verification, sources, grounding, resultStore, metrics, logger)
}
