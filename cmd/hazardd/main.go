package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/hazard-fusion-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/hazard-fusion-service/internal/adapter/kafka"
	"github.com/couchcryptid/hazard-fusion-service/internal/adapter/mapbox"
	"github.com/couchcryptid/hazard-fusion-service/internal/adapter/marine"
	"github.com/couchcryptid/hazard-fusion-service/internal/adapter/postgres"
	redisadapter "github.com/couchcryptid/hazard-fusion-service/internal/adapter/redis"
	"github.com/couchcryptid/hazard-fusion-service/internal/config"
	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
	"github.com/couchcryptid/hazard-fusion-service/internal/escalation"
	"github.com/couchcryptid/hazard-fusion-service/internal/fusion"
	"github.com/couchcryptid/hazard-fusion-service/internal/observability"
	"github.com/couchcryptid/hazard-fusion-service/internal/pipeline"
	"github.com/couchcryptid/hazard-fusion-service/internal/verification"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

const redisKeyPrefix = "hazard-fusion"

func main() {
	if err := run(); err != nil {
		slog.Error("hazardd exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var checkers []httpadapter.ReadinessChecker

	// Fusion store backend (FUSION_BACKEND=memory|redis).
	var backend fusion.Backend
	switch cfg.FusionBackend {
	case config.FusionBackendRedis:
		client := redisadapter.NewClient(cfg)
		defer client.Close()
		rb := redisadapter.NewBackend(client, redisKeyPrefix, logger)
		checkers = append(checkers, rb)
		backend = rb
		logger.Info("fusion store backed by redis", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	default:
		backend = fusion.NewMemoryBackend()
		logger.Info("fusion store in memory")
	}
	store := fusion.NewStore(backend, clock)

	// Official correlation is optional; without a feed it contributes zero.
	var official verification.SignalProvider
	if cfg.OfficialFeedURL != "" {
		official = marine.NewClient(cfg.OfficialFeedURL, logger)
		logger.Info("official marine feed enabled", "url", cfg.OfficialFeedURL)
	}

	scorer := verification.NewScorer(store, nil, clock)
	validator := verification.NewValidator(verification.NewFusionSocialProvider(store), official, cfg.ProviderTimeout, logger, metrics)
	queue := escalation.New(clock)
	engine := verification.NewEngine(store, scorer, validator, queue, clock, logger, metrics)

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	postsReader := kafkaadapter.NewReader(cfg, cfg.KafkaPostsTopic, logger)
	signalsWriter := kafkaadapter.NewWriter(cfg, cfg.KafkaSignalsTopic, logger)
	reportsReader := kafkaadapter.NewReader(cfg, cfg.KafkaReportsTopic, logger)
	decisionsWriter := kafkaadapter.NewWriter(cfg, cfg.KafkaDecisionsTopic, logger)

	decisionSink := pipeline.MultiLoader{decisionsWriter}
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(db); err != nil {
			return err
		}
		repo := postgres.NewDecisionRepository(db, logger)
		engine.WithDecisionLookup(repo)
		decisionSink = append(decisionSink, repo)
		checkers = append(checkers, repo)
		logger.Info("decision persistence enabled")
	}

	posts := pipeline.New("posts", postsReader,
		pipeline.NewPostProcessor(store, logger, metrics),
		signalsWriter, logger, metrics, cfg.BatchSize, cfg.ScoringWorkers)
	reports := pipeline.New("reports", reportsReader,
		pipeline.NewReportProcessor(engine, geocoder, logger),
		decisionSink, logger, metrics, cfg.BatchSize, cfg.ScoringWorkers)
	checkers = append(checkers, posts, reports)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.AllReady(checkers...), engine,
		pipeline.NewDecisionPublisher(decisionSink), logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start both pipelines; either failing stops the service.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return posts.Run(gctx) })
	g.Go(func() error { return reports.Run(gctx) })

	runErr := g.Wait()
	if runErr != nil {
		logger.Error("pipeline error", "error", runErr)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	for name, c := range map[string]interface{ Close() error }{
		"posts reader":     postsReader,
		"reports reader":   reportsReader,
		"signals writer":   signalsWriter,
		"decisions writer": decisionsWriter,
	} {
		if err := c.Close(); err != nil {
			logger.Error("kafka close error", "component", name, "error", err)
		}
	}

	logger.Info("shutdown complete", "pending_escalations", queue.Len())
	return runErr
}
