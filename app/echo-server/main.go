package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	buildmetrics "adDecisioning/app/echo-server/metrics"
	"adDecisioning/app/echo-server/router"
	"adDecisioning/business/auction"
	"adDecisioning/business/bandit"
	"adDecisioning/business/causal"
	"adDecisioning/business/eventlog"
	"adDecisioning/business/frequency"
	"adDecisioning/business/pacing"
	"adDecisioning/domain"
	"adDecisioning/internal/middleware"
	badgerRepo "adDecisioning/internal/repository/badger"
	psqlRepo "adDecisioning/internal/repository/postgres"
	redisRepo "adDecisioning/internal/repository/redis"
	"adDecisioning/internal/rest"
	"adDecisioning/pkg/config"
	"adDecisioning/pkg/database"
	redisdb "adDecisioning/pkg/database/redis"
	"adDecisioning/pkg/kvstore"
	"adDecisioning/pkg/logger"
	"adDecisioning/pkg/metrics"
	"adDecisioning/pkg/telemetry"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const (
	sweepInterval    = 5 * time.Minute
	badgerGCInterval = 10 * time.Minute
	frequencyTTL     = 8 * 24 * time.Hour
	spendTTL         = 48 * time.Hour
)

// stores is the hot decisioning state, either in process or in Redis.
type stores struct {
	frequency   kvstore.Log[domain.FrequencyRecord]
	spend       kvstore.Store[float64]
	arms        kvstore.Store[*bandit.ArmState]
	buckets     kvstore.Store[bandit.BucketState]
	experiments kvstore.Store[domain.Experiment]
	reports     kvstore.Store[domain.IncrementalityReport]
	groups      kvstore.Store[domain.ExperimentGroup]
}

func memoryStores() stores {
	return stores{
		frequency:   kvstore.NewMemoryLog[domain.FrequencyRecord](),
		spend:       kvstore.NewMemoryStore[float64](),
		arms:        kvstore.NewMemoryStore[*bandit.ArmState](),
		buckets:     kvstore.NewMemoryStore[bandit.BucketState](),
		experiments: kvstore.NewMemoryStore[domain.Experiment](),
		reports:     kvstore.NewMemoryStore[domain.IncrementalityReport](),
		groups:      kvstore.NewMemoryStore[domain.ExperimentGroup](),
	}
}

func redisStores(client goredis.UniversalClient, app string) stores {
	base := redisRepo.Options{Namespace: app + ":"}
	withTTL := func(ttl time.Duration) redisRepo.Options {
		o := base
		o.TTL = ttl
		return o
	}
	return stores{
		frequency:   redisRepo.NewLog[domain.FrequencyRecord](client, withTTL(frequencyTTL)),
		spend:       redisRepo.NewStore[float64](client, withTTL(spendTTL)),
		arms:        redisRepo.NewStore[*bandit.ArmState](client, base),
		buckets:     redisRepo.NewStore[bandit.BucketState](client, base),
		experiments: redisRepo.NewStore[domain.Experiment](client, base),
		reports:     redisRepo.NewStore[domain.IncrementalityReport](client, base),
		groups:      redisRepo.NewStore[domain.ExperimentGroup](client, base),
	}
}

// every runs fn on a ticker until ctx is done. Failures are logged and the
// loop keeps going.
func every(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				logger.Error("periodic_task_failed", "task", name, "error", err)
			}
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.App.Environment)
	logger.Info("Starting ad decisioning", "version", cfg.App.Version, "state_backend", cfg.Store.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	buildmetrics.Init(cfg.App.Version, cfg.App.Environment, cfg.Store.Backend)

	tp, err := initTracing(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to init tracing", "error", err)
	}

	validate := validator.New()

	// Hot state
	st := memoryStores()
	var redisClient goredis.UniversalClient
	if cfg.Store.Backend == config.BackendRedis {
		redisClient, err = redisdb.NewRedisClient(cfg)
		if err != nil {
			logger.Fatal("Failed to connect to redis", "error", err)
		}
		st = redisStores(redisClient, cfg.App.Name)
		logger.Info("Redis connected successfully")
	}

	// Durable state
	var (
		db          *gorm.DB
		badgerDB    *badger.DB
		campaigns   auction.CampaignRepository = auction.StaticRepository{}
		checkpoints bandit.CheckpointRepository
		segments    causal.SegmentLiftRepository
		revisions   rest.RevisionStore
		latest      *psqlRepo.ConfigRevisionRepository
		writer      eventlog.Writer
		dlq         eventlog.DeadLetterWriter
	)
	if cfg.Database.Enabled {
		db, err = database.InitPostgres(cfg)
		if err != nil {
			logger.Fatal("Failed to connect to database", "error", err)
		}
		if err := database.Migrate(db); err != nil {
			logger.Fatal("Failed to migrate database", "error", err)
		}
		logger.Info("Database connected successfully")

		events := psqlRepo.NewEventRepository(db)
		latest = psqlRepo.NewConfigRevisionRepository(db)
		campaigns = psqlRepo.NewCampaignRepository(db)
		checkpoints = psqlRepo.NewBanditRepository(db)
		segments = psqlRepo.NewSegmentLiftRepository(db)
		revisions = latest
		writer, dlq = events, events
	} else {
		badgerDB, err = badgerRepo.Open(badgerRepo.Config{Path: cfg.Store.CheckpointDir})
		if err != nil {
			logger.Fatal("Failed to open checkpoint store", "error", err)
		}
		checkpoints = badgerRepo.NewCheckpointRepository(badgerDB)
		mem := eventlog.NewMemoryWriter(10000)
		writer, dlq = mem, mem
		logger.Warn("Database disabled: no campaigns are served and events stay in memory")
	}

	// Runtime config
	runtimeCfg, err := config.LoadRuntime(cfg.App.RuntimeConfigPath, validate)
	if err != nil {
		logger.Fatal("Failed to load decisioning config", "path", cfg.App.RuntimeConfigPath, "error", err)
	}
	if latest != nil {
		stored, found, err := latest.LatestRevision(ctx)
		switch {
		case err != nil:
			logger.Warn("Failed to load latest config revision", "error", err)
		case found && stored.Bandit.Dimension == runtimeCfg.Bandit.Dimension:
			runtimeCfg = stored
			logger.Info("Using latest stored config revision")
		}
	}
	manager, err := config.NewManager(runtimeCfg, validate)
	if err != nil {
		logger.Fatal("Invalid decisioning config", "error", err)
	}

	// Events
	dispatcher := eventlog.NewDispatcher(writer, dlq, eventlog.DefaultOptions())
	dispatcher.Start(ctx)

	// Services
	freqService := frequency.NewService(st.frequency, frequency.ConfigFrom(runtimeCfg.Frequency))
	oracle := pacing.NewLocalOracle(st.spend)
	banditService := bandit.NewService(st.arms, st.buckets, checkpoints, bandit.ConfigFrom(runtimeCfg.Bandit))
	banditService.SetPublisher(dispatcher)
	causalService := causal.NewService(st.experiments, st.reports, st.groups, segments, causal.ConfigFrom(runtimeCfg.Causal))
	causalService.SetPublisher(dispatcher)

	auctionService := auction.NewService(auction.Dependencies{
		Campaigns: auction.NewCachedSource(campaigns, time.Duration(runtimeCfg.Auction.CampaignCacheSeconds)*time.Second),
		Frequency: freqService,
		Pacing:    oracle,
		Explorer:  banditService,
		Causal:    causalService,
		Publisher: dispatcher,
	}, auction.ConfigFrom(runtimeCfg.Auction))

	manager.Subscribe(func(c domain.DecisioningConfig) {
		auctionService.SetConfig(auction.ConfigFrom(c.Auction))
		freqService.SetConfig(frequency.ConfigFrom(c.Frequency))
		banditService.SetConfig(bandit.ConfigFrom(c.Bandit))
		causalService.SetConfig(causal.ConfigFrom(c.Causal))
		buildmetrics.ConfigReloads.Inc()
	})

	if _, err := banditService.Restore(ctx); err != nil {
		logger.Warn("Failed to restore bandit checkpoints, starting cold", "error", err)
	}

	// Background work
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return freqService.Run(gctx) })
	g.Go(func() error { return banditService.RunCheckpointer(gctx) })
	g.Go(func() error {
		return every(gctx, "pacing_sweep", sweepInterval, func(c context.Context) error {
			_, err := oracle.Sweep(c)
			return err
		})
	})
	g.Go(func() error {
		if err := config.Watch(gctx, cfg.App.RuntimeConfigPath, manager, validate); err != nil {
			logger.Warn("Config watcher stopped", "error", err)
		}
		return nil
	})
	if badgerDB != nil {
		g.Go(func() error {
			return every(gctx, "badger_gc", badgerGCInterval, func(context.Context) error { return badgerRepo.RunGC(badgerDB) })
		})
	}

	// Handlers
	auctionHandler := rest.NewAuctionHandler(auctionService, validate)
	experimentHandler := rest.NewExperimentHandler(causalService)
	adminHandler := rest.NewAdminHandler(validate, manager, revisions, banditService, freqService, oracle)

	// Init echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// HTTP error handler
	e.HTTPErrorHandler = middleware.ErrorHandler

	// Global middleware
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.Trace())
	e.Use(middleware.Metrics())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	authRequired := middleware.AuthMiddleware(cfg.JWT.SecretKey)
	adminOnly := middleware.AdminOnly()
	limiter := rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst)

	// Setup routes
	api := e.Group("/api/v1")
	router.SetAuctionRoutes(api, auctionHandler, limiter)
	router.SetExperimentRoutes(api, experimentHandler, authRequired)
	router.SetAdminRoutes(api, adminHandler, authRequired, adminOnly)

	// Goroutine server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("Server starting", "address", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown server
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	auctionService.Drain()
	if err := g.Wait(); err != nil {
		logger.Error("Background task error", "error", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Error("Event dispatcher close error", "error", err)
	}
	if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
		logger.Error("Tracer shutdown error", "error", err)
	}
	if badgerDB != nil {
		if err := badgerDB.Close(); err != nil {
			logger.Error("Checkpoint store close error", "error", err)
		}
	}
	if err := redisdb.CloseRedisClient(redisClient); err != nil {
		logger.Error("Redis close error", "error", err)
	}
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	logger.Info("Server stopped")
}

func initTracing(ctx context.Context, cfg *config.Config) (*sdktrace.TracerProvider, error) {
	if cfg.Telemetry.OTLPEndpoint == "" {
		return nil, nil
	}
	return telemetry.InitTracer(ctx, telemetry.Config{
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
}
