package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kevin07696/settlement-service/internal/adapters/database"
	"github.com/kevin07696/settlement-service/internal/adapters/kafka"
	"github.com/kevin07696/settlement-service/internal/adapters/memory"
	"github.com/kevin07696/settlement-service/internal/adapters/postgres"
	"github.com/kevin07696/settlement-service/internal/adapters/redis"
	"github.com/kevin07696/settlement-service/internal/adapters/secrets"
	"github.com/kevin07696/settlement-service/internal/config"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
	cronHandler "github.com/kevin07696/settlement-service/internal/handlers/cron"
	settlementHandler "github.com/kevin07696/settlement-service/internal/handlers/settlement"
	transitionHandler "github.com/kevin07696/settlement-service/internal/handlers/transition"
	"github.com/kevin07696/settlement-service/internal/seed"
	"github.com/kevin07696/settlement-service/internal/services/batch"
	"github.com/kevin07696/settlement-service/internal/services/commission"
	"github.com/kevin07696/settlement-service/internal/services/settlement"
	"github.com/kevin07696/settlement-service/internal/services/stateguard"
	"github.com/kevin07696/settlement-service/internal/services/transition"
	"github.com/kevin07696/settlement-service/pkg/middleware"
	"github.com/kevin07696/settlement-service/pkg/observability"
	"github.com/kevin07696/settlement-service/pkg/resilience"
	"github.com/kevin07696/settlement-service/pkg/shutdown"
	"github.com/kevin07696/settlement-service/pkg/timeutil"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)
	defer logger.Sync()

	logger.Info("Starting settlement service",
		zap.String("version", "0.1.0"),
		zap.String("environment", cfg.Environment),
		zap.String("storage", cfg.Storage),
		zap.String("engine_version", cfg.Settlement.EngineVersion),
		zap.String("timezone", cfg.Settlement.Timezone),
	)

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(logger, cfg.Server.ShutdownTimeout)

	if err := secrets.ResolveStartupSecrets(ctx, cfg, logger); err != nil {
		logger.Fatal("Failed to resolve secrets", zap.Error(err))
	}

	deps, err := initDependencies(ctx, cfg, shutdownMgr, logger)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies", zap.Error(err))
	}

	timeouts := resilience.DefaultTimeoutConfig()
	timeouts.CronJob = cfg.Settlement.CronTimeout

	tracker := shutdown.NewInFlightTracker("settlement-runs", logger)
	location := cfg.Settlement.Location()

	cronHdlr := cronHandler.NewSettlementHandler(deps.batchService, tracker, timeouts, location, logger, cfg.Cron.Secret)
	previewHdlr := settlementHandler.NewPreviewHandler(deps.batchService, timeouts, location, logger)
	transitionHdlr := transitionHandler.NewHandler(deps.transitionService, timeouts, logger)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger)
	apiTimeout := middleware.Timeout(timeouts.HTTPHandler)

	httpMux := http.NewServeMux()

	// Cron endpoints (authenticated by shared secret, not rate limited)
	httpMux.Handle("/cron/settlements/daily", observability.HTTPMetricsMiddleware("/cron/settlements/daily", http.HandlerFunc(cronHdlr.ProcessDaily)))
	httpMux.Handle("/cron/settlements/yesterday", observability.HTTPMetricsMiddleware("/cron/settlements/yesterday", http.HandlerFunc(cronHdlr.ProcessYesterday)))
	httpMux.HandleFunc("/cron/health", cronHdlr.HealthCheck)

	// API endpoints
	httpMux.Handle("/api/v1/settlements/preview", middleware.Chain(
		observability.HTTPMetricsMiddleware("/api/v1/settlements/preview", http.HandlerFunc(previewHdlr.Preview)),
		rateLimiter.Middleware, apiTimeout, middleware.Gzip,
	))
	httpMux.Handle("/api/v1/transitions/check", middleware.Chain(
		observability.HTTPMetricsMiddleware("/api/v1/transitions/check", http.HandlerFunc(transitionHdlr.Check)),
		rateLimiter.Middleware, apiTimeout,
	))
	httpMux.Handle("/api/v1/transitions", middleware.Chain(
		observability.HTTPMetricsMiddleware("/api/v1/transitions", http.HandlerFunc(transitionHdlr.Apply)),
		rateLimiter.Middleware, apiTimeout,
	))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           middleware.Chain(httpMux,
			middleware.Recovery(logger),
			middleware.Logging(logger),
			middleware.SecurityHeaders(cfg.Environment != "production" && cfg.Environment != "staging"),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	healthChecker := observability.NewHealthChecker(deps.healthChecks)
	metricsServer := observability.StartMetricsServer(strconv.Itoa(cfg.Server.MetricsPort), healthChecker, logger)

	// Shutdown runs in reverse registration order: stop accepting requests,
	// drain batch runs, then release infrastructure.
	shutdownMgr.Register("metrics-server", func(ctx context.Context) error {
		return observability.ShutdownMetricsServer(ctx, metricsServer)
	})
	shutdownMgr.RegisterNoErr("rate-limiter", rateLimiter.Shutdown)
	shutdownMgr.Register("settlement-runs", tracker.Shutdown)
	shutdownMgr.RegisterHTTPServer("http-server", httpServer)

	go func() {
		logger.Info("HTTP server listening",
			zap.Int("port", cfg.Server.HTTPPort),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	shutdownMgr.WaitForShutdown()
	logger.Info("Servers stopped")
}

// Dependencies holds the initialized services and health probes
type Dependencies struct {
	batchService      *batch.Service
	transitionService *transition.Service
	healthChecks      map[string]observability.Pinger
}

// storage groups the repositories selected by STORAGE
type storage struct {
	db          ports.TransactionManager
	events      ports.SettlementEventRepository
	settlements ports.SettlementRepository
	ruleSets    ports.RuleSetRepository
	profiles    ports.PartyProfileRepository
	relays      ports.OrderRelayRepository
	batches     ports.SettlementBatchRepository
}

// initLogger initializes the logger
func initLogger(cfg *config.Config) *zap.Logger {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.Logger.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Logger.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// initDependencies initializes all services with dependency injection.
// Infrastructure is registered with the shutdown manager as it is created.
func initDependencies(ctx context.Context, cfg *config.Config, shutdownMgr *shutdown.Manager, logger *zap.Logger) (*Dependencies, error) {
	healthChecks := make(map[string]observability.Pinger)

	store, err := initStorage(ctx, cfg, shutdownMgr, healthChecks, logger)
	if err != nil {
		return nil, err
	}

	var locker ports.RunLocker
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisLocker := redis.NewRunLocker(client, logger)
		shutdownMgr.RegisterCloser("redis", redisLocker)
		healthChecks["redis"] = redisLocker
		locker = redisLocker
		logger.Info("Using redis run lock", zap.String("addr", cfg.Redis.Addr))
	} else {
		locker = memory.NewRunLocker()
		logger.Warn("REDIS_ADDR not set, using in-process run lock (single instance only)")
	}

	var publisher ports.SettlementPublisher = kafka.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaCfg := kafka.Config{
			Brokers:     cfg.Kafka.Brokers,
			Topic:       cfg.Kafka.SettlementTopic,
			MaxAttempts: cfg.Kafka.MaxAttempts,
			Timeout:     resilience.DefaultTimeoutConfig().Publish,
		}
		publisher = kafka.NewSettlementPublisher(kafka.NewWriter(kafkaCfg), kafkaCfg, logger)
		shutdownMgr.RegisterCloser("kafka", publisher)
		logger.Info("Publishing settlement events",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.SettlementTopic),
		)
	}

	guard := stateguard.New()
	engine := settlement.NewEngine(store.db, store.events, store.settlements, publisher, commission.NewResolver(), logger)

	taxRate := cfg.Settlement.DefaultTaxRate
	minPayout := cfg.Settlement.DefaultMinPayout
	batchSvc := batch.NewService(
		store.db,
		engine,
		store.events,
		store.ruleSets,
		store.profiles,
		store.batches,
		locker,
		guard,
		batch.Config{
			Location:          cfg.Settlement.Location(),
			EngineVersion:     cfg.Settlement.EngineVersion,
			PreventDuplicates: cfg.Settlement.PreventDuplicates,
			CompareWithV1:     cfg.Settlement.CompareWithV1,
			LockTTL:           cfg.Settlement.RunLockTTL,
			DefaultCurrency:   cfg.Settlement.DefaultCurrency,
			DefaultTaxRate:    &taxRate,
			DefaultMinPayout:  &minPayout,
			DefaultHoldDays:   cfg.Settlement.DefaultHoldDays,
		},
		logger,
	)

	transitionSvc := transition.NewService(store.db, store.relays, store.batches, guard, logger)

	return &Dependencies{
		batchService:      batchSvc,
		transitionService: transitionSvc,
		healthChecks:      healthChecks,
	}, nil
}

// initStorage builds the repositories for the configured backend
func initStorage(ctx context.Context, cfg *config.Config, shutdownMgr *shutdown.Manager, healthChecks map[string]observability.Pinger, logger *zap.Logger) (*storage, error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("Using in-memory storage, data is lost on restart")
		mem := memory.NewStore()
		if cfg.SeedDemoData {
			loc := cfg.Settlement.Location()
			day := timeutil.Yesterday(timeutil.Now(), loc)
			seed.Demo(day, loc).Load(mem)
			logger.Info("Loaded demo settlement data", zap.String("day", day.Format(timeutil.DateLayout)))
		}
		return &storage{
			db:          memory.NewTxManager(),
			events:      memory.NewEventRepository(mem),
			settlements: memory.NewSettlementRepository(mem),
			ruleSets:    memory.NewRuleSetRepository(mem),
			profiles:    memory.NewPartyProfileRepository(mem),
			relays:      memory.NewOrderRelayRepository(mem),
			batches:     memory.NewSettlementBatchRepository(mem),
		}, nil
	}

	dbCfg := database.DefaultPostgreSQLConfig(cfg.Database.ConnectionString())
	dbCfg.MaxConns = cfg.Database.MaxConns
	dbCfg.MinConns = cfg.Database.MinConns
	dbCfg.StatementTimeout = cfg.Database.StatementTimeout

	dbAdapter, err := database.NewPostgreSQLAdapter(ctx, dbCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize database adapter: %w", err)
	}
	shutdownMgr.RegisterNoErr("database", dbAdapter.Close)
	healthChecks["database"] = dbAdapter

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	dbAdapter.StartPoolMonitoring(monitorCtx, 30*time.Second)
	shutdownMgr.RegisterNoErr("pool-monitor", stopMonitor)

	logger.Info("Database connection established",
		zap.String("database", cfg.Database.Database),
		zap.String("host", cfg.Database.Host),
	)

	executor := dbAdapter.Executor()
	return &storage{
		db:          executor,
		events:      postgres.NewEventRepository(executor),
		settlements: postgres.NewSettlementRepository(executor),
		ruleSets:    postgres.NewRuleSetRepository(executor),
		profiles:    postgres.NewPartyProfileRepository(executor),
		relays:      postgres.NewOrderRelayRepository(executor),
		batches:     postgres.NewSettlementBatchRepository(executor),
	}, nil
}
