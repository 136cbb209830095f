package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/xela07ax/copilot-governance/internal/audit"
	"github.com/xela07ax/copilot-governance/internal/console/handler"
	"github.com/xela07ax/copilot-governance/internal/console/server"
	"github.com/xela07ax/copilot-governance/internal/console/service"
	"github.com/xela07ax/copilot-governance/internal/engine"
	"github.com/xela07ax/copilot-governance/internal/infra"
	"github.com/xela07ax/copilot-governance/internal/infra/auth"
	"github.com/xela07ax/copilot-governance/internal/ledger"
	"github.com/xela07ax/copilot-governance/internal/metrics"
	"github.com/xela07ax/copilot-governance/internal/notify"
	"github.com/xela07ax/copilot-governance/internal/policy"
	"github.com/xela07ax/copilot-governance/internal/repository/postgres"
)

// backend: то, что нужно от хранилища сервису целиком
type backend interface {
	ledger.StatusStore
	ledger.Storage
	audit.Storage
	service.AuditLogProvider
}

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Контекст для управления жизненным циклом фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Снимок политики из конфига; в режиме postgres база главнее
	initial, err := policy.NewSnapshot(cfg.Policy.Review)
	if err != nil {
		logger.Fatal("invalid review policy in config", zap.Error(err))
	}

	// 3. Хранилище
	var (
		store    backend
		pgStore  *postgres.Store
		holder   *policy.Holder
		probe    func(ctx context.Context) error
		policyDB service.PolicyRepository
	)
	switch cfg.Storage.Driver {
	case "postgres":
		db, err := postgres.Open(appCtx, cfg.Database)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		if cfg.Database.Migrate {
			if err := postgres.Migrate(appCtx, db); err != nil {
				logger.Fatal("failed to apply migrations", zap.Error(err))
			}
		}
		pgStore = postgres.NewStore(db)
		defer func() { _ = pgStore.Close() }()
		store, probe, policyDB = pgStore, pgStore.Ping, pgStore
		holder = policy.NewHolder(initial, pgStore, logger)
	default:
		mem := struct {
			*ledger.InMemoryStore
			*audit.MemoryStorage
		}{ledger.NewInMemoryStore(), audit.NewMemoryStorage(cfg.Audit.BufferSize)}
		store = mem
		holder = policy.NewHolder(initial, nil, logger)
		logger.Warn("using in-memory storage: reviews are lost on restart")
	}

	// 4. Redis: карантин доменов, сигналы политики, решения ревьюеров
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()

	// 5. Метрики и надежность
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := engine.NewMetrics(reg)
	rw := engine.NewReliabilityWrapper(engine.ReliabilityConfig{
		Name:          "governance-backend",
		RateLimit:     cfg.Engine.RateLimit,
		Burst:         cfg.Engine.Burst,
		Attempts:      cfg.Engine.Attempts,
		RetryDelay:    cfg.Engine.RetryDelay,
		CallTimeout:   cfg.Engine.CallTimeout,
		CBMaxRequests: cfg.Engine.CBMaxRequests,
		CBInterval:    cfg.Engine.CBInterval,
		CBTimeout:     cfg.Engine.CBTimeout,
		CBFailures:    cfg.Engine.CBFailures,
	}, m)

	// 6. Control Plane: карантин и политика
	quarantine := engine.NewDomainQuarantine(rdb, logger)
	if err := engine.WarmupSet(appCtx, rdb, logger, cfg.Policy.QuarantinedDomains,
		infra.RedisKeyQuarantineDomains, infra.RedisKeyLockQuarantineWarmup, quarantine.Preload); err != nil {
		logger.Warn("quarantine warm-up failed", zap.Error(err))
	}
	if err := quarantine.Init(appCtx); err != nil {
		logger.Fatal("failed to init domain quarantine", zap.Error(err))
	}
	go quarantine.Listen(appCtx)

	publisher := notify.NewPublisher(rdb, logger)
	var listener *engine.PolicyListener
	var refresher service.PolicyRefresher
	if pgStore != nil {
		listener = engine.NewPolicyListener(holder, rdb, rw, cfg.Policy.RefreshInterval, logger)
		if err := listener.Refresh(appCtx); err != nil {
			logger.Warn("stored review policy not loaded, using config policy", zap.Error(err))
		}
		go listener.Run(appCtx)
		refresher = listener
	}

	// 7. Аудит: пачками в хранилище
	trail := audit.NewTrail(store, audit.Config{
		BufferSize:    cfg.Audit.BufferSize,
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: cfg.Audit.FlushInterval,
	}, logger)
	trail.Start()
	go m.WatchAuditBuffer(appCtx, trail.Pending, 5*time.Second)

	// 8. Core
	agg, err := metrics.NewAggregator(store, metrics.CacheConfig{
		TTL:        cfg.Cache.MetricsTTL,
		MaxEntries: cfg.Cache.MetricsMaxEntries,
	}, reg, logger)
	if err != nil {
		logger.Fatal("failed to init metrics aggregator", zap.Error(err))
	}
	defer agg.Close()

	gov := engine.NewGovernor(engine.Deps{
		Ledger:      ledger.New(store, store, holder, logger),
		Policies:    holder,
		Quarantine:  quarantine,
		Aggregator:  agg,
		Notifier:    publisher,
		Auditor:     trail,
		Reliability: rw,
		Metrics:     m,
		Logger:      logger,
	})

	// 9. HTTP API
	var validator auth.TokenValidator
	if !cfg.Auth.Disabled {
		pub, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
		if err != nil {
			logger.Fatal("failed to parse auth public key", zap.Error(err))
		}
		validator = auth.NewBaseValidator(pub, cfg.Auth.Issuer)
	}

	api := server.NewConsoleServer(logger, validator, reg, server.Handlers{
		Worker:     handler.NewWorkerHandler(gov),
		Review:     handler.NewReviewHandler(gov),
		Policy:     handler.NewPolicyHandler(service.NewPolicyService(policyDB, holder, publisher, refresher, trail, logger)),
		Quarantine: handler.NewQuarantineHandler(service.NewQuarantineService(quarantine, trail, logger)),
		Audit:      handler.NewAuditHandler(service.NewAuditService(store)),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 10. gRPC health (статус по доступности базы)
	var grpcSrv *grpc.Server
	if cfg.GRPC.Port > 0 {
		hr := engine.NewHealthReporter(probe, cfg.GRPC.HealthInterval, logger)
		grpcSrv = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcSrv, hr.Server())
		go hr.Run(appCtx)

		go func() {
			lis, err := net.Listen("tcp", net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.GRPC.Port)))
			if err != nil {
				logger.Fatal("failed to listen gRPC", zap.Error(err))
			}
			logger.Info("gRPC health server started", zap.Int("port", cfg.GRPC.Port))
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Error("gRPC server stopped", zap.Error(err))
			}
		}()
	}

	// 11. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("governance API started", zap.String("addr", srv.Addr), zap.String("storage", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("governance API stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	cancel()
	// Аудит дописываем после того, как перестали принимать запросы
	trail.Stop()
	logger.Info("governance API exited properly")
}
