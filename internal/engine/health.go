package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServiceName: имя сервиса в grpc.health.v1
const HealthServiceName = "governance"

// HealthReporter переключает статус gRPC health по доступности хранилища.
type HealthReporter struct {
	server   *health.Server
	probe    func(ctx context.Context) error
	interval time.Duration
	logger   *zap.Logger
}

func NewHealthReporter(probe func(ctx context.Context) error, interval time.Duration, logger *zap.Logger) *HealthReporter {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &HealthReporter{
		server:   health.NewServer(),
		probe:    probe,
		interval: interval,
		logger:   logger.Named("health"),
	}
}

// Server: для healthpb.RegisterHealthServer
func (h *HealthReporter) Server() *health.Server {
	return h.server
}

// Check выполняет одну проверку и выставляет статус
func (h *HealthReporter) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if h.probe != nil {
		pctx, cancel := context.WithTimeout(ctx, h.interval)
		err := h.probe(pctx)
		cancel()
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			h.logger.Warn("storage probe failed", zap.Error(err))
		}
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(HealthServiceName, status)
	return status
}

// Run блокирует до отмены ctx, затем переводит сервер в NOT_SERVING
func (h *HealthReporter) Run(ctx context.Context) {
	h.Check(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}
