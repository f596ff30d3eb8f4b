package handler

import (
	"context"
	"time"

	"dataroom-service/pkg/logger"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported by the gRPC health service.
const ServiceName = "dataroom.v1.DataRoom"

// HealthServer publishes dependency health over the standard gRPC health
// protocol for orchestrator probes.
type HealthServer struct {
	srv    *grpchealth.Server
	checks map[string]Check
}

func NewHealthServer(checks map[string]Check) *HealthServer {
	return &HealthServer{srv: grpchealth.NewServer(), checks: checks}
}

func (h *HealthServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

// Refresh runs every check once and updates the serving status.
func (h *HealthServer) Refresh(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	serving := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			logger.GetLogger(ctx).Warn("health check failed", zap.String("check", name), zap.Error(err))
			serving = false
		}
	}
	status := healthpb.HealthCheckResponse_SERVING
	if !serving {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.srv.SetServingStatus("", status)
	h.srv.SetServingStatus(ServiceName, status)
	return serving
}

// Watch refreshes the status every interval until ctx is done.
func (h *HealthServer) Watch(ctx context.Context, interval time.Duration) {
	h.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}

// Shutdown marks every service as not serving.
func (h *HealthServer) Shutdown() {
	h.srv.Shutdown()
}
