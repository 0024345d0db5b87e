// Package server exposes the standard gRPC health service so orchestrators
// and load balancers can probe the chat.
package server

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name probes can ask about besides the empty overall name.
const ServiceName = "chat-core"

// HealthServer reports SERVING while its Run is alive, NOT_SERVING otherwise.
// It runs as a supervised worker so it follows the lifetime of the chat.
type HealthServer struct {
	log    *slog.Logger
	health *health.Server
}

func NewHealthServer(log *slog.Logger) *HealthServer {
	h := &HealthServer{log: log, health: health.NewServer()}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register mounts the health service on s.
func (h *HealthServer) Register(s grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(s, h.health)
}

func (h *HealthServer) Run(ctx context.Context) error {
	h.set(healthpb.HealthCheckResponse_SERVING)
	h.log.Debug("Health reported as serving")
	<-ctx.Done()
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	h.log.Debug("Context done, health reported as not serving")
	return nil
}

// Shutdown makes every status NOT_SERVING for good.
func (h *HealthServer) Shutdown() {
	h.health.Shutdown()
}

func (h *HealthServer) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
}
