package handler

import (
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/stock-sync/internal/core/domain"
)

// SyncServiceName is the service name probed for change-feed health.
const SyncServiceName = "stocksync.ChangeFeed"

// HealthReporter publishes the connection state of the change feed through
// the standard gRPC health service.
type HealthReporter struct {
	server *health.Server
	logger zerolog.Logger
}

func NewHealthReporter(logger zerolog.Logger) *HealthReporter {
	r := &HealthReporter{
		server: health.NewServer(),
		logger: logger,
	}
	r.server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	r.server.SetServingStatus(SyncServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return r
}

func (r *HealthReporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, r.server)
}

// Observe is registered as a connection listener.
func (r *HealthReporter) Observe(status domain.ConnectionStatus) {
	serving := ServingStatus(status.State)
	r.server.SetServingStatus(SyncServiceName, serving)
	r.logger.Debug().
		Str("state", string(status.State)).
		Str("serving", serving.String()).
		Msg("health status updated")
}

// Shutdown marks every service NOT_SERVING ahead of a graceful stop.
func (r *HealthReporter) Shutdown() {
	r.server.Shutdown()
}

func ServingStatus(state domain.ConnectionState) healthpb.HealthCheckResponse_ServingStatus {
	if state == domain.ConnectionConnected {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
