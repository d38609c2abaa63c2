// Package health exposes the grpc.health.v1 service, driven by periodic
// store pings.
package health

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the service name reported alongside the overall ("") status.
const ServiceName = "survey-notify"

const pingTimeout = 5 * time.Second

// Pinger is the dependency whose reachability decides serving status.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor pings a dependency on an interval and publishes the result to a
// gRPC health server.
type Monitor struct {
	server   *health.Server
	pinger   Pinger
	interval time.Duration
	logger   *slog.Logger
}

// NewMonitor creates a monitor. The initial status is NOT_SERVING until the
// first check passes.
func NewMonitor(pinger Pinger, interval time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	srv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Monitor{
		server:   srv,
		pinger:   pinger,
		interval: interval,
		logger:   logger,
	}
}

// Register attaches the health service to s.
func (m *Monitor) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, m.server)
}

// Server returns the underlying health server.
func (m *Monitor) Server() *health.Server {
	return m.server
}

// Check pings once and updates the published status. It reports whether the
// dependency is reachable.
func (m *Monitor) Check(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := m.pinger.Ping(pingCtx); err != nil {
		m.logger.Error("Health check failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	m.server.SetServingStatus("", status)
	m.server.SetServingStatus(ServiceName, status)
	return status == healthpb.HealthCheckResponse_SERVING
}

// Start runs an immediate check and then one per interval until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	go func() {
		defer ticker.Stop()
		m.logger.Info("Health monitor started", "interval", m.interval)

		for {
			select {
			case <-ticker.C:
				m.Check(ctx)
			case <-ctx.Done():
				m.logger.Info("Health monitor shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (m *Monitor) Shutdown() {
	m.server.Shutdown()
}
