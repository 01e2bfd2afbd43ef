// Package health publishes service readiness over the standard gRPC health
// protocol. A background poller keeps the status in step with the database.
package health

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name clients pass in HealthCheckRequest.
const ServiceName = "devvault.api"

// Checker reports whether the service can handle requests.
type Checker interface {
	Check(ctx context.Context) error
}

// Server wraps grpc's health server. Until the first poll every service is
// NOT_SERVING.
type Server struct {
	hs      *health.Server
	checker Checker
	logger  *slog.Logger
	timeout time.Duration
}

// New creates a Server. A nil checker is always ready.
func New(checker Checker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{hs: hs, checker: checker, logger: logger, timeout: 2 * time.Second}
}

// Register installs the health service on g.
func (s *Server) Register(g *grpc.Server) {
	healthpb.RegisterHealthServer(g, s.hs)
}

// Poll runs one readiness check and publishes the result.
func (s *Server) Poll(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.checker != nil {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := s.checker.Check(cctx)
		cancel()
		if err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.hs.SetServingStatus("", status)
	s.hs.SetServingStatus(ServiceName, status)
	return status
}

// Run polls every interval until ctx ends, then marks everything NOT_SERVING
// so clients drain before the listener closes.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s.Poll(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.hs.Shutdown()
			return
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}
