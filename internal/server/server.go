// Package server runs the request dispatcher: a single gRPC endpoint that
// fronts every activated service, plus the HTTP debug surface.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/sentinelops/sentinel/internal/services"
)

// Datastore is the dispatcher's view of the storage layer.
type Datastore interface {
	Ping(ctx context.Context) error
	HealthDetails() (details map[string]string, degraded bool)
}

// Server is the gRPC dispatcher.
type Server struct {
	listen     string
	registry   *services.Registry
	store      Datastore
	metrics    *Metrics
	grpcServer *grpc.Server
	listener   net.Listener
	healthSrv  *health.Server
	cancel     context.CancelFunc
}

// NewServer creates the dispatcher. store and metrics may be nil in tests.
func NewServer(listen string, registry *services.Registry, store Datastore, metrics *Metrics) *Server {
	return &Server{
		listen:   listen,
		registry: registry,
		store:    store,
		metrics:  metrics,
	}
}

// Start binds the listener, registers every service, and begins serving.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.listen, err)
	}
	s.listener = listener

	interceptors := []grpc.UnaryServerInterceptor{loggingInterceptor}
	if s.metrics != nil {
		interceptors = append(interceptors, s.metrics.UnaryInterceptor())
	}
	s.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))

	s.registry.RegisterAll(s.grpcServer)

	s.healthSrv = health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.healthSrv)

	checkerCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.healthChecker(checkerCtx)

	go func() {
		slog.Info("dispatcher listening", "addr", listener.Addr().String(), "services", s.registry.Names())
		if err := s.grpcServer.Serve(listener); err != nil {
			slog.Error("dispatcher serve error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, useful with port 0.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.listen
}

// Stop drains in-flight RPCs and shuts the dispatcher down.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.grpcServer != nil {
		done := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.grpcServer.Stop()
		}
	}
	return nil
}

// healthChecker periodically aggregates datastore and service health into
// the gRPC health service. The empty service name carries the overall
// status; each service also reports under its own name.
func (s *Server) healthChecker(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	s.updateHealth(ctx)
	for {
		select {
		case <-ctx.Done():
			s.healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
			return
		case <-ticker.C:
			s.updateHealth(ctx)
		}
	}
}

func (s *Server) updateHealth(ctx context.Context) {
	overall := grpc_health_v1.HealthCheckResponse_SERVING

	if s.store != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := s.store.Ping(pingCtx)
		cancel()
		if err != nil {
			slog.Warn("datastore health check failed", "error", err)
			overall = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
	}

	for name, hs := range s.registry.Health(ctx) {
		st := grpc_health_v1.HealthCheckResponse_SERVING
		if hs.Status != services.HealthHealthy && hs.Status != services.HealthDegraded {
			st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			overall = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			slog.Warn("service unhealthy", "service", name, "message", hs.Message)
		}
		s.healthSrv.SetServingStatus(name, st)
	}

	s.healthSrv.SetServingStatus("", overall)
}
