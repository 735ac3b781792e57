package services

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
)

// Registry holds the activated services in start order.
type Registry struct {
	services []Service
	byName   map[string]Service
	started  []Service
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Service)}
}

// Add appends a service. Duplicate names are a wiring bug.
func (r *Registry) Add(svc Service) error {
	name := svc.Name()
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("service %q registered twice", name)
	}
	r.byName[name] = svc
	r.services = append(r.services, svc)
	return nil
}

// Get returns a service by name.
func (r *Registry) Get(name string) (Service, bool) {
	svc, ok := r.byName[name]
	return svc, ok
}

// Names returns the activated service names in start order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.services))
	for i, svc := range r.services {
		names[i] = svc.Name()
	}
	return names
}

// InitializeAll initializes services in order, failing fast on the first
// error.
func (r *Registry) InitializeAll(ctx context.Context) error {
	for _, svc := range r.services {
		if err := svc.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize service %s: %w", svc.Name(), err)
		}
		slog.Info("service initialized", "service", svc.Name())
	}
	return nil
}

// RegisterAll attaches every service's RPC surface to the dispatcher.
func (r *Registry) RegisterAll(s grpc.ServiceRegistrar) {
	for _, svc := range r.services {
		svc.RegisterRPC(s)
		slog.Info("service registered", "service", svc.Name())
	}
}

// StartAll starts services in order. On failure the already-started
// services are stopped before returning.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, svc := range r.services {
		if err := svc.Start(ctx); err != nil {
			r.StopAll(ctx)
			return fmt.Errorf("start service %s: %w", svc.Name(), err)
		}
		r.started = append(r.started, svc)
		slog.Info("service started", "service", svc.Name())
	}
	return nil
}

// StopAll stops started services in reverse order. Errors are logged, not
// returned: shutdown keeps going.
func (r *Registry) StopAll(ctx context.Context) {
	for i := len(r.started) - 1; i >= 0; i-- {
		svc := r.started[i]
		if err := svc.Stop(ctx); err != nil {
			slog.Error("service stop failed", "service", svc.Name(), "error", err)
			continue
		}
		slog.Info("service stopped", "service", svc.Name())
	}
	r.started = nil
}

// Health polls every service and returns the per-service statuses.
func (r *Registry) Health(ctx context.Context) map[string]*HealthStatus {
	out := make(map[string]*HealthStatus, len(r.services))
	for _, svc := range r.services {
		status, err := svc.Health(ctx)
		if err != nil {
			status = &HealthStatus{Status: HealthUnhealthy, Message: err.Error()}
		}
		out[svc.Name()] = status
	}
	return out
}
