// Package services defines the lifecycle contract for sentinel's service
// units and the registry that activates the configured subset of them.
package services

import (
	"context"

	"google.golang.org/grpc"
)

// Service is one independently schedulable unit (inventory, model, scanner,
// notifier, explain). The supervisor drives Initialize → RegisterRPC →
// Start, and Stop on shutdown.
type Service interface {
	// Name returns the service name as it appears in configuration.
	Name() string

	// Initialize prepares the service (connections, rule files). It runs
	// before the dispatcher accepts traffic.
	Initialize(ctx context.Context) error

	// RegisterRPC attaches the service's RPC surface to the dispatcher.
	RegisterRPC(s grpc.ServiceRegistrar)

	// Start begins background work, if any.
	Start(ctx context.Context) error

	// Stop gracefully shuts the service down.
	Stop(ctx context.Context) error

	// Health reports the service health status.
	Health(ctx context.Context) (*HealthStatus, error)
}

// HealthStatus reports service health.
type HealthStatus struct {
	Status  HealthState
	Message string
	Details map[string]string
}

// HealthState is a coarse health classification.
type HealthState int

const (
	HealthUnknown HealthState = iota
	HealthHealthy
	HealthDegraded
	HealthUnhealthy
)

func (h HealthState) String() string {
	switch h {
	case HealthHealthy:
		return "HEALTHY"
	case HealthDegraded:
		return "DEGRADED"
	case HealthUnhealthy:
		return "UNHEALTHY"
	default:
		return "UNKNOWN"
	}
}
