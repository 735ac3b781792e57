// Package model builds queryable access models from inventory snapshots by
// flattening each resource's IAM policy into (resource, role, member) rows.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sentinelops/sentinel/internal/jobs"
	"github.com/sentinelops/sentinel/internal/rpc"
	"github.com/sentinelops/sentinel/internal/services"
	"github.com/sentinelops/sentinel/internal/storage"
)

// Store is the slice of the datastore the model service uses.
type Store interface {
	CreateModel(ctx context.Context, name, inventoryID string) (*storage.Model, error)
	SetModelStatus(ctx context.Context, handle, status, message string) error
	GetModel(ctx context.Context, handle string) (*storage.Model, error)
	ListModels(ctx context.Context, limit int) ([]*storage.Model, error)
	DeleteModel(ctx context.Context, handle string) error
	DeleteBindings(ctx context.Context, handle string) error
	InsertBindings(ctx context.Context, bindings []*storage.Binding) error
	GetInventoryIndex(ctx context.Context, id string) (*storage.InventoryIndex, error)
	ResourcesForInventory(ctx context.Context, inventoryID string) ([]*storage.Resource, error)
}

// Service implements the model service.
type Service struct {
	store  Store
	runner *jobs.Runner
}

var _ services.Service = (*Service)(nil)
var _ rpc.ModelServer = (*Service)(nil)

// New creates the model service.
func New(store Store, runner *jobs.Runner) *Service {
	return &Service{store: store, runner: runner}
}

// Name returns the configured service name.
func (s *Service) Name() string { return "model" }

func (s *Service) Initialize(ctx context.Context) error { return nil }

// RegisterRPC attaches the model RPC surface to the dispatcher.
func (s *Service) RegisterRPC(reg grpc.ServiceRegistrar) {
	rpc.RegisterModelServer(reg, s)
}

func (s *Service) Start(ctx context.Context) error { return nil }

func (s *Service) Stop(ctx context.Context) error { return nil }

func (s *Service) Health(ctx context.Context) (*services.HealthStatus, error) {
	return &services.HealthStatus{Status: services.HealthHealthy}, nil
}

// CreateModel validates the source snapshot and schedules the build.
func (s *Service) CreateModel(ctx context.Context, req *rpc.CreateModelRequest) (*rpc.CreateModelResponse, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "model name is required")
	}

	idx, err := s.store.GetInventoryIndex(ctx, req.InventoryID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "inventory %s not found", req.InventoryID)
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get snapshot: %v", err)
	}
	// Only complete snapshots produce a coherent model.
	if idx.Status != storage.InventorySuccess && idx.Status != storage.InventoryPartialSuccess {
		return nil, status.Errorf(codes.FailedPrecondition,
			"inventory %s is %s, want SUCCESS or PARTIAL_SUCCESS", req.InventoryID, idx.Status)
	}

	m, err := s.store.CreateModel(ctx, req.Name, req.InventoryID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "create model: %v", err)
	}

	jobID := s.runner.Submit("model-build", func(ctx context.Context) error {
		return s.build(ctx, m.Handle, m.InventoryID)
	})

	slog.Info("model build scheduled",
		"handle", m.Handle, "name", m.Name, "inventory_id", m.InventoryID, "job_id", jobID)

	return &rpc.CreateModelResponse{
		Model:     toModelInfo(m),
		Operation: &rpc.Operation{ID: string(jobID), State: jobs.StatePending.String()},
	}, nil
}

// GetModel fetches one model.
func (s *Service) GetModel(ctx context.Context, req *rpc.GetModelRequest) (*rpc.ModelInfo, error) {
	m, err := s.store.GetModel(ctx, req.Handle)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "model %s not found", req.Handle)
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get model: %v", err)
	}
	return toModelInfo(m), nil
}

// ListModels lists models newest first.
func (s *Service) ListModels(ctx context.Context, req *rpc.ListModelsRequest) (*rpc.ListModelsResponse, error) {
	models, err := s.store.ListModels(ctx, req.Limit)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list models: %v", err)
	}
	resp := &rpc.ListModelsResponse{Models: make([]*rpc.ModelInfo, 0, len(models))}
	for _, m := range models {
		resp.Models = append(resp.Models, toModelInfo(m))
	}
	return resp, nil
}

// DeleteModel removes one model and its bindings.
func (s *Service) DeleteModel(ctx context.Context, req *rpc.DeleteModelRequest) (*rpc.Empty, error) {
	err := s.store.DeleteModel(ctx, req.Handle)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "model %s not found", req.Handle)
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "delete model: %v", err)
	}
	return &rpc.Empty{}, nil
}

// build flattens the snapshot's IAM policies into bindings. A malformed
// policy skips the resource; a storage failure marks the model BROKEN.
func (s *Service) build(ctx context.Context, handle, inventoryID string) error {
	if err := s.store.SetModelStatus(ctx, handle, storage.ModelBuilding, ""); err != nil {
		return fmt.Errorf("mark building: %w", err)
	}

	// A retry re-runs the whole build; drop whatever a previous attempt
	// persisted so the insert below cannot duplicate rows.
	if err := s.store.DeleteBindings(ctx, handle); err != nil {
		s.store.SetModelStatus(ctx, handle, storage.ModelBroken, err.Error())
		return fmt.Errorf("clear bindings: %w", err)
	}

	resources, err := s.store.ResourcesForInventory(ctx, inventoryID)
	if err != nil {
		s.store.SetModelStatus(ctx, handle, storage.ModelBroken, err.Error())
		return fmt.Errorf("load resources: %w", err)
	}

	var bindings []*storage.Binding
	for _, res := range resources {
		rows, err := flattenPolicy(handle, res)
		if err != nil {
			slog.Warn("skipping malformed iam policy",
				"handle", handle, "resource_id", res.ResourceID, "error", err)
			continue
		}
		bindings = append(bindings, rows...)
	}

	if err := s.store.InsertBindings(ctx, bindings); err != nil {
		s.store.SetModelStatus(ctx, handle, storage.ModelBroken, err.Error())
		return fmt.Errorf("persist bindings: %w", err)
	}

	if err := s.store.SetModelStatus(ctx, handle, storage.ModelSuccess, ""); err != nil {
		return fmt.Errorf("mark success: %w", err)
	}

	slog.Info("model build finished",
		"handle", handle, "inventory_id", inventoryID, "bindings", len(bindings))
	return nil
}

// iamPolicy is the stored policy shape.
type iamPolicy struct {
	Bindings []struct {
		Role    string   `json:"role"`
		Members []string `json:"members"`
	} `json:"bindings"`
}

func flattenPolicy(handle string, res *storage.Resource) ([]*storage.Binding, error) {
	if len(res.IAMPolicy) == 0 || string(res.IAMPolicy) == "null" {
		return nil, nil
	}
	var policy iamPolicy
	if err := json.Unmarshal(res.IAMPolicy, &policy); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	var out []*storage.Binding
	for _, b := range policy.Bindings {
		if b.Role == "" {
			continue
		}
		for _, member := range b.Members {
			out = append(out, &storage.Binding{
				ModelHandle:  handle,
				ResourceID:   res.ResourceID,
				ResourceType: res.ResourceType,
				Role:         b.Role,
				Member:       member,
			})
		}
	}
	return out, nil
}

func toModelInfo(m *storage.Model) *rpc.ModelInfo {
	return &rpc.ModelInfo{
		Handle:      m.Handle,
		Name:        m.Name,
		InventoryID: m.InventoryID,
		Status:      m.Status,
		Message:     m.Message,
		CreatedAt:   m.CreatedAt,
	}
}
