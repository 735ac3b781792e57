// Package scanner evaluates policy rules against a built access model and
// records the violations it finds.
package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sentinelops/sentinel/internal/config"
	"github.com/sentinelops/sentinel/internal/jobs"
	"github.com/sentinelops/sentinel/internal/rpc"
	"github.com/sentinelops/sentinel/internal/services"
	"github.com/sentinelops/sentinel/internal/storage"
)

// Store is the slice of the datastore the scanner uses.
type Store interface {
	GetModel(ctx context.Context, handle string) (*storage.Model, error)
	BindingsForModel(ctx context.Context, handle string) ([]*storage.Binding, error)
	CreateScan(ctx context.Context, modelHandle string) (*storage.Scan, error)
	SetScanStatus(ctx context.Context, id, status string) error
	CompleteScan(ctx context.Context, id, status string, violationCount int64) error
	GetScan(ctx context.Context, id string) (*storage.Scan, error)
	ListScans(ctx context.Context, limit int) ([]*storage.Scan, error)
	DeleteViolations(ctx context.Context, scanID string) error
	InsertViolations(ctx context.Context, violations []*storage.Violation) error
	ListViolations(ctx context.Context, scanID string) ([]*storage.Violation, error)
}

// Service implements the scanner service.
type Service struct {
	cfg    config.ScannerConfig
	store  Store
	runner *jobs.Runner
	rules  []Rule
}

var _ services.Service = (*Service)(nil)
var _ rpc.ScannerServer = (*Service)(nil)

// New creates the scanner service.
func New(cfg config.ScannerConfig, store Store, runner *jobs.Runner) *Service {
	return &Service{cfg: cfg, store: store, runner: runner}
}

// Name returns the configured service name.
func (s *Service) Name() string { return "scanner" }

// Initialize loads the rules file. A missing or invalid rules file is fatal:
// a scanner with no rules silently finds nothing.
func (s *Service) Initialize(ctx context.Context) error {
	if s.cfg.RulesPath == "" {
		return fmt.Errorf("scanner: rules_path is required")
	}
	rules, err := LoadRules(s.cfg.RulesPath)
	if err != nil {
		return fmt.Errorf("scanner: %w", err)
	}
	s.rules = rules
	slog.Info("scanner rules loaded", "path", s.cfg.RulesPath, "rules", len(rules))
	return nil
}

// RegisterRPC attaches the scanner RPC surface to the dispatcher.
func (s *Service) RegisterRPC(reg grpc.ServiceRegistrar) {
	rpc.RegisterScannerServer(reg, s)
}

func (s *Service) Start(ctx context.Context) error { return nil }

func (s *Service) Stop(ctx context.Context) error { return nil }

func (s *Service) Health(ctx context.Context) (*services.HealthStatus, error) {
	if len(s.rules) == 0 {
		return &services.HealthStatus{
			Status:  services.HealthUnhealthy,
			Message: "no rules loaded",
		}, nil
	}
	return &services.HealthStatus{
		Status:  services.HealthHealthy,
		Details: map[string]string{"rules": fmt.Sprintf("%d", len(s.rules))},
	}, nil
}

// RunScan validates the model and schedules the evaluation.
func (s *Service) RunScan(ctx context.Context, req *rpc.RunScanRequest) (*rpc.RunScanResponse, error) {
	m, err := s.store.GetModel(ctx, req.ModelHandle)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "model %s not found", req.ModelHandle)
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get model: %v", err)
	}
	if m.Status != storage.ModelSuccess {
		return nil, status.Errorf(codes.FailedPrecondition,
			"model %s is %s, want SUCCESS", req.ModelHandle, m.Status)
	}

	scan, err := s.store.CreateScan(ctx, m.Handle)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "create scan: %v", err)
	}

	jobID := s.runner.Submit("scan", func(ctx context.Context) error {
		return s.evaluate(ctx, scan.ID, m.Handle)
	})

	slog.Info("scan scheduled", "scan_id", scan.ID, "model", m.Handle, "job_id", jobID)

	return &rpc.RunScanResponse{
		Scan:      toScanInfo(scan),
		Operation: &rpc.Operation{ID: string(jobID), State: jobs.StatePending.String()},
	}, nil
}

// GetScan fetches one scan.
func (s *Service) GetScan(ctx context.Context, req *rpc.GetScanRequest) (*rpc.ScanInfo, error) {
	scan, err := s.store.GetScan(ctx, req.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "scan %s not found", req.ID)
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get scan: %v", err)
	}
	return toScanInfo(scan), nil
}

// ListScans lists scans newest first.
func (s *Service) ListScans(ctx context.Context, req *rpc.ListScansRequest) (*rpc.ListScansResponse, error) {
	scans, err := s.store.ListScans(ctx, req.Limit)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list scans: %v", err)
	}
	resp := &rpc.ListScansResponse{Scans: make([]*rpc.ScanInfo, 0, len(scans))}
	for _, scan := range scans {
		resp.Scans = append(resp.Scans, toScanInfo(scan))
	}
	return resp, nil
}

// ListViolations lists the violations found by a scan.
func (s *Service) ListViolations(ctx context.Context, req *rpc.ListViolationsRequest) (*rpc.ListViolationsResponse, error) {
	if _, err := s.store.GetScan(ctx, req.ScanID); errors.Is(err, storage.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "scan %s not found", req.ScanID)
	} else if err != nil {
		return nil, status.Errorf(codes.Internal, "get scan: %v", err)
	}

	violations, err := s.store.ListViolations(ctx, req.ScanID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list violations: %v", err)
	}
	resp := &rpc.ListViolationsResponse{Violations: make([]*rpc.ViolationInfo, 0, len(violations))}
	for _, v := range violations {
		resp.Violations = append(resp.Violations, &rpc.ViolationInfo{
			ID:           v.ID,
			ScanID:       v.ScanID,
			ResourceID:   v.ResourceID,
			ResourceType: v.ResourceType,
			RuleName:     v.RuleName,
			Severity:     v.Severity,
			Data:         json.RawMessage(v.Data),
			CreatedAt:    v.CreatedAt,
		})
	}
	return resp, nil
}

// evaluate runs every rule over every binding of the model.
func (s *Service) evaluate(ctx context.Context, scanID, modelHandle string) error {
	if err := s.store.SetScanStatus(ctx, scanID, storage.ScanInProgress); err != nil {
		return fmt.Errorf("mark in progress: %w", err)
	}

	// A retry re-runs the whole evaluation; drop whatever a previous
	// attempt persisted so the insert below cannot duplicate rows.
	if err := s.store.DeleteViolations(ctx, scanID); err != nil {
		s.store.CompleteScan(ctx, scanID, storage.ScanFailure, 0)
		return fmt.Errorf("clear violations: %w", err)
	}

	bindings, err := s.store.BindingsForModel(ctx, modelHandle)
	if err != nil {
		s.store.CompleteScan(ctx, scanID, storage.ScanFailure, 0)
		return fmt.Errorf("load bindings: %w", err)
	}

	var violations []*storage.Violation
	for _, b := range bindings {
		for i := range s.rules {
			rule := &s.rules[i]
			if !rule.Matches(b.ResourceType, b.Role, b.Member) {
				continue
			}
			data, _ := json.Marshal(map[string]string{
				"role":   b.Role,
				"member": b.Member,
			})
			violations = append(violations, &storage.Violation{
				ScanID:       scanID,
				ResourceID:   b.ResourceID,
				ResourceType: b.ResourceType,
				RuleName:     rule.Name,
				Severity:     rule.Severity,
				Data:         data,
			})
		}
	}

	if err := s.store.InsertViolations(ctx, violations); err != nil {
		s.store.CompleteScan(ctx, scanID, storage.ScanFailure, 0)
		return fmt.Errorf("persist violations: %w", err)
	}

	if err := s.store.CompleteScan(ctx, scanID, storage.ScanSuccess, int64(len(violations))); err != nil {
		return fmt.Errorf("complete scan: %w", err)
	}

	slog.Info("scan finished",
		"scan_id", scanID, "model", modelHandle,
		"bindings", len(bindings), "violations", len(violations))
	return nil
}

func toScanInfo(scan *storage.Scan) *rpc.ScanInfo {
	return &rpc.ScanInfo{
		ID:             scan.ID,
		ModelHandle:    scan.ModelHandle,
		Status:         scan.Status,
		ViolationCount: scan.ViolationCount,
		StartedAt:      scan.StartedAt,
		CompletedAt:    scan.CompletedAt,
	}
}
