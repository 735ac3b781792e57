// Package inventory crawls the configured API sources into point-in-time
// resource snapshots.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sentinelops/sentinel/internal/config"
	"github.com/sentinelops/sentinel/internal/gcpapi"
	"github.com/sentinelops/sentinel/internal/jobs"
	"github.com/sentinelops/sentinel/internal/rpc"
	"github.com/sentinelops/sentinel/internal/services"
	"github.com/sentinelops/sentinel/internal/storage"
)

// Store is the slice of the datastore the inventory service uses.
type Store interface {
	CreateInventoryIndex(ctx context.Context) (*storage.InventoryIndex, error)
	SetInventoryStatus(ctx context.Context, id, status, message string) error
	CompleteInventory(ctx context.Context, id, status, message string, resourceCount int64) error
	GetInventoryIndex(ctx context.Context, id string) (*storage.InventoryIndex, error)
	ListInventoryIndexes(ctx context.Context, limit int) ([]*storage.InventoryIndex, error)
	DeleteInventory(ctx context.Context, id string) error
	PurgeInventories(ctx context.Context, cutoff time.Time) (int64, error)
	InsertResources(ctx context.Context, resources []*storage.Resource) error
}

// Service implements the inventory service.
type Service struct {
	cfg    config.InventoryConfig
	api    config.APIConfig
	store  Store
	runner *jobs.Runner

	// repos maps source name to its repository client, built by Initialize.
	repos map[string]*gcpapi.Repository
}

var _ services.Service = (*Service)(nil)
var _ rpc.InventoryServer = (*Service)(nil)

// New creates the inventory service.
func New(cfg config.InventoryConfig, api config.APIConfig, store Store, runner *jobs.Runner) *Service {
	return &Service{
		cfg:    cfg,
		api:    api,
		store:  store,
		runner: runner,
		repos:  make(map[string]*gcpapi.Repository),
	}
}

// Name returns the configured service name.
func (s *Service) Name() string { return "inventory" }

// Initialize builds one repository client per configured source.
func (s *Service) Initialize(ctx context.Context) error {
	if len(s.cfg.Sources) == 0 {
		return fmt.Errorf("inventory: no sources configured")
	}
	for _, src := range s.cfg.Sources {
		opts := []gcpapi.Option{
			gcpapi.WithQuota(s.api.QuotaMaxCalls, s.api.QuotaPeriod),
			gcpapi.WithPageSize(s.api.PageSize),
		}
		if s.api.CredentialsFile != "" {
			opts = append(opts, gcpapi.WithCredentialsFile(s.api.CredentialsFile))
		}
		repo, err := gcpapi.NewRepository(src.BaseURL, opts...)
		if err != nil {
			return fmt.Errorf("inventory: source %s: %w", src.Name, err)
		}
		s.repos[src.Name] = repo
	}
	return nil
}

// RegisterRPC attaches the inventory RPC surface to the dispatcher.
func (s *Service) RegisterRPC(reg grpc.ServiceRegistrar) {
	rpc.RegisterInventoryServer(reg, s)
}

// Start is a no-op. Crawls run on demand through CreateInventory.
func (s *Service) Start(ctx context.Context) error { return nil }

// Stop is a no-op. In-flight crawls drain with the shared job runner.
func (s *Service) Stop(ctx context.Context) error { return nil }

// Health reports healthy as long as sources are wired.
func (s *Service) Health(ctx context.Context) (*services.HealthStatus, error) {
	return &services.HealthStatus{
		Status: services.HealthHealthy,
		Details: map[string]string{
			"sources": fmt.Sprintf("%d", len(s.repos)),
		},
	}, nil
}

// CreateInventory allocates a snapshot and schedules the crawl.
func (s *Service) CreateInventory(ctx context.Context, req *rpc.CreateInventoryRequest) (*rpc.CreateInventoryResponse, error) {
	idx, err := s.store.CreateInventoryIndex(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "create snapshot: %v", err)
	}

	jobID := s.runner.Submit("inventory-crawl", func(ctx context.Context) error {
		return s.crawl(ctx, idx.ID)
	})

	slog.Info("inventory crawl scheduled", "inventory_id", idx.ID, "job_id", jobID)

	return &rpc.CreateInventoryResponse{
		Snapshot:  toSnapshot(idx),
		Operation: &rpc.Operation{ID: string(jobID), State: jobs.StatePending.String()},
	}, nil
}

// GetInventory fetches one snapshot.
func (s *Service) GetInventory(ctx context.Context, req *rpc.GetInventoryRequest) (*rpc.InventorySnapshot, error) {
	idx, err := s.store.GetInventoryIndex(ctx, req.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "inventory %s not found", req.ID)
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get snapshot: %v", err)
	}
	return toSnapshot(idx), nil
}

// ListInventories lists snapshots newest first.
func (s *Service) ListInventories(ctx context.Context, req *rpc.ListInventoriesRequest) (*rpc.ListInventoriesResponse, error) {
	indexes, err := s.store.ListInventoryIndexes(ctx, req.Limit)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list snapshots: %v", err)
	}
	resp := &rpc.ListInventoriesResponse{Snapshots: make([]*rpc.InventorySnapshot, 0, len(indexes))}
	for _, idx := range indexes {
		resp.Snapshots = append(resp.Snapshots, toSnapshot(idx))
	}
	return resp, nil
}

// DeleteInventory removes one snapshot and its resources.
func (s *Service) DeleteInventory(ctx context.Context, req *rpc.DeleteInventoryRequest) (*rpc.Empty, error) {
	err := s.store.DeleteInventory(ctx, req.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "inventory %s not found", req.ID)
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "delete snapshot: %v", err)
	}
	return &rpc.Empty{}, nil
}

// PurgeInventories removes snapshots older than the retention window.
func (s *Service) PurgeInventories(ctx context.Context, req *rpc.PurgeInventoriesRequest) (*rpc.PurgeInventoriesResponse, error) {
	days := req.RetentionDays
	if days <= 0 {
		days = s.cfg.RetentionDays
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	purged, err := s.store.PurgeInventories(ctx, cutoff)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "purge snapshots: %v", err)
	}
	slog.Info("inventories purged", "purged", purged, "retention_days", days)
	return &rpc.PurgeInventoriesResponse{Purged: purged}, nil
}

// crawl walks every configured source and persists the discovered
// resources. Per-source failures degrade the snapshot to PARTIAL_SUCCESS;
// only a fully failed crawl is marked FAILURE.
func (s *Service) crawl(ctx context.Context, inventoryID string) error {
	if err := s.store.SetInventoryStatus(ctx, inventoryID, storage.InventoryInProgress, ""); err != nil {
		return fmt.Errorf("mark in progress: %w", err)
	}

	var (
		total    int64
		failures []string
	)
	for _, src := range s.cfg.Sources {
		repo := s.repos[src.Name]
		n, err := s.crawlSource(ctx, inventoryID, src, repo)
		total += n
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				// The job ctx may already be dead; the terminal write
				// gets its own deadline so the snapshot cannot strand
				// in IN_PROGRESS.
				tctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if cerr := s.store.CompleteInventory(tctx, inventoryID, storage.InventoryTimeout, err.Error(), total); cerr != nil {
					slog.Error("recording snapshot timeout failed",
						"inventory_id", inventoryID, "error", cerr)
				}
				cancel()
				return err
			}
			slog.Warn("source crawl failed", "inventory_id", inventoryID, "source", src.Name, "error", err)
			failures = append(failures, fmt.Sprintf("%s: %v", src.Name, err))
		}
	}

	final := storage.InventorySuccess
	message := ""
	switch {
	case len(failures) == len(s.cfg.Sources):
		final = storage.InventoryFailure
		message = strings.Join(failures, "; ")
	case len(failures) > 0:
		final = storage.InventoryPartialSuccess
		message = strings.Join(failures, "; ")
	}

	if err := s.store.CompleteInventory(ctx, inventoryID, final, message, total); err != nil {
		return fmt.Errorf("complete snapshot: %w", err)
	}

	slog.Info("inventory crawl finished",
		"inventory_id", inventoryID, "status", final, "resources", total)

	if final == storage.InventoryFailure {
		return fmt.Errorf("all sources failed: %s", message)
	}
	return nil
}

func (s *Service) crawlSource(ctx context.Context, inventoryID string, src config.Source, repo *gcpapi.Repository) (int64, error) {
	var total int64
	for _, path := range src.Paths {
		items, err := repo.List(ctx, path, url.Values{}, itemsField(path))
		if err != nil {
			return total, fmt.Errorf("list %s: %w", path, err)
		}

		resources := make([]*storage.Resource, 0, len(items))
		for _, raw := range items {
			res, err := parseResource(inventoryID, src.Name, raw)
			if err != nil {
				slog.Warn("skipping malformed resource",
					"inventory_id", inventoryID, "source", src.Name, "path", path, "error", err)
				continue
			}
			resources = append(resources, res)
		}
		if err := s.store.InsertResources(ctx, resources); err != nil {
			return total, fmt.Errorf("persist %s: %w", path, err)
		}
		total += int64(len(resources))
	}
	return total, nil
}

// itemsField derives the list response field from the collection path,
// following the convention that GET /v1/projects answers {"projects": [...]}.
func itemsField(path string) string {
	trimmed := strings.Trim(path, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	return trimmed
}

// crawledResource is the shape of one listed item. Sources disagree on
// whether the identifier lives in "id" or "name", so both are read.
type crawledResource struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Parent      string          `json:"parent"`
	DisplayName string          `json:"displayName"`
	IAMPolicy   json.RawMessage `json:"iamPolicy"`
}

func parseResource(inventoryID, sourceName string, raw json.RawMessage) (*storage.Resource, error) {
	var cr crawledResource
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	id := cr.ID
	if id == "" {
		id = cr.Name
	}
	if id == "" {
		return nil, fmt.Errorf("resource has neither id nor name")
	}
	rtype := cr.Type
	if rtype == "" {
		rtype = sourceName
	}
	return &storage.Resource{
		InventoryID:  inventoryID,
		ResourceID:   id,
		ResourceType: rtype,
		ParentID:     cr.Parent,
		DisplayName:  cr.DisplayName,
		Data:         []byte(raw),
		IAMPolicy:    []byte(cr.IAMPolicy),
	}, nil
}

func toSnapshot(idx *storage.InventoryIndex) *rpc.InventorySnapshot {
	return &rpc.InventorySnapshot{
		ID:            idx.ID,
		Status:        idx.Status,
		Message:       idx.Message,
		ResourceCount: idx.ResourceCount,
		CreatedAt:     idx.CreatedAt,
		CompletedAt:   idx.CompletedAt,
	}
}
