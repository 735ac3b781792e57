// Package explain answers access queries against a built model: what a
// member can reach, who can reach a resource, and which roles are granted.
package explain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sentinelops/sentinel/internal/config"
	"github.com/sentinelops/sentinel/internal/rpc"
	"github.com/sentinelops/sentinel/internal/services"
	"github.com/sentinelops/sentinel/internal/storage"
)

// Store is the slice of the datastore the explain service uses.
type Store interface {
	GetModel(ctx context.Context, handle string) (*storage.Model, error)
	AccessByMember(ctx context.Context, handle, member string) ([]*storage.Binding, error)
	AccessByResource(ctx context.Context, handle, resourceID string) ([]*storage.Binding, error)
	ListRoles(ctx context.Context, handle string) ([]string, error)
}

// Service implements the explain service. Query answers are cached in redis
// when an address is configured; models are immutable once built, so cached
// answers only age out, never go stale.
type Service struct {
	cfg   config.ExplainConfig
	store Store
	cache *redis.Client
	ttl   time.Duration
}

var _ services.Service = (*Service)(nil)
var _ rpc.ExplainServer = (*Service)(nil)

// New creates the explain service.
func New(cfg config.ExplainConfig, store Store) *Service {
	return &Service{cfg: cfg, store: store, ttl: cfg.CacheTTL}
}

// Name returns the configured service name.
func (s *Service) Name() string { return "explain" }

// Initialize connects the query cache when one is configured. A cache that
// cannot be reached disables caching rather than failing startup.
func (s *Service) Initialize(ctx context.Context) error {
	if s.cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: s.cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("explain cache unreachable, continuing without it",
			"addr", s.cfg.RedisAddr, "error", err)
		client.Close()
		return nil
	}
	s.cache = client
	return nil
}

// RegisterRPC attaches the explain RPC surface to the dispatcher.
func (s *Service) RegisterRPC(reg grpc.ServiceRegistrar) {
	rpc.RegisterExplainServer(reg, s)
}

func (s *Service) Start(ctx context.Context) error { return nil }

func (s *Service) Stop(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	err := s.cache.Close()
	s.cache = nil
	return err
}

func (s *Service) Health(ctx context.Context) (*services.HealthStatus, error) {
	h := &services.HealthStatus{Status: services.HealthHealthy}
	if s.cache != nil {
		if err := s.cache.Ping(ctx).Err(); err != nil {
			h.Status = services.HealthDegraded
			h.Message = fmt.Sprintf("cache ping failed: %v", err)
		}
	}
	return h, nil
}

// AccessByMember lists every grant held by a member in the model.
func (s *Service) AccessByMember(ctx context.Context, req *rpc.AccessByMemberRequest) (*rpc.AccessResponse, error) {
	if req.Member == "" {
		return nil, status.Error(codes.InvalidArgument, "member is required")
	}
	if err := s.checkModel(ctx, req.ModelHandle); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("explain:%s:member:%s", req.ModelHandle, req.Member)
	if resp, ok := s.cached(ctx, key); ok {
		return resp, nil
	}

	bindings, err := s.store.AccessByMember(ctx, req.ModelHandle, req.Member)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "query access: %v", err)
	}
	resp := toAccessResponse(bindings)
	s.remember(ctx, key, resp)
	return resp, nil
}

// AccessByResource lists every grant on a resource in the model.
func (s *Service) AccessByResource(ctx context.Context, req *rpc.AccessByResourceRequest) (*rpc.AccessResponse, error) {
	if req.ResourceID == "" {
		return nil, status.Error(codes.InvalidArgument, "resource_id is required")
	}
	if err := s.checkModel(ctx, req.ModelHandle); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("explain:%s:resource:%s", req.ModelHandle, req.ResourceID)
	if resp, ok := s.cached(ctx, key); ok {
		return resp, nil
	}

	bindings, err := s.store.AccessByResource(ctx, req.ModelHandle, req.ResourceID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "query access: %v", err)
	}
	resp := toAccessResponse(bindings)
	s.remember(ctx, key, resp)
	return resp, nil
}

// ListRoles lists the distinct roles granted anywhere in the model.
func (s *Service) ListRoles(ctx context.Context, req *rpc.ListRolesRequest) (*rpc.ListRolesResponse, error) {
	if err := s.checkModel(ctx, req.ModelHandle); err != nil {
		return nil, err
	}
	roles, err := s.store.ListRoles(ctx, req.ModelHandle)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list roles: %v", err)
	}
	return &rpc.ListRolesResponse{Roles: roles}, nil
}

// checkModel rejects queries against missing or unbuilt models.
func (s *Service) checkModel(ctx context.Context, handle string) error {
	m, err := s.store.GetModel(ctx, handle)
	if errors.Is(err, storage.ErrNotFound) {
		return status.Errorf(codes.NotFound, "model %s not found", handle)
	}
	if err != nil {
		return status.Errorf(codes.Internal, "get model: %v", err)
	}
	if m.Status != storage.ModelSuccess {
		return status.Errorf(codes.FailedPrecondition,
			"model %s is %s, want SUCCESS", handle, m.Status)
	}
	return nil
}

func (s *Service) cached(ctx context.Context, key string) (*rpc.AccessResponse, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, err := s.cache.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		slog.Warn("explain cache read failed", "key", key, "error", err)
		return nil, false
	}
	var resp rpc.AccessResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

func (s *Service) remember(ctx context.Context, key string, resp *rpc.AccessResponse) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl).Err(); err != nil {
		slog.Warn("explain cache write failed", "key", key, "error", err)
	}
}

func toAccessResponse(bindings []*storage.Binding) *rpc.AccessResponse {
	resp := &rpc.AccessResponse{Bindings: make([]*rpc.AccessBinding, 0, len(bindings))}
	for _, b := range bindings {
		resp.Bindings = append(resp.Bindings, &rpc.AccessBinding{
			ResourceID:   b.ResourceID,
			ResourceType: b.ResourceType,
			Role:         b.Role,
			Member:       b.Member,
		})
	}
	return resp
}
