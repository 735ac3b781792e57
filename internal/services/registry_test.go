package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

// stubService records lifecycle calls.
type stubService struct {
	name       string
	initErr    error
	startErr   error
	calls      *[]string
	registered bool
}

func (s *stubService) Name() string { return s.name }

func (s *stubService) Initialize(ctx context.Context) error {
	*s.calls = append(*s.calls, "init:"+s.name)
	return s.initErr
}

func (s *stubService) RegisterRPC(reg grpc.ServiceRegistrar) {
	s.registered = true
}

func (s *stubService) Start(ctx context.Context) error {
	*s.calls = append(*s.calls, "start:"+s.name)
	return s.startErr
}

func (s *stubService) Stop(ctx context.Context) error {
	*s.calls = append(*s.calls, "stop:"+s.name)
	return nil
}

func (s *stubService) Health(ctx context.Context) (*HealthStatus, error) {
	return &HealthStatus{Status: HealthHealthy}, nil
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	var calls []string
	r := NewRegistry()
	require.NoError(t, r.Add(&stubService{name: "inventory", calls: &calls}))
	err := r.Add(&stubService{name: "inventory", calls: &calls})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "twice")
}

func TestRegistryLifecycleOrder(t *testing.T) {
	var calls []string
	r := NewRegistry()
	a := &stubService{name: "a", calls: &calls}
	b := &stubService{name: "b", calls: &calls}
	require.NoError(t, r.Add(a))
	require.NoError(t, r.Add(b))

	ctx := context.Background()
	require.NoError(t, r.InitializeAll(ctx))
	require.NoError(t, r.StartAll(ctx))
	r.StopAll(ctx)

	assert.Equal(t, []string{
		"init:a", "init:b",
		"start:a", "start:b",
		"stop:b", "stop:a",
	}, calls)
}

func TestRegistryStartFailureStopsStarted(t *testing.T) {
	var calls []string
	r := NewRegistry()
	a := &stubService{name: "a", calls: &calls}
	b := &stubService{name: "b", calls: &calls, startErr: errors.New("boom")}
	require.NoError(t, r.Add(a))
	require.NoError(t, r.Add(b))

	ctx := context.Background()
	require.NoError(t, r.InitializeAll(ctx))
	err := r.StartAll(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service b")

	assert.Equal(t, []string{"init:a", "init:b", "start:a", "start:b", "stop:a"}, calls)
}

func TestRegistryInitializeFailsFast(t *testing.T) {
	var calls []string
	r := NewRegistry()
	require.NoError(t, r.Add(&stubService{name: "a", calls: &calls, initErr: errors.New("bad rules")}))
	require.NoError(t, r.Add(&stubService{name: "b", calls: &calls}))

	err := r.InitializeAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"init:a"}, calls)
}

func TestRegistryHealthAggregation(t *testing.T) {
	var calls []string
	r := NewRegistry()
	require.NoError(t, r.Add(&stubService{name: "a", calls: &calls}))
	require.NoError(t, r.Add(&stubService{name: "b", calls: &calls}))

	health := r.Health(context.Background())
	require.Len(t, health, 2)
	assert.Equal(t, HealthHealthy, health["a"].Status)
	assert.Equal(t, HealthHealthy, health["b"].Status)
}

func TestRegistryNames(t *testing.T) {
	var calls []string
	r := NewRegistry()
	require.NoError(t, r.Add(&stubService{name: "explain", calls: &calls}))
	require.NoError(t, r.Add(&stubService{name: "inventory", calls: &calls}))
	assert.Equal(t, []string{"explain", "inventory"}, r.Names())

	svc, ok := r.Get("explain")
	require.True(t, ok)
	assert.Equal(t, "explain", svc.Name())
	_, ok = r.Get("missing")
	assert.False(t, ok)
}
