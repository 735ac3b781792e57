package model

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/sentinel/internal/jobs"
	"github.com/sentinelops/sentinel/internal/rpc"
	"github.com/sentinelops/sentinel/internal/storage"
)

type fakeStore struct {
	mu        sync.Mutex
	indexes   map[string]*storage.InventoryIndex
	resources map[string][]*storage.Resource
	models    map[string]*storage.Model
	bindings  map[string][]*storage.Binding
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		indexes:   make(map[string]*storage.InventoryIndex),
		resources: make(map[string][]*storage.Resource),
		models:    make(map[string]*storage.Model),
		bindings:  make(map[string][]*storage.Binding),
	}
}

func (f *fakeStore) CreateModel(ctx context.Context, name, inventoryID string) (*storage.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &storage.Model{
		Handle:      uuid.NewString(),
		Name:        name,
		InventoryID: inventoryID,
		Status:      storage.ModelCreated,
		CreatedAt:   time.Now(),
	}
	f.models[m.Handle] = m
	return m, nil
}

func (f *fakeStore) SetModelStatus(ctx context.Context, handle, status, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.models[handle]
	if !ok {
		return storage.ErrNotFound
	}
	m.Status = status
	m.Message = message
	return nil
}

func (f *fakeStore) GetModel(ctx context.Context, handle string) (*storage.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.models[handle]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeStore) ListModels(ctx context.Context, limit int) ([]*storage.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*storage.Model
	for _, m := range f.models {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) DeleteModel(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.models[handle]; !ok {
		return storage.ErrNotFound
	}
	delete(f.models, handle)
	delete(f.bindings, handle)
	return nil
}

func (f *fakeStore) DeleteBindings(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bindings, handle)
	return nil
}

func (f *fakeStore) InsertBindings(ctx context.Context, bindings []*storage.Binding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range bindings {
		f.bindings[b.ModelHandle] = append(f.bindings[b.ModelHandle], b)
	}
	return nil
}

func (f *fakeStore) GetInventoryIndex(ctx context.Context, id string) (*storage.InventoryIndex, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, ok := f.indexes[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *idx
	return &cp, nil
}

func (f *fakeStore) ResourcesForInventory(ctx context.Context, inventoryID string) ([]*storage.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resources[inventoryID], nil
}

func newTestService(t *testing.T, store *fakeStore) (*Service, *jobs.Runner) {
	t.Helper()
	runner := jobs.NewRunner(jobs.WithWorkers(1), jobs.WithMaxAttempts(1))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		runner.Shutdown(ctx)
	})
	return New(store, runner), runner
}

func seedInventory(store *fakeStore, status string, resources ...*storage.Resource) string {
	id := uuid.NewString()
	store.indexes[id] = &storage.InventoryIndex{
		ID:        id,
		Status:    status,
		CreatedAt: time.Now(),
	}
	for _, r := range resources {
		r.InventoryID = id
		store.resources[id] = append(store.resources[id], r)
	}
	return id
}

func TestCreateModelBuildsBindings(t *testing.T) {
	store := newFakeStore()
	invID := seedInventory(store, storage.InventorySuccess,
		&storage.Resource{
			ResourceID:   "projects/demo",
			ResourceType: "project",
			IAMPolicy:    []byte(`{"bindings":[{"role":"roles/owner","members":["user:a@example.com","group:eng@example.com"]},{"role":"roles/viewer","members":["user:b@example.com"]}]}`),
		},
		&storage.Resource{
			ResourceID:   "buckets/logs",
			ResourceType: "bucket",
			IAMPolicy:    nil,
		},
	)

	svc, runner := newTestService(t, store)
	resp, err := svc.CreateModel(context.Background(), &rpc.CreateModelRequest{
		Name:        "prod-access",
		InventoryID: invID,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Model)
	assert.Equal(t, storage.ModelCreated, resp.Model.Status)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := runner.Wait(ctx, jobs.JobID(resp.Operation.ID))
	require.NoError(t, err)
	assert.Equal(t, jobs.StateSucceeded, st.State)

	m, err := store.GetModel(context.Background(), resp.Model.Handle)
	require.NoError(t, err)
	assert.Equal(t, storage.ModelSuccess, m.Status)
	assert.Len(t, store.bindings[m.Handle], 3)
}

// flakyStore fails the first transitions to SUCCESS so tests can drive
// the retry path.
type flakyStore struct {
	*fakeStore
	flakyMu  sync.Mutex
	failures int
}

func (f *flakyStore) SetModelStatus(ctx context.Context, handle, status, message string) error {
	if status == storage.ModelSuccess {
		f.flakyMu.Lock()
		remaining := f.failures
		if remaining > 0 {
			f.failures--
		}
		f.flakyMu.Unlock()
		if remaining > 0 {
			return errors.New("connection reset by peer")
		}
	}
	return f.fakeStore.SetModelStatus(ctx, handle, status, message)
}

func TestBuildRetryDoesNotDuplicateBindings(t *testing.T) {
	store := &flakyStore{fakeStore: newFakeStore(), failures: 1}
	invID := seedInventory(store.fakeStore, storage.InventorySuccess,
		&storage.Resource{
			ResourceID:   "projects/demo",
			ResourceType: "project",
			IAMPolicy:    []byte(`{"bindings":[{"role":"roles/owner","members":["user:a@example.com"]}]}`),
		},
	)

	runner := jobs.NewRunner(
		jobs.WithWorkers(1),
		jobs.WithMaxAttempts(2),
		jobs.WithBackoff(time.Millisecond, 10*time.Millisecond),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		runner.Shutdown(ctx)
	})
	svc := New(store, runner)

	resp, err := svc.CreateModel(context.Background(), &rpc.CreateModelRequest{
		Name:        "retried",
		InventoryID: invID,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := runner.Wait(ctx, jobs.JobID(resp.Operation.ID))
	require.NoError(t, err)
	assert.Equal(t, jobs.StateSucceeded, st.State)
	assert.Equal(t, 2, st.Attempts)

	m, err := store.GetModel(context.Background(), resp.Model.Handle)
	require.NoError(t, err)
	assert.Equal(t, storage.ModelSuccess, m.Status)
	assert.Len(t, store.bindings[m.Handle], 1)
}

func TestCreateModelRejectsIncompleteInventory(t *testing.T) {
	store := newFakeStore()
	invID := seedInventory(store, storage.InventoryInProgress)

	svc, _ := newTestService(t, store)
	_, err := svc.CreateModel(context.Background(), &rpc.CreateModelRequest{
		Name:        "too-early",
		InventoryID: invID,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IN_PROGRESS")
}

func TestCreateModelRequiresName(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(t, store)
	_, err := svc.CreateModel(context.Background(), &rpc.CreateModelRequest{InventoryID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestCreateModelMissingInventory(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(t, store)
	_, err := svc.CreateModel(context.Background(), &rpc.CreateModelRequest{
		Name:        "ghost",
		InventoryID: "missing",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestBuildSkipsMalformedPolicies(t *testing.T) {
	store := newFakeStore()
	invID := seedInventory(store, storage.InventoryPartialSuccess,
		&storage.Resource{
			ResourceID:   "projects/good",
			ResourceType: "project",
			IAMPolicy:    []byte(`{"bindings":[{"role":"roles/editor","members":["user:c@example.com"]}]}`),
		},
		&storage.Resource{
			ResourceID:   "projects/bad",
			ResourceType: "project",
			IAMPolicy:    []byte(`{{{`),
		},
	)

	svc, runner := newTestService(t, store)
	resp, err := svc.CreateModel(context.Background(), &rpc.CreateModelRequest{
		Name:        "tolerant",
		InventoryID: invID,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := runner.Wait(ctx, jobs.JobID(resp.Operation.ID))
	require.NoError(t, err)
	assert.Equal(t, jobs.StateSucceeded, st.State)
	assert.Len(t, store.bindings[resp.Model.Handle], 1)
}

func TestDeleteModel(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(t, store)

	m, err := store.CreateModel(context.Background(), "doomed", "inv")
	require.NoError(t, err)

	_, err = svc.DeleteModel(context.Background(), &rpc.DeleteModelRequest{Handle: m.Handle})
	require.NoError(t, err)

	_, err = svc.GetModel(context.Background(), &rpc.GetModelRequest{Handle: m.Handle})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestFlattenPolicyEdgeCases(t *testing.T) {
	res := &storage.Resource{ResourceID: "r1", ResourceType: "project"}

	rows, err := flattenPolicy("h", res)
	require.NoError(t, err)
	assert.Empty(t, rows)

	res.IAMPolicy = []byte(`null`)
	rows, err = flattenPolicy("h", res)
	require.NoError(t, err)
	assert.Empty(t, rows)

	res.IAMPolicy = []byte(`{"bindings":[{"role":"","members":["user:x@example.com"]}]}`)
	rows, err = flattenPolicy("h", res)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
