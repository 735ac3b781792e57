package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/sentinel/internal/config"
	"github.com/sentinelops/sentinel/internal/jobs"
	"github.com/sentinelops/sentinel/internal/rpc"
	"github.com/sentinelops/sentinel/internal/storage"
)

type fakeStore struct {
	mu         sync.Mutex
	models     map[string]*storage.Model
	bindings   map[string][]*storage.Binding
	scans      map[string]*storage.Scan
	violations map[string][]*storage.Violation
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		models:     make(map[string]*storage.Model),
		bindings:   make(map[string][]*storage.Binding),
		scans:      make(map[string]*storage.Scan),
		violations: make(map[string][]*storage.Violation),
	}
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

func (f *fakeStore) BindingsForModel(ctx context.Context, handle string) ([]*storage.Binding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bindings[handle], nil
}

func (f *fakeStore) CreateScan(ctx context.Context, modelHandle string) (*storage.Scan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	scan := &storage.Scan{
		ID:          uuid.NewString(),
		ModelHandle: modelHandle,
		Status:      storage.ScanCreated,
		StartedAt:   time.Now(),
	}
	f.scans[scan.ID] = scan
	return scan, nil
}

func (f *fakeStore) SetScanStatus(ctx context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	scan, ok := f.scans[id]
	if !ok {
		return storage.ErrNotFound
	}
	scan.Status = status
	return nil
}

func (f *fakeStore) CompleteScan(ctx context.Context, id, status string, violationCount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	scan, ok := f.scans[id]
	if !ok {
		return storage.ErrNotFound
	}
	now := time.Now()
	scan.Status = status
	scan.ViolationCount = violationCount
	scan.CompletedAt = &now
	return nil
}

func (f *fakeStore) GetScan(ctx context.Context, id string) (*storage.Scan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	scan, ok := f.scans[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *scan
	return &cp, nil
}

func (f *fakeStore) ListScans(ctx context.Context, limit int) ([]*storage.Scan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*storage.Scan
	for _, scan := range f.scans {
		cp := *scan
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) DeleteViolations(ctx context.Context, scanID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.violations, scanID)
	return nil
}

func (f *fakeStore) InsertViolations(ctx context.Context, violations []*storage.Violation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range violations {
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		f.violations[v.ScanID] = append(f.violations[v.ScanID], v)
	}
	return nil
}

func (f *fakeStore) ListViolations(ctx context.Context, scanID string) ([]*storage.Violation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.violations[scanID], nil
}

func newTestService(t *testing.T, store *fakeStore) (*Service, *jobs.Runner) {
	t.Helper()
	runner := jobs.NewRunner(jobs.WithWorkers(1), jobs.WithMaxAttempts(1))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		runner.Shutdown(ctx)
	})

	svc := New(config.ScannerConfig{RulesPath: writeRules(t, sampleRules)}, store, runner)
	require.NoError(t, svc.Initialize(context.Background()))
	return svc, runner
}

func seedModel(store *fakeStore, status string, bindings ...*storage.Binding) string {
	handle := uuid.NewString()
	store.models[handle] = &storage.Model{
		Handle:    handle,
		Name:      "m",
		Status:    status,
		CreatedAt: time.Now(),
	}
	for _, b := range bindings {
		b.ModelHandle = handle
		store.bindings[handle] = append(store.bindings[handle], b)
	}
	return handle
}

func TestRunScanFindsViolations(t *testing.T) {
	store := newFakeStore()
	handle := seedModel(store, storage.ModelSuccess,
		&storage.Binding{ResourceID: "projects/demo", ResourceType: "project", Role: "roles/owner", Member: "user:evil@gmail.com"},
		&storage.Binding{ResourceID: "projects/demo", ResourceType: "project", Role: "roles/owner", Member: "user:dev@example.com"},
		&storage.Binding{ResourceID: "buckets/logs", ResourceType: "bucket", Role: "roles/viewer", Member: "allUsers"},
	)

	svc, runner := newTestService(t, store)
	resp, err := svc.RunScan(context.Background(), &rpc.RunScanRequest{ModelHandle: handle})
	require.NoError(t, err)
	require.NotNil(t, resp.Scan)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := runner.Wait(ctx, jobs.JobID(resp.Operation.ID))
	require.NoError(t, err)
	assert.Equal(t, jobs.StateSucceeded, st.State)

	scan, err := svc.GetScan(context.Background(), &rpc.GetScanRequest{ID: resp.Scan.ID})
	require.NoError(t, err)
	assert.Equal(t, storage.ScanSuccess, scan.Status)
	assert.EqualValues(t, 2, scan.ViolationCount)

	vresp, err := svc.ListViolations(context.Background(), &rpc.ListViolationsRequest{ScanID: resp.Scan.ID})
	require.NoError(t, err)
	require.Len(t, vresp.Violations, 2)

	byRule := make(map[string]string)
	for _, v := range vresp.Violations {
		byRule[v.RuleName] = v.ResourceID
	}
	assert.Equal(t, "projects/demo", byRule["no-gmail-owners"])
	assert.Equal(t, "buckets/logs", byRule["no-public-members"])
}

// flakyStore fails the first completions with SUCCESS so tests can drive
// the retry path.
type flakyStore struct {
	*fakeStore
	flakyMu  sync.Mutex
	failures int
}

func (f *flakyStore) CompleteScan(ctx context.Context, id, status string, violationCount int64) error {
	if status == storage.ScanSuccess {
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
	return f.fakeStore.CompleteScan(ctx, id, status, violationCount)
}

func TestScanRetryDoesNotDuplicateViolations(t *testing.T) {
	store := &flakyStore{fakeStore: newFakeStore(), failures: 1}
	handle := seedModel(store.fakeStore, storage.ModelSuccess,
		&storage.Binding{ResourceID: "buckets/logs", ResourceType: "bucket", Role: "roles/viewer", Member: "allUsers"},
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
	svc := New(config.ScannerConfig{RulesPath: writeRules(t, sampleRules)}, store, runner)
	require.NoError(t, svc.Initialize(context.Background()))

	resp, err := svc.RunScan(context.Background(), &rpc.RunScanRequest{ModelHandle: handle})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := runner.Wait(ctx, jobs.JobID(resp.Operation.ID))
	require.NoError(t, err)
	assert.Equal(t, jobs.StateSucceeded, st.State)
	assert.Equal(t, 2, st.Attempts)

	scan, err := svc.GetScan(context.Background(), &rpc.GetScanRequest{ID: resp.Scan.ID})
	require.NoError(t, err)
	assert.Equal(t, storage.ScanSuccess, scan.Status)
	assert.EqualValues(t, 1, scan.ViolationCount)
	assert.Len(t, store.violations[resp.Scan.ID], 1)
}

func TestRunScanCleanModel(t *testing.T) {
	store := newFakeStore()
	handle := seedModel(store, storage.ModelSuccess,
		&storage.Binding{ResourceID: "projects/demo", ResourceType: "project", Role: "roles/viewer", Member: "user:dev@example.com"},
	)

	svc, runner := newTestService(t, store)
	resp, err := svc.RunScan(context.Background(), &rpc.RunScanRequest{ModelHandle: handle})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = runner.Wait(ctx, jobs.JobID(resp.Operation.ID))
	require.NoError(t, err)

	scan, err := svc.GetScan(context.Background(), &rpc.GetScanRequest{ID: resp.Scan.ID})
	require.NoError(t, err)
	assert.Equal(t, storage.ScanSuccess, scan.Status)
	assert.EqualValues(t, 0, scan.ViolationCount)
}

func TestRunScanRejectsUnbuiltModel(t *testing.T) {
	store := newFakeStore()
	handle := seedModel(store, storage.ModelBuilding)

	svc, _ := newTestService(t, store)
	_, err := svc.RunScan(context.Background(), &rpc.RunScanRequest{ModelHandle: handle})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BUILDING")
}

func TestRunScanMissingModel(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(t, store)
	_, err := svc.RunScan(context.Background(), &rpc.RunScanRequest{ModelHandle: "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestListViolationsMissingScan(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(t, store)
	_, err := svc.ListViolations(context.Background(), &rpc.ListViolationsRequest{ScanID: "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestHealthReportsRuleCount(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(t, store)

	h, err := svc.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "HEALTHY", h.Status.String())
	assert.Equal(t, "3", h.Details["rules"])
}
