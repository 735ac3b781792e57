package notifier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	natsserver "github.com/nats-io/nats-server/v2/server"
	natstest "github.com/nats-io/nats-server/v2/test"

	"github.com/sentinelops/sentinel/internal/config"
	"github.com/sentinelops/sentinel/internal/rpc"
	"github.com/sentinelops/sentinel/internal/storage"
)

type fakeStore struct {
	mu            sync.Mutex
	scans         map[string]*storage.Scan
	violations    map[string][]*storage.Violation
	notifications map[string][]*storage.Notification
	nextID        int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		scans:         make(map[string]*storage.Scan),
		violations:    make(map[string][]*storage.Violation),
		notifications: make(map[string][]*storage.Notification),
	}
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

func (f *fakeStore) ListViolations(ctx context.Context, scanID string) ([]*storage.Violation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.violations[scanID], nil
}

func (f *fakeStore) InsertNotification(ctx context.Context, n *storage.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	n.ID = f.nextID
	n.SentAt = time.Now()
	cp := *n
	f.notifications[n.ScanID] = append(f.notifications[n.ScanID], &cp)
	return nil
}

func (f *fakeStore) ListNotifications(ctx context.Context, scanID string) ([]*storage.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notifications[scanID], nil
}

func (f *fakeStore) NotifiedViolations(ctx context.Context, scanID string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	for _, n := range f.notifications[scanID] {
		seen[n.ViolationID] = true
	}
	return seen, nil
}

func setupBroker(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := natstest.DefaultTestOptions
	opts.Port = -1
	server := natstest.RunServer(&opts)
	t.Cleanup(server.Shutdown)
	return server
}

func newTestService(t *testing.T, server *natsserver.Server, store *fakeStore) *Service {
	t.Helper()
	svc := New(config.NotifierConfig{
		NATSURL:       server.ClientURL(),
		SubjectPrefix: "sentinel",
	}, store)
	require.NoError(t, svc.Initialize(context.Background()))
	t.Cleanup(func() { svc.Stop(context.Background()) })
	return svc
}

func seedScan(store *fakeStore, status string, violations ...*storage.Violation) string {
	id := "scan-1"
	now := time.Now()
	store.scans[id] = &storage.Scan{
		ID:          id,
		ModelHandle: "m",
		Status:      status,
		StartedAt:   now,
		CompletedAt: &now,
	}
	for _, v := range violations {
		v.ScanID = id
		store.violations[id] = append(store.violations[id], v)
	}
	return id
}

func TestRunNotifierPublishesViolations(t *testing.T) {
	server := setupBroker(t)
	store := newFakeStore()
	scanID := seedScan(store, storage.ScanSuccess,
		&storage.Violation{ID: "v1", ResourceID: "projects/demo", RuleName: "no-public-members", Severity: "CRITICAL"},
		&storage.Violation{ID: "v2", ResourceID: "buckets/logs", RuleName: "no-gmail-owners", Severity: "HIGH"},
	)
	svc := newTestService(t, server, store)

	// Independent subscriber connection to observe deliveries.
	sub, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer sub.Close()
	inbox := make(chan *nats.Msg, 10)
	_, err = sub.ChanSubscribe("sentinel.violations.>", inbox)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	resp, err := svc.RunNotifier(context.Background(), &rpc.RunNotifierRequest{ScanID: scanID})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Sent)
	assert.Equal(t, 0, resp.Skipped)

	subjects := make(map[string]bool)
	for i := 0; i < 2; i++ {
		select {
		case msg := <-inbox:
			subjects[msg.Subject] = true
			assert.NotEmpty(t, msg.Data)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for violation message")
		}
	}
	assert.True(t, subjects["sentinel.violations.no-public-members"])
	assert.True(t, subjects["sentinel.violations.no-gmail-owners"])

	logResp, err := svc.ListNotifications(context.Background(), &rpc.ListNotificationsRequest{ScanID: scanID})
	require.NoError(t, err)
	assert.Len(t, logResp.Notifications, 2)
}

func TestRunNotifierIsIdempotent(t *testing.T) {
	server := setupBroker(t)
	store := newFakeStore()
	scanID := seedScan(store, storage.ScanSuccess,
		&storage.Violation{ID: "v1", ResourceID: "projects/demo", RuleName: "rule-a", Severity: "LOW"},
	)
	svc := newTestService(t, server, store)

	first, err := svc.RunNotifier(context.Background(), &rpc.RunNotifierRequest{ScanID: scanID})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Sent)

	second, err := svc.RunNotifier(context.Background(), &rpc.RunNotifierRequest{ScanID: scanID})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Sent)
	assert.Equal(t, 1, second.Skipped)

	assert.Len(t, store.notifications[scanID], 1)
}

func TestRunNotifierRejectsIncompleteScan(t *testing.T) {
	server := setupBroker(t)
	store := newFakeStore()
	scanID := seedScan(store, storage.ScanInProgress)
	svc := newTestService(t, server, store)

	_, err := svc.RunNotifier(context.Background(), &rpc.RunNotifierRequest{ScanID: scanID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IN_PROGRESS")
}

func TestRunNotifierMissingScan(t *testing.T) {
	server := setupBroker(t)
	store := newFakeStore()
	svc := newTestService(t, server, store)

	_, err := svc.RunNotifier(context.Background(), &rpc.RunNotifierRequest{ScanID: "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSubjectForSanitizesRuleNames(t *testing.T) {
	svc := New(config.NotifierConfig{SubjectPrefix: "sentinel"}, newFakeStore())

	tests := []struct {
		rule string
		want string
	}{
		{"no-public-members", "sentinel.violations.no-public-members"},
		{"dots.in.name", "sentinel.violations.dots-in-name"},
		{"wild*card>rule", "sentinel.violations.wild-card-rule"},
		{"spaced rule", "sentinel.violations.spaced-rule"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, svc.subjectFor(tt.rule))
	}
}

func TestHealthReflectsConnection(t *testing.T) {
	server := setupBroker(t)
	store := newFakeStore()
	svc := newTestService(t, server, store)

	h, err := svc.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "HEALTHY", h.Status.String())

	require.NoError(t, svc.Stop(context.Background()))
	h, err = svc.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "UNHEALTHY", h.Status.String())
}
