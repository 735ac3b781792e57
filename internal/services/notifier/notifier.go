// Package notifier publishes scan violations to the message broker and
// records every delivery so repeated runs stay idempotent.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sentinelops/sentinel/internal/config"
	"github.com/sentinelops/sentinel/internal/rpc"
	"github.com/sentinelops/sentinel/internal/services"
	"github.com/sentinelops/sentinel/internal/storage"
)

// Store is the slice of the datastore the notifier uses.
type Store interface {
	GetScan(ctx context.Context, id string) (*storage.Scan, error)
	ListViolations(ctx context.Context, scanID string) ([]*storage.Violation, error)
	InsertNotification(ctx context.Context, n *storage.Notification) error
	ListNotifications(ctx context.Context, scanID string) ([]*storage.Notification, error)
	NotifiedViolations(ctx context.Context, scanID string) (map[string]bool, error)
}

// Service implements the notifier service.
type Service struct {
	cfg   config.NotifierConfig
	store Store
	conn  *nats.Conn
}

var _ services.Service = (*Service)(nil)
var _ rpc.NotifierServer = (*Service)(nil)

// New creates the notifier service.
func New(cfg config.NotifierConfig, store Store) *Service {
	return &Service{cfg: cfg, store: store}
}

// Name returns the configured service name.
func (s *Service) Name() string { return "notifier" }

// Initialize connects to the broker.
func (s *Service) Initialize(ctx context.Context) error {
	url := s.cfg.NATSURL
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url,
		nats.Name("sentinel-notifier"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
		nats.Timeout(5*time.Second),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("notifier broker reconnected", "url", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				slog.Warn("notifier broker disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("notifier: connect broker %s: %w", url, err)
	}
	s.conn = conn
	return nil
}

// RegisterRPC attaches the notifier RPC surface to the dispatcher.
func (s *Service) RegisterRPC(reg grpc.ServiceRegistrar) {
	rpc.RegisterNotifierServer(reg, s)
}

func (s *Service) Start(ctx context.Context) error { return nil }

// Stop flushes outstanding publishes and closes the broker connection.
func (s *Service) Stop(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.FlushTimeout(5 * time.Second); err != nil {
		slog.Warn("notifier flush on shutdown failed", "error", err)
	}
	s.conn.Close()
	s.conn = nil
	return nil
}

func (s *Service) Health(ctx context.Context) (*services.HealthStatus, error) {
	if s.conn == nil || !s.conn.IsConnected() {
		return &services.HealthStatus{
			Status:  services.HealthUnhealthy,
			Message: "broker connection down",
		}, nil
	}
	return &services.HealthStatus{
		Status:  services.HealthHealthy,
		Details: map[string]string{"broker": s.conn.ConnectedUrl()},
	}, nil
}

// RunNotifier publishes one message per not-yet-notified violation of the
// scan. Violations already in the notification log are skipped, so rerunning
// after a partial failure only delivers the remainder.
func (s *Service) RunNotifier(ctx context.Context, req *rpc.RunNotifierRequest) (*rpc.RunNotifierResponse, error) {
	scan, err := s.store.GetScan(ctx, req.ScanID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "scan %s not found", req.ScanID)
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get scan: %v", err)
	}
	if scan.Status != storage.ScanSuccess {
		return nil, status.Errorf(codes.FailedPrecondition,
			"scan %s is %s, want SUCCESS", req.ScanID, scan.Status)
	}

	violations, err := s.store.ListViolations(ctx, req.ScanID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list violations: %v", err)
	}
	notified, err := s.store.NotifiedViolations(ctx, req.ScanID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "load notification log: %v", err)
	}

	var sent, skipped int
	for _, v := range violations {
		if notified[v.ID] {
			skipped++
			continue
		}
		if err := s.publish(ctx, v); err != nil {
			// Stop at the first delivery failure. The log keeps the run
			// resumable: already published violations will be skipped.
			return nil, status.Errorf(codes.Unavailable,
				"publish violation %s: %v (sent %d, skipped %d)", v.ID, err, sent, skipped)
		}
		sent++
	}

	if err := s.conn.FlushTimeout(5 * time.Second); err != nil {
		return nil, status.Errorf(codes.Unavailable, "flush broker: %v", err)
	}

	slog.Info("notifier run finished", "scan_id", req.ScanID, "sent", sent, "skipped", skipped)
	return &rpc.RunNotifierResponse{Sent: sent, Skipped: skipped}, nil
}

// ListNotifications returns the notification log for a scan.
func (s *Service) ListNotifications(ctx context.Context, req *rpc.ListNotificationsRequest) (*rpc.ListNotificationsResponse, error) {
	notifications, err := s.store.ListNotifications(ctx, req.ScanID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list notifications: %v", err)
	}
	resp := &rpc.ListNotificationsResponse{
		Notifications: make([]*rpc.NotificationInfo, 0, len(notifications)),
	}
	for _, n := range notifications {
		resp.Notifications = append(resp.Notifications, &rpc.NotificationInfo{
			ID:          n.ID,
			ViolationID: n.ViolationID,
			ScanID:      n.ScanID,
			Channel:     n.Channel,
			Subject:     n.Subject,
			Status:      n.Status,
			SentAt:      n.SentAt,
		})
	}
	return resp, nil
}

func (s *Service) publish(ctx context.Context, v *storage.Violation) error {
	subject := s.subjectFor(v.RuleName)
	payload, err := json.Marshal(&rpc.ViolationInfo{
		ID:           v.ID,
		ScanID:       v.ScanID,
		ResourceID:   v.ResourceID,
		ResourceType: v.ResourceType,
		RuleName:     v.RuleName,
		Severity:     v.Severity,
		Data:         json.RawMessage(v.Data),
		CreatedAt:    v.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode violation: %w", err)
	}
	if err := s.conn.Publish(subject, payload); err != nil {
		return err
	}
	return s.store.InsertNotification(ctx, &storage.Notification{
		ViolationID: v.ID,
		ScanID:      v.ScanID,
		Channel:     "nats",
		Subject:     subject,
		Status:      "SENT",
	})
}

// subjectFor maps a rule name onto a broker subject. Characters with
// structural meaning in subjects are replaced.
func (s *Service) subjectFor(ruleName string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ':
			return '-'
		}
		return r
	}, ruleName)
	return fmt.Sprintf("%s.violations.%s", s.cfg.SubjectPrefix, token)
}
