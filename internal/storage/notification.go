package storage

import (
	"context"
	"fmt"
)

// InsertNotification records one delivered (or attempted) notification.
func (s *Store) InsertNotification(ctx context.Context, n *Notification) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO notification_log (violation_id, scan_id, channel, subject, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, sent_at
	`, n.ViolationID, n.ScanID, n.Channel, n.Subject, n.Status).Scan(&n.ID, &n.SentAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns the notification log for a scan.
func (s *Store) ListNotifications(ctx context.Context, scanID string) ([]*Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, violation_id, scan_id, channel, subject, status, sent_at
		FROM notification_log
		WHERE scan_id = $1
		ORDER BY id
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n := &Notification{}
		if err := rows.Scan(&n.ID, &n.ViolationID, &n.ScanID, &n.Channel, &n.Subject, &n.Status, &n.SentAt); err != nil {
			return nil, fmt.Errorf("scan notification row: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// NotifiedViolations returns the set of violation ids already notified for a
// scan, used to keep notifier runs idempotent.
func (s *Store) NotifiedViolations(ctx context.Context, scanID string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT violation_id FROM notification_log WHERE scan_id = $1
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("query notified violations: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan notified violation row: %w", err)
		}
		seen[id] = true
	}
	return seen, rows.Err()
}
