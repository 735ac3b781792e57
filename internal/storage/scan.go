package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateScan inserts a scan in the CREATED state.
func (s *Store) CreateScan(ctx context.Context, modelHandle string) (*Scan, error) {
	sc := &Scan{
		ID:          uuid.NewString(),
		ModelHandle: modelHandle,
		Status:      ScanCreated,
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO scan (id, model_handle, status)
		VALUES ($1, $2, $3)
		RETURNING started_at
	`, sc.ID, sc.ModelHandle, sc.Status).Scan(&sc.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("create scan: %w", err)
	}

	return sc, nil
}

// SetScanStatus moves a scan to a new state.
func (s *Store) SetScanStatus(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE scan SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set scan status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scan %s: %w", id, ErrNotFound)
	}
	return nil
}

// CompleteScan records a scan's terminal state and violation count.
func (s *Store) CompleteScan(ctx context.Context, id, status string, violationCount int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scan
		SET status = $2, violation_count = $3, completed_at = now()
		WHERE id = $1
	`, id, status, violationCount)
	if err != nil {
		return fmt.Errorf("complete scan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scan %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetScan fetches a scan by id.
func (s *Store) GetScan(ctx context.Context, id string) (*Scan, error) {
	sc := &Scan{ID: id}
	err := s.pool.QueryRow(ctx, `
		SELECT model_handle, status, violation_count, started_at, completed_at
		FROM scan WHERE id = $1
	`, id).Scan(&sc.ModelHandle, &sc.Status, &sc.ViolationCount, &sc.StartedAt, &sc.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("scan %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get scan: %w", err)
	}
	return sc, nil
}

// ListScans returns scans newest first.
func (s *Store) ListScans(ctx context.Context, limit int) ([]*Scan, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, model_handle, status, violation_count, started_at, completed_at
		FROM scan
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var out []*Scan
	for rows.Next() {
		sc := &Scan{}
		if err := rows.Scan(&sc.ID, &sc.ModelHandle, &sc.Status, &sc.ViolationCount, &sc.StartedAt, &sc.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan scan row: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// DeleteViolations drops all violations of a scan. Evaluations call it
// before inserting so a retried scan cannot leave duplicate rows behind.
func (s *Store) DeleteViolations(ctx context.Context, scanID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM violation WHERE scan_id = $1`, scanID); err != nil {
		return fmt.Errorf("delete violations: %w", err)
	}
	return nil
}

// InsertViolations bulk-inserts the violations found by a scan. Violation
// ids are assigned here.
func (s *Store) InsertViolations(ctx context.Context, violations []*Violation) error {
	if len(violations) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, v := range violations {
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		data := v.Data
		if len(data) == 0 {
			data = []byte("{}")
		}
		batch.Queue(`
			INSERT INTO violation (id, scan_id, resource_id, resource_type, rule_name, severity, data)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, v.ID, v.ScanID, v.ResourceID, v.ResourceType, v.RuleName, v.Severity, data)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range violations {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert violations: %w", err)
		}
	}
	return nil
}

// ListViolations returns the violations found by a scan.
func (s *Store) ListViolations(ctx context.Context, scanID string) ([]*Violation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, scan_id, resource_id, resource_type, rule_name, severity, data, created_at
		FROM violation
		WHERE scan_id = $1
		ORDER BY rule_name, resource_id
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	defer rows.Close()

	var out []*Violation
	for rows.Next() {
		v := &Violation{}
		if err := rows.Scan(&v.ID, &v.ScanID, &v.ResourceID, &v.ResourceType, &v.RuleName, &v.Severity, &v.Data, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan violation row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
