package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateInventoryIndex inserts a new snapshot in the CREATED state.
func (s *Store) CreateInventoryIndex(ctx context.Context) (*InventoryIndex, error) {
	inv := &InventoryIndex{
		ID:     uuid.NewString(),
		Status: InventoryCreated,
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO inventory_index (id, status)
		VALUES ($1, $2)
		RETURNING created_at
	`, inv.ID, inv.Status).Scan(&inv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create inventory index: %w", err)
	}

	return inv, nil
}

// SetInventoryStatus moves a snapshot to a new state.
func (s *Store) SetInventoryStatus(ctx context.Context, id, status, message string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE inventory_index SET status = $2, message = $3 WHERE id = $1
	`, id, status, message)
	if err != nil {
		return fmt.Errorf("set inventory status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inventory %s: %w", id, ErrNotFound)
	}
	return nil
}

// CompleteInventory records the terminal state and resource count of a
// snapshot.
func (s *Store) CompleteInventory(ctx context.Context, id, status, message string, resourceCount int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE inventory_index
		SET status = $2, message = $3, resource_count = $4, completed_at = now()
		WHERE id = $1
	`, id, status, message, resourceCount)
	if err != nil {
		return fmt.Errorf("complete inventory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inventory %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetInventoryIndex fetches a snapshot by id.
func (s *Store) GetInventoryIndex(ctx context.Context, id string) (*InventoryIndex, error) {
	inv := &InventoryIndex{ID: id}
	err := s.pool.QueryRow(ctx, `
		SELECT status, message, resource_count, created_at, completed_at
		FROM inventory_index WHERE id = $1
	`, id).Scan(&inv.Status, &inv.Message, &inv.ResourceCount, &inv.CreatedAt, &inv.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("inventory %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get inventory index: %w", err)
	}
	return inv, nil
}

// ListInventoryIndexes returns snapshots newest first.
func (s *Store) ListInventoryIndexes(ctx context.Context, limit int) ([]*InventoryIndex, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, status, message, resource_count, created_at, completed_at
		FROM inventory_index
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list inventory indexes: %w", err)
	}
	defer rows.Close()

	var out []*InventoryIndex
	for rows.Next() {
		inv := &InventoryIndex{}
		if err := rows.Scan(&inv.ID, &inv.Status, &inv.Message, &inv.ResourceCount, &inv.CreatedAt, &inv.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan inventory row: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// DeleteInventory removes a snapshot and its resources.
func (s *Store) DeleteInventory(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM inventory_index WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete inventory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inventory %s: %w", id, ErrNotFound)
	}
	return nil
}

// PurgeInventories deletes snapshots created before cutoff and returns the
// number removed. Snapshots referenced by a model cascade their models too,
// so the retention window must exceed model lifetimes.
func (s *Store) PurgeInventories(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM inventory_index WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge inventories: %w", err)
	}
	return tag.RowsAffected(), nil
}

// InsertResources bulk-inserts crawled resources for a snapshot.
func (s *Store) InsertResources(ctx context.Context, resources []*Resource) error {
	if len(resources) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range resources {
		data := r.Data
		if len(data) == 0 {
			data = []byte("{}")
		}
		batch.Queue(`
			INSERT INTO resource (inventory_id, resource_id, resource_type, parent_id, display_name, data, iam_policy)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (inventory_id, resource_id) DO NOTHING
		`, r.InventoryID, r.ResourceID, r.ResourceType, r.ParentID, r.DisplayName, data, r.IAMPolicy)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range resources {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert resources: %w", err)
		}
	}
	return nil
}

// ResourcesForInventory returns all resources in a snapshot.
func (s *Store) ResourcesForInventory(ctx context.Context, inventoryID string) ([]*Resource, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT inventory_id, resource_id, resource_type, parent_id, display_name, data, iam_policy
		FROM resource
		WHERE inventory_id = $1
		ORDER BY resource_id
	`, inventoryID)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	var out []*Resource
	for rows.Next() {
		r := &Resource{}
		if err := rows.Scan(&r.InventoryID, &r.ResourceID, &r.ResourceType, &r.ParentID, &r.DisplayName, &r.Data, &r.IAMPolicy); err != nil {
			return nil, fmt.Errorf("scan resource row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
