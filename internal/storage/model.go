package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateModel inserts a model in the CREATED state and returns its handle.
func (s *Store) CreateModel(ctx context.Context, name, inventoryID string) (*Model, error) {
	m := &Model{
		Handle:      uuid.NewString(),
		Name:        name,
		InventoryID: inventoryID,
		Status:      ModelCreated,
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO model (handle, name, inventory_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, m.Handle, m.Name, m.InventoryID, m.Status).Scan(&m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create model: %w", err)
	}

	return m, nil
}

// SetModelStatus moves a model to a new state.
func (s *Store) SetModelStatus(ctx context.Context, handle, status, message string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE model SET status = $2, message = $3 WHERE handle = $1
	`, handle, status, message)
	if err != nil {
		return fmt.Errorf("set model status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("model %s: %w", handle, ErrNotFound)
	}
	return nil
}

// GetModel fetches a model by handle.
func (s *Store) GetModel(ctx context.Context, handle string) (*Model, error) {
	m := &Model{Handle: handle}
	err := s.pool.QueryRow(ctx, `
		SELECT name, inventory_id, status, message, created_at
		FROM model WHERE handle = $1
	`, handle).Scan(&m.Name, &m.InventoryID, &m.Status, &m.Message, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("model %s: %w", handle, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get model: %w", err)
	}
	return m, nil
}

// ListModels returns models newest first.
func (s *Store) ListModels(ctx context.Context, limit int) ([]*Model, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT handle, name, inventory_id, status, message, created_at
		FROM model
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var out []*Model
	for rows.Next() {
		m := &Model{}
		if err := rows.Scan(&m.Handle, &m.Name, &m.InventoryID, &m.Status, &m.Message, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan model row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteModel removes a model and its bindings.
func (s *Store) DeleteModel(ctx context.Context, handle string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM model WHERE handle = $1`, handle)
	if err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("model %s: %w", handle, ErrNotFound)
	}
	return nil
}

// DeleteBindings drops all bindings of a model. Builds call it before
// inserting so a retried build cannot leave duplicate rows behind.
func (s *Store) DeleteBindings(ctx context.Context, handle string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM binding WHERE model_handle = $1`, handle); err != nil {
		return fmt.Errorf("delete bindings: %w", err)
	}
	return nil
}

// InsertBindings bulk-inserts access bindings for a model.
func (s *Store) InsertBindings(ctx context.Context, bindings []*Binding) error {
	if len(bindings) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, b := range bindings {
		batch.Queue(`
			INSERT INTO binding (model_handle, resource_id, resource_type, role, member)
			VALUES ($1, $2, $3, $4, $5)
		`, b.ModelHandle, b.ResourceID, b.ResourceType, b.Role, b.Member)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range bindings {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert bindings: %w", err)
		}
	}
	return nil
}

// BindingsForModel returns all bindings in a model.
func (s *Store) BindingsForModel(ctx context.Context, handle string) ([]*Binding, error) {
	return s.queryBindings(ctx, `
		SELECT model_handle, resource_id, resource_type, role, member
		FROM binding WHERE model_handle = $1
		ORDER BY resource_id, role, member
	`, handle)
}

// AccessByMember returns the bindings granting access to a member.
func (s *Store) AccessByMember(ctx context.Context, handle, member string) ([]*Binding, error) {
	return s.queryBindings(ctx, `
		SELECT model_handle, resource_id, resource_type, role, member
		FROM binding WHERE model_handle = $1 AND member = $2
		ORDER BY resource_id, role
	`, handle, member)
}

// AccessByResource returns the bindings on a resource.
func (s *Store) AccessByResource(ctx context.Context, handle, resourceID string) ([]*Binding, error) {
	return s.queryBindings(ctx, `
		SELECT model_handle, resource_id, resource_type, role, member
		FROM binding WHERE model_handle = $1 AND resource_id = $2
		ORDER BY role, member
	`, handle, resourceID)
}

// ListRoles returns the distinct roles appearing in a model.
func (s *Store) ListRoles(ctx context.Context, handle string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT role FROM binding WHERE model_handle = $1 ORDER BY role
	`, handle)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("scan role row: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *Store) queryBindings(ctx context.Context, query string, args ...any) ([]*Binding, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bindings: %w", err)
	}
	defer rows.Close()

	var out []*Binding
	for rows.Next() {
		b := &Binding{}
		if err := rows.Scan(&b.ModelHandle, &b.ResourceID, &b.ResourceType, &b.Role, &b.Member); err != nil {
			return nil, fmt.Errorf("scan binding row: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
