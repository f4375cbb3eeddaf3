package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/treeline/rollup/internal/storage"
)

// PredicateDataRepository implements repository.PredicateDataRepository for
// SQLite
type PredicateDataRepository struct {
	db *DB
}

// NewPredicateDataRepository creates a new PredicateDataRepository
func NewPredicateDataRepository(db *DB) *PredicateDataRepository {
	return &PredicateDataRepository{db: db}
}

// HasTag reports whether a node carries a tag
func (r *PredicateDataRepository) HasTag(ctx context.Context, tenantID, nodeID, tag string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM node_tags WHERE tenant_id = ? AND node_id = ? AND tag = ?
		)`,
		tenantID, nodeID, tag).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check tag: %w", err)
	}
	return exists, nil
}

// AddTag attaches a tag to a node. Adding an existing tag is a no-op.
func (r *PredicateDataRepository) AddTag(ctx context.Context, tenantID, nodeID, tag string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO node_tags (tenant_id, node_id, tag) VALUES (?, ?, ?)`,
		tenantID, nodeID, tag)
	if err != nil {
		if isForeignKeyViolation(err) {
			return storage.ErrForeignKeyViolation
		}
		return fmt.Errorf("failed to add tag: %w", err)
	}
	return nil
}

// RemoveTag detaches a tag from a node
func (r *PredicateDataRepository) RemoveTag(ctx context.Context, tenantID, nodeID, tag string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM node_tags WHERE tenant_id = ? AND node_id = ? AND tag = ?`,
		tenantID, nodeID, tag)
	if err != nil {
		return fmt.Errorf("failed to remove tag: %w", err)
	}
	return nil
}

// Variable returns a tenant variable, nil when unset
func (r *PredicateDataRepository) Variable(ctx context.Context, tenantID, name string) (*string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM tenant_variables WHERE tenant_id = ? AND name = ?`,
		tenantID, name).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get variable: %w", err)
	}
	return &value, nil
}

// SetVariable upserts a tenant variable
func (r *PredicateDataRepository) SetVariable(ctx context.Context, tenantID, name, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tenant_variables (tenant_id, name, value)
		 VALUES (?, ?, ?)
		 ON CONFLICT(tenant_id, name) DO UPDATE SET value = excluded.value`,
		tenantID, name, value)
	if err != nil {
		if isForeignKeyViolation(err) {
			return storage.ErrForeignKeyViolation
		}
		return fmt.Errorf("failed to set variable: %w", err)
	}
	return nil
}
