package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/treeline/rollup/internal/storage"
)

// ValueRepository implements repository.ValueRepository for SQLite
type ValueRepository struct {
	db *DB
}

// NewValueRepository creates a new ValueRepository
func NewValueRepository(db *DB) *ValueRepository {
	return &ValueRepository{db: db}
}

// PropertyValue returns the stored slot value. A missing row and a stored
// NULL are both nil.
func (r *ValueRepository) PropertyValue(ctx context.Context, tenantID, nodeID, property string) (*string, error) {
	var value sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM node_values WHERE node_id = ? AND property = ? AND tenant_id = ?`,
		nodeID, property, tenantID).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get value: %w", err)
	}
	if !value.Valid {
		return nil, nil
	}
	return &value.String, nil
}

// SetProperty writes a user-authored value and records a version when the
// value changed.
func (r *ValueRepository) SetProperty(ctx context.Context, tenantID, nodeID, property string, value *string) (bool, error) {
	return r.set(ctx, tenantID, nodeID, property, value, true)
}

// SetAggregate writes a derived aggregate slot. Aggregate recomputes are not
// user-authored edits: no version record, ever.
func (r *ValueRepository) SetAggregate(ctx context.Context, tenantID, nodeID, property string, value *string) (bool, error) {
	return r.set(ctx, tenantID, nodeID, property, value, false)
}

// SetFormula writes a derived formula slot. Formula history is user-visible,
// so a change records a version.
func (r *ValueRepository) SetFormula(ctx context.Context, tenantID, nodeID, property string, value *string) (bool, error) {
	return r.set(ctx, tenantID, nodeID, property, value, true)
}

// VersionCount returns the number of history records for a node
func (r *ValueRepository) VersionCount(ctx context.Context, tenantID, nodeID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM node_versions WHERE tenant_id = ? AND node_id = ?`,
		tenantID, nodeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count versions: %w", err)
	}
	return count, nil
}

// set writes a slot if and only if the value differs from what is stored,
// reporting whether a write happened. Concurrent writers of the same slot
// are last-write-wins; duplicate recomputes of the same inputs converge on
// the same value, so either order is correct.
func (r *ValueRepository) set(ctx context.Context, tenantID, nodeID, property string, value *string, version bool) (bool, error) {
	current, err := r.PropertyValue(ctx, tenantID, nodeID, property)
	if err != nil {
		return false, err
	}
	if equalValue(current, value) {
		return false, nil
	}

	query := `
		INSERT INTO node_values (tenant_id, node_id, property, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(node_id, property)
		DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := r.db.ExecContext(ctx, query, tenantID, nodeID, property, value); err != nil {
		if isBusy(err) {
			return false, storage.ErrBusy
		}
		if isForeignKeyViolation(err) {
			return false, storage.ErrForeignKeyViolation
		}
		return false, fmt.Errorf("failed to set value: %w", err)
	}

	if version {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO node_versions (tenant_id, node_id, property, value) VALUES (?, ?, ?, ?)`,
			tenantID, nodeID, property, value)
		if err != nil {
			if isBusy(err) {
				return false, storage.ErrBusy
			}
			return false, fmt.Errorf("failed to record version: %w", err)
		}
	}

	return true, nil
}

func equalValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
