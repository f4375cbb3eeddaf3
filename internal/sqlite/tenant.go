package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/treeline/rollup/internal/storage"
)

// TenantRepository implements repository.TenantRepository for SQLite
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a new TenantRepository
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create creates a new tenant
func (r *TenantRepository) Create(ctx context.Context, tenantID, name string, precision int32) error {
	query := `INSERT INTO tenants (id, name, decimal_precision) VALUES (?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, tenantID, name, precision)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// Precision returns the tenant's configured decimal precision. Zero means
// whole numbers only.
func (r *TenantRepository) Precision(ctx context.Context, tenantID string) (int32, error) {
	var precision int32
	err := r.db.QueryRowContext(ctx,
		`SELECT decimal_precision FROM tenants WHERE id = ?`, tenantID).Scan(&precision)
	if err == sql.ErrNoRows {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get precision: %w", err)
	}
	return precision, nil
}

// SetPrecision updates the tenant's decimal precision
func (r *TenantRepository) SetPrecision(ctx context.Context, tenantID string, precision int32) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET decimal_precision = ? WHERE id = ?`, precision, tenantID)
	if err != nil {
		return fmt.Errorf("failed to set precision: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Exists reports whether the tenant exists
func (r *TenantRepository) Exists(ctx context.Context, tenantID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM tenants WHERE id = ?)`, tenantID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check tenant: %w", err)
	}
	return exists, nil
}
