package sqlite

import (
	"context"
	"fmt"

	"github.com/treeline/rollup/internal/storage"
)

// LedgerRepository implements repository.LedgerRepository for SQLite
type LedgerRepository struct {
	db *DB
}

// NewLedgerRepository creates a new LedgerRepository
func NewLedgerRepository(db *DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Insert records a stale entry if none exists for the tuple. The composite
// primary key makes concurrent inserts collapse: exactly one caller sees
// true, everyone else false. No application-level locking.
func (r *LedgerRepository) Insert(ctx context.Context, tenantID, nodeID, definitionID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO stale_entries (tenant_id, node_id, definition_id) VALUES (?, ?, ?)`,
		tenantID, nodeID, definitionID)
	if err != nil {
		if isBusy(err) {
			return false, storage.ErrBusy
		}
		return false, fmt.Errorf("failed to insert stale entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// Delete removes the tuple's entry. Deleting an absent entry is a no-op:
// duplicate message delivery makes that a normal occurrence.
func (r *LedgerRepository) Delete(ctx context.Context, tenantID, nodeID, definitionID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM stale_entries WHERE tenant_id = ? AND node_id = ? AND definition_id = ?`,
		tenantID, nodeID, definitionID)
	if err != nil {
		if isBusy(err) {
			return storage.ErrBusy
		}
		return fmt.Errorf("failed to delete stale entry: %w", err)
	}
	return nil
}

// Exists reports whether the tuple has a live entry
func (r *LedgerRepository) Exists(ctx context.Context, tenantID, nodeID, definitionID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM stale_entries
			WHERE tenant_id = ? AND node_id = ? AND definition_id = ?
		)`,
		tenantID, nodeID, definitionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check stale entry: %w", err)
	}
	return exists, nil
}

// Count returns the number of live entries for a tenant
func (r *LedgerRepository) Count(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stale_entries WHERE tenant_id = ?`, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count stale entries: %w", err)
	}
	return count, nil
}

// ReapOrphans removes entries whose node or definition no longer exists,
// keeping the ledger bounded after deletions.
func (r *LedgerRepository) ReapOrphans(ctx context.Context, tenantID string) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM stale_entries
		 WHERE tenant_id = ?
		   AND (
			 NOT EXISTS(SELECT 1 FROM nodes n WHERE n.id = stale_entries.node_id AND n.tenant_id = stale_entries.tenant_id)
			 OR NOT EXISTS(SELECT 1 FROM aggregate_defs d WHERE d.id = stale_entries.definition_id AND d.tenant_id = stale_entries.tenant_id)
			 OR NOT EXISTS(SELECT 1 FROM tenants t WHERE t.id = stale_entries.tenant_id)
		   )`,
		tenantID)
	if err != nil {
		if isBusy(err) {
			return 0, storage.ErrBusy
		}
		return 0, fmt.Errorf("failed to reap orphans: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}
