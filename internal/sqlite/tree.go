package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/treeline/rollup/internal/domain/tree"
	"github.com/treeline/rollup/internal/storage"
)

// TreeRepository implements repository.TreeRepository for SQLite
type TreeRepository struct {
	db *DB
}

// NewTreeRepository creates a new TreeRepository
func NewTreeRepository(db *DB) *TreeRepository {
	return &TreeRepository{db: db}
}

// Create creates a tree structure with its levels. A missing ID is assigned.
func (r *TreeRepository) Create(ctx context.Context, tenantID string, structure *tree.Structure) error {
	if structure.ID == "" {
		structure.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO trees (id, tenant_id, name) VALUES (?, ?, ?)`,
		structure.ID, tenantID, structure.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			return storage.ErrForeignKeyViolation
		}
		return fmt.Errorf("failed to create tree: %w", err)
	}

	for _, level := range structure.Levels {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO tree_levels (tree_id, position, node_type) VALUES (?, ?, ?)`,
			structure.ID, level.Position, level.NodeType)
		if err != nil {
			return fmt.Errorf("failed to create tree level: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tree: %w", err)
	}
	return nil
}

// Get retrieves a tree structure with its levels in position order
func (r *TreeRepository) Get(ctx context.Context, tenantID, id string) (*tree.Structure, error) {
	var structure tree.Structure
	err := r.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, created_at FROM trees WHERE id = ? AND tenant_id = ?`,
		id, tenantID).Scan(&structure.ID, &structure.TenantID, &structure.Name, &structure.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT position, node_type FROM tree_levels WHERE tree_id = ? ORDER BY position ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get tree levels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var level tree.Level
		if err := rows.Scan(&level.Position, &level.NodeType); err != nil {
			return nil, fmt.Errorf("failed to scan tree level: %w", err)
		}
		structure.Levels = append(structure.Levels, level)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating level rows: %w", err)
	}

	return &structure, nil
}

// RemoveLevel deletes one level binding. The host is responsible for
// requesting recomputes of aggregates whose scope spanned the level.
func (r *TreeRepository) RemoveLevel(ctx context.Context, tenantID, treeID string, position int) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tree_levels
		 WHERE tree_id = ? AND position = ?
		   AND EXISTS(SELECT 1 FROM trees WHERE id = ? AND tenant_id = ?)`,
		treeID, position, treeID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to remove level: %w", err)
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
