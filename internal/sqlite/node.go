package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/treeline/rollup/internal/domain/tree"
	"github.com/treeline/rollup/internal/storage"
)

// NodeRepository implements repository.NodeRepository for SQLite
type NodeRepository struct {
	db *DB
}

// NewNodeRepository creates a new NodeRepository
func NewNodeRepository(db *DB) *NodeRepository {
	return &NodeRepository{db: db}
}

const nodeColumns = `id, tenant_id, tree_id, type, parent_id, generation, created_at`

// Create creates a new node
func (r *NodeRepository) Create(ctx context.Context, tenantID string, node *tree.Node) error {
	query := `
		INSERT INTO nodes (id, tenant_id, tree_id, type, parent_id)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		node.ID, tenantID, node.TreeID, node.Type, node.ParentID)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			return storage.ErrForeignKeyViolation
		}
		return fmt.Errorf("failed to create node: %w", err)
	}
	return nil
}

// Get retrieves a node by ID
func (r *NodeRepository) Get(ctx context.Context, tenantID, id string) (*tree.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE id = ? AND tenant_id = ?`

	var node tree.Node
	err := r.db.QueryRowContext(ctx, query, id, tenantID).Scan(
		&node.ID,
		&node.TenantID,
		&node.TreeID,
		&node.Type,
		&node.ParentID,
		&node.Generation,
		&node.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}
	return &node, nil
}

// Delete deletes a node. Values, versions and tags cascade.
func (r *NodeRepository) Delete(ctx context.Context, tenantID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM nodes WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
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

// SetParent moves a node under a new parent
func (r *NodeRepository) SetParent(ctx context.Context, tenantID, id string, parentID *string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE nodes SET parent_id = ? WHERE id = ? AND tenant_id = ?`,
		parentID, id, tenantID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return storage.ErrForeignKeyViolation
		}
		return fmt.Errorf("failed to set parent: %w", err)
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

// SetType retypes a node
func (r *NodeRepository) SetType(ctx context.Context, tenantID, id, nodeType string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE nodes SET type = ? WHERE id = ? AND tenant_id = ?`,
		nodeType, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to set type: %w", err)
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

// Children returns the direct structural children of a node
func (r *NodeRepository) Children(ctx context.Context, tenantID, parentID string) ([]tree.Node, error) {
	query := `SELECT ` + nodeColumns + `
		FROM nodes WHERE parent_id = ? AND tenant_id = ?
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, parentID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get children: %w", err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

// ListByType returns all nodes of a type within a tree
func (r *NodeRepository) ListByType(ctx context.Context, tenantID, treeID, nodeType string) ([]tree.Node, error) {
	query := `SELECT ` + nodeColumns + `
		FROM nodes WHERE tenant_id = ? AND tree_id = ? AND type = ?
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, tenantID, treeID, nodeType)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

// BumpGeneration increments the node's generation stamp. Read-through caches
// use the stamp to notice a pending recompute; it carries no correctness
// weight.
func (r *NodeRepository) BumpGeneration(ctx context.Context, tenantID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE nodes SET generation = generation + 1 WHERE id = ? AND tenant_id = ?`,
		id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to bump generation: %w", err)
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

func scanNodes(rows *sql.Rows) ([]tree.Node, error) {
	var nodes []tree.Node
	for rows.Next() {
		var node tree.Node
		err := rows.Scan(
			&node.ID,
			&node.TenantID,
			&node.TreeID,
			&node.Type,
			&node.ParentID,
			&node.Generation,
			&node.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating node rows: %w", err)
	}
	return nodes, nil
}
