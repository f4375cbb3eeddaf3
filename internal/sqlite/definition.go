package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/treeline/rollup/internal/domain/aggregate"
	"github.com/treeline/rollup/internal/storage"
)

// DefinitionRepository implements repository.DefinitionRepository for SQLite
type DefinitionRepository struct {
	db *DB
}

// NewDefinitionRepository creates a new DefinitionRepository
func NewDefinitionRepository(db *DB) *DefinitionRepository {
	return &DefinitionRepository{db: db}
}

const aggregateColumns = `id, tenant_id, tree_id, name, function, source_kind, source,
	owner_type, scope_kind, scope_type, predicate, created_at`

// CreateAggregate creates an aggregate definition. A missing ID is assigned.
func (r *DefinitionRepository) CreateAggregate(ctx context.Context, tenantID string, def *aggregate.Definition) error {
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	query := `
		INSERT INTO aggregate_defs (
			id, tenant_id, tree_id, name, function, source_kind, source,
			owner_type, scope_kind, scope_type, predicate
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		def.ID,
		tenantID,
		def.TreeID,
		def.Name,
		def.Function,
		def.SourceKind,
		def.Source,
		def.OwnerType,
		def.Scope.Kind,
		def.Scope.TargetType,
		def.Scope.Predicate,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			return storage.ErrForeignKeyViolation
		}
		return fmt.Errorf("failed to create aggregate definition: %w", err)
	}
	return nil
}

// GetAggregate retrieves an aggregate definition by ID
func (r *DefinitionRepository) GetAggregate(ctx context.Context, tenantID, id string) (*aggregate.Definition, error) {
	query := `SELECT ` + aggregateColumns + ` FROM aggregate_defs WHERE id = ? AND tenant_id = ?`

	def, err := scanAggregate(r.db.QueryRowContext(ctx, query, id, tenantID))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregate definition: %w", err)
	}
	return def, nil
}

// DeleteAggregate deletes an aggregate definition
func (r *DefinitionRepository) DeleteAggregate(ctx context.Context, tenantID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM aggregate_defs WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete aggregate definition: %w", err)
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

// ListAggregates returns all aggregate definitions for a tenant
func (r *DefinitionRepository) ListAggregates(ctx context.Context, tenantID string) ([]aggregate.Definition, error) {
	query := `SELECT ` + aggregateColumns + ` FROM aggregate_defs WHERE tenant_id = ? ORDER BY created_at ASC, id ASC`
	return r.queryAggregates(ctx, query, tenantID)
}

// ListAggregatesForTree returns the aggregate definitions attached to a tree
func (r *DefinitionRepository) ListAggregatesForTree(ctx context.Context, tenantID, treeID string) ([]aggregate.Definition, error) {
	query := `SELECT ` + aggregateColumns + ` FROM aggregate_defs WHERE tenant_id = ? AND tree_id = ? ORDER BY created_at ASC, id ASC`
	return r.queryAggregates(ctx, query, tenantID, treeID)
}

// AggregatesBySource returns definitions whose target value source is the
// named property or formula
func (r *DefinitionRepository) AggregatesBySource(ctx context.Context, tenantID, source string) ([]aggregate.Definition, error) {
	query := `SELECT ` + aggregateColumns + ` FROM aggregate_defs WHERE tenant_id = ? AND source = ? ORDER BY created_at ASC, id ASC`
	return r.queryAggregates(ctx, query, tenantID, source)
}

// CreateFormula creates a formula definition with its reference edges. A
// missing ID is assigned.
func (r *DefinitionRepository) CreateFormula(ctx context.Context, tenantID string, formula *aggregate.Formula) error {
	if formula.ID == "" {
		formula.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO formula_defs (id, tenant_id, name, owner_type, expression) VALUES (?, ?, ?, ?, ?)`,
		formula.ID, tenantID, formula.Name, formula.OwnerType, formula.Expression)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			return storage.ErrForeignKeyViolation
		}
		return fmt.Errorf("failed to create formula: %w", err)
	}

	for _, ref := range formula.References {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO formula_refs (formula_id, ref_name) VALUES (?, ?)`,
			formula.ID, ref)
		if err != nil {
			return fmt.Errorf("failed to create formula reference: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit formula: %w", err)
	}
	return nil
}

// GetFormula retrieves a formula definition by ID
func (r *DefinitionRepository) GetFormula(ctx context.Context, tenantID, id string) (*aggregate.Formula, error) {
	var formula aggregate.Formula
	err := r.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, owner_type, expression, created_at
		 FROM formula_defs WHERE id = ? AND tenant_id = ?`,
		id, tenantID).Scan(
		&formula.ID,
		&formula.TenantID,
		&formula.Name,
		&formula.OwnerType,
		&formula.Expression,
		&formula.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get formula: %w", err)
	}

	refs, err := r.formulaRefs(ctx, formula.ID)
	if err != nil {
		return nil, err
	}
	formula.References = refs
	return &formula, nil
}

// FormulaByName retrieves a formula definition by its tenant-unique name
func (r *DefinitionRepository) FormulaByName(ctx context.Context, tenantID, name string) (*aggregate.Formula, error) {
	var formula aggregate.Formula
	err := r.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, owner_type, expression, created_at
		 FROM formula_defs WHERE tenant_id = ? AND name = ?`,
		tenantID, name).Scan(
		&formula.ID,
		&formula.TenantID,
		&formula.Name,
		&formula.OwnerType,
		&formula.Expression,
		&formula.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get formula by name: %w", err)
	}

	refs, err := r.formulaRefs(ctx, formula.ID)
	if err != nil {
		return nil, err
	}
	formula.References = refs
	return &formula, nil
}

// FormulasReferencing returns formulas whose expression reads the named slot
func (r *DefinitionRepository) FormulasReferencing(ctx context.Context, tenantID, name string) ([]aggregate.Formula, error) {
	query := `
		SELECT f.id, f.tenant_id, f.name, f.owner_type, f.expression, f.created_at
		FROM formula_defs f
		JOIN formula_refs fr ON fr.formula_id = f.id
		WHERE f.tenant_id = ? AND fr.ref_name = ?
		ORDER BY f.created_at ASC, f.id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query referencing formulas: %w", err)
	}
	defer rows.Close()

	var formulas []aggregate.Formula
	for rows.Next() {
		var formula aggregate.Formula
		err := rows.Scan(
			&formula.ID,
			&formula.TenantID,
			&formula.Name,
			&formula.OwnerType,
			&formula.Expression,
			&formula.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan formula: %w", err)
		}
		formulas = append(formulas, formula)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating formula rows: %w", err)
	}

	for i := range formulas {
		refs, err := r.formulaRefs(ctx, formulas[i].ID)
		if err != nil {
			return nil, err
		}
		formulas[i].References = refs
	}
	return formulas, nil
}

func (r *DefinitionRepository) formulaRefs(ctx context.Context, formulaID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ref_name FROM formula_refs WHERE formula_id = ? ORDER BY ref_name ASC`, formulaID)
	if err != nil {
		return nil, fmt.Errorf("failed to query formula refs: %w", err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("failed to scan formula ref: %w", err)
		}
		refs = append(refs, ref)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ref rows: %w", err)
	}
	return refs, nil
}

func (r *DefinitionRepository) queryAggregates(ctx context.Context, query string, args ...any) ([]aggregate.Definition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregate definitions: %w", err)
	}
	defer rows.Close()

	var defs []aggregate.Definition
	for rows.Next() {
		def, err := scanAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan aggregate definition: %w", err)
		}
		defs = append(defs, *def)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating definition rows: %w", err)
	}
	return defs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAggregate(row rowScanner) (*aggregate.Definition, error) {
	var def aggregate.Definition
	err := row.Scan(
		&def.ID,
		&def.TenantID,
		&def.TreeID,
		&def.Name,
		&def.Function,
		&def.SourceKind,
		&def.Source,
		&def.OwnerType,
		&def.Scope.Kind,
		&def.Scope.TargetType,
		&def.Scope.Predicate,
		&def.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &def, nil
}
