package aggregate

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/treeline/rollup/internal/domain/tree"
)

// Hierarchy provides the descendant queries an evaluation needs.
type Hierarchy interface {
	ChildrenOfType(ctx context.Context, tenantID, nodeID, childType string) ([]tree.Node, error)
	Descendants(ctx context.Context, tenantID, nodeID, typeFilter string) ([]tree.Node, error)
}

// ValueReader reads stored property, aggregate and formula slots. A missing
// slot and an explicit null both come back as nil.
type ValueReader interface {
	PropertyValue(ctx context.Context, tenantID, nodeID, property string) (*string, error)
}

// FormulaSource resolves the formula definition behind a formula-sourced
// aggregate's target.
type FormulaSource interface {
	FormulaByName(ctx context.Context, tenantID, name string) (*Formula, error)
}

// FormulaEvaluator computes a formula's current value for one node.
type FormulaEvaluator interface {
	Evaluate(ctx context.Context, tenantID string, f Formula, nodeID string) (*decimal.Decimal, error)
}

// PredicateEvaluator evaluates an opaque predicate expression against a node.
// The predicate language itself is an external collaborator; this subsystem
// only relies on evaluation being repeatable for unchanged inputs.
type PredicateEvaluator interface {
	Matches(ctx context.Context, tenantID, predicate string, node tree.Node) (bool, error)
}

// PrecisionReader resolves a tenant's configured decimal precision.
type PrecisionReader interface {
	Precision(ctx context.Context, tenantID string) (int32, error)
}
