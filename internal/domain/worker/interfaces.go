package worker

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/treeline/rollup/internal/domain/aggregate"
	"github.com/treeline/rollup/internal/domain/tree"
	"github.com/treeline/rollup/internal/repository"
)

// Queue provides leased message consumption for both channels.
type Queue interface {
	LeaseNode(ctx context.Context, limit int) ([]repository.NodeDelivery, error)
	LeaseTenant(ctx context.Context, limit int) ([]repository.TenantDelivery, error)
	EnqueueNode(ctx context.Context, msg repository.NodeMessage) error
	Ack(ctx context.Context, deliveryID int64) error
	Nack(ctx context.Context, deliveryID int64) error
}

// NodeStore provides node reads.
type NodeStore interface {
	Get(ctx context.Context, tenantID, id string) (*tree.Node, error)
	ListByType(ctx context.Context, tenantID, treeID, nodeType string) ([]tree.Node, error)
}

// DefinitionStore provides definition reads for recompute and cascade.
type DefinitionStore interface {
	GetAggregate(ctx context.Context, tenantID, id string) (*aggregate.Definition, error)
	FormulasReferencing(ctx context.Context, tenantID, name string) ([]aggregate.Formula, error)
}

// ValueStore persists computed slots.
type ValueStore interface {
	SetAggregate(ctx context.Context, tenantID, nodeID, property string, value *string) (bool, error)
	SetFormula(ctx context.Context, tenantID, nodeID, property string, value *string) (bool, error)
}

// Ledger clears processed entries and reaps orphans.
type Ledger interface {
	Clear(ctx context.Context, tenantID, nodeID, definitionID string) error
	MarkStale(ctx context.Context, tenantID, nodeID, definitionID string) (bool, error)
	ReapOrphans(ctx context.Context, tenantID string) error
}

// Evaluator computes an aggregate value for a node.
type Evaluator interface {
	ValueFor(ctx context.Context, def *aggregate.Definition, nodeID string) (*decimal.Decimal, error)
}

// FormulaEvaluator computes a derived value for a node.
type FormulaEvaluator interface {
	Evaluate(ctx context.Context, tenantID string, formula aggregate.Formula, nodeID string) (*decimal.Decimal, error)
}

// DerivedPublisher fans a changed derived slot out to dependent aggregates.
type DerivedPublisher interface {
	OnDerivedChanged(ctx context.Context, tenantID string, node tree.Node, derivedName, requestedBy string) error
}

// PrecisionReader resolves tenant decimal precision.
type PrecisionReader interface {
	Precision(ctx context.Context, tenantID string) (int32, error)
}
