package repository

import (
	"context"

	"github.com/treeline/rollup/internal/domain/aggregate"
	"github.com/treeline/rollup/internal/domain/tree"
)

// TenantRepository manages tenant persistence
type TenantRepository interface {
	Create(ctx context.Context, tenantID, name string, precision int32) error
	Precision(ctx context.Context, tenantID string) (int32, error)
	SetPrecision(ctx context.Context, tenantID string, precision int32) error
	Exists(ctx context.Context, tenantID string) (bool, error)
}

// TreeRepository manages tree structure persistence
type TreeRepository interface {
	Create(ctx context.Context, tenantID string, structure *tree.Structure) error
	Get(ctx context.Context, tenantID, id string) (*tree.Structure, error)
	RemoveLevel(ctx context.Context, tenantID, treeID string, position int) error
}

// NodeRepository manages node persistence
type NodeRepository interface {
	Create(ctx context.Context, tenantID string, node *tree.Node) error
	Get(ctx context.Context, tenantID, id string) (*tree.Node, error)
	Delete(ctx context.Context, tenantID, id string) error
	SetParent(ctx context.Context, tenantID, id string, parentID *string) error
	SetType(ctx context.Context, tenantID, id, nodeType string) error
	Children(ctx context.Context, tenantID, parentID string) ([]tree.Node, error)
	ListByType(ctx context.Context, tenantID, treeID, nodeType string) ([]tree.Node, error)
	BumpGeneration(ctx context.Context, tenantID, id string) error
}

// ValueRepository manages node property values and their history. Aggregate
// slot writes never create version records; user edits and formula writes do.
type ValueRepository interface {
	PropertyValue(ctx context.Context, tenantID, nodeID, property string) (*string, error)
	// SetProperty writes a user-authored value and records a version.
	SetProperty(ctx context.Context, tenantID, nodeID, property string, value *string) (changed bool, err error)
	// SetAggregate writes a derived aggregate slot without recording a version.
	SetAggregate(ctx context.Context, tenantID, nodeID, property string, value *string) (changed bool, err error)
	// SetFormula writes a derived formula slot and records a version when the
	// value changed; formula history is user-visible, aggregate history is not.
	SetFormula(ctx context.Context, tenantID, nodeID, property string, value *string) (changed bool, err error)
	VersionCount(ctx context.Context, tenantID, nodeID string) (int, error)
}

// DefinitionRepository manages aggregate and formula definitions
type DefinitionRepository interface {
	CreateAggregate(ctx context.Context, tenantID string, def *aggregate.Definition) error
	GetAggregate(ctx context.Context, tenantID, id string) (*aggregate.Definition, error)
	DeleteAggregate(ctx context.Context, tenantID, id string) error
	ListAggregates(ctx context.Context, tenantID string) ([]aggregate.Definition, error)
	ListAggregatesForTree(ctx context.Context, tenantID, treeID string) ([]aggregate.Definition, error)
	// AggregatesBySource returns definitions whose target value source is the
	// named property or formula.
	AggregatesBySource(ctx context.Context, tenantID, source string) ([]aggregate.Definition, error)
	CreateFormula(ctx context.Context, tenantID string, formula *aggregate.Formula) error
	GetFormula(ctx context.Context, tenantID, id string) (*aggregate.Formula, error)
	// FormulaByName resolves a formula by its slot name; names are unique per
	// tenant.
	FormulaByName(ctx context.Context, tenantID, name string) (*aggregate.Formula, error)
	// FormulasReferencing returns formulas whose expression references the
	// named slot directly.
	FormulasReferencing(ctx context.Context, tenantID, name string) ([]aggregate.Formula, error)
}

// LedgerRepository manages stale entries. Insert is insert-if-absent backed
// by a storage uniqueness constraint; this is the only shared-mutable-state
// discipline in the system.
type LedgerRepository interface {
	Insert(ctx context.Context, tenantID, nodeID, definitionID string) (inserted bool, err error)
	Delete(ctx context.Context, tenantID, nodeID, definitionID string) error
	Exists(ctx context.Context, tenantID, nodeID, definitionID string) (bool, error)
	Count(ctx context.Context, tenantID string) (int, error)
	// ReapOrphans removes entries whose node or definition no longer exists.
	ReapOrphans(ctx context.Context, tenantID string) (int, error)
}

// PredicateDataRepository manages the node tags and tenant variables read by
// membership predicates
type PredicateDataRepository interface {
	HasTag(ctx context.Context, tenantID, nodeID, tag string) (bool, error)
	AddTag(ctx context.Context, tenantID, nodeID, tag string) error
	RemoveTag(ctx context.Context, tenantID, nodeID, tag string) error
	Variable(ctx context.Context, tenantID, name string) (*string, error)
	SetVariable(ctx context.Context, tenantID, name, value string) error
}

// APIKeyRepository resolves hashed API keys to tenants
type APIKeyRepository interface {
	Create(ctx context.Context, keyHash, tenantID, description string) error
	ResolveTenant(ctx context.Context, keyHash string) (string, error)
	TouchLastUsed(ctx context.Context, keyHash string) error
}

// QueueRepository manages the two persistent message channels with
// lease/ack/nack semantics. A nacked delivery becomes leasable again, which
// is the at-least-once retry path.
type QueueRepository interface {
	EnqueueNode(ctx context.Context, msg NodeMessage) error
	EnqueueTenant(ctx context.Context, msg TenantMessage) error
	LeaseNode(ctx context.Context, limit int) ([]NodeDelivery, error)
	LeaseTenant(ctx context.Context, limit int) ([]TenantDelivery, error)
	Ack(ctx context.Context, deliveryID int64) error
	Nack(ctx context.Context, deliveryID int64) error
}
