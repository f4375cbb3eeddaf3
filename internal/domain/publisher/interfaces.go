package publisher

import (
	"context"

	"github.com/treeline/rollup/internal/domain/aggregate"
	"github.com/treeline/rollup/internal/domain/tree"
	"github.com/treeline/rollup/internal/repository"
)

// Hierarchy provides ancestor queries for fan-out.
type Hierarchy interface {
	AffectedAncestors(ctx context.Context, tenantID, nodeID string) ([]tree.Node, error)
}

// NodeStore provides the node reads and the generation side channel.
type NodeStore interface {
	Get(ctx context.Context, tenantID, id string) (*tree.Node, error)
	ListByType(ctx context.Context, tenantID, treeID, nodeType string) ([]tree.Node, error)
	BumpGeneration(ctx context.Context, tenantID, id string) error
}

// DefinitionStore provides aggregate definition lookups.
type DefinitionStore interface {
	GetAggregate(ctx context.Context, tenantID, id string) (*aggregate.Definition, error)
	ListAggregates(ctx context.Context, tenantID string) ([]aggregate.Definition, error)
	ListAggregatesForTree(ctx context.Context, tenantID, treeID string) ([]aggregate.Definition, error)
	AggregatesBySource(ctx context.Context, tenantID, source string) ([]aggregate.Definition, error)
}

// Ledger marks staleness and reaps entries for deleted referents.
type Ledger interface {
	MarkStale(ctx context.Context, tenantID, nodeID, definitionID string) (bool, error)
	ReapOrphans(ctx context.Context, tenantID string) error
}

// Queue emits recompute messages.
type Queue interface {
	EnqueueNode(ctx context.Context, msg repository.NodeMessage) error
	EnqueueTenant(ctx context.Context, msg repository.TenantMessage) error
}
