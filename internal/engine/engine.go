// Package engine ties the hierarchy, ledger, publisher and workers into the
// single surface the host application talks to: inbound change events, value
// and staleness queries, and the queue drain hook.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/treeline/rollup/internal/domain/ledger"
	"github.com/treeline/rollup/internal/domain/publisher"
	"github.com/treeline/rollup/internal/domain/tree"
	"github.com/treeline/rollup/internal/domain/worker"
	"github.com/treeline/rollup/internal/repository"
	"github.com/treeline/rollup/internal/storage"
)

// Engine is the host-facing facade.
type Engine struct {
	publisher *publisher.Service
	worker    *worker.Worker
	processor *worker.Processor
	ledger    *ledger.Service
	nodes     repository.NodeRepository
	values    repository.ValueRepository
	defs      repository.DefinitionRepository
	logger    *slog.Logger
}

// New creates the engine facade.
func New(
	pub *publisher.Service,
	wrk *worker.Worker,
	proc *worker.Processor,
	led *ledger.Service,
	nodes repository.NodeRepository,
	values repository.ValueRepository,
	defs repository.DefinitionRepository,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		publisher: pub,
		worker:    wrk,
		processor: proc,
		ledger:    led,
		nodes:     nodes,
		values:    values,
		defs:      defs,
		logger:    logger,
	}
}

// Value is a queried aggregate value with its staleness flag. A nil Value is
// null: the aggregate has no contributing members.
type Value struct {
	Value *string `json:"value"`
	Stale bool    `json:"stale"`
}

// ValueOf returns the currently materialized value of an aggregate on a node,
// plus whether a recompute is outstanding. The value may lag pending work;
// Stale tells the caller so.
func (e *Engine) ValueOf(ctx context.Context, tenantID, nodeID, definitionID string) (*Value, error) {
	def, err := e.defs.GetAggregate(ctx, tenantID, definitionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("loading definition: %w", err)
	}

	value, err := e.values.PropertyValue(ctx, tenantID, nodeID, def.Name)
	if err != nil {
		return nil, fmt.Errorf("reading value: %w", err)
	}

	stale, err := e.ledger.IsStale(ctx, tenantID, nodeID, definitionID)
	if err != nil {
		return nil, fmt.Errorf("checking staleness: %w", err)
	}

	return &Value{Value: value, Stale: stale}, nil
}

// IsStale reports whether a recompute is outstanding for the pair.
func (e *Engine) IsStale(ctx context.Context, tenantID, nodeID, definitionID string) (bool, error) {
	return e.ledger.IsStale(ctx, tenantID, nodeID, definitionID)
}

// ValueChanged handles a host notification that a node's stored properties
// changed. An empty properties slice means "assume anything changed".
func (e *Engine) ValueChanged(ctx context.Context, tenantID, nodeID string, properties []string) error {
	return e.publisher.OnValueChanged(ctx, tenantID, nodeID, properties)
}

// NodeCreated handles a node insertion.
func (e *Engine) NodeCreated(ctx context.Context, tenantID, nodeID string) error {
	return e.publisher.OnNodeCreated(ctx, tenantID, nodeID)
}

// NodeDeleted handles a node deletion. The node row is already gone, so the
// former parent id is the only anchor left; the subtree it rooted loses its
// contribution along that chain.
func (e *Engine) NodeDeleted(ctx context.Context, tenantID, nodeID string, parentID *string) error {
	snapshot := tree.Node{ID: nodeID, TenantID: tenantID, ParentID: parentID}
	if parentID != nil {
		parent, err := e.nodes.Get(ctx, tenantID, *parentID)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("loading former parent: %w", err)
			}
			// Whole subtree deleted: nothing left to recompute against.
			return e.ledger.ReapOrphans(ctx, tenantID)
		}
		snapshot.TreeID = parent.TreeID
	}
	return e.publisher.OnNodeDeleted(ctx, tenantID, snapshot)
}

// NodeMoved handles a reparenting. Both the old and new ancestor chains are
// affected.
func (e *Engine) NodeMoved(ctx context.Context, tenantID, nodeID string, oldParentID, newParentID *string) error {
	return e.publisher.OnStructuralChange(ctx, tenantID, nodeID, oldParentID, newParentID)
}

// NodeRetyped handles a node type change.
func (e *Engine) NodeRetyped(ctx context.Context, tenantID, nodeID, oldType, newType string) error {
	return e.publisher.OnNodeRetyped(ctx, tenantID, nodeID, oldType, newType)
}

// PredicateDataChanged handles edits to predicate inputs (tags, variables)
// that shift membership without touching node values or structure.
func (e *Engine) PredicateDataChanged(ctx context.Context, tenantID string, definitionIDs []string) error {
	return e.publisher.OnPredicateDataChanged(ctx, tenantID, definitionIDs)
}

// RecomputeRequest schedules a tenant-wide recompute for one definition, or
// for all of the tenant's definitions when definitionID is empty.
func (e *Engine) RecomputeRequest(ctx context.Context, tenantID, definitionID, requestedBy string) error {
	return e.publisher.OnTenantWideRequest(ctx, tenantID, definitionID, requestedBy)
}

// RunOnce drains one batch from each channel: tenant expansions first so the
// node messages they emit are visible to this same drain, then node
// recomputes. Returns the total number of messages processed.
func (e *Engine) RunOnce(ctx context.Context, batchSize int) (int, error) {
	expanded, err := e.processor.RunOnce(ctx, batchSize)
	if err != nil {
		return expanded, fmt.Errorf("draining tenant channel: %w", err)
	}
	processed, err := e.worker.RunOnce(ctx, batchSize)
	if err != nil {
		return expanded + processed, fmt.Errorf("draining node channel: %w", err)
	}
	return expanded + processed, nil
}

// Drain runs batches until both channels are empty or ctx is done. The
// cascade can enqueue follow-up work mid-drain, so one pass is not enough.
func (e *Engine) Drain(ctx context.Context, batchSize int) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		processed, err := e.RunOnce(ctx, batchSize)
		total += processed
		if err != nil {
			return total, err
		}
		if processed == 0 {
			return total, nil
		}
	}
}
