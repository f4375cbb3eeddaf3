package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/treeline/rollup/internal/domain/aggregate"
	"github.com/treeline/rollup/internal/domain/tree"
	"github.com/treeline/rollup/internal/repository"
	"github.com/treeline/rollup/internal/storage"
)

// Service turns host mutations into the minimal set of recompute intents.
// For every affected (ancestor, definition) pair it marks the ledger and,
// only when the entry is newly marked, emits exactly one message. Entries
// already stale are never re-emitted, which bounds message volume under bulk
// edits to the number of distinct affected pairs rather than the number of
// edits.
type Service struct {
	hierarchy Hierarchy
	nodes     NodeStore
	defs      DefinitionStore
	ledger    Ledger
	queue     Queue
	logger    *slog.Logger
}

// NewService creates a change publisher.
func NewService(
	hierarchy Hierarchy,
	nodes NodeStore,
	defs DefinitionStore,
	ledger Ledger,
	queue Queue,
	logger *slog.Logger,
) *Service {
	return &Service{
		hierarchy: hierarchy,
		nodes:     nodes,
		defs:      defs,
		ledger:    ledger,
		queue:     queue,
		logger:    logger,
	}
}

// OnValueChanged fans a target-value edit out to every ancestor whose
// aggregates could read the changed properties. An empty changedProperties
// slice means "assume everything changed". The filter errs on the side of
// inclusion — a missed fan-out is a correctness bug, a spurious one is just a
// wasted recompute: COUNT, predicate-filtered and formula-sourced aggregates
// are always fanned out, since predicate results and formula expressions can
// depend on properties this filter cannot see.
func (s *Service) OnValueChanged(ctx context.Context, tenantID, nodeID string, changedProperties []string) error {
	node, err := s.nodes.Get(ctx, tenantID, nodeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("loading node: %w", err)
	}

	ancestors, err := s.hierarchy.AffectedAncestors(ctx, tenantID, nodeID)
	if err != nil {
		if errors.Is(err, tree.ErrNotInTree) {
			return nil
		}
		return fmt.Errorf("resolving affected ancestors: %w", err)
	}

	relevant := func(def *aggregate.Definition) bool {
		if len(changedProperties) == 0 {
			return true
		}
		if def.Source == "" || def.Scope.Predicate != "" {
			return true
		}
		if def.SourceKind == aggregate.SourceFormula {
			return true
		}
		return slices.Contains(changedProperties, def.Source)
	}

	return s.fanOut(ctx, tenantID, node.TreeID, ancestors, "", relevant)
}

// OnStructuralChange fans a move out along both the old and the new ancestor
// chains: aggregates on the source subtree lose the node's contribution,
// aggregates on the destination subtree gain it.
func (s *Service) OnStructuralChange(ctx context.Context, tenantID, nodeID string, oldParentID, newParentID *string) error {
	node, err := s.nodes.Get(ctx, tenantID, nodeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("loading node: %w", err)
	}

	affected, err := s.hierarchy.AffectedAncestors(ctx, tenantID, nodeID)
	if err != nil && !errors.Is(err, tree.ErrNotInTree) {
		return fmt.Errorf("resolving new-chain ancestors: %w", err)
	}

	oldChain, err := s.chainFrom(ctx, tenantID, oldParentID)
	if err != nil {
		return fmt.Errorf("resolving old-chain ancestors: %w", err)
	}

	for _, ancestor := range oldChain {
		if !containsNode(affected, ancestor.ID) {
			affected = append(affected, ancestor)
		}
	}

	return s.fanOut(ctx, tenantID, node.TreeID, affected, "", allDefinitions)
}

// OnNodeCreated fans out along the new node's ancestor chain.
func (s *Service) OnNodeCreated(ctx context.Context, tenantID, nodeID string) error {
	return s.OnValueChanged(ctx, tenantID, nodeID, nil)
}

// OnNodeDeleted fans out along the deleted node's former ancestor chain. The
// caller passes the last known snapshot since the node itself is gone.
// Outstanding ledger entries for the node are reaped rather than left
// dangling.
func (s *Service) OnNodeDeleted(ctx context.Context, tenantID string, node tree.Node) error {
	chain, err := s.chainFrom(ctx, tenantID, node.ParentID)
	if err != nil {
		return fmt.Errorf("resolving former ancestors: %w", err)
	}

	if err := s.fanOut(ctx, tenantID, node.TreeID, chain, "", allDefinitions); err != nil {
		return err
	}

	if err := s.ledger.ReapOrphans(ctx, tenantID); err != nil {
		return fmt.Errorf("reaping ledger entries: %w", err)
	}
	return nil
}

// OnNodeRetyped fans out along the ancestor chain and additionally marks the
// node itself stale for every definition hosted on the old or new type: the
// worker clears slots the node no longer hosts and computes the ones it
// newly hosts.
func (s *Service) OnNodeRetyped(ctx context.Context, tenantID, nodeID, oldType, newType string) error {
	node, err := s.nodes.Get(ctx, tenantID, nodeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("loading node: %w", err)
	}

	defs, err := s.defs.ListAggregatesForTree(ctx, tenantID, node.TreeID)
	if err != nil {
		return fmt.Errorf("listing definitions: %w", err)
	}

	for i := range defs {
		def := &defs[i]
		if !def.AppliesToType(oldType) && !def.AppliesToType(newType) {
			continue
		}
		if err := s.markAndEmit(ctx, tenantID, *node, def, ""); err != nil {
			return err
		}
	}

	ancestors, err := s.hierarchy.AffectedAncestors(ctx, tenantID, nodeID)
	if err != nil {
		if errors.Is(err, tree.ErrNotInTree) {
			return nil
		}
		return fmt.Errorf("resolving affected ancestors: %w", err)
	}
	return s.fanOut(ctx, tenantID, node.TreeID, ancestors, "", allDefinitions)
}

// OnDerivedChanged fans a changed formula slot on a node out to the ancestor
// aggregates that source it. The recompute worker drives this after a
// cascade step; termination is guaranteed by the acyclic definition
// reference graph plus the ledger's insert-if-absent dedup.
func (s *Service) OnDerivedChanged(ctx context.Context, tenantID string, node tree.Node, derivedName, requestedBy string) error {
	defs, err := s.defs.AggregatesBySource(ctx, tenantID, derivedName)
	if err != nil {
		return fmt.Errorf("resolving dependent aggregates: %w", err)
	}
	if len(defs) == 0 {
		return nil
	}

	ancestors, err := s.hierarchy.AffectedAncestors(ctx, tenantID, node.ID)
	if err != nil {
		if errors.Is(err, tree.ErrNotInTree) {
			return nil
		}
		return fmt.Errorf("resolving affected ancestors: %w", err)
	}

	for _, ancestor := range ancestors {
		for i := range defs {
			def := &defs[i]
			if def.TreeID != node.TreeID || !def.AppliesToType(ancestor.Type) {
				continue
			}
			if err := s.markAndEmit(ctx, tenantID, ancestor, def, requestedBy); err != nil {
				return err
			}
		}
	}
	return nil
}

// OnPredicateDataChanged schedules tenant-wide recomputes for definitions
// whose predicate outcome may have shifted even though no node structure or
// target value changed (tag edits, renamed enumerations, variable updates).
func (s *Service) OnPredicateDataChanged(ctx context.Context, tenantID string, definitionIDs []string) error {
	for _, id := range definitionIDs {
		if err := s.OnTenantWideRequest(ctx, tenantID, id, ""); err != nil {
			return err
		}
	}
	return nil
}

// OnTenantWideRequest marks every node hosting the definition stale in one
// ledger pass and emits a single tenant-scoped message per definition. An
// empty definitionID requests all of the tenant's definitions.
func (s *Service) OnTenantWideRequest(ctx context.Context, tenantID, definitionID, requestedBy string) error {
	var defs []aggregate.Definition
	if definitionID == "" {
		all, err := s.defs.ListAggregates(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("listing definitions: %w", err)
		}
		defs = all
	} else {
		def, err := s.defs.GetAggregate(ctx, tenantID, definitionID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("loading definition: %w", err)
		}
		defs = []aggregate.Definition{*def}
	}

	for i := range defs {
		def := &defs[i]

		hosts, err := s.nodes.ListByType(ctx, tenantID, def.TreeID, def.OwnerType)
		if err != nil {
			return fmt.Errorf("listing host nodes: %w", err)
		}
		for _, host := range hosts {
			if _, err := s.ledger.MarkStale(ctx, tenantID, host.ID, def.ID); err != nil {
				return fmt.Errorf("marking stale: %w", err)
			}
		}

		err = s.queue.EnqueueTenant(ctx, repository.TenantMessage{
			TenantID:     tenantID,
			DefinitionID: def.ID,
			RequestedBy:  requestedBy,
		})
		if err != nil {
			return fmt.Errorf("enqueueing tenant message: %w", err)
		}
		s.logger.Info("tenant-wide recompute requested",
			"tenant", tenantID,
			"definition", def.Name,
			"hosts", len(hosts))
	}
	return nil
}

func (s *Service) fanOut(
	ctx context.Context,
	tenantID, treeID string,
	ancestors []tree.Node,
	requestedBy string,
	relevant func(*aggregate.Definition) bool,
) error {
	if len(ancestors) == 0 {
		return nil
	}

	defs, err := s.defs.ListAggregatesForTree(ctx, tenantID, treeID)
	if err != nil {
		return fmt.Errorf("listing definitions: %w", err)
	}

	for _, ancestor := range ancestors {
		for i := range defs {
			def := &defs[i]
			if !def.AppliesToType(ancestor.Type) || !relevant(def) {
				continue
			}
			if err := s.markAndEmit(ctx, tenantID, ancestor, def, requestedBy); err != nil {
				return err
			}
		}
	}
	return nil
}

// markAndEmit marks the pair stale and, only when newly marked, emits one
// message and bumps the ancestor's generation stamp. The stamp is a
// notification side channel for read-through caches, not a correctness
// dependency.
func (s *Service) markAndEmit(ctx context.Context, tenantID string, target tree.Node, def *aggregate.Definition, requestedBy string) error {
	marked, err := s.ledger.MarkStale(ctx, tenantID, target.ID, def.ID)
	if err != nil {
		return fmt.Errorf("marking stale: %w", err)
	}
	if !marked {
		return nil
	}

	err = s.queue.EnqueueNode(ctx, repository.NodeMessage{
		TenantID:     tenantID,
		NodeID:       target.ID,
		DefinitionID: def.ID,
		RequestedBy:  requestedBy,
	})
	if err != nil {
		return fmt.Errorf("enqueueing node message: %w", err)
	}

	if err := s.nodes.BumpGeneration(ctx, tenantID, target.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("bumping generation: %w", err)
	}
	return nil
}

func (s *Service) chainFrom(ctx context.Context, tenantID string, startID *string) ([]tree.Node, error) {
	var chain []tree.Node
	current := startID
	for current != nil {
		node, err := s.nodes.Get(ctx, tenantID, *current)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				break
			}
			return nil, err
		}
		chain = append(chain, *node)
		current = node.ParentID
	}
	return chain, nil
}

func allDefinitions(*aggregate.Definition) bool { return true }

func containsNode(nodes []tree.Node, id string) bool {
	for _, n := range nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}
