package tree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/treeline/rollup/internal/storage"
)

// Hierarchy is a read-only view of a tree's structure: parent/child edges,
// ancestor and descendant queries. It never mutates nodes.
type Hierarchy struct {
	nodes  NodeStore
	logger *slog.Logger
}

// NewHierarchy creates a hierarchy over a node store.
func NewHierarchy(nodes NodeStore, logger *slog.Logger) *Hierarchy {
	return &Hierarchy{nodes: nodes, logger: logger}
}

// AncestorsOf walks parent edges from node to the root, or to the first
// ancestor of uptoType (inclusive) when uptoType is non-empty. The node
// itself is not included. Returns ErrNotInTree when the node is detached.
func (h *Hierarchy) AncestorsOf(ctx context.Context, tenantID, nodeID, uptoType string) ([]Node, error) {
	node, err := h.nodes.Get(ctx, tenantID, nodeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotInTree
		}
		return nil, fmt.Errorf("loading node: %w", err)
	}

	var ancestors []Node
	current := node
	for current.ParentID != nil {
		parent, err := h.nodes.Get(ctx, tenantID, *current.ParentID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// Dangling parent edge: treat the walk as ending here.
				break
			}
			return nil, fmt.Errorf("loading ancestor: %w", err)
		}
		ancestors = append(ancestors, *parent)
		if uptoType != "" && parent.Type == uptoType {
			break
		}
		current = parent
	}

	return ancestors, nil
}

// ChildrenOfType returns the structurally nearest descendants of the given
// type. Intervening levels of other types are skipped over: a child of type
// T two levels down still counts, but nothing below a matching node does.
func (h *Hierarchy) ChildrenOfType(ctx context.Context, tenantID, nodeID, childType string) ([]Node, error) {
	var matched []Node

	frontier := []string{nodeID}
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]

		children, err := h.nodes.Children(ctx, tenantID, next)
		if err != nil {
			return nil, fmt.Errorf("loading children: %w", err)
		}
		for _, child := range children {
			if child.Type == childType {
				matched = append(matched, child)
				continue
			}
			frontier = append(frontier, child.ID)
		}
	}

	return matched, nil
}

// Descendants returns the full subtree below node, optionally restricted to
// a single type. The node itself is not included.
func (h *Hierarchy) Descendants(ctx context.Context, tenantID, nodeID, typeFilter string) ([]Node, error) {
	var result []Node

	frontier := []string{nodeID}
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]

		children, err := h.nodes.Children(ctx, tenantID, next)
		if err != nil {
			return nil, fmt.Errorf("loading children: %w", err)
		}
		for _, child := range children {
			if typeFilter == "" || child.Type == typeFilter {
				result = append(result, child)
			}
			frontier = append(frontier, child.ID)
		}
	}

	return result, nil
}

// AffectedAncestors returns every ancestor up to the root whose subtree
// contains the node. The set is a deliberate superset: any aggregate defined
// at any ancestor level could be affected by a change to this node, and
// recomputing an unaffected one is harmless.
func (h *Hierarchy) AffectedAncestors(ctx context.Context, tenantID, nodeID string) ([]Node, error) {
	return h.AncestorsOf(ctx, tenantID, nodeID, "")
}
