package tree

import "context"

// NodeStore provides the node reads the hierarchy needs.
type NodeStore interface {
	Get(ctx context.Context, tenantID, id string) (*Node, error)
	Children(ctx context.Context, tenantID, parentID string) ([]Node, error)
}
