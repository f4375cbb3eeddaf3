package ledger

import "context"

// Store persists stale entries with an insert-if-absent guarantee.
type Store interface {
	Insert(ctx context.Context, tenantID, nodeID, definitionID string) (bool, error)
	Delete(ctx context.Context, tenantID, nodeID, definitionID string) error
	Exists(ctx context.Context, tenantID, nodeID, definitionID string) (bool, error)
	Count(ctx context.Context, tenantID string) (int, error)
	ReapOrphans(ctx context.Context, tenantID string) (int, error)
}
