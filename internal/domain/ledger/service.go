package ledger

import (
	"context"
	"fmt"
	"log/slog"
)

// Service is the staleness ledger: a deduplicating record of pending
// recomputes, at most one live entry per (tenant, node, definition) tuple.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a ledger service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// MarkStale records that the tuple needs a recompute. Returns true when the
// entry is new; false means one was already outstanding, and the caller must
// not schedule duplicate work. A concurrent-insert uniqueness violation is
// the same "already scheduled" outcome, not an error.
func (s *Service) MarkStale(ctx context.Context, tenantID, nodeID, definitionID string) (bool, error) {
	inserted, err := s.store.Insert(ctx, tenantID, nodeID, definitionID)
	if err != nil {
		return false, fmt.Errorf("inserting stale entry: %w", err)
	}
	return inserted, nil
}

// Clear removes the tuple's entry after a successful recompute.
func (s *Service) Clear(ctx context.Context, tenantID, nodeID, definitionID string) error {
	if err := s.store.Delete(ctx, tenantID, nodeID, definitionID); err != nil {
		return fmt.Errorf("clearing stale entry: %w", err)
	}
	return nil
}

// IsStale reports whether a recompute is outstanding for the tuple.
func (s *Service) IsStale(ctx context.Context, tenantID, nodeID, definitionID string) (bool, error) {
	exists, err := s.store.Exists(ctx, tenantID, nodeID, definitionID)
	if err != nil {
		return false, fmt.Errorf("checking stale entry: %w", err)
	}
	return exists, nil
}

// Count returns the number of outstanding entries for a tenant.
func (s *Service) Count(ctx context.Context, tenantID string) (int, error) {
	count, err := s.store.Count(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("counting stale entries: %w", err)
	}
	return count, nil
}

// ReapOrphans drops entries whose node or definition has been deleted.
// Invoked opportunistically during processing rather than on a schedule.
func (s *Service) ReapOrphans(ctx context.Context, tenantID string) error {
	reaped, err := s.store.ReapOrphans(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("reaping orphaned entries: %w", err)
	}
	if reaped > 0 {
		s.logger.Debug("reaped orphaned stale entries", "tenant", tenantID, "count", reaped)
	}
	return nil
}
