package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/treeline/rollup/internal/repository"
	"github.com/treeline/rollup/internal/storage"
)

// Processor expands tenant-scoped recompute requests into node-scoped
// messages. The recompute worker never sees tenant messages directly.
type Processor struct {
	queue  Queue
	nodes  NodeStore
	defs   DefinitionStore
	ledger Ledger
	logger *slog.Logger
}

// NewProcessor creates a projects processor.
func NewProcessor(queue Queue, nodes NodeStore, defs DefinitionStore, ledger Ledger, logger *slog.Logger) *Processor {
	return &Processor{
		queue:  queue,
		nodes:  nodes,
		defs:   defs,
		ledger: ledger,
		logger: logger,
	}
}

// RunOnce drains up to batchSize tenant messages, emitting one node message
// per node hosting the definition. Duplicate node messages are possible when
// a node was independently scheduled earlier; idempotent recompute makes
// that harmless.
func (p *Processor) RunOnce(ctx context.Context, batchSize int) (int, error) {
	deliveries, err := p.queue.LeaseTenant(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("leasing tenant messages: %w", err)
	}

	processed := 0
	for _, delivery := range deliveries {
		if err := p.expand(ctx, delivery.Message); err != nil {
			p.logger.Warn("tenant expansion failed, releasing message",
				"tenant", delivery.Message.TenantID,
				"definition", delivery.Message.DefinitionID,
				"error", err)
			if nackErr := p.queue.Nack(ctx, delivery.ID); nackErr != nil {
				return processed, fmt.Errorf("releasing message: %w", nackErr)
			}
			continue
		}
		if err := p.queue.Ack(ctx, delivery.ID); err != nil {
			return processed, fmt.Errorf("acknowledging message: %w", err)
		}
		processed++
	}
	return processed, nil
}

func (p *Processor) expand(ctx context.Context, msg repository.TenantMessage) error {
	def, err := p.defs.GetAggregate(ctx, msg.TenantID, msg.DefinitionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Definition deleted since the request: drop and reap.
			if err := p.ledger.ReapOrphans(ctx, msg.TenantID); err != nil {
				return fmt.Errorf("reaping orphans: %w", err)
			}
			return nil
		}
		return fmt.Errorf("loading definition: %w", err)
	}

	hosts, err := p.nodes.ListByType(ctx, msg.TenantID, def.TreeID, def.OwnerType)
	if err != nil {
		return fmt.Errorf("listing host nodes: %w", err)
	}

	for _, host := range hosts {
		if _, err := p.ledger.MarkStale(ctx, msg.TenantID, host.ID, def.ID); err != nil {
			return fmt.Errorf("marking stale: %w", err)
		}
		err := p.queue.EnqueueNode(ctx, repository.NodeMessage{
			TenantID:     msg.TenantID,
			NodeID:       host.ID,
			DefinitionID: def.ID,
			RequestedBy:  msg.RequestedBy,
		})
		if err != nil {
			return fmt.Errorf("enqueueing node message: %w", err)
		}
	}

	p.logger.Info("expanded tenant recompute",
		"tenant", msg.TenantID,
		"definition", def.Name,
		"nodes", len(hosts))
	return nil
}
