package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/treeline/rollup/internal/domain/aggregate"
	"github.com/treeline/rollup/internal/domain/tree"
	"github.com/treeline/rollup/internal/repository"
	"github.com/treeline/rollup/internal/storage"
)

// Worker consumes node-scoped recompute messages. Each message runs a
// Received → Computing → {Persisted | Retried | Dropped} lifecycle:
// transient storage contention leaves the message leased-and-nacked for
// redelivery, a vanished referent drops it, and everything else persists a
// fresh value computed from current child state.
type Worker struct {
	queue     Queue
	nodes     NodeStore
	defs      DefinitionStore
	values    ValueStore
	ledger    Ledger
	evaluator Evaluator
	formulas  FormulaEvaluator
	publisher DerivedPublisher
	tenants   PrecisionReader
	logger    *slog.Logger
}

// NewWorker creates a recompute worker.
func NewWorker(
	queue Queue,
	nodes NodeStore,
	defs DefinitionStore,
	values ValueStore,
	ledger Ledger,
	evaluator Evaluator,
	formulas FormulaEvaluator,
	publisher DerivedPublisher,
	tenants PrecisionReader,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		queue:     queue,
		nodes:     nodes,
		defs:      defs,
		values:    values,
		ledger:    ledger,
		evaluator: evaluator,
		formulas:  formulas,
		publisher: publisher,
		tenants:   tenants,
		logger:    logger,
	}
}

// RunOnce drains up to batchSize node messages and returns how many were
// processed to completion. Failed messages are released for redelivery;
// duplicate delivery is safe because recomputation is idempotent.
func (w *Worker) RunOnce(ctx context.Context, batchSize int) (int, error) {
	deliveries, err := w.queue.LeaseNode(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("leasing node messages: %w", err)
	}

	processed := 0
	for _, delivery := range deliveries {
		if err := w.process(ctx, delivery.Message); err != nil {
			level := slog.LevelError
			if errors.Is(err, storage.ErrBusy) {
				level = slog.LevelWarn
			}
			w.logger.Log(ctx, level, "recompute failed, releasing message",
				"tenant", delivery.Message.TenantID,
				"node", delivery.Message.NodeID,
				"definition", delivery.Message.DefinitionID,
				"error", err)
			if nackErr := w.queue.Nack(ctx, delivery.ID); nackErr != nil {
				return processed, fmt.Errorf("releasing message: %w", nackErr)
			}
			continue
		}
		if err := w.queue.Ack(ctx, delivery.ID); err != nil {
			return processed, fmt.Errorf("acknowledging message: %w", err)
		}
		processed++
	}
	return processed, nil
}

func (w *Worker) process(ctx context.Context, msg repository.NodeMessage) error {
	def, err := w.defs.GetAggregate(ctx, msg.TenantID, msg.DefinitionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return w.drop(ctx, msg)
		}
		return fmt.Errorf("loading definition: %w", err)
	}

	node, err := w.nodes.Get(ctx, msg.TenantID, msg.NodeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return w.drop(ctx, msg)
		}
		return fmt.Errorf("loading node: %w", err)
	}

	// A node retyped away from the owner type gets its slot cleared to null
	// rather than silently keeping the stale value.
	if !def.AppliesToType(node.Type) {
		if _, err := w.values.SetAggregate(ctx, msg.TenantID, node.ID, def.Name, nil); err != nil {
			return fmt.Errorf("clearing aggregate slot: %w", err)
		}
		return w.clear(ctx, msg)
	}

	value, err := w.evaluator.ValueFor(ctx, def, node.ID)
	if err != nil {
		return fmt.Errorf("computing value: %w", err)
	}

	precision, err := w.tenants.Precision(ctx, msg.TenantID)
	if err != nil {
		return fmt.Errorf("resolving precision: %w", err)
	}

	// Aggregate slot writes are not user-authored edits: no version record.
	changed, err := w.values.SetAggregate(ctx, msg.TenantID, node.ID, def.Name, aggregate.FormatValue(value, precision))
	if err != nil {
		return fmt.Errorf("persisting value: %w", err)
	}

	// Only an actual value change cascades; recomputing to the same value
	// must not generate further work or history.
	if changed {
		seen := map[string]bool{}
		if err := w.cascade(ctx, msg.TenantID, *node, def.Name, msg.RequestedBy, precision, seen); err != nil {
			return err
		}
	}

	return w.clear(ctx, msg)
}

// cascade recomputes the node's formulas that reference the changed slot and
// fans any formula change out to ancestor aggregates sourcing it. The
// definition reference graph is acyclic by construction; the seen set guards
// against malformed data all the same.
func (w *Worker) cascade(ctx context.Context, tenantID string, node tree.Node, changedName, requestedBy string, precision int32, seen map[string]bool) error {
	formulas, err := w.defs.FormulasReferencing(ctx, tenantID, changedName)
	if err != nil {
		return fmt.Errorf("resolving dependent formulas: %w", err)
	}

	for _, formula := range formulas {
		if formula.OwnerType != node.Type || seen[formula.Name] {
			continue
		}
		seen[formula.Name] = true

		value, err := w.formulas.Evaluate(ctx, tenantID, formula, node.ID)
		if err != nil {
			// A formula that cannot be evaluated degrades to null.
			w.logger.Warn("formula evaluation failed",
				"tenant", tenantID,
				"formula", formula.Name,
				"node", node.ID,
				"error", err)
			value = nil
		}

		// Formula slots are user-visible computed properties: a change here,
		// unlike an aggregate change, does record a version.
		changed, err := w.values.SetFormula(ctx, tenantID, node.ID, formula.Name, aggregate.FormatValue(value, precision))
		if err != nil {
			return fmt.Errorf("persisting formula value: %w", err)
		}
		if !changed {
			continue
		}

		if err := w.publisher.OnDerivedChanged(ctx, tenantID, node, formula.Name, requestedBy); err != nil {
			return fmt.Errorf("publishing derived change: %w", err)
		}
		if err := w.cascade(ctx, tenantID, node, formula.Name, requestedBy, precision, seen); err != nil {
			return err
		}
	}
	return nil
}

// drop handles a message whose referent vanished between enqueue and
// processing: an expected race, not an error.
func (w *Worker) drop(ctx context.Context, msg repository.NodeMessage) error {
	if err := w.clear(ctx, msg); err != nil {
		return err
	}
	if err := w.ledger.ReapOrphans(ctx, msg.TenantID); err != nil {
		return fmt.Errorf("reaping orphans: %w", err)
	}
	w.logger.Debug("dropped message for missing referent",
		"tenant", msg.TenantID,
		"node", msg.NodeID,
		"definition", msg.DefinitionID)
	return nil
}

func (w *Worker) clear(ctx context.Context, msg repository.NodeMessage) error {
	if err := w.ledger.Clear(ctx, msg.TenantID, msg.NodeID, msg.DefinitionID); err != nil {
		return fmt.Errorf("clearing ledger entry: %w", err)
	}
	return nil
}
