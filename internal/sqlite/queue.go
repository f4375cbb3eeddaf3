package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/treeline/rollup/internal/repository"
	"github.com/treeline/rollup/internal/storage"
)

// QueueRepository implements repository.QueueRepository for SQLite. Both
// logical channels share one table; a lease hides rows from other consumers
// until the delivery is acked (deleted) or nacked (released).
type QueueRepository struct {
	db *DB
}

// NewQueueRepository creates a new QueueRepository
func NewQueueRepository(db *DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// EnqueueNode appends a node-scoped message
func (r *QueueRepository) EnqueueNode(ctx context.Context, msg repository.NodeMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO queue_messages (channel, tenant_id, definition_id, node_id, requested_by)
		 VALUES ('node', ?, ?, ?, ?)`,
		msg.TenantID, msg.DefinitionID, msg.NodeID, msg.RequestedBy)
	if err != nil {
		if isBusy(err) {
			return storage.ErrBusy
		}
		return fmt.Errorf("failed to enqueue node message: %w", err)
	}
	return nil
}

// EnqueueTenant appends a tenant-scoped message
func (r *QueueRepository) EnqueueTenant(ctx context.Context, msg repository.TenantMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO queue_messages (channel, tenant_id, definition_id, requested_by)
		 VALUES ('tenant', ?, ?, ?)`,
		msg.TenantID, msg.DefinitionID, msg.RequestedBy)
	if err != nil {
		if isBusy(err) {
			return storage.ErrBusy
		}
		return fmt.Errorf("failed to enqueue tenant message: %w", err)
	}
	return nil
}

// LeaseNode leases up to limit node messages in enqueue order
func (r *QueueRepository) LeaseNode(ctx context.Context, limit int) ([]repository.NodeDelivery, error) {
	rows, err := r.lease(ctx, "node", limit)
	if err != nil {
		return nil, err
	}

	deliveries := make([]repository.NodeDelivery, 0, len(rows))
	for _, row := range rows {
		nodeID := ""
		if row.nodeID.Valid {
			nodeID = row.nodeID.String
		}
		deliveries = append(deliveries, repository.NodeDelivery{
			ID: row.id,
			Message: repository.NodeMessage{
				TenantID:     row.tenantID,
				NodeID:       nodeID,
				DefinitionID: row.definitionID,
				RequestedBy:  row.requestedBy,
			},
		})
	}
	return deliveries, nil
}

// LeaseTenant leases up to limit tenant messages in enqueue order
func (r *QueueRepository) LeaseTenant(ctx context.Context, limit int) ([]repository.TenantDelivery, error) {
	rows, err := r.lease(ctx, "tenant", limit)
	if err != nil {
		return nil, err
	}

	deliveries := make([]repository.TenantDelivery, 0, len(rows))
	for _, row := range rows {
		deliveries = append(deliveries, repository.TenantDelivery{
			ID: row.id,
			Message: repository.TenantMessage{
				TenantID:     row.tenantID,
				DefinitionID: row.definitionID,
				RequestedBy:  row.requestedBy,
			},
		})
	}
	return deliveries, nil
}

// Ack deletes a processed delivery
func (r *QueueRepository) Ack(ctx context.Context, deliveryID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM queue_messages WHERE id = ?`, deliveryID)
	if err != nil {
		if isBusy(err) {
			return storage.ErrBusy
		}
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// Nack releases a delivery for redelivery
func (r *QueueRepository) Nack(ctx context.Context, deliveryID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE queue_messages SET leased = 0 WHERE id = ?`, deliveryID)
	if err != nil {
		if isBusy(err) {
			return storage.ErrBusy
		}
		return fmt.Errorf("failed to nack message: %w", err)
	}
	return nil
}

type queueRow struct {
	id           int64
	tenantID     string
	definitionID string
	nodeID       sql.NullString
	requestedBy  string
}

func (r *QueueRepository) lease(ctx context.Context, channel string, limit int) ([]queueRow, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		if isBusy(err) {
			return nil, storage.ErrBusy
		}
		return nil, fmt.Errorf("failed to begin lease transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, tenant_id, definition_id, node_id, requested_by
		 FROM queue_messages
		 WHERE channel = ? AND leased = 0
		 ORDER BY id ASC
		 LIMIT ?`,
		channel, limit)
	if err != nil {
		if isBusy(err) {
			return nil, storage.ErrBusy
		}
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	var leased []queueRow
	for rows.Next() {
		var row queueRow
		if err := rows.Scan(&row.id, &row.tenantID, &row.definitionID, &row.nodeID, &row.requestedBy); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		leased = append(leased, row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	rows.Close()

	for _, row := range leased {
		if _, err := tx.ExecContext(ctx,
			`UPDATE queue_messages SET leased = 1 WHERE id = ?`, row.id); err != nil {
			if isBusy(err) {
				return nil, storage.ErrBusy
			}
			return nil, fmt.Errorf("failed to lease message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isBusy(err) {
			return nil, storage.ErrBusy
		}
		return nil, fmt.Errorf("failed to commit lease: %w", err)
	}
	return leased, nil
}
