package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/treeline/rollup/internal/repository"
)

func TestQueueRepository_EnqueueLeaseAck(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewQueueRepository(db)

	err := repo.EnqueueNode(ctx, repository.NodeMessage{
		TenantID: "tenant1", NodeID: "n1", DefinitionID: "a1", RequestedBy: "test",
	})
	require.NoError(t, err)
	err = repo.EnqueueNode(ctx, repository.NodeMessage{
		TenantID: "tenant1", NodeID: "n2", DefinitionID: "a1", RequestedBy: "test",
	})
	require.NoError(t, err)

	deliveries, err := repo.LeaseNode(ctx, 10)
	require.NoError(t, err)
	require.Len(t, deliveries, 2)
	require.Equal(t, "n1", deliveries[0].Message.NodeID, "lease follows enqueue order")
	require.Equal(t, "n2", deliveries[1].Message.NodeID)

	// Leased rows are invisible to a second lease
	again, err := repo.LeaseNode(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, again)

	require.NoError(t, repo.Ack(ctx, deliveries[0].ID))
	require.NoError(t, repo.Ack(ctx, deliveries[1].ID))

	var count int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_messages`).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 0, count, "acked messages are gone")
}

func TestQueueRepository_NackReleases(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewQueueRepository(db)

	err := repo.EnqueueNode(ctx, repository.NodeMessage{
		TenantID: "tenant1", NodeID: "n1", DefinitionID: "a1",
	})
	require.NoError(t, err)

	deliveries, err := repo.LeaseNode(ctx, 1)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)

	require.NoError(t, repo.Nack(ctx, deliveries[0].ID))

	redelivered, err := repo.LeaseNode(ctx, 1)
	require.NoError(t, err)
	require.Len(t, redelivered, 1, "nacked message is leasable again")
	require.Equal(t, "n1", redelivered[0].Message.NodeID)
}

func TestQueueRepository_ChannelsAreSeparate(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewQueueRepository(db)

	err := repo.EnqueueNode(ctx, repository.NodeMessage{
		TenantID: "tenant1", NodeID: "n1", DefinitionID: "a1",
	})
	require.NoError(t, err)
	err = repo.EnqueueTenant(ctx, repository.TenantMessage{
		TenantID: "tenant1", DefinitionID: "a2", RequestedBy: "test",
	})
	require.NoError(t, err)

	nodes, err := repo.LeaseNode(ctx, 10)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, "a1", nodes[0].Message.DefinitionID)

	tenants, err := repo.LeaseTenant(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tenants, 1)
	require.Equal(t, "a2", tenants[0].Message.DefinitionID)
	require.Equal(t, "test", tenants[0].Message.RequestedBy)
}

func TestQueueRepository_LeaseLimit(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewQueueRepository(db)

	for i := 0; i < 5; i++ {
		err := repo.EnqueueNode(ctx, repository.NodeMessage{
			TenantID: "tenant1", NodeID: "n1", DefinitionID: "a1",
		})
		require.NoError(t, err)
	}

	first, err := repo.LeaseNode(ctx, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)

	rest, err := repo.LeaseNode(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rest, 2)
}
