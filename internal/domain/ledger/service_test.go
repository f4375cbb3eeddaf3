package ledger_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/treeline/rollup/internal/domain/ledger"
	"github.com/treeline/rollup/internal/repository/mocks"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLedgerService_MarkStale(t *testing.T) {
	ctx := context.Background()
	store := &mocks.LedgerRepository{}
	store.On("Insert", ctx, "tenant1", "n1", "a1").Return(true, nil).Once()
	store.On("Insert", ctx, "tenant1", "n1", "a1").Return(false, nil).Once()

	svc := ledger.NewService(store, testLogger())

	inserted, err := svc.MarkStale(ctx, "tenant1", "n1", "a1")
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = svc.MarkStale(ctx, "tenant1", "n1", "a1")
	require.NoError(t, err)
	require.False(t, inserted, "already-outstanding tuple reports not newly marked")
}

func TestLedgerService_MarkStale_StoreError(t *testing.T) {
	ctx := context.Background()
	store := &mocks.LedgerRepository{}
	store.On("Insert", ctx, "tenant1", "n1", "a1").Return(false, errors.New("disk full"))

	svc := ledger.NewService(store, testLogger())

	_, err := svc.MarkStale(ctx, "tenant1", "n1", "a1")
	require.Error(t, err)
}

func TestLedgerService_ClearAndIsStale(t *testing.T) {
	ctx := context.Background()
	store := &mocks.LedgerRepository{}
	store.On("Delete", ctx, "tenant1", "n1", "a1").Return(nil)
	store.On("Exists", ctx, "tenant1", "n1", "a1").Return(false, nil)

	svc := ledger.NewService(store, testLogger())

	require.NoError(t, svc.Clear(ctx, "tenant1", "n1", "a1"))

	stale, err := svc.IsStale(ctx, "tenant1", "n1", "a1")
	require.NoError(t, err)
	require.False(t, stale)
}

func TestLedgerService_ReapOrphans(t *testing.T) {
	ctx := context.Background()
	store := &mocks.LedgerRepository{}
	store.On("ReapOrphans", ctx, "tenant1").Return(3, nil)

	svc := ledger.NewService(store, testLogger())
	require.NoError(t, svc.ReapOrphans(ctx, "tenant1"))
	store.AssertExpectations(t)
}
