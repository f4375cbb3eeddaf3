package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/treeline/rollup/internal/domain/aggregate"
	"github.com/treeline/rollup/internal/storage"
)

func TestDefinitionRepository_AggregateRoundTrip(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertTenant(t, db, "tenant1", 2)
	insertTree(t, db, "tr1", "tenant1")

	repo := NewDefinitionRepository(db)
	def := &aggregate.Definition{
		ID:         "a1",
		TreeID:     "tr1",
		Name:       "total",
		Function:   aggregate.FunctionSum,
		SourceKind: aggregate.SourceProperty,
		Source:     "amount",
		OwnerType:  "project",
		Scope: aggregate.Scope{
			Kind:       aggregate.ScopeDescendants,
			TargetType: "task",
		},
	}
	require.NoError(t, repo.CreateAggregate(ctx, "tenant1", def))

	loaded, err := repo.GetAggregate(ctx, "tenant1", "a1")
	require.NoError(t, err)
	require.Equal(t, "tenant1", loaded.TenantID)
	require.Equal(t, aggregate.FunctionSum, loaded.Function)
	require.Equal(t, aggregate.ScopeDescendants, loaded.Scope.Kind)
	require.Equal(t, "task", loaded.Scope.TargetType)

	err = repo.CreateAggregate(ctx, "tenant1", def)
	require.Equal(t, storage.ErrDuplicate, err)

	_, err = repo.GetAggregate(ctx, "tenant2", "a1")
	require.Equal(t, storage.ErrNotFound, err)
}

func TestDefinitionRepository_AggregatesBySource(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertTenant(t, db, "tenant1", 2)
	insertTree(t, db, "tr1", "tenant1")

	repo := NewDefinitionRepository(db)
	defs := []*aggregate.Definition{
		{ID: "a1", TreeID: "tr1", Name: "total", Function: aggregate.FunctionSum,
			SourceKind: aggregate.SourceProperty, Source: "amount", OwnerType: "project",
			Scope: aggregate.Scope{Kind: aggregate.ScopeDescendants, TargetType: "task"}},
		{ID: "a2", TreeID: "tr1", Name: "peak", Function: aggregate.FunctionMax,
			SourceKind: aggregate.SourceProperty, Source: "amount", OwnerType: "project",
			Scope: aggregate.Scope{Kind: aggregate.ScopeChildren}},
		{ID: "a3", TreeID: "tr1", Name: "headcount", Function: aggregate.FunctionCount,
			SourceKind: aggregate.SourceNone, OwnerType: "project",
			Scope: aggregate.Scope{Kind: aggregate.ScopeDescendants, TargetType: "task"}},
	}
	for _, def := range defs {
		require.NoError(t, repo.CreateAggregate(ctx, "tenant1", def))
	}

	matched, err := repo.AggregatesBySource(ctx, "tenant1", "amount")
	require.NoError(t, err)
	require.Len(t, matched, 2)

	all, err := repo.ListAggregates(ctx, "tenant1")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestDefinitionRepository_DeleteAggregate(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertTenant(t, db, "tenant1", 2)
	insertTree(t, db, "tr1", "tenant1")

	repo := NewDefinitionRepository(db)
	def := &aggregate.Definition{
		ID: "a1", TreeID: "tr1", Name: "total", Function: aggregate.FunctionSum,
		SourceKind: aggregate.SourceProperty, Source: "amount", OwnerType: "project",
		Scope: aggregate.Scope{Kind: aggregate.ScopeChildren},
	}
	require.NoError(t, repo.CreateAggregate(ctx, "tenant1", def))

	require.NoError(t, repo.DeleteAggregate(ctx, "tenant1", "a1"))
	err := repo.DeleteAggregate(ctx, "tenant1", "a1")
	require.Equal(t, storage.ErrNotFound, err)
}

func TestDefinitionRepository_FormulasReferencing(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertTenant(t, db, "tenant1", 2)

	repo := NewDefinitionRepository(db)
	formula := &aggregate.Formula{
		ID:         "f1",
		Name:       "margin",
		OwnerType:  "project",
		Expression: "(revenue - cost) / revenue",
		References: []string{"revenue", "cost"},
	}
	require.NoError(t, repo.CreateFormula(ctx, "tenant1", formula))

	other := &aggregate.Formula{
		ID:         "f2",
		Name:       "growth",
		OwnerType:  "project",
		Expression: "revenue * 1.1",
		References: []string{"revenue"},
	}
	require.NoError(t, repo.CreateFormula(ctx, "tenant1", other))

	matched, err := repo.FormulasReferencing(ctx, "tenant1", "cost")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	require.Equal(t, "margin", matched[0].Name)
	require.ElementsMatch(t, []string{"revenue", "cost"}, matched[0].References)

	matched, err = repo.FormulasReferencing(ctx, "tenant1", "revenue")
	require.NoError(t, err)
	require.Len(t, matched, 2)

	matched, err = repo.FormulasReferencing(ctx, "tenant1", "unrelated")
	require.NoError(t, err)
	require.Empty(t, matched)
}

func TestDefinitionRepository_GetFormula(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	insertTenant(t, db, "tenant1", 2)

	repo := NewDefinitionRepository(db)
	formula := &aggregate.Formula{
		ID:         "f1",
		Name:       "margin",
		OwnerType:  "project",
		Expression: "revenue - cost",
		References: []string{"revenue", "cost"},
	}
	require.NoError(t, repo.CreateFormula(ctx, "tenant1", formula))

	loaded, err := repo.GetFormula(ctx, "tenant1", "f1")
	require.NoError(t, err)
	require.Equal(t, "revenue - cost", loaded.Expression)
	require.ElementsMatch(t, []string{"revenue", "cost"}, loaded.References)

	_, err = repo.GetFormula(ctx, "tenant1", "missing")
	require.Equal(t, storage.ErrNotFound, err)
}
