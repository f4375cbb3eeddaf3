package aggregate_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/treeline/rollup/internal/domain/aggregate"
	"github.com/treeline/rollup/internal/domain/tree"
	"github.com/treeline/rollup/internal/formula"
	"github.com/treeline/rollup/internal/storage"
)

type mockHierarchy struct {
	mock.Mock
}

func (m *mockHierarchy) ChildrenOfType(ctx context.Context, tenantID, nodeID, childType string) ([]tree.Node, error) {
	args := m.Called(ctx, tenantID, nodeID, childType)
	if nodes, ok := args.Get(0).([]tree.Node); ok {
		return nodes, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockHierarchy) Descendants(ctx context.Context, tenantID, nodeID, typeFilter string) ([]tree.Node, error) {
	args := m.Called(ctx, tenantID, nodeID, typeFilter)
	if nodes, ok := args.Get(0).([]tree.Node); ok {
		return nodes, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockValues struct {
	mock.Mock
}

func (m *mockValues) PropertyValue(ctx context.Context, tenantID, nodeID, property string) (*string, error) {
	args := m.Called(ctx, tenantID, nodeID, property)
	if value, ok := args.Get(0).(*string); ok {
		return value, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockFormulaDefs struct {
	mock.Mock
}

func (m *mockFormulaDefs) FormulaByName(ctx context.Context, tenantID, name string) (*aggregate.Formula, error) {
	args := m.Called(ctx, tenantID, name)
	if formula, ok := args.Get(0).(*aggregate.Formula); ok {
		return formula, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockFormulaEvaluator struct {
	mock.Mock
}

func (m *mockFormulaEvaluator) Evaluate(ctx context.Context, tenantID string, f aggregate.Formula, nodeID string) (*decimal.Decimal, error) {
	args := m.Called(ctx, tenantID, f, nodeID)
	if value, ok := args.Get(0).(*decimal.Decimal); ok {
		return value, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockPredicates struct {
	mock.Mock
}

func (m *mockPredicates) Matches(ctx context.Context, tenantID, predicate string, node tree.Node) (bool, error) {
	args := m.Called(ctx, tenantID, predicate, node)
	return args.Bool(0), args.Error(1)
}

type mockTenants struct {
	mock.Mock
}

func (m *mockTenants) Precision(ctx context.Context, tenantID string) (int32, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int32), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strptr(s string) *string { return &s }

func taskNode(id string) tree.Node {
	return tree.Node{ID: id, TenantID: "tenant1", TreeID: "tr1", Type: "task"}
}

func sumDef() *aggregate.Definition {
	return &aggregate.Definition{
		ID:         "a1",
		TenantID:   "tenant1",
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
}

func TestEvaluator_SumSkipsNulls(t *testing.T) {
	ctx := context.Background()
	hierarchy := &mockHierarchy{}
	values := &mockValues{}
	tenants := &mockTenants{}

	hierarchy.On("Descendants", ctx, "tenant1", "root", "task").Return([]tree.Node{
		taskNode("t1"), taskNode("t2"), taskNode("t3"),
	}, nil)
	values.On("PropertyValue", ctx, "tenant1", "t1", "amount").Return(strptr("2"), nil)
	values.On("PropertyValue", ctx, "tenant1", "t2", "amount").Return(nil, nil)
	values.On("PropertyValue", ctx, "tenant1", "t3", "amount").Return(strptr("3"), nil)
	tenants.On("Precision", ctx, "tenant1").Return(int32(2), nil)

	e := aggregate.NewEvaluator(hierarchy, values, &mockPredicates{}, &mockFormulaDefs{}, &mockFormulaEvaluator{}, tenants, testLogger())
	result, err := e.ValueFor(ctx, sumDef(), "root")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, "5", result.String())
}

func TestEvaluator_AllNullIsNull(t *testing.T) {
	ctx := context.Background()
	hierarchy := &mockHierarchy{}
	values := &mockValues{}
	tenants := &mockTenants{}

	hierarchy.On("Descendants", ctx, "tenant1", "root", "task").Return([]tree.Node{
		taskNode("t1"), taskNode("t2"),
	}, nil)
	values.On("PropertyValue", ctx, "tenant1", "t1", "amount").Return(nil, nil)
	values.On("PropertyValue", ctx, "tenant1", "t2", "amount").Return(nil, nil)

	e := aggregate.NewEvaluator(hierarchy, values, &mockPredicates{}, &mockFormulaDefs{}, &mockFormulaEvaluator{}, tenants, testLogger())
	result, err := e.ValueFor(ctx, sumDef(), "root")
	require.NoError(t, err)
	require.Nil(t, result, "all-null member set yields null, not zero")
}

func TestEvaluator_RoundsToTenantPrecision(t *testing.T) {
	ctx := context.Background()
	hierarchy := &mockHierarchy{}
	values := &mockValues{}
	tenants := &mockTenants{}

	hierarchy.On("Descendants", ctx, "tenant1", "root", "task").Return([]tree.Node{
		taskNode("t1"), taskNode("t2"),
	}, nil)
	values.On("PropertyValue", ctx, "tenant1", "t1", "amount").Return(strptr("2.342"), nil)
	values.On("PropertyValue", ctx, "tenant1", "t2", "amount").Return(strptr("3.343"), nil)

	e := aggregate.NewEvaluator(hierarchy, values, &mockPredicates{}, &mockFormulaDefs{}, &mockFormulaEvaluator{}, tenants, testLogger())

	tenants.On("Precision", ctx, "tenant1").Return(int32(2), nil).Once()
	result, err := e.ValueFor(ctx, sumDef(), "root")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, "5.69", result.StringFixed(2))

	tenants.ExpectedCalls = nil
	tenants.On("Precision", ctx, "tenant1").Return(int32(0), nil).Once()
	result, err = e.ValueFor(ctx, sumDef(), "root")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, "6", result.String())
}

func TestEvaluator_CountCountsAllMembers(t *testing.T) {
	ctx := context.Background()
	hierarchy := &mockHierarchy{}
	tenants := &mockTenants{}

	def := sumDef()
	def.Function = aggregate.FunctionCount
	def.SourceKind = aggregate.SourceNone
	def.Source = ""

	hierarchy.On("Descendants", ctx, "tenant1", "root", "task").Return([]tree.Node{
		taskNode("t1"), taskNode("t2"), taskNode("t3"),
	}, nil)
	tenants.On("Precision", ctx, "tenant1").Return(int32(2), nil)

	e := aggregate.NewEvaluator(hierarchy, &mockValues{}, &mockPredicates{}, &mockFormulaDefs{}, &mockFormulaEvaluator{}, tenants, testLogger())
	result, err := e.ValueFor(ctx, def, "root")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, "3", result.String())
}

func TestEvaluator_PredicateFiltersMembers(t *testing.T) {
	ctx := context.Background()
	hierarchy := &mockHierarchy{}
	values := &mockValues{}
	predicates := &mockPredicates{}
	tenants := &mockTenants{}

	def := sumDef()
	def.Scope.Predicate = "tag:billable"

	members := []tree.Node{taskNode("t1"), taskNode("t2")}
	hierarchy.On("Descendants", ctx, "tenant1", "root", "task").Return(members, nil)
	predicates.On("Matches", ctx, "tenant1", "tag:billable", members[0]).Return(true, nil)
	predicates.On("Matches", ctx, "tenant1", "tag:billable", members[1]).Return(false, nil)
	values.On("PropertyValue", ctx, "tenant1", "t1", "amount").Return(strptr("4"), nil)
	tenants.On("Precision", ctx, "tenant1").Return(int32(2), nil)

	e := aggregate.NewEvaluator(hierarchy, values, predicates, &mockFormulaDefs{}, &mockFormulaEvaluator{}, tenants, testLogger())
	result, err := e.ValueFor(ctx, def, "root")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, "4", result.String())
}

func TestEvaluator_PredicateFailureYieldsNull(t *testing.T) {
	ctx := context.Background()
	hierarchy := &mockHierarchy{}
	predicates := &mockPredicates{}

	def := sumDef()
	def.Scope.Predicate = "malformed ((("

	members := []tree.Node{taskNode("t1")}
	hierarchy.On("Descendants", ctx, "tenant1", "root", "task").Return(members, nil)
	predicates.On("Matches", ctx, "tenant1", def.Scope.Predicate, members[0]).
		Return(false, errors.New("parse error"))

	e := aggregate.NewEvaluator(hierarchy, &mockValues{}, predicates, &mockFormulaDefs{}, &mockFormulaEvaluator{}, &mockTenants{}, testLogger())
	result, err := e.ValueFor(ctx, def, "root")
	require.NoError(t, err, "a broken predicate must not fail the batch")
	require.Nil(t, result)
}

func TestEvaluator_FormulaSourceEvaluatesFresh(t *testing.T) {
	ctx := context.Background()
	hierarchy := &mockHierarchy{}
	values := &mockValues{}
	formulaDefs := &mockFormulaDefs{}
	tenants := &mockTenants{}

	def := sumDef()
	def.SourceKind = aggregate.SourceFormula
	def.Source = "doubled"

	doubled := &aggregate.Formula{
		ID:         "f1",
		TenantID:   "tenant1",
		Name:       "doubled",
		OwnerType:  "task",
		Expression: "amount * 2",
		References: []string{"amount"},
	}

	hierarchy.On("Descendants", ctx, "tenant1", "root", "task").Return([]tree.Node{
		taskNode("t1"), taskNode("t2"),
	}, nil)
	formulaDefs.On("FormulaByName", ctx, "tenant1", "doubled").Return(doubled, nil)
	// Only the referenced property is read; the materialized "doubled" slot
	// never is, so a lagging slot cannot leak into the result.
	values.On("PropertyValue", ctx, "tenant1", "t1", "amount").Return(strptr("2"), nil)
	values.On("PropertyValue", ctx, "tenant1", "t2", "amount").Return(strptr("3"), nil)
	tenants.On("Precision", ctx, "tenant1").Return(int32(2), nil)

	e := aggregate.NewEvaluator(hierarchy, values, &mockPredicates{}, formulaDefs, formula.NewEngine(values), tenants, testLogger())
	result, err := e.ValueFor(ctx, def, "root")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, "10", result.String())
	values.AssertNotCalled(t, "PropertyValue", ctx, "tenant1", "t1", "doubled")
	values.AssertNotCalled(t, "PropertyValue", ctx, "tenant1", "t2", "doubled")
}

func TestEvaluator_FormulaSourceNullAndMismatchedMembers(t *testing.T) {
	ctx := context.Background()
	hierarchy := &mockHierarchy{}
	formulaDefs := &mockFormulaDefs{}
	formulas := &mockFormulaEvaluator{}
	tenants := &mockTenants{}

	def := sumDef()
	def.SourceKind = aggregate.SourceFormula
	def.Source = "doubled"
	def.Scope.TargetType = ""

	doubled := &aggregate.Formula{Name: "doubled", OwnerType: "task", Expression: "amount * 2"}
	folder := tree.Node{ID: "g1", TenantID: "tenant1", TreeID: "tr1", Type: "folder"}

	hierarchy.On("Descendants", ctx, "tenant1", "root", "").Return([]tree.Node{
		taskNode("t1"), folder, taskNode("t2"),
	}, nil)
	formulaDefs.On("FormulaByName", ctx, "tenant1", "doubled").Return(doubled, nil)
	four := decimal.NewFromInt(4)
	formulas.On("Evaluate", ctx, "tenant1", *doubled, "t1").Return(&four, nil)
	formulas.On("Evaluate", ctx, "tenant1", *doubled, "t2").Return(nil, nil)
	tenants.On("Precision", ctx, "tenant1").Return(int32(2), nil)

	e := aggregate.NewEvaluator(hierarchy, &mockValues{}, &mockPredicates{}, formulaDefs, formulas, tenants, testLogger())
	result, err := e.ValueFor(ctx, def, "root")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, "4", result.String())
	// The folder hosts no "doubled" formula, so it is never evaluated.
	formulas.AssertNotCalled(t, "Evaluate", ctx, "tenant1", *doubled, "g1")
}

func TestEvaluator_FormulaSourceMissingIsNull(t *testing.T) {
	ctx := context.Background()
	hierarchy := &mockHierarchy{}
	formulaDefs := &mockFormulaDefs{}

	def := sumDef()
	def.SourceKind = aggregate.SourceFormula
	def.Source = "gone"

	hierarchy.On("Descendants", ctx, "tenant1", "root", "task").Return([]tree.Node{taskNode("t1")}, nil)
	formulaDefs.On("FormulaByName", ctx, "tenant1", "gone").Return(nil, storage.ErrNotFound)

	e := aggregate.NewEvaluator(hierarchy, &mockValues{}, &mockPredicates{}, formulaDefs, &mockFormulaEvaluator{}, &mockTenants{}, testLogger())
	result, err := e.ValueFor(ctx, def, "root")
	require.NoError(t, err, "a deleted source formula must not fail the batch")
	require.Nil(t, result)
}

func TestEvaluator_NonNumericContributesNothing(t *testing.T) {
	ctx := context.Background()
	hierarchy := &mockHierarchy{}
	values := &mockValues{}
	tenants := &mockTenants{}

	hierarchy.On("Descendants", ctx, "tenant1", "root", "task").Return([]tree.Node{
		taskNode("t1"), taskNode("t2"),
	}, nil)
	values.On("PropertyValue", ctx, "tenant1", "t1", "amount").Return(strptr("not-a-number"), nil)
	values.On("PropertyValue", ctx, "tenant1", "t2", "amount").Return(strptr("2.5"), nil)
	tenants.On("Precision", ctx, "tenant1").Return(int32(2), nil)

	e := aggregate.NewEvaluator(hierarchy, values, &mockPredicates{}, &mockFormulaDefs{}, &mockFormulaEvaluator{}, tenants, testLogger())
	result, err := e.ValueFor(ctx, sumDef(), "root")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, "2.5", result.String())
}
