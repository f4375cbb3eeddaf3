package predicate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/treeline/rollup/internal/domain/tree"
	"github.com/treeline/rollup/internal/predicate"
)

type fakeData struct {
	tags      map[string]bool
	variables map[string]string
}

func (f *fakeData) HasTag(_ context.Context, _, nodeID, tag string) (bool, error) {
	return f.tags[nodeID+":"+tag], nil
}

func (f *fakeData) Variable(_ context.Context, _, name string) (*string, error) {
	if value, ok := f.variables[name]; ok {
		return &value, nil
	}
	return nil, nil
}

type fakeValues map[string]string

func (f fakeValues) PropertyValue(_ context.Context, _, _, property string) (*string, error) {
	if value, ok := f[property]; ok {
		return &value, nil
	}
	return nil, nil
}

func testNode() tree.Node {
	return tree.Node{ID: "n1", TenantID: "tenant1", TreeID: "tr1", Type: "task"}
}

func TestEvaluator_TagPredicate(t *testing.T) {
	ctx := context.Background()
	data := &fakeData{tags: map[string]bool{"n1:billable": true}}
	e := predicate.NewEvaluator(data, fakeValues{})

	ok, err := e.Matches(ctx, "tenant1", "tag:billable", testNode())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.Matches(ctx, "tenant1", "tag:archived", testNode())
	require.NoError(t, err)
	require.False(t, ok)

	_, err = e.Matches(ctx, "tenant1", "tag:", testNode())
	require.Error(t, err)
}

func TestEvaluator_NumericComparison(t *testing.T) {
	ctx := context.Background()
	e := predicate.NewEvaluator(&fakeData{}, fakeValues{"effort": "5"})

	cases := []struct {
		predicate string
		want      bool
	}{
		{"effort > 3", true},
		{"effort > 5", false},
		{"effort >= 5", true},
		{"effort < 10", true},
		{"effort <= 4", false},
		{"effort = 5", true},
		{"effort != 5", false},
		{"effort = 5.0", true},
	}
	for _, tc := range cases {
		ok, err := e.Matches(ctx, "tenant1", tc.predicate, testNode())
		require.NoError(t, err, tc.predicate)
		require.Equal(t, tc.want, ok, tc.predicate)
	}
}

func TestEvaluator_VariableComparison(t *testing.T) {
	ctx := context.Background()
	data := &fakeData{variables: map[string]string{"threshold": "4"}}
	e := predicate.NewEvaluator(data, fakeValues{"effort": "5"})

	ok, err := e.Matches(ctx, "tenant1", "effort > $threshold", testNode())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = e.Matches(ctx, "tenant1", "effort > $missing", testNode())
	require.Error(t, err, "undefined variable is a malformed predicate")
}

func TestEvaluator_StringComparison(t *testing.T) {
	ctx := context.Background()
	e := predicate.NewEvaluator(&fakeData{}, fakeValues{"state": "done"})

	ok, err := e.Matches(ctx, "tenant1", "state = done", testNode())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.Matches(ctx, "tenant1", "state != open", testNode())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = e.Matches(ctx, "tenant1", "state > done", testNode())
	require.Error(t, err, "ordering on non-numeric values is malformed")
}

func TestEvaluator_NullNeverMatches(t *testing.T) {
	ctx := context.Background()
	e := predicate.NewEvaluator(&fakeData{}, fakeValues{})

	for _, pred := range []string{"effort > 0", "effort = 0", "effort != 0"} {
		ok, err := e.Matches(ctx, "tenant1", pred, testNode())
		require.NoError(t, err, pred)
		require.False(t, ok, "null left operand never matches: %s", pred)
	}
}

func TestEvaluator_EmptyAndMalformed(t *testing.T) {
	ctx := context.Background()
	e := predicate.NewEvaluator(&fakeData{}, fakeValues{})

	ok, err := e.Matches(ctx, "tenant1", "", testNode())
	require.NoError(t, err)
	require.True(t, ok, "empty predicate matches everything")

	_, err = e.Matches(ctx, "tenant1", "just-a-word", testNode())
	require.Error(t, err)
}
