package tree_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/treeline/rollup/internal/domain/tree"
	"github.com/treeline/rollup/internal/repository/mocks"
	"github.com/treeline/rollup/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func node(id, nodeType string, parentID *string) *tree.Node {
	return &tree.Node{ID: id, TenantID: "tenant1", TreeID: "tr1", Type: nodeType, ParentID: parentID}
}

func strptr(s string) *string { return &s }

func TestHierarchy_AncestorsOf(t *testing.T) {
	ctx := context.Background()
	nodes := &mocks.NodeRepository{}

	// portfolio > program > project > task
	nodes.On("Get", ctx, "tenant1", "task1").Return(node("task1", "task", strptr("proj1")), nil)
	nodes.On("Get", ctx, "tenant1", "proj1").Return(node("proj1", "project", strptr("prog1")), nil)
	nodes.On("Get", ctx, "tenant1", "prog1").Return(node("prog1", "program", strptr("port1")), nil)
	nodes.On("Get", ctx, "tenant1", "port1").Return(node("port1", "portfolio", nil), nil)

	h := tree.NewHierarchy(nodes, testLogger())

	ancestors, err := h.AncestorsOf(ctx, "tenant1", "task1", "")
	require.NoError(t, err)
	require.Len(t, ancestors, 3)
	require.Equal(t, "proj1", ancestors[0].ID, "nearest ancestor first")
	require.Equal(t, "port1", ancestors[2].ID)
}

func TestHierarchy_AncestorsOf_UptoType(t *testing.T) {
	ctx := context.Background()
	nodes := &mocks.NodeRepository{}

	nodes.On("Get", ctx, "tenant1", "task1").Return(node("task1", "task", strptr("proj1")), nil)
	nodes.On("Get", ctx, "tenant1", "proj1").Return(node("proj1", "project", strptr("prog1")), nil)
	nodes.On("Get", ctx, "tenant1", "prog1").Return(node("prog1", "program", strptr("port1")), nil)

	h := tree.NewHierarchy(nodes, testLogger())

	ancestors, err := h.AncestorsOf(ctx, "tenant1", "task1", "program")
	require.NoError(t, err)
	require.Len(t, ancestors, 2, "walk stops at the first matching ancestor, inclusive")
	require.Equal(t, "program", ancestors[1].Type)
}

func TestHierarchy_AncestorsOf_NotInTree(t *testing.T) {
	ctx := context.Background()
	nodes := &mocks.NodeRepository{}
	nodes.On("Get", ctx, "tenant1", "missing").Return(nil, storage.ErrNotFound)

	h := tree.NewHierarchy(nodes, testLogger())

	_, err := h.AncestorsOf(ctx, "tenant1", "missing", "")
	require.ErrorIs(t, err, tree.ErrNotInTree)
}

func TestHierarchy_AncestorsOf_DanglingParent(t *testing.T) {
	ctx := context.Background()
	nodes := &mocks.NodeRepository{}

	nodes.On("Get", ctx, "tenant1", "n1").Return(node("n1", "task", strptr("gone")), nil)
	nodes.On("Get", ctx, "tenant1", "gone").Return(nil, storage.ErrNotFound)

	h := tree.NewHierarchy(nodes, testLogger())

	ancestors, err := h.AncestorsOf(ctx, "tenant1", "n1", "")
	require.NoError(t, err)
	require.Empty(t, ancestors, "dangling parent edge ends the walk")
}

func TestHierarchy_ChildrenOfType_SkipsLevels(t *testing.T) {
	ctx := context.Background()
	nodes := &mocks.NodeRepository{}

	// root has one direct task child and a folder whose children include
	// another task. Nothing below a matched task is descended into.
	nodes.On("Children", ctx, "tenant1", "root").Return([]tree.Node{
		*node("t1", "task", strptr("root")),
		*node("folder", "folder", strptr("root")),
	}, nil)
	nodes.On("Children", ctx, "tenant1", "folder").Return([]tree.Node{
		*node("t2", "task", strptr("folder")),
	}, nil)

	h := tree.NewHierarchy(nodes, testLogger())

	matched, err := h.ChildrenOfType(ctx, "tenant1", "root", "task")
	require.NoError(t, err)
	require.Len(t, matched, 2)
	require.Equal(t, "t1", matched[0].ID)
	require.Equal(t, "t2", matched[1].ID)
	nodes.AssertNotCalled(t, "Children", ctx, "tenant1", "t1")
	nodes.AssertNotCalled(t, "Children", ctx, "tenant1", "t2")
}

func TestHierarchy_Descendants(t *testing.T) {
	ctx := context.Background()
	nodes := &mocks.NodeRepository{}

	nodes.On("Children", ctx, "tenant1", "root").Return([]tree.Node{
		*node("p1", "project", strptr("root")),
	}, nil)
	nodes.On("Children", ctx, "tenant1", "p1").Return([]tree.Node{
		*node("t1", "task", strptr("p1")),
		*node("t2", "task", strptr("p1")),
	}, nil)
	nodes.On("Children", ctx, "tenant1", "t1").Return([]tree.Node{}, nil)
	nodes.On("Children", ctx, "tenant1", "t2").Return([]tree.Node{}, nil)

	h := tree.NewHierarchy(nodes, testLogger())

	all, err := h.Descendants(ctx, "tenant1", "root", "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	tasks, err := h.Descendants(ctx, "tenant1", "root", "task")
	require.NoError(t, err)
	require.Len(t, tasks, 2, "type filter restricts the result but not the walk")
}
