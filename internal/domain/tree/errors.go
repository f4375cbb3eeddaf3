package tree

import "errors"

var (
	// ErrNotInTree indicates the node is not currently attached to the tree.
	ErrNotInTree = errors.New("node not in tree")
)
