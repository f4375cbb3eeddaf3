// Package predicate is the default implementation of the opaque predicate
// evaluator consumed by aggregate scopes. The real filter language lives in
// the host application; this covers the forms the engine's own tests and
// simple deployments need: tag membership and property comparisons against
// literals or tenant variables.
package predicate

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/treeline/rollup/internal/domain/tree"
)

// DataStore reads the data predicates reference: node tags and tenant
// variables. Changes to either must trigger staleness through the change
// publisher even though no node value changed.
type DataStore interface {
	HasTag(ctx context.Context, tenantID, nodeID, tag string) (bool, error)
	Variable(ctx context.Context, tenantID, name string) (*string, error)
}

// ValueReader reads node slot values for comparisons.
type ValueReader interface {
	PropertyValue(ctx context.Context, tenantID, nodeID, property string) (*string, error)
}

// Evaluator implements aggregate.PredicateEvaluator.
//
// Supported forms:
//
//	tag:urgent            node carries the tag
//	effort > 5            property compared to a decimal literal
//	effort >= $threshold  property compared to a tenant variable
//	state = done          non-numeric operands compare as strings (= and != only)
type Evaluator struct {
	data   DataStore
	values ValueReader
}

// NewEvaluator creates the default predicate evaluator.
func NewEvaluator(data DataStore, values ValueReader) *Evaluator {
	return &Evaluator{data: data, values: values}
}

var comparisonOps = []string{">=", "<=", "!=", ">", "<", "="}

// Matches evaluates the predicate against a node. A malformed predicate is
// an error; the caller turns it into a null aggregate value rather than a
// failed batch.
func (e *Evaluator) Matches(ctx context.Context, tenantID, predicate string, node tree.Node) (bool, error) {
	predicate = strings.TrimSpace(predicate)
	if predicate == "" {
		return true, nil
	}

	if tag, ok := strings.CutPrefix(predicate, "tag:"); ok {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return false, fmt.Errorf("empty tag predicate")
		}
		return e.data.HasTag(ctx, tenantID, node.ID, tag)
	}

	for _, op := range comparisonOps {
		property, rhs, found := strings.Cut(predicate, op)
		if !found {
			continue
		}
		return e.compare(ctx, tenantID, node.ID, strings.TrimSpace(property), op, strings.TrimSpace(rhs))
	}

	return false, fmt.Errorf("unrecognized predicate %q", predicate)
}

func (e *Evaluator) compare(ctx context.Context, tenantID, nodeID, property, op, rhs string) (bool, error) {
	if property == "" || rhs == "" {
		return false, fmt.Errorf("malformed comparison")
	}

	left, err := e.values.PropertyValue(ctx, tenantID, nodeID, property)
	if err != nil {
		return false, err
	}
	if left == nil {
		// Null never matches, in either direction.
		return false, nil
	}

	right := rhs
	if name, ok := strings.CutPrefix(rhs, "$"); ok {
		value, err := e.data.Variable(ctx, tenantID, name)
		if err != nil {
			return false, err
		}
		if value == nil {
			return false, fmt.Errorf("undefined variable %q", name)
		}
		right = *value
	}

	leftNum, leftErr := decimal.NewFromString(*left)
	rightNum, rightErr := decimal.NewFromString(right)
	if leftErr == nil && rightErr == nil {
		cmp := leftNum.Cmp(rightNum)
		switch op {
		case "=":
			return cmp == 0, nil
		case "!=":
			return cmp != 0, nil
		case ">":
			return cmp > 0, nil
		case "<":
			return cmp < 0, nil
		case ">=":
			return cmp >= 0, nil
		case "<=":
			return cmp <= 0, nil
		}
	}

	switch op {
	case "=":
		return *left == right, nil
	case "!=":
		return *left != right, nil
	}
	return false, fmt.Errorf("ordering comparison on non-numeric values")
}
