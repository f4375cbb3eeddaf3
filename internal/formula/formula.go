// Package formula evaluates derived-value expressions: arithmetic over a
// node's stored property, aggregate and formula slots. Expressions are
// small by design; the definition-level reference graph they induce is kept
// acyclic at creation time.
package formula

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/treeline/rollup/internal/domain/aggregate"
)

// ValueReader reads a node's slot values. nil means null.
type ValueReader interface {
	PropertyValue(ctx context.Context, tenantID, nodeID, property string) (*string, error)
}

// Engine evaluates formula expressions against node slot values.
type Engine struct {
	values ValueReader
}

// NewEngine creates a formula engine.
func NewEngine(values ValueReader) *Engine {
	return &Engine{values: values}
}

// Evaluate computes the formula's value for a node. A nil result means null:
// any null operand or a division by zero makes the whole expression null.
// Parse failures are returned as errors; the caller degrades them to null.
func (e *Engine) Evaluate(ctx context.Context, tenantID string, f aggregate.Formula, nodeID string) (*decimal.Decimal, error) {
	root, err := parse(f.Expression)
	if err != nil {
		return nil, fmt.Errorf("parsing formula %q: %w", f.Name, err)
	}

	resolve := func(name string) (*decimal.Decimal, error) {
		raw, err := e.values.PropertyValue(ctx, tenantID, nodeID, name)
		if err != nil {
			return nil, err
		}
		if raw == nil {
			return nil, nil
		}
		val, err := decimal.NewFromString(*raw)
		if err != nil {
			// Non-numeric slot contents are null for arithmetic purposes.
			return nil, nil
		}
		return &val, nil
	}

	return root.eval(resolve)
}

// References returns the slot names an expression reads, for populating the
// static reference graph when a formula definition is stored.
func References(expression string) ([]string, error) {
	root, err := parse(expression)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var refs []string
	root.collect(func(name string) {
		if !seen[name] {
			seen[name] = true
			refs = append(refs, name)
		}
	})
	return refs, nil
}
