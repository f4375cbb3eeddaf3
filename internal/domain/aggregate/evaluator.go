package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/treeline/rollup/internal/domain/tree"
	"github.com/treeline/rollup/internal/storage"
)

// Evaluator computes aggregate values. Each evaluation is a pure function of
// current child state: it reads members fresh rather than applying deltas,
// which is what makes recomputation idempotent and order-independent.
// Formula-sourced targets are evaluated fresh per member for the same reason;
// the materialized formula slot is a cache for readers, never an input here.
type Evaluator struct {
	hierarchy   Hierarchy
	values      ValueReader
	predicates  PredicateEvaluator
	formulaDefs FormulaSource
	formulas    FormulaEvaluator
	tenants     PrecisionReader
	logger      *slog.Logger
}

// NewEvaluator creates an aggregate evaluator.
func NewEvaluator(
	hierarchy Hierarchy,
	values ValueReader,
	predicates PredicateEvaluator,
	formulaDefs FormulaSource,
	formulas FormulaEvaluator,
	tenants PrecisionReader,
	logger *slog.Logger,
) *Evaluator {
	return &Evaluator{
		hierarchy:   hierarchy,
		values:      values,
		predicates:  predicates,
		formulaDefs: formulaDefs,
		formulas:    formulas,
		tenants:     tenants,
		logger:      logger,
	}
}

// ValueFor computes the aggregate value for the node, rounded to the
// tenant's configured precision. A nil result means null: no members, no
// non-null contributions, or a predicate that cannot be evaluated. Storage
// errors are returned as errors; semantic dead ends are not.
func (e *Evaluator) ValueFor(ctx context.Context, def *Definition, nodeID string) (*decimal.Decimal, error) {
	members, err := e.membersOf(ctx, def, nodeID)
	if err != nil {
		return nil, err
	}

	if def.Scope.Predicate != "" {
		filtered := members[:0]
		for _, member := range members {
			ok, err := e.predicates.Matches(ctx, def.TenantID, def.Scope.Predicate, member)
			if err != nil {
				// Malformed predicate or missing referenced data: the value
				// becomes null rather than failing the batch.
				e.logger.Warn("predicate evaluation failed",
					"definition", def.Name,
					"node", nodeID,
					"error", err)
				return nil, nil
			}
			if ok {
				filtered = append(filtered, member)
			}
		}
		members = filtered
	}

	var values []decimal.Decimal
	if def.Function != FunctionCount {
		if def.Source == "" {
			return nil, nil
		}
		if def.SourceKind == SourceFormula {
			values, err = e.formulaValues(ctx, def, members)
		} else {
			values, err = e.propertyValues(ctx, def, members)
		}
		if err != nil {
			return nil, err
		}
	}

	result := def.Function.Reduce(values, len(members))
	if result == nil {
		return nil, nil
	}

	precision, err := e.tenants.Precision(ctx, def.TenantID)
	if err != nil {
		return nil, fmt.Errorf("resolving tenant precision: %w", err)
	}
	rounded := result.Round(precision)
	return &rounded, nil
}

func (e *Evaluator) propertyValues(ctx context.Context, def *Definition, members []tree.Node) ([]decimal.Decimal, error) {
	var values []decimal.Decimal
	for _, member := range members {
		raw, err := e.values.PropertyValue(ctx, def.TenantID, member.ID, def.Source)
		if err != nil {
			return nil, fmt.Errorf("reading member value: %w", err)
		}
		if raw == nil {
			continue
		}
		val, err := decimal.NewFromString(*raw)
		if err != nil {
			// Non-numeric slot contents contribute nothing.
			continue
		}
		values = append(values, val)
	}
	return values, nil
}

// formulaValues evaluates the source formula fresh for every member instead
// of reading its materialized slot, which may lag the member's current
// property state. Members outside the formula's owner type, and members
// whose formula evaluates to null or cannot be evaluated, contribute nothing.
func (e *Evaluator) formulaValues(ctx context.Context, def *Definition, members []tree.Node) ([]decimal.Decimal, error) {
	f, err := e.formulaDefs.FormulaByName(ctx, def.TenantID, def.Source)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Source formula was deleted out from under the aggregate.
			e.logger.Warn("source formula missing",
				"definition", def.Name,
				"formula", def.Source)
			return nil, nil
		}
		return nil, fmt.Errorf("loading source formula: %w", err)
	}

	var values []decimal.Decimal
	for _, member := range members {
		if member.Type != f.OwnerType {
			continue
		}
		val, err := e.formulas.Evaluate(ctx, def.TenantID, *f, member.ID)
		if err != nil {
			if errors.Is(err, storage.ErrBusy) {
				// Transient contention retries the whole recompute.
				return nil, fmt.Errorf("evaluating member formula: %w", err)
			}
			e.logger.Warn("member formula evaluation failed",
				"definition", def.Name,
				"formula", f.Name,
				"node", member.ID,
				"error", err)
			continue
		}
		if val == nil {
			continue
		}
		values = append(values, *val)
	}
	return values, nil
}

func (e *Evaluator) membersOf(ctx context.Context, def *Definition, nodeID string) ([]tree.Node, error) {
	switch def.Scope.Kind {
	case ScopeChildren:
		members, err := e.hierarchy.ChildrenOfType(ctx, def.TenantID, nodeID, def.Scope.TargetType)
		if err != nil {
			return nil, fmt.Errorf("resolving child members: %w", err)
		}
		return members, nil
	case ScopeDescendants:
		members, err := e.hierarchy.Descendants(ctx, def.TenantID, nodeID, def.Scope.TargetType)
		if err != nil {
			return nil, fmt.Errorf("resolving descendant members: %w", err)
		}
		return members, nil
	default:
		return nil, ErrInvalidScope
	}
}

// FormatValue renders a computed value as the decimal text persisted in the
// node's slot: fixed to the tenant precision, nil for null.
func FormatValue(value *decimal.Decimal, precision int32) *string {
	if value == nil {
		return nil
	}
	text := value.StringFixed(precision)
	return &text
}
