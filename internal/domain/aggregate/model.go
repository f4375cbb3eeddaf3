package aggregate

import (
	"time"

	"github.com/shopspring/decimal"
)

// Function is a closed set of reduction functions.
type Function string

const (
	FunctionSum   Function = "SUM"
	FunctionAvg   Function = "AVG"
	FunctionMin   Function = "MIN"
	FunctionMax   Function = "MAX"
	FunctionCount Function = "COUNT"
)

// Valid reports whether the function is one of the known variants.
func (f Function) Valid() bool {
	switch f {
	case FunctionSum, FunctionAvg, FunctionMin, FunctionMax, FunctionCount:
		return true
	}
	return false
}

// Reduce folds the non-null member values into a single result. memberCount
// is the number of members that passed the scope and predicate, including
// those whose target value is null; only COUNT uses it.
//
// SUM/AVG/MIN/MAX over an empty or all-null member set yield nil, not zero:
// "no contribution" must stay distinguishable from "zero contribution".
// AVG divides by the number of non-null values, not by memberCount.
func (f Function) Reduce(values []decimal.Decimal, memberCount int) *decimal.Decimal {
	if f == FunctionCount {
		count := decimal.NewFromInt(int64(memberCount))
		return &count
	}
	if len(values) == 0 {
		return nil
	}

	switch f {
	case FunctionSum, FunctionAvg:
		sum := decimal.Zero
		for _, v := range values {
			sum = sum.Add(v)
		}
		if f == FunctionAvg {
			avg := sum.Div(decimal.NewFromInt(int64(len(values))))
			return &avg
		}
		return &sum
	case FunctionMin:
		min := values[0]
		for _, v := range values[1:] {
			if v.LessThan(min) {
				min = v
			}
		}
		return &min
	case FunctionMax:
		max := values[0]
		for _, v := range values[1:] {
			if v.GreaterThan(max) {
				max = v
			}
		}
		return &max
	}

	return nil
}

// ScopeKind selects which descendants contribute to an aggregate.
type ScopeKind string

const (
	// ScopeChildren selects the structurally nearest descendants of the
	// target type, skipping over intervening levels of other types.
	ScopeChildren ScopeKind = "children"
	// ScopeDescendants selects the full subtree, optionally restricted to
	// the target type.
	ScopeDescendants ScopeKind = "descendants"
)

// Scope is the member-selection rule of an aggregate definition.
type Scope struct {
	Kind       ScopeKind `json:"kind"`
	TargetType string    `json:"target_type,omitempty"`
	Predicate  string    `json:"predicate,omitempty"`
}

// SourceKind distinguishes stored properties from derived formula values as
// the target value source of an aggregate.
type SourceKind string

const (
	SourceProperty SourceKind = "property"
	SourceFormula  SourceKind = "formula"
	// SourceNone is legal for COUNT only.
	SourceNone SourceKind = "none"
)

// Definition describes one aggregate: which nodes it is materialized on,
// which members contribute, which value is extracted and how it is reduced.
type Definition struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	TreeID     string     `json:"tree_id"`
	Name       string     `json:"name"`
	Function   Function   `json:"function"`
	SourceKind SourceKind `json:"source_kind"`
	Source     string     `json:"source,omitempty"`
	OwnerType  string     `json:"owner_type"`
	Scope      Scope      `json:"scope"`
	CreatedAt  time.Time  `json:"created_at"`
}

// AppliesToType reports whether the aggregate is materialized on nodes of
// the given type. A node retyped away from the owner type gets its slot
// cleared rather than recomputed.
func (d *Definition) AppliesToType(nodeType string) bool {
	return d.OwnerType == nodeType
}

// Formula is a derived value definition. Its expression may reference stored
// properties, aggregate names and other formula names. The reference graph at
// the definition level is acyclic by construction; creation-time validation
// (outside this subsystem) rejects a definition that reaches itself.
type Formula struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	Name       string    `json:"name"`
	OwnerType  string    `json:"owner_type"`
	Expression string    `json:"expression"`
	References []string  `json:"references,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
