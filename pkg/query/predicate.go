// Package query builds immutable predicate trees and query descriptors and
// compiles them deterministically to parameterized SQL.
// See docs/ARCHITECTURE.md § Predicate & Query Builder.
package query

import "github.com/mesh-intelligence/larder/pkg/types"

// Predicate is a sealed, side-effect-free expression tree node. Compiling the
// same tree twice yields identical SQL text and binding order. Leaves name a
// property (pre-remap) and carry the values to bind.
type Predicate interface {
	predicate() // sealed
}

// comparison covers the binary operators (=, !=, <, <=, >, >=, LIKE).
type comparison struct {
	column string
	op     string
	value  types.Value
}

func (comparison) predicate() {}

// membership covers IN and NOT IN.
type membership struct {
	column  string
	negated bool
	values  []types.Value
}

func (membership) predicate() {}

// between covers BETWEEN low AND high.
type between struct {
	column   string
	low, high types.Value
}

func (between) predicate() {}

// nullCheck covers IS NULL and IS NOT NULL. Emits no bindings.
type nullCheck struct {
	column  string
	negated bool
}

func (nullCheck) predicate() {}

// junction covers AND and OR over child predicates.
type junction struct {
	op       string
	children []Predicate
}

func (junction) predicate() {}

// negation covers NOT.
type negation struct {
	child Predicate
}

func (negation) predicate() {}

// raw passes a SQL fragment and its bindings through untouched and
// unescaped. Caller responsibility.
type raw struct {
	sql      string
	bindings []types.Value
}

func (raw) predicate() {}

// Eq matches column = value.
func Eq(column string, value types.Value) Predicate {
	return comparison{column: column, op: "=", value: value}
}

// Ne matches column != value.
func Ne(column string, value types.Value) Predicate {
	return comparison{column: column, op: "!=", value: value}
}

// Lt matches column < value.
func Lt(column string, value types.Value) Predicate {
	return comparison{column: column, op: "<", value: value}
}

// Le matches column <= value.
func Le(column string, value types.Value) Predicate {
	return comparison{column: column, op: "<=", value: value}
}

// Gt matches column > value.
func Gt(column string, value types.Value) Predicate {
	return comparison{column: column, op: ">", value: value}
}

// Ge matches column >= value.
func Ge(column string, value types.Value) Predicate {
	return comparison{column: column, op: ">=", value: value}
}

// Like matches column LIKE pattern.
func Like(column string, pattern types.Value) Predicate {
	return comparison{column: column, op: "LIKE", value: pattern}
}

// In matches column IN (values...). The placeholder list is sized to the
// value count at compile time. An empty list matches nothing.
func In(column string, values ...types.Value) Predicate {
	return membership{column: column, values: values}
}

// NotIn matches column NOT IN (values...). An empty list matches everything.
func NotIn(column string, values ...types.Value) Predicate {
	return membership{column: column, negated: true, values: values}
}

// Between matches column BETWEEN low AND high, binding (low, high) in order.
func Between(column string, low, high types.Value) Predicate {
	return between{column: column, low: low, high: high}
}

// IsNull matches column IS NULL.
func IsNull(column string) Predicate {
	return nullCheck{column: column}
}

// IsNotNull matches column IS NOT NULL.
func IsNotNull(column string) Predicate {
	return nullCheck{column: column, negated: true}
}

// And joins child predicates with AND, each wrapped in parentheses.
func And(children ...Predicate) Predicate {
	return junction{op: "AND", children: children}
}

// Or joins child predicates with OR, each wrapped in parentheses.
func Or(children ...Predicate) Predicate {
	return junction{op: "OR", children: children}
}

// Not negates a predicate.
func Not(child Predicate) Predicate {
	return negation{child: child}
}

// Raw embeds a SQL fragment verbatim with its bindings. The fragment is not
// escaped and its column names are not remapped.
func Raw(sql string, bindings ...types.Value) Predicate {
	return raw{sql: sql, bindings: bindings}
}
