// Deterministic compilation of predicates and queries to parameterized SQL.
// Compilation is pure: it never consults the database, and the same input
// always yields the same SQL text and binding order.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// Remap translates a property name to its physical column name. A nil Remap
// is the identity.
type Remap func(string) string

func remapColumn(remap Remap, column string) string {
	if remap == nil {
		return column
	}
	return remap(column)
}

// CompilePredicate compiles a predicate tree to a WHERE fragment and its
// ordered bindings. A nil predicate compiles to the vacuous truth "1 = 1".
func CompilePredicate(p Predicate, remap Remap) (string, []types.Value, error) {
	if p == nil {
		return "1 = 1", nil, nil
	}

	switch node := p.(type) {
	case comparison:
		col := remapColumn(remap, node.column)
		return fmt.Sprintf("%s %s ?", col, node.op), []types.Value{node.value}, nil

	case membership:
		col := remapColumn(remap, node.column)
		if len(node.values) == 0 {
			// IN over nothing matches nothing; NOT IN over nothing matches all.
			if node.negated {
				return "1 = 1", nil, nil
			}
			return "1 = 0", nil, nil
		}
		placeholders := strings.Repeat("?, ", len(node.values)-1) + "?"
		op := "IN"
		if node.negated {
			op = "NOT IN"
		}
		bindings := append([]types.Value(nil), node.values...)
		return fmt.Sprintf("%s %s (%s)", col, op, placeholders), bindings, nil

	case between:
		col := remapColumn(remap, node.column)
		return fmt.Sprintf("%s BETWEEN ? AND ?", col), []types.Value{node.low, node.high}, nil

	case nullCheck:
		col := remapColumn(remap, node.column)
		if node.negated {
			return col + " IS NOT NULL", nil, nil
		}
		return col + " IS NULL", nil, nil

	case junction:
		if len(node.children) == 0 {
			return "1 = 1", nil, nil
		}
		parts := make([]string, 0, len(node.children))
		var bindings []types.Value
		for _, child := range node.children {
			sql, childBindings, err := CompilePredicate(child, remap)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, "("+sql+")")
			bindings = append(bindings, childBindings...)
		}
		return strings.Join(parts, " "+node.op+" "), bindings, nil

	case negation:
		sql, bindings, err := CompilePredicate(node.child, remap)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + sql + ")", bindings, nil

	case raw:
		return node.sql, append([]types.Value(nil), node.bindings...), nil

	default:
		return "", nil, fmt.Errorf("%w: unsupported predicate %T", types.ErrInvalidOperation, p)
	}
}

// BuildSelect compiles a full SELECT statement.
func BuildSelect(q Query, remap Remap) (string, []types.Value, error) {
	if q.table == "" {
		return "", nil, fmt.Errorf("%w: query has no table", types.ErrInvalidOperation)
	}

	var sb strings.Builder
	var bindings []types.Value

	sb.WriteString("SELECT ")
	if len(q.columns) == 0 {
		sb.WriteString("*")
	} else {
		cols := make([]string, len(q.columns))
		for i, c := range q.columns {
			cols[i] = remapColumn(remap, c)
		}
		sb.WriteString(strings.Join(cols, ", "))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(q.table)

	for _, j := range q.joins {
		sb.WriteString(" ")
		sb.WriteString(string(j.Kind))
		sb.WriteString(" ")
		sb.WriteString(j.Table)
		if j.On != nil {
			onSQL, onBindings, err := CompilePredicate(j.On, remap)
			if err != nil {
				return "", nil, fmt.Errorf("compiling join on %s: %w", j.Table, err)
			}
			sb.WriteString(" ON ")
			sb.WriteString(onSQL)
			bindings = append(bindings, onBindings...)
		}
	}

	if q.where != nil {
		whereSQL, whereBindings, err := CompilePredicate(q.where, remap)
		if err != nil {
			return "", nil, fmt.Errorf("compiling filter: %w", err)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(whereSQL)
		bindings = append(bindings, whereBindings...)
	}

	if len(q.groupBy) > 0 {
		cols := make([]string, len(q.groupBy))
		for i, c := range q.groupBy {
			cols[i] = remapColumn(remap, c)
		}
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(cols, ", "))
	}

	if q.having != nil {
		havingSQL, havingBindings, err := CompilePredicate(q.having, remap)
		if err != nil {
			return "", nil, fmt.Errorf("compiling having: %w", err)
		}
		sb.WriteString(" HAVING ")
		sb.WriteString(havingSQL)
		bindings = append(bindings, havingBindings...)
	}

	if len(q.orderBy) > 0 {
		terms := make([]string, len(q.orderBy))
		for i, o := range q.orderBy {
			terms[i] = remapColumn(remap, o.Column) + " " + string(o.Direction)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(terms, ", "))
	}

	if q.limit >= 0 {
		sb.WriteString(" LIMIT ?")
		bindings = append(bindings, types.Integer(q.limit))
	}
	if q.offset >= 0 {
		if q.limit < 0 {
			// SQLite requires LIMIT before OFFSET; -1 means unbounded.
			sb.WriteString(" LIMIT -1")
		}
		sb.WriteString(" OFFSET ?")
		bindings = append(bindings, types.Integer(q.offset))
	}

	return sb.String(), bindings, nil
}

// BuildCount compiles SELECT COUNT(*) over the query's table, joins, and
// filter. Ordering, limit, and offset are ignored.
func BuildCount(q Query, remap Remap) (string, []types.Value, error) {
	counted := q
	counted.columns = nil
	counted.orderBy = nil
	counted.limit = -1
	counted.offset = -1
	counted.groupBy = nil
	counted.having = nil

	sql, bindings, err := BuildSelect(counted, remap)
	if err != nil {
		return "", nil, err
	}
	return strings.Replace(sql, "SELECT *", "SELECT COUNT(*) AS n", 1), bindings, nil
}

// BuildInsert compiles an INSERT for the given property→value map. Keys sort
// so the SQL text is reproducible for a given input map.
func BuildInsert(table string, fields map[string]types.Value, remap Remap) (string, []types.Value, error) {
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("%w: insert with no fields", types.ErrInvalidOperation)
	}
	keys := sortedKeys(fields)

	cols := make([]string, len(keys))
	marks := make([]string, len(keys))
	bindings := make([]types.Value, len(keys))
	for i, k := range keys {
		cols[i] = remapColumn(remap, k)
		marks[i] = "?"
		bindings[i] = fields[k]
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	return sql, bindings, nil
}

// BuildUpdate compiles an UPDATE with sorted assignment keys, then the WHERE
// bindings from the predicate tree.
func BuildUpdate(table string, assigns map[string]types.Value, where Predicate, remap Remap) (string, []types.Value, error) {
	if len(assigns) == 0 {
		return "", nil, fmt.Errorf("%w: update with no assignments", types.ErrInvalidOperation)
	}
	keys := sortedKeys(assigns)

	sets := make([]string, len(keys))
	bindings := make([]types.Value, 0, len(keys)+4)
	for i, k := range keys {
		sets[i] = remapColumn(remap, k) + " = ?"
		bindings = append(bindings, assigns[k])
	}

	sql := fmt.Sprintf("UPDATE %s SET %s", table, strings.Join(sets, ", "))
	if where != nil {
		whereSQL, whereBindings, err := CompilePredicate(where, remap)
		if err != nil {
			return "", nil, fmt.Errorf("compiling update filter: %w", err)
		}
		sql += " WHERE " + whereSQL
		bindings = append(bindings, whereBindings...)
	}
	return sql, bindings, nil
}

// BuildDelete compiles a DELETE with an optional WHERE from the predicate
// tree.
func BuildDelete(table string, where Predicate, remap Remap) (string, []types.Value, error) {
	sql := "DELETE FROM " + table
	if where == nil {
		return sql, nil, nil
	}
	whereSQL, bindings, err := CompilePredicate(where, remap)
	if err != nil {
		return "", nil, fmt.Errorf("compiling delete filter: %w", err)
	}
	return sql + " WHERE " + whereSQL, bindings, nil
}

func sortedKeys(m map[string]types.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
