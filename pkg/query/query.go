package query

// Direction orders a sort column.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// JoinKind selects the join operator.
type JoinKind string

const (
	InnerJoin JoinKind = "INNER JOIN"
	LeftJoin  JoinKind = "LEFT JOIN"
	CrossJoin JoinKind = "CROSS JOIN"
)

// Order is one ORDER BY term.
type Order struct {
	Column    string
	Direction Direction
}

// Join is one join clause against another table. The On predicate compiles
// with the same remap as the rest of the query.
type Join struct {
	Kind  JoinKind
	Table string
	On    Predicate
}

// Query describes a SELECT without consulting the database: selected columns,
// a filter tree, ordering, limit/offset, joins, and group-by/having.
// All builder methods return a modified copy; a Query value is never mutated
// in place, so trees can be shared and re-compiled freely.
type Query struct {
	table   string
	columns []string
	where   Predicate
	orderBy []Order
	limit   int64
	offset  int64
	joins   []Join
	groupBy []string
	having  Predicate
}

// New starts a query against a table. Without Select the query emits *.
func New(table string) Query {
	return Query{table: table, limit: -1, offset: -1}
}

// Select replaces the selected column list.
func (q Query) Select(columns ...string) Query {
	q.columns = append([]string(nil), columns...)
	return q
}

// Where replaces the root filter predicate.
func (q Query) Where(p Predicate) Query {
	q.where = p
	return q
}

// OrderBy appends an ordering term.
func (q Query) OrderBy(column string, dir Direction) Query {
	q.orderBy = append(append([]Order(nil), q.orderBy...), Order{Column: column, Direction: dir})
	return q
}

// Limit caps the number of returned rows. Negative means unset.
func (q Query) Limit(n int64) Query {
	q.limit = n
	return q
}

// Offset skips the first n rows. Negative means unset.
func (q Query) Offset(n int64) Query {
	q.offset = n
	return q
}

// Join appends a join clause.
func (q Query) Join(kind JoinKind, table string, on Predicate) Query {
	q.joins = append(append([]Join(nil), q.joins...), Join{Kind: kind, Table: table, On: on})
	return q
}

// GroupBy replaces the grouping column list.
func (q Query) GroupBy(columns ...string) Query {
	q.groupBy = append([]string(nil), columns...)
	return q
}

// Having replaces the HAVING predicate.
func (q Query) Having(p Predicate) Query {
	q.having = p
	return q
}

// Table returns the query's base table name.
func (q Query) Table() string {
	return q.table
}

// Filter returns the root predicate, or nil.
func (q Query) Filter() Predicate {
	return q.where
}
