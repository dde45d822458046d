// Connection owner: exclusive holder of one SQLite handle.
// See docs/ARCHITECTURE.md § Connection Owner.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// Row is one decoded result row, keyed by physical column name.
type Row map[string]types.Value

// ExecResult reports the outcome of one mutating statement.
type ExecResult struct {
	RowsAffected int64
	LastInsertID int64
}

// Conn exclusively owns one database handle. A mutex serializes every
// Execute, Query, and Transaction call, so statements apply in call order and
// the handle is never touched concurrently. Concurrent callers queue on the
// mutex; only transaction nesting fails fast.
type Conn struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	busyMS int
	open   bool
	logger *zap.Logger
}

func newConn(path string, busyTimeoutMS int, logger *zap.Logger) *Conn {
	return &Conn{path: path, busyMS: busyTimeoutMS, logger: logger}
}

// Open opens the database handle. Idempotent: opening an open connection is a
// no-op.
func (c *Conn) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open {
		return nil
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		c.path, c.busyMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrConnectionFailure, err)
	}
	// The handle is single-owner; one underlying connection keeps pragma
	// state and transaction scope coherent.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("%w: %v", types.ErrConnectionFailure, err)
	}

	c.db = db
	c.open = true
	return nil
}

// Close releases the handle. Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return nil
	}
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrConnectionFailure, err)
	}
	c.db = nil
	c.open = false
	return nil
}

// Execute runs one mutating statement to completion under exclusive access.
func (c *Conn) Execute(ctx context.Context, sqlText string, bindings []types.Value) (ExecResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return ExecResult{}, types.ErrNotOpen
	}
	return execOn(ctx, c.db, sqlText, bindings)
}

// Query runs one SELECT to completion and decodes every row through the
// value layer.
func (c *Conn) Query(ctx context.Context, sqlText string, bindings []types.Value) ([]Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return nil, types.ErrNotOpen
	}
	return queryOn(ctx, c.db, sqlText, bindings)
}

// Transaction begins a transaction, runs body, commits on success, and rolls
// back and propagates the error on any failure from body or commit. The
// connection mutex is held for the whole transaction, so exactly one
// transaction is open at a time; nested attempts through Tx fail fast.
func (c *Conn) Transaction(ctx context.Context, body func(*Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return types.ErrNotOpen
	}

	sqlTx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", types.ErrTransactionFailure, err)
	}

	tx := &Tx{tx: sqlTx}
	if err := body(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			c.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			c.logger.Warn("rollback after failed commit", zap.Error(rbErr))
		}
		return fmt.Errorf("%w: commit: %v", types.ErrTransactionFailure, err)
	}
	return nil
}

// Tx is the transaction-scoped statement surface handed to Transaction
// bodies.
type Tx struct {
	tx   *sql.Tx
	done bool
}

// Execute runs one mutating statement inside the transaction.
func (t *Tx) Execute(ctx context.Context, sqlText string, bindings []types.Value) (ExecResult, error) {
	if t.done {
		return ExecResult{}, types.ErrTransactionNotActive
	}
	return execOn(ctx, t.tx, sqlText, bindings)
}

// Query runs one SELECT inside the transaction.
func (t *Tx) Query(ctx context.Context, sqlText string, bindings []types.Value) ([]Row, error) {
	if t.done {
		return nil, types.ErrTransactionNotActive
	}
	return queryOn(ctx, t.tx, sqlText, bindings)
}

// Transaction rejects nesting. Only one transaction may be open per
// connection; attempts fail fast rather than silently queuing.
func (t *Tx) Transaction(ctx context.Context, body func(*Tx) error) error {
	return fmt.Errorf("%w: nested transaction", types.ErrInvalidOperation)
}

// executor abstracts *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func execOn(ctx context.Context, ex executor, sqlText string, bindings []types.Value) (ExecResult, error) {
	res, err := ex.ExecContext(ctx, sqlText, driverArgs(bindings)...)
	if err != nil {
		return ExecResult{}, classify(err, sqlText)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return ExecResult{}, classify(err, sqlText)
	}
	lastID, _ := res.LastInsertId()
	return ExecResult{RowsAffected: affected, LastInsertID: lastID}, nil
}

func queryOn(ctx context.Context, ex executor, sqlText string, bindings []types.Value) ([]Row, error) {
	rows, err := ex.QueryContext(ctx, sqlText, driverArgs(bindings)...)
	if err != nil {
		return nil, classify(err, sqlText)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, classify(err, sqlText)
	}

	var result []Row
	for rows.Next() {
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classify(err, sqlText)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			v, err := types.FromDriver(raw[i])
			if err != nil {
				return nil, fmt.Errorf("decoding column %s: %w", col, err)
			}
			row[col] = v
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, sqlText)
	}
	return result, nil
}

func driverArgs(bindings []types.Value) []any {
	args := make([]any, len(bindings))
	for i, b := range bindings {
		args[i] = types.ToDriver(b)
	}
	return args
}

// classify maps driver errors onto the standard taxonomy, carrying the
// offending SQL.
func classify(err error, sqlText string) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "constraint"):
		return fmt.Errorf("%w: %s: %v", types.ErrConstraintViolation, sqlText, err)
	case strings.Contains(msg, "syntax error"),
		strings.Contains(msg, "no such table"),
		strings.Contains(msg, "no such column"):
		return fmt.Errorf("%w: %s: %v", types.ErrInvalidSQL, sqlText, err)
	default:
		return fmt.Errorf("%w: %s: %v", types.ErrExecutionFailure, sqlText, err)
	}
}
