// Store: the public entry point tying the connection owner, repositories,
// notifier, and limit manager together.
// See docs/ARCHITECTURE.md § System Components.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// Store owns one database and the managers built around it. Repositories are
// registered per record type and share the store's connection owner, so all
// SQL serializes; encoding and decoding run on the caller's goroutine.
type Store struct {
	mu       sync.RWMutex
	config   types.Config
	conn     *Conn
	notifier *notifier
	tracker  *accessTracker
	limits   *limitManager
	repos    map[string]*Repository
	logger   *zap.Logger
	open     bool
}

// Option configures a Store at construction.
type Option func(*Store)

// WithLogger installs a structured logger. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open creates the data directory if needed, opens the database, and wires
// the managers. Opening an already-open store is an error.
func Open(config types.Config, opts ...Option) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.Normalize()

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConnectionFailure, err)
	}

	s := &Store{
		config: config,
		logger: zap.NewNop(),
		repos:  make(map[string]*Repository),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.conn = newConn(filepath.Join(dataDir, config.DatabaseFile), config.BusyTimeoutMS, s.logger)
	if err := s.conn.Open(); err != nil {
		return nil, err
	}

	s.notifier = newNotifier()
	s.tracker = newAccessTracker(time.Duration(config.AccessTTLSeconds) * time.Second)
	s.limits = newLimitManager(s.conn, s.notifier, s.tracker, s.logger)
	s.open = true
	return s, nil
}

// Close releases the database handle. Idempotent; repositories bound to a
// closed store fail with ErrNotOpen.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return err
	}
	s.open = false
	return nil
}

// Register creates (or returns) the repository for a record type, creating
// its table and indexes if missing. The factory must return a fresh record
// instance per call.
func (s *Store) Register(ctx context.Context, factory func() types.Record) (*Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil, types.ErrNotOpen
	}

	desc := factory().Descriptor()
	if repo, ok := s.repos[desc.Table]; ok {
		return repo, nil
	}

	repo, err := newRepository(s, factory)
	if err != nil {
		return nil, err
	}
	if err := s.CreateTable(ctx, desc); err != nil {
		return nil, err
	}
	s.limits.register(desc)
	s.repos[desc.Table] = repo
	return repo, nil
}

// Repository returns the registered repository for a table.
func (s *Store) Repository(table string) (*Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.open {
		return nil, types.ErrNotOpen
	}
	repo, ok := s.repos[table]
	if !ok {
		return nil, fmt.Errorf("%w: no repository for table %s", types.ErrNotFound, table)
	}
	return repo, nil
}

// Execute runs a raw mutating statement. The caller owns the SQL; nothing is
// remapped or escaped.
func (s *Store) Execute(ctx context.Context, sqlText string, bindings []types.Value) (ExecResult, error) {
	return s.conn.Execute(ctx, sqlText, bindings)
}

// Query runs a raw SELECT.
func (s *Store) Query(ctx context.Context, sqlText string, bindings []types.Value) ([]Row, error) {
	return s.conn.Query(ctx, sqlText, bindings)
}

// Transaction runs body atomically on the store's connection.
func (s *Store) Transaction(ctx context.Context, body func(*Tx) error) error {
	return s.conn.Transaction(ctx, body)
}

// SetModelLimit installs or replaces the row cap for a table.
func (s *Store) SetModelLimit(table string, limit types.ModelLimit) error {
	return s.limits.setLimit(table, limit)
}

// GetModelLimit returns the configured cap for a table, if any.
func (s *Store) GetModelLimit(table string) (types.ModelLimit, bool) {
	return s.limits.getLimit(table)
}

// EnforceLimits runs enforcement for every registered table.
func (s *Store) EnforceLimits(ctx context.Context, reason string) error {
	s.mu.RLock()
	tables := make([]string, 0, len(s.repos))
	for t := range s.repos {
		tables = append(tables, t)
	}
	s.mu.RUnlock()

	for _, table := range tables {
		if err := s.limits.enforce(ctx, table, reason); err != nil {
			return err
		}
	}
	return nil
}

// GetStatistics reports per-table row counts against configured caps.
func (s *Store) GetStatistics(ctx context.Context) ([]types.TableStatistics, error) {
	return s.limits.statistics(ctx)
}

// OnRemoval registers a callback fired after every eviction pass.
func (s *Store) OnRemoval(cb types.RemovalCallback) {
	s.limits.onRemoval(cb)
}

// OnTableRemoval registers a callback fired after evictions on one table.
func (s *Store) OnTableRemoval(table string, cb types.RemovalCallback) {
	s.limits.onTableRemoval(table, cb)
}
