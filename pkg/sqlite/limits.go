// Model limit manager: per-table row caps and eviction.
// See docs/ARCHITECTURE.md § Model Limit Manager.
package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// limitManager tracks one ModelLimit per table and removes excess rows after
// successful inserts. Enforcement is idempotent: within bounds it is a no-op,
// and concurrent calls serialize on the manager mutex.
type limitManager struct {
	mu       sync.Mutex
	conn     *Conn
	notifier *notifier
	tracker  *accessTracker
	limits   map[string]types.ModelLimit
	descs    map[string]types.Descriptor
	global   []types.RemovalCallback
	perTable map[string][]types.RemovalCallback
	logger   *zap.Logger
}

func newLimitManager(conn *Conn, n *notifier, tracker *accessTracker, logger *zap.Logger) *limitManager {
	return &limitManager{
		conn:     conn,
		notifier: n,
		tracker:  tracker,
		limits:   make(map[string]types.ModelLimit),
		descs:    make(map[string]types.Descriptor),
		perTable: make(map[string][]types.RemovalCallback),
		logger:   logger,
	}
}

// register records the descriptor so enforcement knows the id and
// creation-time columns.
func (m *limitManager) register(d types.Descriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.descs[d.Table] = d
}

func (m *limitManager) setLimit(table string, limit types.ModelLimit) error {
	if err := limit.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits[table] = limit
	return nil
}

func (m *limitManager) getLimit(table string) (types.ModelLimit, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit, ok := m.limits[table]
	return limit, ok
}

func (m *limitManager) onRemoval(cb types.RemovalCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.global = append(m.global, cb)
}

func (m *limitManager) onTableRemoval(table string, cb types.RemovalCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perTable[table] = append(m.perTable[table], cb)
}

// enforce applies the table's limit: when the row count exceeds MaxCount it
// removes max(count-MaxCount, BatchSize) rows chosen by the strategy in one
// batched DELETE, then notifies the table and fires removal callbacks.
func (m *limitManager) enforce(ctx context.Context, table, reason string) error {
	m.mu.Lock()
	limit, hasLimit := m.limits[table]
	desc, hasDesc := m.descs[table]
	m.mu.Unlock()

	if !hasLimit || !limit.Enabled {
		return nil
	}
	if !hasDesc {
		return fmt.Errorf("%w: no descriptor registered for table %s", types.ErrInvalidOperation, table)
	}

	count, err := m.rowCount(ctx, table)
	if err != nil {
		return err
	}
	if count <= limit.MaxCount {
		return nil
	}

	remove := count - limit.MaxCount
	if remove < limit.BatchSize {
		remove = limit.BatchSize
	}

	victims, err := m.selectVictims(ctx, desc, limit.Strategy, remove)
	if err != nil {
		return err
	}
	if len(victims) == 0 {
		return nil
	}

	removed, err := m.deleteBatch(ctx, desc, victims)
	if err != nil {
		return err
	}

	ids := make([]string, len(victims))
	for i, v := range victims {
		ids[i] = types.IDText(v)
	}
	m.tracker.forget(table, ids)

	m.notifier.notify(table)

	event := types.RemovalEvent{
		Table:        table,
		RemovedCount: removed,
		Strategy:     limit.Strategy,
		Reason:       reason,
		Timestamp:    time.Now(),
	}
	m.fire(event)

	m.logger.Debug("limit enforced",
		zap.String("table", table),
		zap.Int64("removed", removed),
		zap.String("strategy", string(limit.Strategy)),
		zap.String("reason", reason))
	return nil
}

func (m *limitManager) rowCount(ctx context.Context, table string) (int64, error) {
	rows, err := m.conn.Query(ctx, "SELECT COUNT(*) AS n FROM "+table, nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return types.AsInt64(rows[0]["n"])
}

// selectVictims returns the ids of the rows the strategy removes, oldest
// victim first.
func (m *limitManager) selectVictims(ctx context.Context, desc types.Descriptor, strategy types.Strategy, n int64) ([]types.Value, error) {
	switch strategy {
	case types.StrategyFIFO:
		return m.victimsByOrder(ctx, desc, m.creationOrder(desc, "ASC"), n)
	case types.StrategyLIFO:
		return m.victimsByOrder(ctx, desc, m.creationOrder(desc, "DESC"), n)
	case types.StrategyRandom:
		return m.victimsByOrder(ctx, desc, "RANDOM()", n)
	case types.StrategySmallestID:
		return m.victimsByOrder(ctx, desc, desc.IDColumn+" ASC", n)
	case types.StrategyLargestID:
		return m.victimsByOrder(ctx, desc, desc.IDColumn+" DESC", n)
	case types.StrategyLRU:
		return m.victimsByRecency(ctx, desc, n, false)
	case types.StrategyMRU:
		return m.victimsByRecency(ctx, desc, n, true)
	default:
		return nil, types.ErrLimitStrategyUnknown
	}
}

// creationOrder prefers the declared creation-time column and falls back to
// id order, which tracks insertion order for autoincrement ids.
func (m *limitManager) creationOrder(desc types.Descriptor, dir string) string {
	if desc.CreatedAtColumn != "" {
		return desc.CreatedAtColumn + " " + dir
	}
	return desc.IDColumn + " " + dir
}

func (m *limitManager) victimsByOrder(ctx context.Context, desc types.Descriptor, order string, n int64) ([]types.Value, error) {
	sqlText := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s LIMIT ?", desc.IDColumn, desc.Table, order)
	rows, err := m.conn.Query(ctx, sqlText, []types.Value{types.Integer(n)})
	if err != nil {
		return nil, err
	}
	ids := make([]types.Value, len(rows))
	for i, row := range rows {
		ids[i] = row[desc.IDColumn]
	}
	return ids, nil
}

// victimsByRecency implements LRU and MRU against the access tracker. With no
// access data at all it falls back to FIFO (LRU) or LIFO (MRU). Rows that
// were never accessed count as older than every accessed row.
func (m *limitManager) victimsByRecency(ctx context.Context, desc types.Descriptor, n int64, mostRecent bool) ([]types.Value, error) {
	times := m.tracker.accessTimes(desc.Table)
	if len(times) == 0 {
		dir := "ASC"
		if mostRecent {
			dir = "DESC"
		}
		return m.victimsByOrder(ctx, desc, m.creationOrder(desc, dir), n)
	}

	// All ids in creation order; the sort below is stable, so untouched rows
	// keep their relative age.
	sqlText := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", desc.IDColumn, desc.Table, m.creationOrder(desc, "ASC"))
	rows, err := m.conn.Query(ctx, sqlText, nil)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		id       types.Value
		accessed bool
		at       time.Time
	}
	candidates := make([]candidate, len(rows))
	for i, row := range rows {
		id := row[desc.IDColumn]
		at, ok := times[types.IDText(id)]
		candidates[i] = candidate{id: id, accessed: ok, at: at}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if mostRecent {
			// MRU: most recently touched first; untouched rows last.
			if a.accessed != b.accessed {
				return a.accessed
			}
			return a.at.After(b.at)
		}
		// LRU: untouched rows are the least recent, then ascending access.
		if a.accessed != b.accessed {
			return !a.accessed
		}
		return a.at.Before(b.at)
	})

	if int64(len(candidates)) > n {
		candidates = candidates[:n]
	}
	ids := make([]types.Value, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	return ids, nil
}

// deleteBatch removes the victims in a single batched statement.
func (m *limitManager) deleteBatch(ctx context.Context, desc types.Descriptor, ids []types.Value) (int64, error) {
	placeholders := strings.Repeat("?, ", len(ids)-1) + "?"
	sqlText := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", desc.Table, desc.IDColumn, placeholders)
	res, err := m.conn.Execute(ctx, sqlText, ids)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

func (m *limitManager) fire(event types.RemovalEvent) {
	m.mu.Lock()
	callbacks := append(append([]types.RemovalCallback(nil), m.global...), m.perTable[event.Table]...)
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb(event)
	}
}

// statistics reports occupancy for every registered table.
func (m *limitManager) statistics(ctx context.Context) ([]types.TableStatistics, error) {
	m.mu.Lock()
	tables := make([]string, 0, len(m.descs))
	for t := range m.descs {
		tables = append(tables, t)
	}
	m.mu.Unlock()
	sort.Strings(tables)

	stats := make([]types.TableStatistics, 0, len(tables))
	for _, table := range tables {
		count, err := m.rowCount(ctx, table)
		if err != nil {
			return nil, err
		}
		stat := types.TableStatistics{Table: table, RowCount: count}
		if limit, ok := m.getLimit(table); ok {
			stat.Limit = &limit
		}
		stats = append(stats, stat)
	}
	return stats, nil
}
