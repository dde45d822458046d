// Per-row access tracking for recency-based eviction.
// See docs/ARCHITECTURE.md § Model Limit Manager.
package sqlite

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// accessTracker keeps a per-table map of row id to last-access time, used
// only by the LRU/MRU strategies. Per-table caches are created lazily and
// entries expire after the configured TTL, so the tracker never needs an
// explicit cleanup pass. Only the limit manager and repositories mutate it.
type accessTracker struct {
	mu     sync.Mutex
	ttl    time.Duration
	tables map[string]*gocache.Cache
}

func newAccessTracker(ttl time.Duration) *accessTracker {
	return &accessTracker{
		ttl:    ttl,
		tables: make(map[string]*gocache.Cache),
	}
}

func (t *accessTracker) table(name string) *gocache.Cache {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.tables[name]
	if !ok {
		c = gocache.New(t.ttl, t.ttl)
		t.tables[name] = c
	}
	return c
}

// touch records an access to a row now.
func (t *accessTracker) touch(table, id string) {
	t.table(table).Set(id, time.Now(), gocache.DefaultExpiration)
}

// accessTimes snapshots the live access map for a table. An empty map means
// no recency data exists and the caller should fall back to FIFO/LIFO.
func (t *accessTracker) accessTimes(table string) map[string]time.Time {
	items := t.table(table).Items()
	times := make(map[string]time.Time, len(items))
	for id, item := range items {
		if at, ok := item.Object.(time.Time); ok {
			times[id] = at
		}
	}
	return times
}

// forget drops tracking entries for removed rows.
func (t *accessTracker) forget(table string, ids []string) {
	c := t.table(table)
	for _, id := range ids {
		c.Delete(id)
	}
}
