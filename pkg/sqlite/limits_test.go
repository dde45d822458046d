package sqlite

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/mesh-intelligence/larder/pkg/types"
)

func noteIDs(t *testing.T, repo *Repository) []int64 {
	t.Helper()

	records, err := repo.FindAll(context.Background(), repo.Query())
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	ids := make([]int64, len(records))
	for i, rec := range records {
		ids[i] = rec.(*pantryNote).id
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func TestLimit_SetAndGet(t *testing.T) {
	store := newTestStore(t)

	limit := types.ModelLimit{MaxCount: 10, Strategy: types.StrategyFIFO, Enabled: true, BatchSize: 2}
	if err := store.SetModelLimit("notes", limit); err != nil {
		t.Fatalf("SetModelLimit failed: %v", err)
	}

	got, ok := store.GetModelLimit("notes")
	if !ok {
		t.Fatal("limit not found after set")
	}
	if got != limit {
		t.Errorf("limit round trip: got %+v, want %+v", got, limit)
	}

	_, ok = store.GetModelLimit("other")
	if ok {
		t.Error("unset table reported a limit")
	}
}

func TestLimit_SetRejectsInvalid(t *testing.T) {
	store := newTestStore(t)

	err := store.SetModelLimit("notes", types.ModelLimit{MaxCount: 0, Strategy: types.StrategyFIFO, BatchSize: 1})
	if !errors.Is(err, types.ErrLimitMaxCountInvalid) {
		t.Errorf("expected ErrLimitMaxCountInvalid, got %v", err)
	}
}

func TestLimit_FIFOEnforcesOnInsert(t *testing.T) {
	store := newTestStore(t)

	limit := types.ModelLimit{MaxCount: 5, Strategy: types.StrategyFIFO, Enabled: true, BatchSize: 1}
	if err := store.SetModelLimit("notes", limit); err != nil {
		t.Fatalf("SetModelLimit failed: %v", err)
	}

	repo := insertNotes(t, store, 8)

	// Each insert past the cap evicts the oldest row, so the three earliest
	// rows are gone.
	ids := noteIDs(t, repo)
	want := []int64{4, 5, 6, 7, 8}
	if len(ids) != len(want) {
		t.Fatalf("surviving rows: got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("surviving rows: got %v, want %v", ids, want)
		}
	}
}

func TestLimit_LIFOEvictsNewest(t *testing.T) {
	store := newTestStore(t)
	repo := insertNotes(t, store, 5)
	ctx := context.Background()

	limit := types.ModelLimit{MaxCount: 4, Strategy: types.StrategyLIFO, Enabled: true, BatchSize: 1}
	if err := store.SetModelLimit("notes", limit); err != nil {
		t.Fatalf("SetModelLimit failed: %v", err)
	}
	if err := store.EnforceLimits(ctx, "manual"); err != nil {
		t.Fatalf("EnforceLimits failed: %v", err)
	}

	ids := noteIDs(t, repo)
	if len(ids) != 4 || ids[len(ids)-1] != 4 {
		t.Errorf("LIFO should evict the newest row: surviving %v", ids)
	}
}

func TestLimit_BatchSizeRemovesExtra(t *testing.T) {
	store := newTestStore(t)
	repo := insertNotes(t, store, 6)
	ctx := context.Background()

	// Over by 1, but the batch floor removes 3 at once.
	limit := types.ModelLimit{MaxCount: 5, Strategy: types.StrategyFIFO, Enabled: true, BatchSize: 3}
	if err := store.SetModelLimit("notes", limit); err != nil {
		t.Fatalf("SetModelLimit failed: %v", err)
	}
	if err := store.EnforceLimits(ctx, "manual"); err != nil {
		t.Fatalf("EnforceLimits failed: %v", err)
	}

	ids := noteIDs(t, repo)
	want := []int64{4, 5, 6}
	if len(ids) != len(want) || ids[0] != 4 {
		t.Errorf("batched eviction: surviving %v, want %v", ids, want)
	}
}

func TestLimit_DisabledLimitIsIgnored(t *testing.T) {
	store := newTestStore(t)

	limit := types.ModelLimit{MaxCount: 2, Strategy: types.StrategyFIFO, Enabled: false, BatchSize: 1}
	if err := store.SetModelLimit("notes", limit); err != nil {
		t.Fatalf("SetModelLimit failed: %v", err)
	}

	repo := insertNotes(t, store, 5)
	if ids := noteIDs(t, repo); len(ids) != 5 {
		t.Errorf("disabled limit evicted rows: %v", ids)
	}
}

func TestLimit_WithinBoundsIsNoOp(t *testing.T) {
	store := newTestStore(t)
	repo := insertNotes(t, store, 3)
	ctx := context.Background()

	limit := types.ModelLimit{MaxCount: 10, Strategy: types.StrategyFIFO, Enabled: true, BatchSize: 5}
	if err := store.SetModelLimit("notes", limit); err != nil {
		t.Fatalf("SetModelLimit failed: %v", err)
	}
	if err := store.EnforceLimits(ctx, "manual"); err != nil {
		t.Fatalf("EnforceLimits failed: %v", err)
	}

	if ids := noteIDs(t, repo); len(ids) != 3 {
		t.Errorf("within-bounds enforcement evicted rows: %v", ids)
	}
}

func TestLimit_LRUEvictsUntouchedFirst(t *testing.T) {
	store := newTestStore(t)
	repo := insertNotes(t, store, 5)
	ctx := context.Background()

	// Touch every row except the first; the untouched row is the LRU victim.
	for id := int64(2); id <= 5; id++ {
		if _, err := repo.Find(ctx, types.Integer(id)); err != nil {
			t.Fatalf("Find failed: %v", err)
		}
	}

	limit := types.ModelLimit{MaxCount: 4, Strategy: types.StrategyLRU, Enabled: true, BatchSize: 1}
	if err := store.SetModelLimit("notes", limit); err != nil {
		t.Fatalf("SetModelLimit failed: %v", err)
	}
	if err := store.EnforceLimits(ctx, "manual"); err != nil {
		t.Fatalf("EnforceLimits failed: %v", err)
	}

	ids := noteIDs(t, repo)
	if len(ids) != 4 || ids[0] != 2 {
		t.Errorf("LRU should evict the untouched row 1: surviving %v", ids)
	}
}

func TestLimit_MRUEvictsMostRecentlyTouched(t *testing.T) {
	store := newTestStore(t)
	repo := insertNotes(t, store, 5)
	ctx := context.Background()

	for id := int64(1); id <= 3; id++ {
		if _, err := repo.Find(ctx, types.Integer(id)); err != nil {
			t.Fatalf("Find failed: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	limit := types.ModelLimit{MaxCount: 4, Strategy: types.StrategyMRU, Enabled: true, BatchSize: 1}
	if err := store.SetModelLimit("notes", limit); err != nil {
		t.Fatalf("SetModelLimit failed: %v", err)
	}
	if err := store.EnforceLimits(ctx, "manual"); err != nil {
		t.Fatalf("EnforceLimits failed: %v", err)
	}

	ids := noteIDs(t, repo)
	for _, id := range ids {
		if id == 3 {
			t.Errorf("MRU should evict the last-touched row 3: surviving %v", ids)
		}
	}
	if len(ids) != 4 {
		t.Errorf("surviving count: got %d, want 4", len(ids))
	}
}

func TestLimit_LRUFallsBackToFIFOWithoutAccessData(t *testing.T) {
	store := newTestStore(t)
	repo := insertNotes(t, store, 5)
	ctx := context.Background()

	limit := types.ModelLimit{MaxCount: 4, Strategy: types.StrategyLRU, Enabled: true, BatchSize: 1}
	if err := store.SetModelLimit("notes", limit); err != nil {
		t.Fatalf("SetModelLimit failed: %v", err)
	}
	if err := store.EnforceLimits(ctx, "manual"); err != nil {
		t.Fatalf("EnforceLimits failed: %v", err)
	}

	ids := noteIDs(t, repo)
	if len(ids) != 4 || ids[0] != 2 {
		t.Errorf("fallback should evict the oldest row: surviving %v", ids)
	}
}

func TestLimit_RandomRespectsCount(t *testing.T) {
	store := newTestStore(t)
	repo := insertNotes(t, store, 8)
	ctx := context.Background()

	limit := types.ModelLimit{MaxCount: 5, Strategy: types.StrategyRandom, Enabled: true, BatchSize: 1}
	if err := store.SetModelLimit("notes", limit); err != nil {
		t.Fatalf("SetModelLimit failed: %v", err)
	}
	if err := store.EnforceLimits(ctx, "manual"); err != nil {
		t.Fatalf("EnforceLimits failed: %v", err)
	}

	if ids := noteIDs(t, repo); len(ids) != 5 {
		t.Errorf("surviving count: got %d, want 5", len(ids))
	}
}

func TestLimit_SmallestAndLargestID(t *testing.T) {
	store := newTestStore(t)
	repo := insertNotes(t, store, 4)
	ctx := context.Background()

	limit := types.ModelLimit{MaxCount: 3, Strategy: types.StrategySmallestID, Enabled: true, BatchSize: 1}
	if err := store.SetModelLimit("notes", limit); err != nil {
		t.Fatalf("SetModelLimit failed: %v", err)
	}
	if err := store.EnforceLimits(ctx, "manual"); err != nil {
		t.Fatalf("EnforceLimits failed: %v", err)
	}
	ids := noteIDs(t, repo)
	if len(ids) != 3 || ids[0] != 2 {
		t.Fatalf("smallest_id should evict row 1: surviving %v", ids)
	}

	limit.MaxCount = 2
	limit.Strategy = types.StrategyLargestID
	if err := store.SetModelLimit("notes", limit); err != nil {
		t.Fatalf("SetModelLimit failed: %v", err)
	}
	if err := store.EnforceLimits(ctx, "manual"); err != nil {
		t.Fatalf("EnforceLimits failed: %v", err)
	}
	ids = noteIDs(t, repo)
	if len(ids) != 2 || ids[len(ids)-1] != 3 {
		t.Errorf("largest_id should evict row 4: surviving %v", ids)
	}
}

func TestLimit_RemovalCallbacks(t *testing.T) {
	store := newTestStore(t)

	var global []types.RemovalEvent
	var scoped []types.RemovalEvent
	store.OnRemoval(func(e types.RemovalEvent) { global = append(global, e) })
	store.OnTableRemoval("notes", func(e types.RemovalEvent) { scoped = append(scoped, e) })
	store.OnTableRemoval("other", func(e types.RemovalEvent) {
		t.Errorf("callback for an unrelated table fired: %+v", e)
	})

	limit := types.ModelLimit{MaxCount: 2, Strategy: types.StrategyFIFO, Enabled: true, BatchSize: 1}
	if err := store.SetModelLimit("notes", limit); err != nil {
		t.Fatalf("SetModelLimit failed: %v", err)
	}
	insertNotes(t, store, 3)

	if len(global) != 1 {
		t.Fatalf("global callback count: got %d, want 1", len(global))
	}
	e := global[0]
	if e.Table != "notes" || e.RemovedCount != 1 || e.Strategy != types.StrategyFIFO || e.Reason != "insert" {
		t.Errorf("event mismatch: %+v", e)
	}
	if e.Timestamp.IsZero() {
		t.Error("event timestamp not set")
	}
	if len(scoped) != 1 {
		t.Errorf("table callback count: got %d, want 1", len(scoped))
	}
}

func TestLimit_EnforcementNotifiesSubscribers(t *testing.T) {
	store := newTestStore(t)
	repo := insertNotes(t, store, 3)
	ctx := context.Background()

	sub := repo.SubscribeCount(ctx, repo.Query())
	defer sub.Cancel()
	waitForCount(t, sub, 3)

	limit := types.ModelLimit{MaxCount: 2, Strategy: types.StrategyFIFO, Enabled: true, BatchSize: 1}
	if err := store.SetModelLimit("notes", limit); err != nil {
		t.Fatalf("SetModelLimit failed: %v", err)
	}
	if err := store.EnforceLimits(ctx, "manual"); err != nil {
		t.Fatalf("EnforceLimits failed: %v", err)
	}

	waitForCount(t, sub, 2)
}

func TestStore_GetStatistics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	insertNotes(t, store, 3)
	if _, err := store.Register(ctx, newIngredient); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	limit := types.ModelLimit{MaxCount: 10, Strategy: types.StrategyFIFO, Enabled: true, BatchSize: 1}
	if err := store.SetModelLimit("notes", limit); err != nil {
		t.Fatalf("SetModelLimit failed: %v", err)
	}

	stats, err := store.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("GetStatistics failed: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("stats count: got %d, want 2", len(stats))
	}
	// Sorted by table name: ingredients then notes.
	if stats[0].Table != "ingredients" || stats[1].Table != "notes" {
		t.Errorf("stats order: %s, %s", stats[0].Table, stats[1].Table)
	}
	if stats[1].RowCount != 3 {
		t.Errorf("notes row count: got %d, want 3", stats[1].RowCount)
	}
	if stats[1].Limit == nil || stats[1].Limit.MaxCount != 10 {
		t.Errorf("notes limit missing from stats: %+v", stats[1].Limit)
	}
	if stats[0].Limit != nil {
		t.Errorf("ingredients should have no limit, got %+v", stats[0].Limit)
	}
}
