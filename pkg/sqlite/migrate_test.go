package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mesh-intelligence/larder/pkg/types"
)

func createTableMigration(ts time.Time, name, table string) Migration {
	return Migration{
		Timestamp: ts,
		Name:      name,
		Up: func(ctx context.Context, tx *Tx) error {
			_, err := tx.Execute(ctx, fmt.Sprintf("CREATE TABLE %s (id INTEGER PRIMARY KEY)", table), nil)
			return err
		},
		Down: func(ctx context.Context, tx *Tx) error {
			_, err := tx.Execute(ctx, "DROP TABLE "+table, nil)
			return err
		},
	}
}

func tableExists(t *testing.T, store *Store, table string) bool {
	t.Helper()

	rows, err := store.Query(context.Background(),
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		[]types.Value{types.Text(table)})
	if err != nil {
		t.Fatalf("sqlite_master query failed: %v", err)
	}
	return len(rows) > 0
}

func ledgerIDs(t *testing.T, store *Store) []string {
	t.Helper()

	rows, err := store.Query(context.Background(),
		"SELECT id FROM schema_migrations ORDER BY id", nil)
	if err != nil {
		t.Fatalf("ledger query failed: %v", err)
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		id, err := types.AsString(row["id"])
		if err != nil {
			t.Fatalf("decode ledger id: %v", err)
		}
		ids[i] = id
	}
	return ids
}

func TestMigrationID(t *testing.T) {
	m := Migration{
		Timestamp: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		Name:      "add_pantries",
	}
	if got := m.ID(); got != "20260314092653_add_pantries" {
		t.Errorf("migration id: got %q", got)
	}
}

func TestMigrate_AppliesInTimestampOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// Deliberately out of order; Migrate must sort.
	migrations := []Migration{
		createTableMigration(base.Add(time.Hour), "second", "m_second"),
		createTableMigration(base, "first", "m_first"),
	}

	if err := store.Migrate(ctx, migrations); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	if !tableExists(t, store, "m_first") || !tableExists(t, store, "m_second") {
		t.Fatal("migrated tables missing")
	}

	ids := ledgerIDs(t, store)
	want := []string{"20260101000000_first", "20260101010000_second"}
	if len(ids) != 2 || ids[0] != want[0] || ids[1] != want[1] {
		t.Errorf("ledger: got %v, want %v", ids, want)
	}
}

func TestMigrate_SkipsApplied(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	migrations := []Migration{createTableMigration(base, "only", "m_only")}

	if err := store.Migrate(ctx, migrations); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	// Second run re-applies nothing; CREATE TABLE without IF NOT EXISTS would
	// fail if the body ran again.
	if err := store.Migrate(ctx, migrations); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	if got := len(ledgerIDs(t, store)); got != 1 {
		t.Errorf("ledger entries: got %d, want 1", got)
	}
}

func TestMigrate_FailureRollsBackAtomically(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	boom := errors.New("boom")
	migrations := []Migration{
		createTableMigration(base, "good", "m_good"),
		{
			Timestamp: base.Add(time.Hour),
			Name:      "bad",
			Up: func(ctx context.Context, tx *Tx) error {
				if _, err := tx.Execute(ctx, "CREATE TABLE m_bad (id INTEGER PRIMARY KEY)", nil); err != nil {
					return err
				}
				return boom
			},
		},
	}

	err := store.Migrate(ctx, migrations)
	if !errors.Is(err, types.ErrMigrationFailure) {
		t.Fatalf("expected ErrMigrationFailure, got %v", err)
	}

	// The failed migration left nothing behind; the earlier one stays applied.
	if !tableExists(t, store, "m_good") {
		t.Error("prior migration was reverted")
	}
	if tableExists(t, store, "m_bad") {
		t.Error("failed migration left its table behind")
	}
	ids := ledgerIDs(t, store)
	if len(ids) != 1 || ids[0] != "20260101000000_good" {
		t.Errorf("ledger after failure: got %v", ids)
	}
}

func TestMigrate_RejectsMissingUpBody(t *testing.T) {
	store := newTestStore(t)

	err := store.Migrate(context.Background(), []Migration{{
		Timestamp: time.Now(),
		Name:      "empty",
	}})
	if !errors.Is(err, types.ErrMigrationFailure) {
		t.Errorf("expected ErrMigrationFailure, got %v", err)
	}
}

func TestRollback_ReversesMostRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	migrations := []Migration{
		createTableMigration(base, "first", "m_first"),
		createTableMigration(base.Add(time.Hour), "second", "m_second"),
	}
	if err := store.Migrate(ctx, migrations); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	if err := store.Rollback(ctx, migrations, 1); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	if tableExists(t, store, "m_second") {
		t.Error("rolled-back table still exists")
	}
	if !tableExists(t, store, "m_first") {
		t.Error("rollback reversed too much")
	}
	ids := ledgerIDs(t, store)
	if len(ids) != 1 || ids[0] != "20260101000000_first" {
		t.Errorf("ledger after rollback: got %v", ids)
	}

	// Re-applying after rollback works.
	if err := store.Migrate(ctx, migrations); err != nil {
		t.Fatalf("re-Migrate failed: %v", err)
	}
	if !tableExists(t, store, "m_second") {
		t.Error("re-applied migration missing")
	}
}

func TestRollback_RejectsUnknownApplied(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	applied := []Migration{createTableMigration(base, "known", "m_known")}
	if err := store.Migrate(ctx, applied); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	// Rolling back with a list that does not contain the applied migration
	// must fail rather than guess.
	err := store.Rollback(ctx, nil, 1)
	if !errors.Is(err, types.ErrMigrationFailure) {
		t.Errorf("expected ErrMigrationFailure, got %v", err)
	}
}

func TestRollback_ZeroCountIsNoOp(t *testing.T) {
	store := newTestStore(t)

	if err := store.Rollback(context.Background(), nil, 0); err != nil {
		t.Errorf("zero-count rollback should be a no-op, got %v", err)
	}
}
