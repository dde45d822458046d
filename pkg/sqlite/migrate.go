// Migration ledger: ordered, idempotent schema changes.
// See docs/ARCHITECTURE.md § Migration Ledger.
package sqlite

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// Migration is one forward/backward schema change. The Up and Down bodies run
// inside a transaction shared with the ledger update, so a migration and its
// bookkeeping commit or roll back together.
type Migration struct {
	Timestamp time.Time
	Name      string
	Up        func(ctx context.Context, tx *Tx) error
	Down      func(ctx context.Context, tx *Tx) error
}

// ID derives the stable ledger id from timestamp and name.
func (m Migration) ID() string {
	return m.Timestamp.UTC().Format("20060102150405") + "_" + m.Name
}

const migrationLedgerDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
    id TEXT PRIMARY KEY,
    applied_at REAL NOT NULL
)`

func (s *Store) ensureLedger(ctx context.Context) error {
	_, err := s.conn.Execute(ctx, migrationLedgerDDL, nil)
	return err
}

func (s *Store) appliedIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.conn.Query(ctx, "SELECT id FROM schema_migrations", nil)
	if err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(rows))
	for _, row := range rows {
		id, err := types.AsString(row["id"])
		if err != nil {
			return nil, err
		}
		applied[id] = true
	}
	return applied, nil
}

// Migrate applies every not-yet-applied migration in ascending timestamp
// order, each inside its own transaction together with its ledger insert. A
// mid-body failure aborts only that migration; prior ones stay committed.
func (s *Store) Migrate(ctx context.Context, migrations []Migration) error {
	if err := s.ensureLedger(ctx); err != nil {
		return err
	}
	applied, err := s.appliedIDs(ctx)
	if err != nil {
		return err
	}

	ordered := append([]Migration(nil), migrations...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Timestamp.Equal(ordered[j].Timestamp) {
			return ordered[i].Name < ordered[j].Name
		}
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	for _, m := range ordered {
		if applied[m.ID()] {
			continue
		}
		if m.Up == nil {
			return fmt.Errorf("%w: migration %s has no up body", types.ErrMigrationFailure, m.ID())
		}
		migration := m
		err := s.conn.Transaction(ctx, func(tx *Tx) error {
			if err := migration.Up(ctx, tx); err != nil {
				return err
			}
			_, err := tx.Execute(ctx,
				"INSERT INTO schema_migrations (id, applied_at) VALUES (?, ?)",
				[]types.Value{types.Text(migration.ID()), types.EncodeTime(time.Now())})
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: %s: %v", types.ErrMigrationFailure, m.ID(), err)
		}
	}
	return nil
}

// Rollback reverses the count most recently applied migrations in reverse
// application order, each in its own transaction together with its ledger
// delete.
func (s *Store) Rollback(ctx context.Context, migrations []Migration, count int) error {
	if count < 1 {
		return nil
	}
	if err := s.ensureLedger(ctx); err != nil {
		return err
	}

	rows, err := s.conn.Query(ctx,
		"SELECT id FROM schema_migrations ORDER BY applied_at DESC, id DESC LIMIT ?",
		[]types.Value{types.Integer(int64(count))})
	if err != nil {
		return err
	}

	byID := make(map[string]Migration, len(migrations))
	for _, m := range migrations {
		byID[m.ID()] = m
	}

	for _, row := range rows {
		id, err := types.AsString(row["id"])
		if err != nil {
			return err
		}
		m, ok := byID[id]
		if !ok {
			return fmt.Errorf("%w: applied migration %s is not in the provided list", types.ErrMigrationFailure, id)
		}
		if m.Down == nil {
			return fmt.Errorf("%w: migration %s has no down body", types.ErrMigrationFailure, id)
		}
		migration := m
		err = s.conn.Transaction(ctx, func(tx *Tx) error {
			if err := migration.Down(ctx, tx); err != nil {
				return err
			}
			_, err := tx.Execute(ctx,
				"DELETE FROM schema_migrations WHERE id = ?",
				[]types.Value{types.Text(id)})
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: %s: %v", types.ErrMigrationFailure, id, err)
		}
	}
	return nil
}
