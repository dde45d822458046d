// Migration commands driven by SQL files on disk.
//
// A migrations directory holds files named <timestamp>_<name>.up.sql with an
// optional matching <timestamp>_<name>.down.sql, where the timestamp is
// YYYYMMDDHHMMSS. Each file may hold several statements separated by
// semicolons.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/larder/pkg/sqlite"
)

const migrationTimestampLayout = "20060102150405"

func newMigrateCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrations, err := loadMigrationDir(dir)
			if err != nil {
				return err
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(cmd.Context(), migrations); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration file(s)\n", len(migrations))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "migrations", "directory holding *.up.sql files")
	return cmd
}

func newRollbackCmd() *cobra.Command {
	var dir string
	var count int

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Reverse the most recently applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrations, err := loadMigrationDir(dir)
			if err != nil {
				return err
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Rollback(cmd.Context(), migrations, count); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", count)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "migrations", "directory holding *.up.sql files")
	cmd.Flags().IntVar(&count, "count", 1, "number of migrations to reverse")
	return cmd
}

// loadMigrationDir reads every *.up.sql file in dir into a Migration, pairing
// it with its *.down.sql counterpart when one exists.
func loadMigrationDir(dir string) ([]sqlite.Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var migrations []sqlite.Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}

		stem := strings.TrimSuffix(name, ".up.sql")
		ts, migName, err := parseMigrationStem(stem)
		if err != nil {
			return nil, err
		}

		upSQL, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}

		m := sqlite.Migration{
			Timestamp: ts,
			Name:      migName,
			Up:        sqlScriptBody(string(upSQL)),
		}

		downPath := filepath.Join(dir, stem+".down.sql")
		if downSQL, err := os.ReadFile(downPath); err == nil {
			m.Down = sqlScriptBody(string(downSQL))
		}

		migrations = append(migrations, m)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Timestamp.Before(migrations[j].Timestamp)
	})
	return migrations, nil
}

// parseMigrationStem splits "20260101000000_create_pantries" into its
// timestamp and name parts.
func parseMigrationStem(stem string) (time.Time, string, error) {
	tsPart, name, ok := strings.Cut(stem, "_")
	if !ok || name == "" {
		return time.Time{}, "", fmt.Errorf("migration file %q: want <timestamp>_<name>.up.sql", stem)
	}
	ts, err := time.ParseInLocation(migrationTimestampLayout, tsPart, time.UTC)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("migration file %q: bad timestamp: %w", stem, err)
	}
	return ts, name, nil
}

// sqlScriptBody wraps a SQL script into a migration body, running each
// semicolon-separated statement in order.
func sqlScriptBody(script string) func(context.Context, *sqlite.Tx) error {
	return func(ctx context.Context, tx *sqlite.Tx) error {
		for _, stmt := range splitStatements(script) {
			if _, err := tx.Execute(ctx, stmt, nil); err != nil {
				return err
			}
		}
		return nil
	}
}

func splitStatements(script string) []string {
	var statements []string
	for _, part := range strings.Split(script, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}
