// Schema generation from record descriptors.
// See docs/ARCHITECTURE.md § Repository.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// buildCreateTable renders the CREATE TABLE statement and any CREATE INDEX
// statements for a descriptor. Column order follows the descriptor exactly:
// id first, then the declared fields.
func buildCreateTable(d types.Descriptor) (string, []string, error) {
	if err := d.Validate(); err != nil {
		return "", nil, err
	}

	lines := make([]string, 0, len(d.Columns)+2)
	lines = append(lines, fmt.Sprintf("    %s %s PRIMARY KEY", d.IDColumn, d.IDType))
	for _, col := range d.Columns {
		line := fmt.Sprintf("    %s %s", col.Name, col.Type)
		if col.NotNull {
			line += " NOT NULL"
		}
		lines = append(lines, line)
	}
	for _, unique := range d.Uniques {
		lines = append(lines, fmt.Sprintf("    UNIQUE (%s)", strings.Join(unique, ", ")))
	}

	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", d.Table, strings.Join(lines, ",\n"))

	indexes := make([]string, 0, len(d.Indexes))
	for _, idx := range d.Indexes {
		name := idx.Name
		if name == "" {
			name = fmt.Sprintf("idx_%s_%s", d.Table, strings.Join(idx.Columns, "_"))
		}
		indexes = append(indexes, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			name, d.Table, strings.Join(idx.Columns, ", ")))
	}
	return create, indexes, nil
}

// CreateTable creates the descriptor's table and declared indexes.
func (s *Store) CreateTable(ctx context.Context, d types.Descriptor) error {
	create, indexes, err := buildCreateTable(d)
	if err != nil {
		return err
	}
	if _, err := s.conn.Execute(ctx, create, nil); err != nil {
		return err
	}
	for _, idx := range indexes {
		if _, err := s.conn.Execute(ctx, idx, nil); err != nil {
			return err
		}
	}
	return nil
}

// DropTable removes a table and its rows.
func (s *Store) DropTable(ctx context.Context, table string) error {
	_, err := s.conn.Execute(ctx, "DROP TABLE IF EXISTS "+table, nil)
	return err
}
