// Record descriptors map typed records to tables.
// See docs/ARCHITECTURE.md § Repository.
package types

import "fmt"

// ColumnType enumerates the storage classes a column can declare.
type ColumnType string

const (
	ColumnInteger ColumnType = "INTEGER"
	ColumnReal    ColumnType = "REAL"
	ColumnText    ColumnType = "TEXT"
	ColumnBlob    ColumnType = "BLOB"
)

// Column declares one physical column of a record's table.
type Column struct {
	Name    string
	Type    ColumnType
	NotNull bool
}

// Index declares a secondary index over one or more columns.
type Index struct {
	Name    string
	Columns []string
}

// Descriptor is the static shape of a record type: table name, id column,
// declared column order, optional property→column remap, and the index and
// unique-constraint lists. Descriptors are hand-written per record type; the
// repository and schema builder treat them as read-only.
type Descriptor struct {
	Table string

	// IDColumn names the primary key. IDType must be ColumnInteger (the
	// database assigns ids via autoincrement) or ColumnText (Larder assigns
	// UUID v7 ids on insert).
	IDColumn string
	IDType   ColumnType

	// Columns lists every non-id column in declared order. Generated schema
	// preserves this order exactly.
	Columns []Column

	// Remap translates property names to physical column names. Properties
	// absent from the map use their own name.
	Remap map[string]string

	// CreatedAtColumn optionally names a creation-time column; the limit
	// manager prefers it for FIFO/LIFO ordering.
	CreatedAtColumn string

	Indexes []Index
	Uniques [][]string
}

// Record is a typed, identifiable row. Implementations are plain structs with
// hand-written descriptor and field codecs; see docs/ARCHITECTURE.md.
type Record interface {
	// Descriptor returns the static shape of this record type. It must be
	// identical across all instances of the type.
	Descriptor() Descriptor

	// ID returns the current identifier value. A zero sentinel (Null,
	// Integer(0), empty Text) marks a record that has never been inserted.
	ID() Value

	// SetID installs the identifier after insert.
	SetID(Value) error

	// Encode returns the record's non-id fields keyed by property name
	// (pre-remap).
	Encode() (map[string]Value, error)

	// Decode populates the record from a property-keyed value map, id
	// included.
	Decode(map[string]Value) error
}

// ColumnFor resolves a property name to its physical column through Remap.
func (d Descriptor) ColumnFor(property string) string {
	if d.Remap != nil {
		if col, ok := d.Remap[property]; ok {
			return col
		}
	}
	return property
}

// Validate checks that the descriptor is well-formed.
func (d Descriptor) Validate() error {
	if d.Table == "" {
		return fmt.Errorf("%w: descriptor has no table name", ErrInvalidData)
	}
	if d.IDColumn == "" {
		return fmt.Errorf("%w: descriptor %q has no id column", ErrInvalidData, d.Table)
	}
	if d.IDType != ColumnInteger && d.IDType != ColumnText {
		return fmt.Errorf("%w: descriptor %q id type must be INTEGER or TEXT", ErrInvalidData, d.Table)
	}
	seen := map[string]bool{d.IDColumn: true}
	for _, c := range d.Columns {
		if c.Name == "" {
			return fmt.Errorf("%w: descriptor %q has an unnamed column", ErrInvalidData, d.Table)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: descriptor %q repeats column %q", ErrInvalidData, d.Table, c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}
