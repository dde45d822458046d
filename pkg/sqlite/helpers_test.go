// Shared test fixtures: two record types, one text-keyed and one
// integer-keyed, plus a store constructor over a temp directory.
package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// ingredient is a text-keyed record with a property remap and a unique name.
type ingredient struct {
	id       string
	name     string
	kind     string
	quantity float64
	addedAt  time.Time
}

func newIngredient() types.Record { return &ingredient{} }

func (i *ingredient) Descriptor() types.Descriptor {
	return types.Descriptor{
		Table:    "ingredients",
		IDColumn: "id",
		IDType:   types.ColumnText,
		Columns: []types.Column{
			{Name: "name", Type: types.ColumnText, NotNull: true},
			{Name: "kind", Type: types.ColumnText},
			{Name: "quantity", Type: types.ColumnReal},
			{Name: "created_at", Type: types.ColumnReal},
		},
		Remap:           map[string]string{"addedAt": "created_at"},
		CreatedAtColumn: "created_at",
		Indexes:         []types.Index{{Columns: []string{"kind"}}},
		Uniques:         [][]string{{"name"}},
	}
}

func (i *ingredient) ID() types.Value { return types.Text(i.id) }

func (i *ingredient) SetID(v types.Value) error {
	s, err := types.AsString(v)
	if err != nil {
		return err
	}
	i.id = s
	return nil
}

func (i *ingredient) Encode() (map[string]types.Value, error) {
	return map[string]types.Value{
		"name":     types.Text(i.name),
		"kind":     types.Text(i.kind),
		"quantity": types.Real(i.quantity),
		"addedAt":  types.EncodeTime(i.addedAt),
	}, nil
}

func (i *ingredient) Decode(props map[string]types.Value) error {
	if err := types.Decode(props["id"], &i.id); err != nil {
		return err
	}
	if err := types.Decode(props["name"], &i.name); err != nil {
		return err
	}
	if err := types.Decode(props["kind"], &i.kind); err != nil {
		return err
	}
	if err := types.Decode(props["quantity"], &i.quantity); err != nil {
		return err
	}
	return types.Decode(props["addedAt"], &i.addedAt)
}

// pantryNote is an integer-keyed record; the database assigns its id.
type pantryNote struct {
	id        int64
	body      string
	createdAt time.Time
}

func newPantryNote() types.Record { return &pantryNote{} }

func (n *pantryNote) Descriptor() types.Descriptor {
	return types.Descriptor{
		Table:    "notes",
		IDColumn: "id",
		IDType:   types.ColumnInteger,
		Columns: []types.Column{
			{Name: "body", Type: types.ColumnText, NotNull: true},
			{Name: "created_at", Type: types.ColumnReal},
		},
		CreatedAtColumn: "created_at",
	}
}

func (n *pantryNote) ID() types.Value { return types.Integer(n.id) }

func (n *pantryNote) SetID(v types.Value) error {
	id, err := types.AsInt64(v)
	if err != nil {
		return err
	}
	n.id = id
	return nil
}

func (n *pantryNote) Encode() (map[string]types.Value, error) {
	return map[string]types.Value{
		"body":       types.Text(n.body),
		"created_at": types.EncodeTime(n.createdAt),
	}, nil
}

func (n *pantryNote) Decode(props map[string]types.Value) error {
	if err := types.Decode(props["id"], &n.id); err != nil {
		return err
	}
	if err := types.Decode(props["body"], &n.body); err != nil {
		return err
	}
	return types.Decode(props["created_at"], &n.createdAt)
}

// newTestStore opens a store over a per-test temp directory and closes it on
// cleanup.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(types.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// insertNotes inserts n sequential notes and returns their repository.
func insertNotes(t *testing.T, store *Store, n int) *Repository {
	t.Helper()

	repo, err := store.Register(context.Background(), newPantryNote)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	base := time.Now().Add(-time.Duration(n) * time.Minute)
	for i := 0; i < n; i++ {
		note := &pantryNote{body: "note", createdAt: base.Add(time.Duration(i) * time.Minute)}
		if err := repo.Insert(context.Background(), note); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}
	return repo
}
