// Repository: the per-record-type CRUD facade.
// See docs/ARCHITECTURE.md § Repository.
package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/larder/pkg/query"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// Repository binds one record type to the store's connection owner. Every
// successful mutation notifies the table's write stream; inserts additionally
// trigger limit enforcement, whose failures are logged rather than
// propagated.
type Repository struct {
	store   *Store
	desc    types.Descriptor
	factory func() types.Record
	reverse map[string]string // physical column -> property name
}

func newRepository(store *Store, factory func() types.Record) (*Repository, error) {
	desc := factory().Descriptor()
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	reverse := make(map[string]string, len(desc.Remap))
	for prop, col := range desc.Remap {
		reverse[col] = prop
	}
	return &Repository{store: store, desc: desc, factory: factory, reverse: reverse}, nil
}

// Table returns the physical table name this repository serves.
func (r *Repository) Table() string {
	return r.desc.Table
}

// Query starts a query against this repository's table.
func (r *Repository) Query() query.Query {
	return query.New(r.desc.Table)
}

// remap translates property names to physical columns for the compiler.
func (r *Repository) remap(property string) string {
	return r.desc.ColumnFor(property)
}

// propertyFor translates a physical column back to its property name.
func (r *Repository) propertyFor(column string) string {
	if prop, ok := r.reverse[column]; ok {
		return prop
	}
	return column
}

func (r *Repository) decodeRow(row Row) (types.Record, error) {
	props := make(map[string]types.Value, len(row))
	for col, v := range row {
		props[r.propertyFor(col)] = v
	}
	rec := r.factory()
	if err := rec.Decode(props); err != nil {
		return nil, fmt.Errorf("decoding %s row: %w", r.desc.Table, err)
	}
	return rec, nil
}

// Find fetches one record by id. Absence is (nil, nil), not an error. A hit
// records an access for recency-based eviction.
func (r *Repository) Find(ctx context.Context, id types.Value) (types.Record, error) {
	q := r.Query().Where(query.Eq(r.desc.IDColumn, id)).Limit(1)
	sqlText, bindings, err := query.BuildSelect(q, r.remap)
	if err != nil {
		return nil, err
	}
	rows, err := r.store.conn.Query(ctx, sqlText, bindings)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	rec, err := r.decodeRow(rows[0])
	if err != nil {
		return nil, err
	}
	r.store.tracker.touch(r.desc.Table, types.IDText(id))
	return rec, nil
}

// FindAll fetches every record matching the query. An empty query matches
// the whole table.
func (r *Repository) FindAll(ctx context.Context, q query.Query) ([]types.Record, error) {
	if q.Table() == "" {
		q = r.Query()
	} else if q.Table() != r.desc.Table {
		return nil, fmt.Errorf("%w: query targets %s, repository serves %s",
			types.ErrInvalidOperation, q.Table(), r.desc.Table)
	}

	sqlText, bindings, err := query.BuildSelect(q, r.remap)
	if err != nil {
		return nil, err
	}
	rows, err := r.store.conn.Query(ctx, sqlText, bindings)
	if err != nil {
		return nil, err
	}

	records := make([]types.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := r.decodeRow(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Count returns the number of rows matching the query's filter.
func (r *Repository) Count(ctx context.Context, q query.Query) (int64, error) {
	if q.Table() == "" {
		q = r.Query()
	}
	sqlText, bindings, err := query.BuildCount(q, r.remap)
	if err != nil {
		return 0, err
	}
	rows, err := r.store.conn.Query(ctx, sqlText, bindings)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return types.AsInt64(rows[0]["n"])
}

// Insert persists a new record. A zero-sentinel integer id is dropped so the
// database assigns one, which is read back into the caller's record; a
// zero-sentinel text id gets a generated UUID v7 before the write. The
// notifier fires first, then the limit manager runs for this table; an
// enforcement failure never blocks or reverts the insert.
func (r *Repository) Insert(ctx context.Context, rec types.Record) error {
	fields, err := rec.Encode()
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidData, err)
	}

	id := rec.ID()
	generated := false
	switch {
	case types.IsZeroID(id) && r.desc.IDType == types.ColumnText:
		id = types.Text(newID())
		if err := rec.SetID(id); err != nil {
			return fmt.Errorf("%w: %v", types.ErrInvalidData, err)
		}
		fields[r.desc.IDColumn] = id
	case types.IsZeroID(id):
		generated = true // the database assigns the rowid
	default:
		fields[r.desc.IDColumn] = id
	}

	sqlText, bindings, err := query.BuildInsert(r.desc.Table, fields, r.remap)
	if err != nil {
		return err
	}
	res, err := r.store.conn.Execute(ctx, sqlText, bindings)
	if err != nil {
		return err
	}

	if generated {
		if err := rec.SetID(types.Integer(res.LastInsertID)); err != nil {
			return fmt.Errorf("%w: %v", types.ErrInvalidData, err)
		}
	}

	r.store.notifier.notify(r.desc.Table)

	if err := r.store.limits.enforce(ctx, r.desc.Table, "insert"); err != nil {
		r.store.logger.Warn("limit enforcement failed",
			zap.String("table", r.desc.Table), zap.Error(err))
	}
	return nil
}

// Update rewrites all non-id fields of the record, keyed by its current id.
// The notifier fires only when at least one row was affected.
func (r *Repository) Update(ctx context.Context, rec types.Record) error {
	id := rec.ID()
	if types.IsZeroID(id) {
		return fmt.Errorf("%w: update of a record without an id", types.ErrInvalidOperation)
	}

	assigns, err := rec.Encode()
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidData, err)
	}
	delete(assigns, r.desc.IDColumn)

	where := query.Eq(r.desc.IDColumn, id)
	sqlText, bindings, err := query.BuildUpdate(r.desc.Table, assigns, where, r.remap)
	if err != nil {
		return err
	}
	res, err := r.store.conn.Execute(ctx, sqlText, bindings)
	if err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s id %s", types.ErrNotFound, r.desc.Table, types.IDText(id))
	}

	r.store.notifier.notify(r.desc.Table)
	return nil
}

// Delete removes the record by its id.
func (r *Repository) Delete(ctx context.Context, rec types.Record) error {
	return r.DeleteByID(ctx, rec.ID())
}

// DeleteByID removes one row by id, returning ErrNotFound when nothing
// matched. The notifier fires only when a row was removed.
func (r *Repository) DeleteByID(ctx context.Context, id types.Value) error {
	if types.IsZeroID(id) {
		return fmt.Errorf("%w: delete of a record without an id", types.ErrInvalidOperation)
	}
	sqlText, bindings, err := query.BuildDelete(r.desc.Table, query.Eq(r.desc.IDColumn, id), r.remap)
	if err != nil {
		return err
	}
	res, err := r.store.conn.Execute(ctx, sqlText, bindings)
	if err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s id %s", types.ErrNotFound, r.desc.Table, types.IDText(id))
	}

	r.store.tracker.forget(r.desc.Table, []string{types.IDText(id)})
	r.store.notifier.notify(r.desc.Table)
	return nil
}

// DeleteWhere removes every row matching the predicate and returns the
// removed count. Zero matches is not an error; the notifier fires only when
// rows were removed.
func (r *Repository) DeleteWhere(ctx context.Context, p query.Predicate) (int64, error) {
	sqlText, bindings, err := query.BuildDelete(r.desc.Table, p, r.remap)
	if err != nil {
		return 0, err
	}
	res, err := r.store.conn.Execute(ctx, sqlText, bindings)
	if err != nil {
		return 0, err
	}
	if res.RowsAffected > 0 {
		r.store.notifier.notify(r.desc.Table)
	}
	return res.RowsAffected, nil
}

// Save upserts: it probes existence by id and dispatches to Update or
// Insert. A failed probe counts as "not present" and falls through to
// Insert.
func (r *Repository) Save(ctx context.Context, rec types.Record) error {
	id := rec.ID()
	if types.IsZeroID(id) {
		return r.Insert(ctx, rec)
	}

	exists, err := r.exists(ctx, id)
	if err != nil {
		r.store.logger.Debug("existence probe failed, treating as absent",
			zap.String("table", r.desc.Table), zap.Error(err))
		exists = false
	}
	if exists {
		return r.Update(ctx, rec)
	}
	return r.Insert(ctx, rec)
}

func (r *Repository) exists(ctx context.Context, id types.Value) (bool, error) {
	sqlText := fmt.Sprintf("SELECT 1 AS present FROM %s WHERE %s = ? LIMIT 1", r.desc.Table, r.desc.IDColumn)
	rows, err := r.store.conn.Query(ctx, sqlText, []types.Value{id})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// Subscribe delivers the matching record set now and after every write to
// this table. The notifier registration happens before the initial fetch, so
// no write racing with setup is missed.
func (r *Repository) Subscribe(ctx context.Context, q query.Query) *Subscription[[]types.Record] {
	fetch := func(ctx context.Context) ([]types.Record, error) {
		return r.FindAll(ctx, q)
	}
	return newSubscription(ctx, r.store.notifier, r.desc.Table, fetch, r.store.logger)
}

// SubscribeFirst delivers the first matching record, or nil when none match.
func (r *Repository) SubscribeFirst(ctx context.Context, q query.Query) *Subscription[types.Record] {
	limited := q
	if limited.Table() == "" {
		limited = r.Query()
	}
	limited = limited.Limit(1)
	fetch := func(ctx context.Context) (types.Record, error) {
		records, err := r.FindAll(ctx, limited)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, nil
		}
		return records[0], nil
	}
	return newSubscription(ctx, r.store.notifier, r.desc.Table, fetch, r.store.logger)
}

// SubscribeCount delivers the matching row count.
func (r *Repository) SubscribeCount(ctx context.Context, q query.Query) *Subscription[int64] {
	fetch := func(ctx context.Context) (int64, error) {
		return r.Count(ctx, q)
	}
	return newSubscription(ctx, r.store.notifier, r.desc.Table, fetch, r.store.logger)
}

// newID generates a UUID v7 string for text-keyed records, falling back to
// v4 when the clock source fails.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
