package storage

import (
	"context"
	"fmt"
	"reflect"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"persistkit/internal/core/entity"
	"persistkit/internal/mapping"
)

// Reader materialises rows into entity instances.
type Reader struct {
	tx      *TxManager
	dialect Dialect
}

// NewReader creates a reader querying through tx.
func NewReader(tx *TxManager) *Reader {
	return &Reader{tx: tx, dialect: tx.DB().Dialect}
}

// SelectFrom starts a SELECT of every mapped column of et.
func (r *Reader) SelectFrom(et *mapping.EntityType) squirrel.SelectBuilder {
	return r.dialect.Builder().Select(et.ColumnNames()...).From(et.Table())
}

// CountFrom starts a SELECT COUNT(*) over et.
func (r *Reader) CountFrom(et *mapping.EntityType) squirrel.SelectBuilder {
	return r.dialect.Builder().Select("COUNT(*)").From(et.Table())
}

// Select runs sb and returns *T instances of et with owned properties loaded.
func (r *Reader) Select(ctx context.Context, et *mapping.EntityType, sb squirrel.SelectBuilder) ([]any, error) {
	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select %s: %w", et.Table(), err)
	}

	dst := reflect.New(reflect.SliceOf(reflect.PointerTo(et.GoType())))
	if err := sqlscan.Select(ctx, r.tx.GetQuerier(ctx), dst.Interface(), query, args...); err != nil {
		return nil, fmt.Errorf("select %s: %w", et.Table(), err)
	}

	rows := dst.Elem()
	out := make([]any, rows.Len())
	for i := range out {
		out[i] = rows.Index(i).Interface()
	}
	if err := r.LoadOwned(ctx, et, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Count runs a COUNT query built with CountFrom.
func (r *Reader) Count(ctx context.Context, sb squirrel.SelectBuilder) (int64, error) {
	query, args, err := sb.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int64
	if err := r.tx.GetQuerier(ctx).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// LoadOwned fills the owned translated properties of owners.
func (r *Reader) LoadOwned(ctx context.Context, et *mapping.EntityType, owners []any) error {
	if len(owners) == 0 || len(et.OwnedCollections()) == 0 {
		return nil
	}
	keys, byKey := ownerIndex(et, owners)

	for _, o := range et.OwnedCollections() {
		query, args, err := r.dialect.Builder().
			Select(o.OwnerColumn, o.LocaleColumn, o.TextColumn).
			From(o.Table).
			Where(squirrel.Eq{o.OwnerColumn: keys}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build select %s: %w", o.Table, err)
		}

		grouped, err := r.readTexts(ctx, o, query, args)
		if err != nil {
			return err
		}
		for k, owner := range byKey {
			if err := o.Value(owner).Load(grouped[k]); err != nil {
				return fmt.Errorf("load %s.%s: %w", et.Name(), o.Property, err)
			}
		}
	}
	return nil
}

func (r *Reader) readTexts(ctx context.Context, o *mapping.OwnedCollection, query string, args []any) (map[string][]entity.TextEntry, error) {
	rows, err := r.tx.GetQuerier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", o.Table, err)
	}
	defer rows.Close()

	grouped := make(map[string][]entity.TextEntry)
	for rows.Next() {
		var (
			owner, locale any
			text          string
		)
		if err := rows.Scan(&owner, &locale, &text); err != nil {
			return nil, fmt.Errorf("scan %s: %w", o.Table, err)
		}
		loc, err := ConvertKind(locale, o.LocaleKind)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", o.Table, err)
		}
		k := ownerKeyString(owner)
		grouped[k] = append(grouped[k], entity.TextEntry{Locale: loc, Text: text})
	}
	return grouped, rows.Err()
}

// LoadNavigation loads the records of nav for owners and appends them to the
// owners' collections, replacing what was there. where restricts the loaded
// records (the target's query filters); it may be nil.
func (r *Reader) LoadNavigation(ctx context.Context, owner *mapping.EntityType, nav *mapping.Navigation, owners []any, where squirrel.Sqlizer) ([]any, error) {
	if len(owners) == 0 || nav.Collection == nil {
		return nil, nil
	}
	keys, byKey := ownerIndex(owner, owners)

	sb := r.SelectFrom(nav.Target).Where(squirrel.Eq{nav.ForeignKey: keys})
	if where != nil {
		sb = sb.Where(where)
	}
	records, err := r.Select(ctx, nav.Target, sb)
	if err != nil {
		return nil, err
	}

	for _, o := range byKey {
		nav.Collection(o).Reset()
	}
	for _, rec := range records {
		fk := mapping.ColumnValues(rec)[nav.ForeignKey]
		o, ok := byKey[ownerKeyString(fk)]
		if !ok {
			continue
		}
		tr, ok := rec.(entity.Translation)
		if !ok {
			return nil, fmt.Errorf("%s records must implement entity.Translation", nav.Target.Name())
		}
		if err := nav.Collection(o).Append(tr); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func ownerIndex(et *mapping.EntityType, owners []any) ([]any, map[string]any) {
	keys := make([]any, 0, len(owners))
	byKey := make(map[string]any, len(owners))
	for _, o := range owners {
		k := et.KeyValues(o)[0]
		keys = append(keys, k)
		byKey[ownerKeyString(k)] = o
	}
	return keys, byKey
}

// ownerKeyString normalises driver values (int64, string, []byte) for matching.
func ownerKeyString(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return keyString(v)
}
