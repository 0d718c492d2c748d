package storage

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/Masterminds/squirrel"

	"persistkit/internal/core/entity"
	"persistkit/internal/core/id"
	"persistkit/internal/mapping"
	"persistkit/internal/tracking"
	"persistkit/pkg/logger"
)

// ErrConcurrency is matched by every ConcurrencyError.
var ErrConcurrency = errors.New("optimistic concurrency failure")

// ConcurrencyError reports an UPDATE or DELETE that matched no row: the row
// was changed (different token) or removed since it was loaded.
type ConcurrencyError struct {
	Op     string
	Entity string
	Key    []any
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("%s of %s %v expected to affect 1 row but affected 0; the data may have been modified or deleted since it was loaded",
		e.Op, e.Entity, e.Key)
}

func (e *ConcurrencyError) Is(target error) bool { return target == ErrConcurrency }

// Writer translates tracked entries into INSERT, UPDATE and DELETE statements.
type Writer struct {
	tx      *TxManager
	dialect Dialect
}

// NewWriter creates a writer committing through tx.
func NewWriter(tx *TxManager) *Writer {
	return &Writer{tx: tx, dialect: tx.DB().Dialect}
}

// Save writes Added, Modified and Deleted entries in one transaction and
// returns the number of entity rows affected. Added entries are written first
// in tracking order, then Modified, then Deleted in reverse tracking order so
// dependents go before their owners. New concurrency tokens reach the entities
// only after the transaction committed. Keys, tokens and foreign keys set
// while inserting are put back when the transaction rolls back, so a retry
// inserts the same entities again. Entries are not accepted here.
func (w *Writer) Save(ctx context.Context, entries []*tracking.Entry) (int, error) {
	var (
		rows    int
		commits []func()
		undo    []func()
	)
	err := w.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		q := w.tx.GetQuerier(ctx)
		for _, e := range entries {
			if e.State() != tracking.Added {
				continue
			}
			if err := w.insert(ctx, q, e, &undo); err != nil {
				return err
			}
			rows++
		}
		for _, e := range entries {
			if e.State() != tracking.Modified {
				continue
			}
			n, commit, err := w.update(ctx, q, e)
			if err != nil {
				return err
			}
			rows += n
			if commit != nil {
				commits = append(commits, commit)
			}
		}
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			if e.State() != tracking.Deleted {
				continue
			}
			n, err := w.delete(ctx, q, e)
			if err != nil {
				return err
			}
			rows += n
		}
		return nil
	})
	if err != nil {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		return 0, err
	}
	for _, commit := range commits {
		commit()
	}
	return rows, nil
}

func (w *Writer) insert(ctx context.Context, q Querier, e *tracking.Entry, undo *[]func()) error {
	et := e.EntityType()
	ent := e.Entity()

	keys := et.KeyFields(ent)
	storeGenerated := false
	if len(keys) == 1 && keys[0].IsZero() {
		switch et.KeyGeneration() {
		case mapping.KeyGeneratedOnAdd:
			remember(undo, ent, keys[0].Column)
			if err := keys[0].Set(newValue(keys[0].Kind)); err != nil {
				return err
			}
		case mapping.KeyGeneratedByStore:
			storeGenerated = true
		}
	}
	if tok := et.ConcurrencyToken(); tok != "" {
		col, _ := et.Column(tok)
		remember(undo, ent, tok)
		if err := mapping.SetColumnValue(ent, tok, newToken(col, nil)); err != nil {
			return err
		}
	}

	values := mapping.ColumnValues(ent)
	cols := make([]string, 0, len(values))
	vals := make([]any, 0, len(values))
	for _, c := range et.Columns() {
		if storeGenerated && c.Name == keys[0].Column {
			continue
		}
		cols = append(cols, c.Name)
		vals = append(vals, values[c.Name])
	}

	ins := w.dialect.Builder().Insert(et.Table()).Columns(cols...).Values(vals...)
	if storeGenerated && w.dialect.Returning {
		ins = ins.Suffix("RETURNING " + keys[0].Column)
	}
	query, args, err := ins.ToSql()
	if err != nil {
		return fmt.Errorf("build insert %s: %w", et.Table(), err)
	}
	logger.Debug(ctx, "insert", "table", et.Table())

	switch {
	case storeGenerated && w.dialect.Returning:
		var generated int64
		if err := q.QueryRowContext(ctx, query, args...).Scan(&generated); err != nil {
			return fmt.Errorf("insert %s: %w", et.Table(), err)
		}
		remember(undo, ent, keys[0].Column)
		if err := keys[0].Set(generated); err != nil {
			return err
		}
	default:
		res, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("insert %s: %w", et.Table(), err)
		}
		if storeGenerated {
			generated, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("read generated key of %s: %w", et.Table(), err)
			}
			remember(undo, ent, keys[0].Column)
			if err := keys[0].Set(generated); err != nil {
				return err
			}
		}
	}

	if err := w.fixupDependents(et, ent, undo); err != nil {
		return err
	}
	return w.writeOwned(ctx, q, e, true)
}

// fixupDependents copies the owner key into the foreign key of its navigation records.
func (w *Writer) fixupDependents(et *mapping.EntityType, ent any, undo *[]func()) error {
	if len(et.Navigations()) == 0 {
		return nil
	}
	key := et.KeyValues(ent)
	if len(key) != 1 {
		return nil
	}
	for _, nav := range et.Navigations() {
		if nav.Collection == nil {
			continue
		}
		for _, rec := range nav.Collection(ent).Records() {
			remember(undo, rec, nav.ForeignKey)
			if err := mapping.SetColumnValue(rec, nav.ForeignKey, key[0]); err != nil {
				return err
			}
		}
	}
	return nil
}

// remember records the current value of column so a rollback can restore it.
func remember(undo *[]func(), ent any, column string) {
	prev := mapping.ColumnValues(ent)[column]
	*undo = append(*undo, func() {
		_ = mapping.SetColumnValue(ent, column, prev)
	})
}

func (w *Writer) update(ctx context.Context, q Querier, e *tracking.Entry) (int, func(), error) {
	et := e.EntityType()
	ent := e.Entity()
	tok := et.ConcurrencyToken()

	var cols []string
	for _, c := range e.ModifiedColumns() {
		if c != tok {
			cols = append(cols, c)
		}
	}

	rows := 0
	var commit func()
	if len(cols) > 0 || tok != "" {
		current := e.CurrentValues()
		upd := w.dialect.Builder().Update(et.Table())
		for _, c := range cols {
			upd = upd.Set(c, current[c])
		}

		where := w.keyPredicate(et, ent)
		if tok != "" {
			col, _ := et.Column(tok)
			next := newToken(col, e.OriginalValue(tok))
			upd = upd.Set(tok, next)
			where[tok] = e.OriginalValue(tok)
			commit = func() {
				if err := mapping.SetColumnValue(ent, tok, next); err != nil {
					logger.Error(ctx, "write back concurrency token", "entity", et.Name(), "error", err)
				}
			}
		}

		query, args, err := upd.Where(where).ToSql()
		if err != nil {
			return 0, nil, fmt.Errorf("build update %s: %w", et.Table(), err)
		}
		logger.Debug(ctx, "update", "table", et.Table(), "columns", cols)

		res, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, nil, fmt.Errorf("update %s: %w", et.Table(), err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, nil, fmt.Errorf("update %s: %w", et.Table(), err)
		}
		if affected == 0 {
			return 0, nil, &ConcurrencyError{Op: "update", Entity: et.Name(), Key: et.KeyValues(ent)}
		}
		rows = int(affected)
	}

	if err := w.writeOwned(ctx, q, e, false); err != nil {
		return 0, nil, err
	}
	return rows, commit, nil
}

func (w *Writer) delete(ctx context.Context, q Querier, e *tracking.Entry) (int, error) {
	et := e.EntityType()
	ent := e.Entity()
	key := et.KeyValues(ent)

	if len(key) == 1 {
		for _, nav := range et.Navigations() {
			if !nav.CascadeDelete {
				continue
			}
			if err := w.exec(ctx, q, w.dialect.Builder().Delete(nav.Target.Table()).Where(squirrel.Eq{nav.ForeignKey: key[0]})); err != nil {
				return 0, fmt.Errorf("cascade delete %s: %w", nav.Target.Table(), err)
			}
		}
		for _, o := range et.OwnedCollections() {
			if err := w.exec(ctx, q, w.dialect.Builder().Delete(o.Table).Where(squirrel.Eq{o.OwnerColumn: key[0]})); err != nil {
				return 0, fmt.Errorf("delete %s: %w", o.Table, err)
			}
		}
	}

	where := w.keyPredicate(et, ent)
	if tok := et.ConcurrencyToken(); tok != "" {
		where[tok] = e.OriginalValue(tok)
	}
	query, args, err := w.dialect.Builder().Delete(et.Table()).Where(where).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete %s: %w", et.Table(), err)
	}
	logger.Debug(ctx, "delete", "table", et.Table())

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", et.Table(), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", et.Table(), err)
	}
	if affected == 0 {
		if e.CascadedFrom() != nil {
			// Already removed by the owner's cascade.
			return 0, nil
		}
		return 0, &ConcurrencyError{Op: "delete", Entity: et.Name(), Key: key}
	}
	return int(affected), nil
}

// writeOwned replaces the rows of owned translated properties. With all set,
// every owned property is written; otherwise only changed ones.
func (w *Writer) writeOwned(ctx context.Context, q Querier, e *tracking.Entry, all bool) error {
	et := e.EntityType()
	if len(et.OwnedCollections()) == 0 {
		return nil
	}
	ent := e.Entity()
	key := et.KeyValues(ent)
	if len(key) != 1 {
		return fmt.Errorf("owned properties of %s need a single-column key", et.Name())
	}

	for _, o := range et.OwnedCollections() {
		if !all && !e.OwnedChanged(o) {
			continue
		}
		if !all {
			if err := w.exec(ctx, q, w.dialect.Builder().Delete(o.Table).Where(squirrel.Eq{o.OwnerColumn: key[0]})); err != nil {
				return fmt.Errorf("delete %s: %w", o.Table, err)
			}
		}
		entries := o.Value(ent).Entries()
		if len(entries) == 0 {
			continue
		}
		ins := w.dialect.Builder().Insert(o.Table).Columns(o.OwnerColumn, o.LocaleColumn, o.TextColumn)
		for _, te := range entries {
			ins = ins.Values(key[0], te.Locale, te.Text)
		}
		if err := w.exec(ctx, q, ins); err != nil {
			return fmt.Errorf("insert %s: %w", o.Table, err)
		}
	}
	return nil
}

func (w *Writer) exec(ctx context.Context, q Querier, stmt squirrel.Sqlizer) error {
	query, args, err := stmt.ToSql()
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, query, args...)
	return err
}

func (w *Writer) keyPredicate(et *mapping.EntityType, ent any) squirrel.Eq {
	where := squirrel.Eq{}
	for _, f := range et.KeyFields(ent) {
		where[f.Column] = f.Get()
	}
	return where
}

func newValue(kind entity.ValueKind) any {
	if kind == entity.KindString {
		return id.New().String()
	}
	return id.New()
}

// newToken produces the next concurrency token for the column's Go type.
func newToken(col mapping.Column, previous any) any {
	switch col.GoType.Kind() {
	case reflect.Int64:
		n, _ := previous.(int64)
		return n + 1
	case reflect.String:
		return id.New().String()
	}
	return id.New()
}
