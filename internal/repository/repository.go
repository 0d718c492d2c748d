// Package repository exposes per-entity repositories over a persistence
// context, the unit of work spanning several contexts, and criteria search.
package repository

import (
	"context"
	"fmt"
	"reflect"

	"persistkit/internal/core/apperror"
	"persistkit/internal/core/entity"
	"persistkit/internal/dbcontext"
	"persistkit/internal/mapping"
)

// Repository reads and stages changes of entities of type T. Changes are
// written by the context's SaveChanges or a UnitOfWork.
type Repository[T any] struct {
	c  *dbcontext.Context
	et *mapping.EntityType
}

// New creates a repository of T over c.
func New[T any](c *dbcontext.Context) (*Repository[T], error) {
	et, err := c.EntityType(new(T))
	if err != nil {
		return nil, err
	}
	return &Repository[T]{c: c, et: et}, nil
}

func (r *Repository[T]) Context() *dbcontext.Context     { return r.c }
func (r *Repository[T]) EntityType() *mapping.EntityType { return r.et }

// Query returns a read-only query: loaded entities are not tracked.
func (r *Repository[T]) Query() *dbcontext.Query[T] {
	return dbcontext.Set[T](r.c).AsNoTracking()
}

// TrackingQuery returns a query whose results are tracked for changes.
func (r *Repository[T]) TrackingQuery() *dbcontext.Query[T] {
	return dbcontext.Set[T](r.c)
}

func (r *Repository[T]) Add(e *T) error { return r.c.Add(e) }

func (r *Repository[T]) AddRange(es ...*T) error {
	for _, e := range es {
		if err := r.c.Add(e); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository[T]) Remove(e *T) error { return r.c.Remove(e) }

func (r *Repository[T]) RemoveRange(es ...*T) error {
	for _, e := range es {
		if err := r.c.Remove(e); err != nil {
			return err
		}
	}
	return nil
}

// Update tracks e as modified in every column.
func (r *Repository[T]) Update(e *T) error { return r.c.Update(e) }

// Find returns the entity with the given key values, in key order. A tracked
// instance is returned without a query. Key values must match the arity and
// kinds of the key; int is accepted for int64 keys.
func (r *Repository[T]) Find(ctx context.Context, key ...any) (*T, error) {
	key, err := r.checkKey(key)
	if err != nil {
		return nil, err
	}
	if entry, ok := r.c.ChangeTracker().FindTracked(r.et, key); ok {
		return entry.Entity().(*T), nil
	}

	list, err := r.TrackingQuery().Where(dbcontext.KeyPredicate(r.et, key)).Limit(1).ToList(ctx)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, apperror.NewNotFound(r.et.Name(), keyDetail(key))
	}
	return list[0], nil
}

// StartTracking attaches an entity holding only the given key, without
// loading it. Changing its properties afterwards updates only those columns.
func (r *Repository[T]) StartTracking(key ...any) (*T, error) {
	key, err := r.checkKey(key)
	if err != nil {
		return nil, err
	}
	if entry, ok := r.c.ChangeTracker().FindTracked(r.et, key); ok {
		return entry.Entity().(*T), nil
	}

	e := new(T)
	for i, f := range r.et.KeyFields(e) {
		if err := f.Set(key[i]); err != nil {
			return nil, apperror.NewInvalidKey(r.et.Name(), err.Error())
		}
	}
	if err := r.c.Attach(e); err != nil {
		return nil, err
	}
	return e, nil
}

// Clone loads the entity with every navigation and returns an untracked copy
// whose generated key, concurrency token and navigation foreign keys are
// reset, ready to be added.
func (r *Repository[T]) Clone(ctx context.Context, key ...any) (*T, error) {
	return r.CloneWith(ctx, func(q *dbcontext.Query[T]) *dbcontext.Query[T] {
		for _, nav := range r.et.Navigations() {
			q = q.Include(nav.Name)
		}
		return q
	}, key...)
}

// CloneWith is Clone with the loaded graph chosen by include.
func (r *Repository[T]) CloneWith(ctx context.Context, include func(q *dbcontext.Query[T]) *dbcontext.Query[T], key ...any) (*T, error) {
	key, err := r.checkKey(key)
	if err != nil {
		return nil, err
	}
	q := r.Query().Where(dbcontext.KeyPredicate(r.et, key))
	if include != nil {
		q = include(q)
	}
	list, err := q.Limit(1).ToList(ctx)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, apperror.NewNotFound(r.et.Name(), keyDetail(key))
	}

	clone := list[0]
	if r.et.KeyGeneration() != mapping.KeySupplied {
		for _, col := range r.et.Key() {
			if err := resetColumn(r.et, clone, col); err != nil {
				return nil, err
			}
		}
	}
	if tok := r.et.ConcurrencyToken(); tok != "" {
		if err := resetColumn(r.et, clone, tok); err != nil {
			return nil, err
		}
	}
	for _, nav := range r.et.Navigations() {
		for _, rec := range nav.Collection(clone).Records() {
			if err := resetColumn(nav.Target, rec, nav.ForeignKey); err != nil {
				return nil, err
			}
		}
	}
	return clone, nil
}

// checkKey validates key against the key of T.
func (r *Repository[T]) checkKey(key []any) ([]any, error) {
	kinds := r.et.KeyKinds()
	if len(key) != len(kinds) {
		return nil, apperror.NewInvalidKey(r.et.Name(),
			fmt.Sprintf("expected %d key values, got %d", len(kinds), len(key)))
	}
	out := make([]any, len(key))
	for i, v := range key {
		if n, ok := v.(int); ok && kinds[i] == entity.KindInt64 {
			v = int64(n)
		}
		if got := entity.KindOfValue(v); got != kinds[i] {
			return nil, apperror.NewInvalidKey(r.et.Name(),
				fmt.Sprintf("key value %d must be %s, got %T", i, kinds[i], key[i])).
				WithDetail("column", r.et.Key()[i])
		}
		out[i] = v
	}
	return out, nil
}

func resetColumn(et *mapping.EntityType, e any, column string) error {
	col, ok := et.Column(column)
	if !ok {
		return fmt.Errorf("%s has no column %s", et.Name(), column)
	}
	return mapping.SetColumnValue(e, column, reflect.Zero(col.GoType).Interface())
}

func keyDetail(key []any) any {
	if len(key) == 1 {
		return key[0]
	}
	return key
}
