package dbcontext

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"persistkit/internal/core/apperror"
	"persistkit/internal/mapping"
)

// Query reads entities of type T. Methods return modified copies, so a base
// query can be shared. Query filters of T apply unless IgnoreQueryFilters is
// set; owned translated properties are always loaded.
type Query[T any] struct {
	c   *Context
	et  *mapping.EntityType
	err error

	where         []squirrel.Sqlizer
	orderBy       []string
	limit         uint64
	hasLimit      bool
	offset        uint64
	tracking      bool
	ignoreFilters bool
	includes      []string
}

// Set starts a tracking query over T.
func Set[T any](c *Context) *Query[T] {
	q := &Query[T]{c: c, tracking: true}
	et, ok := c.model.EntityTypeOf(new(T))
	if !ok {
		q.err = apperror.NewInvalidOperation(fmt.Sprintf("type %T is not part of context %s", new(T), c.def.Name()))
		return q
	}
	q.et = et
	return q
}

func (q *Query[T]) clone() *Query[T] {
	cp := *q
	cp.where = append([]squirrel.Sqlizer(nil), q.where...)
	cp.orderBy = append([]string(nil), q.orderBy...)
	cp.includes = append([]string(nil), q.includes...)
	return &cp
}

// EntityType returns the mapping of T.
func (q *Query[T]) EntityType() *mapping.EntityType { return q.et }

// Context returns the context the query runs in.
func (q *Query[T]) Context() *Context { return q.c }

// Where adds a predicate; predicates are combined with AND.
func (q *Query[T]) Where(pred squirrel.Sqlizer) *Query[T] {
	cp := q.clone()
	cp.where = append(cp.where, pred)
	return cp
}

// OrderBy appends ORDER BY clauses such as "code DESC".
func (q *Query[T]) OrderBy(clauses ...string) *Query[T] {
	cp := q.clone()
	cp.orderBy = append(cp.orderBy, clauses...)
	return cp
}

func (q *Query[T]) Limit(n uint64) *Query[T] {
	cp := q.clone()
	cp.limit, cp.hasLimit = n, true
	return cp
}

func (q *Query[T]) Offset(n uint64) *Query[T] {
	cp := q.clone()
	cp.offset = n
	return cp
}

// AsNoTracking returns entities that the context does not track.
func (q *Query[T]) AsNoTracking() *Query[T] {
	cp := q.clone()
	cp.tracking = false
	return cp
}

// AsTracking attaches returned entities as Unchanged. Already tracked
// instances with the same key are returned instead of the loaded ones.
func (q *Query[T]) AsTracking() *Query[T] {
	cp := q.clone()
	cp.tracking = true
	return cp
}

// IgnoreQueryFilters skips every query filter of T and of included records.
func (q *Query[T]) IgnoreQueryFilters() *Query[T] {
	cp := q.clone()
	cp.ignoreFilters = true
	return cp
}

// Include loads the named navigation of every returned entity.
func (q *Query[T]) Include(navigation string) *Query[T] {
	cp := q.clone()
	cp.includes = append(cp.includes, navigation)
	return cp
}

// ToSql renders the SELECT statement for the current scope.
func (q *Query[T]) ToSql(ctx context.Context) (string, []any, error) {
	sb, err := q.selectBuilder(ctx, false)
	if err != nil {
		return "", nil, err
	}
	return sb.ToSql()
}

// ToList runs the query.
func (q *Query[T]) ToList(ctx context.Context) ([]*T, error) {
	sb, err := q.selectBuilder(ctx, false)
	if err != nil {
		return nil, err
	}
	rows, err := q.c.reader.Select(ctx, q.et, sb)
	if err != nil {
		return nil, err
	}

	for _, name := range q.includes {
		nav, _ := q.et.Navigation(name)
		var where squirrel.Sqlizer
		if !q.ignoreFilters {
			if where, err = nav.Target.FilterPredicate(ctx, q.c.ExecutionContext()); err != nil {
				return nil, err
			}
		}
		if _, err := q.c.reader.LoadNavigation(ctx, q.et, nav, rows, where); err != nil {
			return nil, err
		}
	}

	out := make([]*T, 0, len(rows))
	for _, r := range rows {
		if q.tracking {
			if r, err = q.c.track(q.et, r); err != nil {
				return nil, err
			}
		}
		out = append(out, r.(*T))
	}
	return out, nil
}

// First returns the first entity, or a NOT_FOUND error.
func (q *Query[T]) First(ctx context.Context) (*T, error) {
	list, err := q.Limit(1).ToList(ctx)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		name := "entity"
		if q.et != nil {
			name = q.et.Name()
		}
		return nil, apperror.NewNotFound(name, nil)
	}
	return list[0], nil
}

// Count returns the number of matching rows, ignoring order, limit and offset.
func (q *Query[T]) Count(ctx context.Context) (int64, error) {
	sb, err := q.selectBuilder(ctx, true)
	if err != nil {
		return 0, err
	}
	return q.c.reader.Count(ctx, sb)
}

func (q *Query[T]) selectBuilder(ctx context.Context, count bool) (squirrel.SelectBuilder, error) {
	if q.err != nil {
		return squirrel.SelectBuilder{}, q.err
	}
	for _, name := range q.includes {
		if _, ok := q.et.Navigation(name); !ok {
			return squirrel.SelectBuilder{}, apperror.NewInvalidOperation(fmt.Sprintf("%s has no navigation %s", q.et.Name(), name))
		}
	}

	sb := q.c.reader.SelectFrom(q.et)
	if count {
		sb = q.c.reader.CountFrom(q.et)
	}
	if !q.ignoreFilters {
		pred, err := q.et.FilterPredicate(ctx, q.c.ExecutionContext())
		if err != nil {
			return squirrel.SelectBuilder{}, err
		}
		if pred != nil {
			sb = sb.Where(pred)
		}
	}
	for _, w := range q.where {
		sb = sb.Where(w)
	}
	if count {
		return sb, nil
	}
	if len(q.orderBy) > 0 {
		sb = sb.OrderBy(q.orderBy...)
	}
	if q.hasLimit {
		sb = sb.Limit(q.limit)
	}
	if q.offset > 0 {
		sb = sb.Offset(q.offset)
	}
	return sb, nil
}

// track attaches a loaded entity, returning the tracked instance when one
// with the same key exists already.
func (c *Context) track(et *mapping.EntityType, e any) (any, error) {
	if entry, ok := c.tracker.FindTracked(et, et.KeyValues(e)); ok {
		return entry.Entity(), nil
	}
	if _, err := c.tracker.Attach(e); err != nil {
		return nil, err
	}
	return e, nil
}

// KeyPredicate matches the row of et with the given key values.
func KeyPredicate(et *mapping.EntityType, key []any) squirrel.Eq {
	where := make(squirrel.Eq, len(key))
	for i, col := range et.Key() {
		if i < len(key) {
			where[col] = key[i]
		}
	}
	return where
}
