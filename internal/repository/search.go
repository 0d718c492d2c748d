package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"persistkit/internal/core/apperror"
	"persistkit/internal/infrastructure/storage"
	"persistkit/internal/mapping"
)

var validate = validator.New()

const DefaultPageSize = 50

// Criteria selects a page of entities. Query filters of the entity type
// (tenant, locale, soft delete) apply on top of it.
type Criteria struct {
	// Search is split on whitespace; every token must occur in at least one
	// text column.
	Search  string       `json:"search" validate:"max=200"`
	Filters []FilterItem `json:"filters" validate:"dive"`
	// OrderBy is a column name, "-column" for descending.
	OrderBy  string `json:"orderBy"`
	Page     int    `json:"page" validate:"min=0"`
	PageSize int    `json:"pageSize" validate:"min=0,max=500"`
}

// SearchResult is one page plus the number of matching rows.
type SearchResult[T any] struct {
	Items      []*T  `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
}

// Search returns the untracked entities matching crit. Page is 1-based; zero
// means the first page.
func (r *Repository[T]) Search(ctx context.Context, crit Criteria) (SearchResult[T], error) {
	var result SearchResult[T]
	if err := validate.Struct(crit); err != nil {
		return result, validationError(err)
	}

	q := r.Query()
	if pred, err := searchPredicate(r.et, r.c.DB().Dialect, crit.Search); err != nil {
		return result, err
	} else if pred != nil {
		q = q.Where(pred)
	}
	for _, item := range crit.Filters {
		pred, err := filterPredicate(r.et, r.c.DB().Dialect, item)
		if err != nil {
			return result, err
		}
		q = q.Where(pred)
	}

	orderBy, err := parseOrderBy(r.et, crit.OrderBy)
	if err != nil {
		return result, err
	}
	page, size := crit.Page, crit.PageSize
	if page < 1 {
		page = 1
	}
	if size == 0 {
		size = DefaultPageSize
	}

	// Count and page read one snapshot.
	var (
		total int64
		items []*T
	)
	err = r.c.TxManager().ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		if total, err = q.Count(ctx); err != nil {
			return fmt.Errorf("count %s: %w", r.et.Name(), err)
		}
		items, err = q.OrderBy(orderBy...).
			Limit(uint64(size)).
			Offset(uint64((page - 1) * size)).
			ToList(ctx)
		if err != nil {
			return fmt.Errorf("search %s: %w", r.et.Name(), err)
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	result.Items = items
	result.TotalCount = total
	result.Page = page
	result.PageSize = size
	return result, nil
}

func searchPredicate(et *mapping.EntityType, d storage.Dialect, search string) (squirrel.Sqlizer, error) {
	tokens := strings.Fields(search)
	if len(tokens) == 0 {
		return nil, nil
	}
	cols := et.TextColumns()
	if len(cols) == 0 {
		return nil, apperror.NewValidation(fmt.Sprintf("%s has no searchable columns", et.Name())).
			WithDetail("search", search)
	}

	and := make(squirrel.And, 0, len(tokens))
	for _, tok := range tokens {
		or := make(squirrel.Or, 0, len(cols))
		for _, col := range cols {
			or = append(or, like(d, col, "%"+tok+"%", false))
		}
		and = append(and, or)
	}
	return and, nil
}

// like is case-insensitive on every dialect: ILIKE on Postgres, LIKE with the
// default collations of SQLite and MySQL.
func like(d storage.Dialect, col, pattern string, negate bool) squirrel.Sqlizer {
	if d.Name == storage.Postgres.Name {
		if negate {
			return squirrel.NotILike{col: pattern}
		}
		return squirrel.ILike{col: pattern}
	}
	if negate {
		return squirrel.NotLike{col: pattern}
	}
	return squirrel.Like{col: pattern}
}

func filterPredicate(et *mapping.EntityType, d storage.Dialect, item FilterItem) (squirrel.Sqlizer, error) {
	col, ok := et.Column(item.Field)
	if !ok {
		return nil, apperror.NewValidation("invalid filter column").
			WithDetail("field", item.Field).
			WithDetail("entity", et.Name())
	}
	if isUUIDColumn(col) {
		switch item.Operator {
		case Equal, NotEqual, InList, NotInList:
			v, err := parseUUIDs(item.Value)
			if err != nil {
				return nil, apperror.NewValidation("invalid filter value").
					WithDetail("field", item.Field).
					WithDetail("value", fmt.Sprint(item.Value))
			}
			item.Value = v
		}
	}

	switch item.Operator {
	case Equal, InList:
		return squirrel.Eq{item.Field: item.Value}, nil
	case NotEqual, NotInList:
		return squirrel.NotEq{item.Field: item.Value}, nil
	case Less:
		return squirrel.Lt{item.Field: item.Value}, nil
	case Greater:
		return squirrel.Gt{item.Field: item.Value}, nil
	case LessOrEqual:
		return squirrel.LtOrEq{item.Field: item.Value}, nil
	case GreaterOrEqual:
		return squirrel.GtOrEq{item.Field: item.Value}, nil
	case IsNull:
		return squirrel.Eq{item.Field: nil}, nil
	case IsNotNull:
		return squirrel.NotEq{item.Field: nil}, nil
	case Contains:
		return like(d, item.Field, fmt.Sprintf("%%%v%%", item.Value), false), nil
	case NotContains:
		return like(d, item.Field, fmt.Sprintf("%%%v%%", item.Value), true), nil
	}
	return nil, apperror.NewValidation("invalid filter operator").WithDetail("operator", string(item.Operator))
}

func isUUIDColumn(col mapping.Column) bool {
	t := col.GoType
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t == reflect.TypeFor[uuid.UUID]()
}

// parseUUIDs turns a string or a list of strings into uuid values.
func parseUUIDs(v any) (any, error) {
	switch x := v.(type) {
	case nil, uuid.UUID:
		return x, nil
	case string:
		return uuid.Parse(x)
	case []string:
		out := make([]uuid.UUID, len(x))
		for i, s := range x {
			u, err := uuid.Parse(s)
			if err != nil {
				return nil, err
			}
			out[i] = u
		}
		return out, nil
	case []any:
		out := make([]uuid.UUID, len(x))
		for i, e := range x {
			u, err := parseUUIDs(e)
			if err != nil {
				return nil, err
			}
			id, ok := u.(uuid.UUID)
			if !ok {
				return nil, fmt.Errorf("list element %d is not a uuid", i)
			}
			out[i] = id
		}
		return out, nil
	}
	return nil, fmt.Errorf("%T is not a uuid", v)
}

// parseOrderBy accepts "column", "+column" or "-column". Without one, rows are
// ordered by key.
func parseOrderBy(et *mapping.EntityType, orderBy string) ([]string, error) {
	if orderBy == "" {
		out := make([]string, 0, len(et.Key()))
		for _, col := range et.Key() {
			out = append(out, col+" ASC")
		}
		return out, nil
	}

	direction := "ASC"
	field := orderBy
	if strings.HasPrefix(orderBy, "-") {
		direction = "DESC"
		field = strings.TrimPrefix(orderBy, "-")
	} else if strings.HasPrefix(orderBy, "+") {
		field = strings.TrimPrefix(orderBy, "+")
	}

	field = strings.TrimSpace(field)
	if _, ok := et.Column(field); !ok {
		return nil, apperror.NewValidation("invalid orderBy").WithDetail("orderBy", orderBy).WithDetail("field", field)
	}
	return []string{field + " " + direction}, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.NewValidation(err.Error())
	}
	ae := apperror.NewValidation("invalid search criteria")
	for _, fe := range verrs {
		ae.WithDetail(fe.Namespace(), fe.Tag())
	}
	return ae
}
