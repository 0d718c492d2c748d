package repository

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persistkit/internal/core/apperror"
	"persistkit/internal/infrastructure/storage"
)

func seedSearchNotes(t *testing.T, env *testEnv) {
	seedNotes(t, env,
		&testNote{Code: "A-1", Title: "red bolt", Qty: 5},
		&testNote{Code: "A-2", Title: "blue bolt", Qty: 1},
		&testNote{Code: "B-1", Title: "red nut", Qty: 9},
		&testNote{Code: "B-2", Title: "green washer", Qty: 0},
		&testNote{Code: "C-1", Title: "red washer", Qty: 3},
	)
}

func codes(items []*testNote) []string {
	out := make([]string, len(items))
	for i, n := range items {
		out[i] = n.Code
	}
	return out
}

func TestSearch_TokensMatchAnyTextColumn(t *testing.T) {
	env := newTestEnv(t, "search_tokens")
	seedSearchNotes(t, env)
	r := newRepo[testNote](t, env.newContext(t))

	res, err := r.Search(env.ctx, Criteria{Search: "RED"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.TotalCount)
	assert.Equal(t, []string{"A-1", "B-1", "C-1"}, codes(res.Items))

	res, err = r.Search(env.ctx, Criteria{Search: "red washer"})
	require.NoError(t, err)
	assert.Equal(t, []string{"C-1"}, codes(res.Items))

	res, err = r.Search(env.ctx, Criteria{Search: "b- bolt"})
	require.NoError(t, err)
	assert.Empty(t, res.Items)

	res, err = r.Search(env.ctx, Criteria{Search: "a- bolt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A-1", "A-2"}, codes(res.Items))
}

func TestSearch_FiltersOrderAndPaging(t *testing.T) {
	env := newTestEnv(t, "search_paging")
	seedSearchNotes(t, env)
	c := env.newContext(t)
	r := newRepo[testNote](t, c)

	res, err := r.Search(env.ctx, Criteria{
		Filters:  []FilterItem{{Field: "qty", Operator: GreaterOrEqual, Value: 1}},
		OrderBy:  "-qty",
		Page:     2,
		PageSize: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.TotalCount)
	assert.Equal(t, 2, res.Page)
	assert.Equal(t, []string{"C-1", "A-2"}, codes(res.Items))
	assert.False(t, c.ChangeTracker().HasChanges())
	assert.Empty(t, c.ChangeTracker().Entries())

	res, err = r.Search(env.ctx, Criteria{
		Filters: []FilterItem{
			{Field: "code", Operator: InList, Value: []string{"A-1", "B-2", "Z-9"}},
			{Field: "title", Operator: NotContains, Value: "washer"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A-1"}, codes(res.Items))
	assert.Equal(t, DefaultPageSize, res.PageSize)
}

func TestSearch_RejectsInvalidCriteria(t *testing.T) {
	env := newTestEnv(t, "search_invalid")
	r := newRepo[testNote](t, env.newContext(t))

	cases := map[string]Criteria{
		"unknown filter column": {Filters: []FilterItem{{Field: "price; drop", Operator: Equal, Value: 1}}},
		"unknown operator":      {Filters: []FilterItem{{Field: "qty", Operator: "like", Value: 1}}},
		"unknown order column":  {OrderBy: "-secret"},
		"page size too large":   {PageSize: 1000},
		"negative page":         {Page: -1},
	}
	for name, crit := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Search(env.ctx, crit)
			require.Error(t, err)
			var ae *apperror.AppError
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, apperror.CodeValidation, ae.Code)
		})
	}
}

func TestSearchPredicate_UsesILikeOnPostgres(t *testing.T) {
	env := newTestEnv(t, "search_ilike")
	r := newRepo[testNote](t, env.newContext(t))

	pred, err := searchPredicate(r.EntityType(), storage.Postgres, "bolt")
	require.NoError(t, err)
	sql, args, err := pred.ToSql()
	require.NoError(t, err)
	assert.Equal(t, "((code ILIKE ? OR title ILIKE ?))", sql)
	assert.Equal(t, []any{"%bolt%", "%bolt%"}, args)

	pred, err = searchPredicate(r.EntityType(), storage.SQLite, "  ")
	require.NoError(t, err)
	assert.Nil(t, pred)
}

func TestSearch_UUIDFilterParsesValues(t *testing.T) {
	env := newTestEnv(t, "search_uuid")
	c := env.newContext(t)
	r := newRepo[testItem](t, c)
	a, b := &testItem{Code: "A"}, &testItem{Code: "B"}
	require.NoError(t, r.AddRange(a, b))
	_, err := c.SaveChanges(env.ctx)
	require.NoError(t, err)

	fresh := newRepo[testItem](t, env.newContext(t))
	res, err := fresh.Search(env.ctx, Criteria{Filters: []FilterItem{
		{Field: "row_version", Operator: Equal, Value: b.Version.String()},
	}})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "B", res.Items[0].Code)

	res, err = fresh.Search(env.ctx, Criteria{Filters: []FilterItem{
		{Field: "row_version", Operator: InList, Value: []any{a.Version.String(), b.Version.String()}},
	}})
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)

	for name, v := range map[string]any{
		"malformed string": "not-a-uuid",
		"malformed list":   []string{a.Version.String(), "42"},
		"wrong type":       17,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := fresh.Search(env.ctx, Criteria{Filters: []FilterItem{
				{Field: "row_version", Operator: InList, Value: v},
			}})
			assert.Equal(t, apperror.CodeValidation, appCode(t, err))
		})
	}
}
