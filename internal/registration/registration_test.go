package registration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persistkit/internal/ambient"
	"persistkit/internal/behavior"
	"persistkit/internal/core/apperror"
	"persistkit/internal/core/di"
	"persistkit/internal/core/entity"
	"persistkit/internal/dbcontext"
	"persistkit/internal/infrastructure/storage"
	"persistkit/internal/mapping"
)

type regItem struct {
	entity.Identity[int64]
	entity.SoftDelete[string]
	Code string `db:"code"`
}

type regNote struct {
	entity.Identity[int64]
	Body string `db:"body"`
}

func items(b *mapping.ModelBuilder) { mapping.Entity[regItem](b) }
func notes(b *mapping.ModelBuilder) { mapping.Entity[regNote](b) }

func sqliteOptions(name string) *OptionsBuilder {
	return NewOptions().UseSQLite(fmt.Sprintf("file:%s?mode=memory", name)).EnsureCreated()
}

func addContext(t *testing.T, reg *di.Registry, types *dbcontext.TypeRegistry, name string, configure func(*mapping.ModelBuilder), opts *OptionsBuilder) *Registration {
	t.Helper()
	r, err := AddContext(context.Background(), reg, types, name, configure, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestAddContext_OneInstancePerScope(t *testing.T) {
	reg := di.NewRegistry()
	addContext(t, reg, dbcontext.NewTypeRegistry(), "inventory", items, sqliteOptions("reg_scope"))
	root := reg.Build()

	s1, s2 := root.NewScope(), root.NewScope()
	defer s1.Close()
	defer s2.Close()

	a, err := ContextFrom(s1, "inventory")
	require.NoError(t, err)
	b, err := ContextFrom(s1, "inventory")
	require.NoError(t, err)
	assert.Same(t, a, b)

	other, err := ContextFrom(s2, "inventory")
	require.NoError(t, err)
	assert.NotSame(t, a, other)
	assert.NotEqual(t, a.ID(), other.ID())

	nested := s1.NewScope()
	defer nested.Close()
	inner, err := ContextFrom(nested, "inventory")
	require.NoError(t, err)
	assert.NotSame(t, a, inner)

	_, err = ContextFrom(s1, "missing")
	var ae *apperror.AppError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperror.CodeInvalidOperation, ae.Code)
}

func TestAddContext_CustomBehaviorsRunAfterBuiltIns(t *testing.T) {
	audit, err := behavior.NewAuditTrail()
	require.NoError(t, err)

	reg := di.NewRegistry()
	r := addContext(t, reg, dbcontext.NewTypeRegistry(), "audited", items, sqliteOptions("reg_custom").AddBehaviors(audit))

	bs := r.Definition().Behaviors()
	require.Len(t, bs, len(behavior.Default())+1)
	assert.Same(t, audit, bs[len(bs)-1])
	assert.True(t, reg.Has(ambient.SoftDeleteConfigKey))
	assert.True(t, reg.Has(ambient.MultiTenancyConfigKey))
	assert.Nil(t, r.Pool())
}

func TestAddContext_TypeOwnedTwice(t *testing.T) {
	reg := di.NewRegistry()
	types := dbcontext.NewTypeRegistry()
	addContext(t, reg, types, "first", items, sqliteOptions("reg_twice_a"))

	_, err := AddContext(context.Background(), reg, types, "second", items, sqliteOptions("reg_twice_b"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first")
}

func TestPool_ReusesResetContexts(t *testing.T) {
	reg := di.NewRegistry()
	users := 0
	reg.Add(ambient.CurrentUserProviderKey, di.Scoped, func(di.Resolver) (any, error) {
		users++
		return ambient.StaticUser(fmt.Sprintf("u%d", users)), nil
	})
	r := addContext(t, reg, dbcontext.NewTypeRegistry(), "pooled", items, sqliteOptions("reg_pool").WithPooling(2))
	root := reg.Build()
	ctx := context.Background()

	s1 := root.NewScope()
	first, err := ContextFrom(s1, "pooled")
	require.NoError(t, err)
	require.NoError(t, first.Add(&regItem{Code: "draft"}))
	user, ok := first.CurrentUserID(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", user)

	cfg, err := di.Resolve[*ambient.SoftDeleteConfig](s1, ambient.SoftDeleteConfigKey)
	require.NoError(t, err)
	cfg.DisableQueryFilter()

	s1.Close()
	assert.Equal(t, 1, r.Pool().Idle())

	s2 := root.NewScope()
	defer s2.Close()
	second, err := ContextFrom(s2, "pooled")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Empty(t, second.ChangeTracker().Entries())
	assert.Zero(t, r.Pool().Idle())

	user, ok = second.CurrentUserID(ctx)
	require.True(t, ok)
	assert.Equal(t, "u2", user)

	scoped, err := dbcontext.Provider[*ambient.SoftDeleteConfig](second.ExecutionContext(), ambient.SoftDeleteConfigKey)
	require.NoError(t, err)
	assert.True(t, scoped.IsQueryFilterEnabled())

	stats := r.Pool().Stats()
	assert.Equal(t, int64(1), stats.Created)
	assert.Equal(t, int64(1), stats.Reused)
	assert.Equal(t, 2, stats.Size)
}

func TestPool_DropsContextsBeyondSize(t *testing.T) {
	reg := di.NewRegistry()
	r := addContext(t, reg, dbcontext.NewTypeRegistry(), "small", items, sqliteOptions("reg_pool_small").WithPooling(1))
	root := reg.Build()

	s1, s2 := root.NewScope(), root.NewScope()
	_, err := ContextFrom(s1, "small")
	require.NoError(t, err)
	_, err = ContextFrom(s2, "small")
	require.NoError(t, err)
	s1.Close()
	s2.Close()

	assert.Equal(t, 1, r.Pool().Idle())
	assert.Equal(t, int64(2), r.Pool().Stats().Created)
}

func TestRepositoryFor_ResolvesOwningContext(t *testing.T) {
	reg := di.NewRegistry()
	types := dbcontext.NewTypeRegistry()
	addContext(t, reg, types, "items", items, sqliteOptions("reg_repo_items"))
	addContext(t, reg, types, "notes", notes, sqliteOptions("reg_repo_notes"))
	scope := reg.Build().NewScope()
	defer scope.Close()
	ctx := context.Background()

	repo, err := RepositoryFor[regNote](scope)
	require.NoError(t, err)
	c, err := ContextFrom(scope, "notes")
	require.NoError(t, err)
	assert.Same(t, c, repo.Context())

	_, err = RepositoryFor[struct{ X int }](scope)
	require.Error(t, err)

	itemRepo, err := RepositoryFor[regItem](scope)
	require.NoError(t, err)
	require.NoError(t, itemRepo.Add(&regItem{Code: "I-1"}))
	require.NoError(t, repo.Add(&regNote{Body: "hello"}))

	uow, err := UnitOfWorkFor(scope)
	require.NoError(t, err)
	assert.Len(t, uow.Contexts(), 2)
	n, err := uow.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := repo.Query().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestOptionsBuilder(t *testing.T) {
	_, err := NewOptions().Build()
	assert.Error(t, err)

	_, err = NewOptions().UseProvider("oracle", "dsn").Build()
	assert.Error(t, err)

	_, err = NewOptions().UsePostgres("").Build()
	assert.Error(t, err)

	opts, err := NewOptions().
		UseProvider("postgresql", "postgres://localhost/app").
		WithPoolConfig(func(cfg *storage.PoolConfig) { cfg.MaxConns = 3 }).
		WithPooling(0).
		Build()
	require.NoError(t, err)
	assert.Equal(t, storage.Postgres, opts.Dialect)
	assert.Equal(t, int32(3), opts.Pool.MaxConns)
	assert.True(t, opts.Pooling)
	assert.Equal(t, DefaultPoolSize, opts.PoolSize)

	opts, err = NewOptions().UseMySQL("user@/app").WithPooling(8).WithoutPooling().Build()
	require.NoError(t, err)
	assert.False(t, opts.Pooling)
	assert.Equal(t, storage.MySQL, opts.Dialect)
}

func TestParseConfig(t *testing.T) {
	t.Setenv("PERSISTKIT_TEST_DSN", "file:cfg?mode=memory")
	cfg, err := ParseConfig([]byte(`
provider: sqlite
database:
  dsn: ${PERSISTKIT_TEST_DSN}
  max_conn_lifetime: 2h
pooling:
  enabled: true
  size: 4
audit:
  enabled: true
  compress_threshold: 2048
rules:
  - entity: regItem
    name: code-set
    expr: row.code != ""
`))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Provider)
	assert.Equal(t, "file:cfg?mode=memory", cfg.Database.DSN)
	assert.Equal(t, 2*time.Hour, cfg.Database.MaxConnLifetime)
	assert.Equal(t, int32(25), cfg.Database.MaxConns)
	assert.Equal(t, "info", cfg.Logger.Level)
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, "code-set", cfg.Rules[0].Name)

	b, err := cfg.Options()
	require.NoError(t, err)
	opts, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, storage.SQLite, opts.Dialect)
	assert.True(t, opts.Pooling)
	assert.Equal(t, 4, opts.PoolSize)
	require.Len(t, opts.Behaviors, 2)
	assert.IsType(t, &behavior.AuditTrail{}, opts.Behaviors[0])
	assert.IsType(t, &behavior.Rules{}, opts.Behaviors[1])
}

func TestParseConfig_Errors(t *testing.T) {
	_, err := ParseConfig([]byte("provider: [unterminated"))
	assert.Error(t, err)

	cfg, err := ParseConfig([]byte("provider: oracle\n"))
	require.NoError(t, err)
	_, err = cfg.Options()
	assert.Error(t, err)

	cfg, err = ParseConfig([]byte(`
provider: sqlite
database:
  dsn: file:x?mode=memory
rules:
  - entity: regItem
    name: broken
    expr: row.code +
`))
	require.NoError(t, err)
	_, err = cfg.Options()
	assert.Error(t, err)

	_, err = LoadConfig("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestScopeFrom(t *testing.T) {
	_, err := ScopeFrom(context.Background())
	assert.True(t, apperror.IsInvalidOperation(err))

	scope := di.NewRegistry().Build().NewScope()
	got, err := ScopeFrom(WithScope(context.Background(), scope))
	require.NoError(t, err)
	assert.Same(t, scope, got)
}
