package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persistkit/internal/ambient"
	"persistkit/internal/core/apperror"
	appctx "persistkit/internal/core/context"
	"persistkit/internal/core/di"
	corenum "persistkit/internal/core/numerator"
	"persistkit/internal/core/types"
	"persistkit/internal/dbcontext"
	"persistkit/internal/domain"
	"persistkit/internal/registration"
	"persistkit/internal/repository"
	"persistkit/pkg/numerator"
)

type catalogEnv struct {
	root    *di.Scope
	reg     *registration.Registration
	service *domain.Service[Product, *Product]
}

func newCatalogEnv(t *testing.T, name string) *catalogEnv {
	t.Helper()
	reg := di.NewRegistry()
	reg.AddInstance(ambient.CurrentUserProviderKey, ambient.ContextUser())
	reg.AddInstance(ambient.CurrentTenantProviderKey, ambient.ContextTenant())
	reg.AddInstance(ambient.CurrentLocaleProviderKey, ambient.ContextLocale())

	r, err := registration.AddContext(context.Background(), reg, dbcontext.NewTypeRegistry(), ContextName, Configure,
		registration.NewOptions().UseSQLite("file:"+name+"?mode=memory").EnsureCreated().WithPooling(4))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	return &catalogEnv{root: reg.Build(), reg: r, service: NewProductService(nil)}
}

// request opens a scope for user in tenant, closed with the test.
func (env *catalogEnv) request(t *testing.T, user, tenant string) context.Context {
	t.Helper()
	scope := env.root.NewScope()
	t.Cleanup(scope.Close)
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: user, TenantID: tenant})
	ctx = appctx.WithLocale(ctx, "en")
	return registration.WithScope(ctx, scope)
}

func newProduct(sku string) *Product {
	p := &Product{SKU: sku, Price: types.MustMoney("12.50"), Stock: types.NewQuantityFromFloat64(3)}
	p.Name.Set("en", "Hammer")
	p.Name.Set("de", "Hammer (de)")
	p.Describe("en", "A steel hammer")
	return p
}

func appCode(err error) string {
	if ae, ok := apperror.AsAppError(err); ok {
		return ae.Code
	}
	return ""
}

func TestProductService_CreateAndGet(t *testing.T) {
	env := newCatalogEnv(t, "catalog_create")
	p := newProduct("H-1")
	require.NoError(t, env.service.Create(env.request(t, "alice", "t1"), p))
	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, "t1", p.TenantID)
	assert.Equal(t, "alice", p.CreatedBy)

	got, err := env.service.Get(env.request(t, "bob", "t1"), p.ID)
	require.NoError(t, err)
	assert.NotSame(t, p, got)
	assert.Equal(t, "H-1", got.SKU)
	assert.True(t, got.Price.Equal(types.MustMoney("12.5")))
	assert.Equal(t, p.Stock, got.Stock)
	require.Len(t, got.Texts.Items, 1)
	assert.Equal(t, "A steel hammer", got.Texts.Items[0].Description)
	name, ok := got.Name.Get("de")
	require.True(t, ok)
	assert.Equal(t, "Hammer (de)", name)
	assert.Equal(t, p.Version, got.Version)
}

func TestProductService_ValidationFailsBeforeSave(t *testing.T) {
	env := newCatalogEnv(t, "catalog_validation")
	ctx := env.request(t, "alice", "t1")

	err := env.service.Create(ctx, &Product{SKU: "X-1"})
	assert.Equal(t, apperror.CodeValidation, appCode(err))

	assert.Equal(t, apperror.CodeValidation, appCode(env.service.Create(ctx, newProduct(""))))

	neg := newProduct("N-1")
	neg.Price = types.MustMoney("-1")
	assert.Equal(t, apperror.CodeValidation, appCode(env.service.Create(ctx, neg)))

	res, err := env.service.List(ctx, repository.Criteria{}, domain.SearchOptions{})
	require.NoError(t, err)
	assert.Zero(t, res.TotalCount)
}

func TestProductService_UpdateChecksVersion(t *testing.T) {
	env := newCatalogEnv(t, "catalog_update")
	p := newProduct("H-1")
	require.NoError(t, env.service.Create(env.request(t, "alice", "t1"), p))
	readVersion := p.Version

	updated, err := env.service.Update(env.request(t, "bob", "t1"), p.ID, readVersion, func(e *Product) error {
		e.Price = types.MustMoney("15")
		e.Describe("de", "Ein Hammer")
		return nil
	})
	require.NoError(t, err)
	assert.NotEqual(t, readVersion, updated.Version)
	require.NotNil(t, updated.ModifiedBy)
	assert.Equal(t, "bob", *updated.ModifiedBy)

	_, err = env.service.Update(env.request(t, "carol", "t1"), p.ID, readVersion, func(e *Product) error {
		e.Price = types.MustMoney("1")
		return nil
	})
	assert.Equal(t, apperror.CodeRowVersionConflict, appCode(err))

	got, err := env.service.Get(env.request(t, "dave", "t1"), p.ID)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(types.MustMoney("15")))
	assert.Len(t, got.Texts.Items, 2)
}

func TestProductService_DeleteAndPurge(t *testing.T) {
	env := newCatalogEnv(t, "catalog_delete")
	p := newProduct("H-1")
	require.NoError(t, env.service.Create(env.request(t, "alice", "t1"), p))

	require.NoError(t, env.service.Delete(env.request(t, "bob", "t1"), p.ID))

	ctx := env.request(t, "bob", "t1")
	_, err := env.service.Get(ctx, p.ID)
	assert.Equal(t, apperror.CodeNotFound, appCode(err))

	res, err := env.service.List(ctx, repository.Criteria{}, domain.SearchOptions{IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.True(t, res.Items[0].IsDeleted)
	require.NotNil(t, res.Items[0].DeletedBy)
	assert.Equal(t, "bob", *res.Items[0].DeletedBy)

	res, err = env.service.List(ctx, repository.Criteria{}, domain.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Items)

	require.NoError(t, env.service.Purge(env.request(t, "admin", "t1"), p.ID))
	res, err = env.service.List(env.request(t, "admin", "t1"), repository.Criteria{}, domain.SearchOptions{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

func TestProductService_CloneCopiesDescriptions(t *testing.T) {
	env := newCatalogEnv(t, "catalog_clone")
	p := newProduct("H-1")
	require.NoError(t, env.service.Create(env.request(t, "alice", "t1"), p))

	clone, err := env.service.Clone(env.request(t, "bob", "t1"), p.ID, func(e *Product) {
		e.SKU += "-copy"
	})
	require.NoError(t, err)
	assert.NotEqual(t, p.ID, clone.ID)
	assert.Equal(t, "H-1-copy", clone.SKU)
	assert.Equal(t, "bob", clone.CreatedBy)
	require.Len(t, clone.Texts.Items, 1)
	assert.Equal(t, clone.ID, clone.Texts.Items[0].ParentID)

	res, err := env.service.List(env.request(t, "bob", "t1"), repository.Criteria{Search: "copy"}, domain.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, clone.ID, res.Items[0].ID)
}

func TestProductService_TenantsAreIsolated(t *testing.T) {
	env := newCatalogEnv(t, "catalog_tenants")
	p := newProduct("H-1")
	require.NoError(t, env.service.Create(env.request(t, "alice", "t1"), p))

	ctx := env.request(t, "eve", "t2")
	res, err := env.service.List(ctx, repository.Criteria{}, domain.SearchOptions{})
	require.NoError(t, err)
	assert.Zero(t, res.TotalCount)

	_, err = env.service.Get(ctx, p.ID)
	assert.Equal(t, apperror.CodeNotFound, appCode(err))
}

func TestProductService_BeforeHookAborts(t *testing.T) {
	env := newCatalogEnv(t, "catalog_hooks")
	env.service.Hooks().On(domain.BeforeCreate, func(_ context.Context, p *Product) error {
		if p.SKU == "BLOCKED" {
			return apperror.NewConflict("sku is blocked")
		}
		return nil
	})

	err := env.service.Create(env.request(t, "alice", "t1"), newProduct("BLOCKED"))
	assert.Equal(t, apperror.CodeConflict, appCode(err))
	require.NoError(t, env.service.Create(env.request(t, "alice", "t1"), newProduct("OK-1")))
}

func TestProductService_NeedsScope(t *testing.T) {
	svc := NewProductService(nil)
	_, err := svc.Get(context.Background(), uuid.New())
	assert.True(t, apperror.IsInvalidOperation(err))
}

func TestProductService_GeneratesSKU(t *testing.T) {
	env := newCatalogEnv(t, "catalog_numbering")
	num := numerator.New(env.reg.DB(), nil)
	require.NoError(t, num.EnsureSchema(context.Background()))
	svc := NewProductService(num)

	first := newProduct("")
	require.NoError(t, svc.Create(env.request(t, "alice", "t1"), first))
	second := newProduct("")
	require.NoError(t, svc.Create(env.request(t, "alice", "t1"), second))
	other := newProduct("")
	require.NoError(t, svc.Create(env.request(t, "eve", "t2"), other))
	manual := newProduct("MANUAL-1")
	require.NoError(t, svc.Create(env.request(t, "alice", "t1"), manual))

	assert.Equal(t, "PRD-00001", first.SKU)
	assert.Equal(t, "PRD-00002", second.SKU)
	assert.Equal(t, "PRD-00001", other.SKU)
	assert.Equal(t, "MANUAL-1", manual.SKU)
}

func TestProductService_SKUGeneratorFailure(t *testing.T) {
	env := newCatalogEnv(t, "catalog_numbering_failure")
	svc := NewProductService(&corenum.MockGenerator{
		NextFunc: func(context.Context, corenum.Config) (string, error) {
			return "", errors.New("sequence unavailable")
		},
	})

	err := svc.Create(env.request(t, "alice", "t1"), newProduct(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sequence unavailable")

	list, err := svc.List(env.request(t, "alice", "t1"), repository.Criteria{}, domain.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, list.Items)
}
