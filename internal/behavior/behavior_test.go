package behavior

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persistkit/internal/ambient"
	"persistkit/internal/core/apperror"
	"persistkit/internal/core/di"
	"persistkit/internal/core/entity"
	"persistkit/internal/dberror"
	"persistkit/internal/dbcontext"
	"persistkit/internal/infrastructure/storage"
	"persistkit/internal/mapping"
	"persistkit/internal/tracking"
)

type testProduct struct {
	entity.Identity[int64]
	entity.Created[string]
	entity.Modified[string]
	entity.SoftDelete[string]
	entity.RowVersion
	entity.TenantScope[string]
	Code  string                                                 `db:"code"`
	Price float64                                                `db:"price"`
	Texts entity.Translations[testProductText, *testProductText] `db:"-"`
	Name  entity.TranslatedText[string]                          `db:"-"`
}

func (p *testProduct) Translations() entity.TranslationCollection { return &p.Texts }

func (p *testProduct) TranslatedProperties() map[string]entity.TranslatedValue {
	return map[string]entity.TranslatedValue{"Name": &p.Name}
}

type testProductText struct {
	entity.TranslationOf[int64, string]
	Description string `db:"description"`
}

type testCounter struct {
	entity.Identity[int64]
	Label string `db:"label"`
}

type testTag struct {
	entity.Identity[string]
	Label string `db:"label"`
}

type testNote struct {
	entity.Identity[int64]
	entity.Localized[string]
	Body string `db:"body"`
}

// testEnv is a context over an in-memory SQLite database with switchable
// current tenant and locale.
type testEnv struct {
	ctx    context.Context
	c      *dbcontext.Context
	tenant string
	locale string
}

func newTestEnv(t *testing.T, extra ...dbcontext.Behavior) *testEnv {
	t.Helper()
	env := &testEnv{ctx: context.Background(), tenant: "t1", locale: "en"}

	def := dbcontext.NewDefinition("test", func(b *mapping.ModelBuilder) {
		mapping.Entity[testProduct](b)
		mapping.Entity[testCounter](b)
		mapping.Entity[testTag](b)
		mapping.Entity[testNote](b)
	}, dbcontext.WithBehaviors(append(Default(), extra...)...))

	reg := di.NewRegistry()
	reg.AddInstance(ambient.CurrentUserProviderKey, ambient.StaticUser("alice"))
	reg.AddInstance(ambient.CurrentTenantProviderKey, ambient.TenantFunc[string](func(context.Context) (string, bool) {
		return env.tenant, env.tenant != ""
	}))
	reg.AddInstance(ambient.CurrentLocaleProviderKey, ambient.LocaleFunc[string](func(context.Context) (string, bool) {
		return env.locale, env.locale != ""
	}))
	for _, b := range def.Behaviors() {
		if rb, ok := b.(dbcontext.RegisteringBehavior); ok {
			rb.OnRegistering(reg)
		}
	}
	root := reg.Build()
	scope := root.NewScope()
	t.Cleanup(scope.Close)

	db, err := storage.OpenSQLite(env.ctx, fmt.Sprintf("file:%s?mode=memory", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	env.c, err = dbcontext.New(def, db, scope)
	require.NoError(t, err)
	require.NoError(t, env.c.EnsureCreated(env.ctx))
	return env
}

func (env *testEnv) save(t *testing.T) int {
	t.Helper()
	n, err := env.c.SaveChanges(env.ctx)
	require.NoError(t, err)
	return n
}

func TestModel_BuiltInUnits(t *testing.T) {
	env := newTestEnv(t)
	m := env.c.Model()

	et, ok := m.EntityTypeOf(&testProduct{})
	require.True(t, ok)
	assert.Equal(t, []string{entity.ColumnID}, et.Key())
	assert.Equal(t, mapping.KeyGeneratedByStore, et.KeyGeneration())
	assert.Equal(t, entity.ColumnRowVersion, et.ConcurrencyToken())
	for _, c := range []mapping.Capability{
		mapping.CapIdentity, mapping.CapCreation, mapping.CapModification, mapping.CapSoftDelete,
		mapping.CapRowVersion, mapping.CapTenant, mapping.CapTranslatable, mapping.CapTranslatedProperties,
	} {
		assert.True(t, et.Has(c), "capability %d", c)
	}
	assert.False(t, et.Has(mapping.CapLocale))
	assert.Len(t, et.QueryFilters(), 2)

	col, _ := et.Column(entity.ColumnCreatedBy)
	assert.True(t, col.Required)
	col, _ = et.Column(entity.ColumnModifiedAt)
	assert.False(t, col.Required)

	nav, ok := et.Navigation(TranslationsNavigation)
	require.True(t, ok)
	assert.True(t, nav.CascadeDelete)
	assert.Equal(t, entity.ColumnParentID, nav.ForeignKey)
	assert.Equal(t, []string{entity.ColumnParentID, entity.ColumnLocaleID}, nav.Target.Key())
	assert.True(t, nav.Target.Has(mapping.CapTranslation))

	require.Len(t, et.OwnedCollections(), 1)
	assert.Equal(t, "testProduct_NameTranslations", et.OwnedCollections()[0].Table)

	tag, _ := m.EntityTypeOf(&testTag{})
	assert.Equal(t, mapping.KeySupplied, tag.KeyGeneration())
}

type testBadOwner struct {
	entity.Identity[int64]
	Texts entity.Translations[testBadText, *testBadText] `db:"-"`
}

func (o *testBadOwner) Translations() entity.TranslationCollection { return &o.Texts }

type testBadText struct {
	entity.TranslationOf[string, string]
}

func TestModel_TranslationKeyKindMismatch(t *testing.T) {
	def := dbcontext.NewDefinition("bad", func(b *mapping.ModelBuilder) {
		mapping.Entity[testBadOwner](b)
	}, dbcontext.WithBehaviors(Default()...))

	_, err := def.Model()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "testBadOwner")
}

func TestCreation_StampsUserAndSharedTimestamp(t *testing.T) {
	env := newTestEnv(t)
	p := &testProduct{Code: "P-1"}
	require.NoError(t, env.c.Add(p))
	env.save(t)

	assert.Equal(t, int64(1), p.ID)
	assert.Equal(t, "alice", p.CreatedBy)
	assert.False(t, p.CreatedAt.IsZero())
	assert.Nil(t, p.ModifiedAt)
	assert.NotEqual(t, uuid.Nil, p.Version)

	p.Price = 10
	env.save(t)
	require.NotNil(t, p.ModifiedAt)
	require.NotNil(t, p.ModifiedBy)
	assert.Equal(t, "alice", *p.ModifiedBy)
	assert.True(t, p.ModifiedAt.After(p.CreatedAt) || p.ModifiedAt.Equal(p.CreatedAt))
}

func TestSoftDelete_RemoveFlagsRow(t *testing.T) {
	env := newTestEnv(t)
	p := &testProduct{Code: "P-1"}
	require.NoError(t, env.c.Add(p))
	env.save(t)

	require.NoError(t, env.c.Remove(p))
	env.save(t)

	assert.True(t, p.IsDeleted)
	require.NotNil(t, p.DeletedBy)
	assert.Equal(t, "alice", *p.DeletedBy)
	require.NotNil(t, p.DeletedAt)

	n, err := dbcontext.Set[testProduct](env.c).Count(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	cfg, err := dbcontext.Provider[*ambient.SoftDeleteConfig](env.c.ExecutionContext(), ambient.SoftDeleteConfigKey)
	require.NoError(t, err)
	restore := cfg.DisableQueryFilter()
	n, err = dbcontext.Set[testProduct](env.c).Count(env.ctx)
	restore.Restore()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.True(t, cfg.IsQueryFilterEnabled())

	n, err = dbcontext.Set[testProduct](env.c).IgnoreQueryFilters().Count(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSoftDelete_DisabledDeletesRow(t *testing.T) {
	env := newTestEnv(t)
	p := &testProduct{Code: "P-1"}
	require.NoError(t, env.c.Add(p))
	env.save(t)

	cfg, err := dbcontext.Provider[*ambient.SoftDeleteConfig](env.c.ExecutionContext(), ambient.SoftDeleteConfigKey)
	require.NoError(t, err)
	defer cfg.Disable().Restore()

	require.NoError(t, env.c.Remove(p))
	env.save(t)

	_, tracked := env.c.ChangeTracker().Tracked(p)
	assert.False(t, tracked)
	n, err := dbcontext.Set[testProduct](env.c).IgnoreQueryFilters().Count(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestTenancy_AssignsAndFilters(t *testing.T) {
	env := newTestEnv(t)
	p1 := &testProduct{Code: "P-1"}
	require.NoError(t, env.c.Add(p1))
	env.save(t)
	assert.Equal(t, "t1", p1.TenantID)

	env.tenant = "t2"
	p2 := &testProduct{Code: "P-2"}
	require.NoError(t, env.c.Add(p2))
	env.save(t)
	assert.Equal(t, "t2", p2.TenantID)

	list, err := dbcontext.Set[testProduct](env.c).AsNoTracking().ToList(env.ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "P-2", list[0].Code)

	cfg, err := dbcontext.Provider[*ambient.MultiTenancyConfig](env.c.ExecutionContext(), ambient.MultiTenancyConfigKey)
	require.NoError(t, err)
	restore := cfg.DisableQueryFilter()
	n, err := dbcontext.Set[testProduct](env.c).Count(env.ctx)
	restore.Restore()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestTenancy_NoCurrentTenantFails(t *testing.T) {
	env := newTestEnv(t)
	env.tenant = ""
	require.NoError(t, env.c.Add(&testProduct{Code: "P-1"}))

	_, err := env.c.SaveChanges(env.ctx)
	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperror.CodeInvalidOperation, appErr.Code)
}

func TestTenancy_KeepsExplicitTenant(t *testing.T) {
	env := newTestEnv(t)
	p := &testProduct{Code: "P-1"}
	p.TenantID = "t9"
	require.NoError(t, env.c.Add(p))
	env.save(t)
	assert.Equal(t, "t9", p.TenantID)
}

func TestLocalization_FiltersByCurrentLocale(t *testing.T) {
	env := newTestEnv(t)
	en := &testNote{Body: "hello"}
	en.LocaleID = "en"
	de := &testNote{Body: "hallo"}
	de.LocaleID = "de"
	require.NoError(t, env.c.Add(en))
	require.NoError(t, env.c.Add(de))
	env.save(t)

	list, err := dbcontext.Set[testNote](env.c).AsNoTracking().ToList(env.ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "hello", list[0].Body)

	env.locale = "de"
	first, err := dbcontext.Set[testNote](env.c).AsNoTracking().First(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, "hallo", first.Body)

	cfg, err := dbcontext.Provider[*ambient.LocalizationConfig](env.c.ExecutionContext(), ambient.LocalizationConfigKey)
	require.NoError(t, err)
	defer cfg.DisableQueryFilter().Restore()
	n, err := dbcontext.Set[testNote](env.c).Count(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestIdentity_SequentialStoreKeys(t *testing.T) {
	env := newTestEnv(t)
	counters := []*testCounter{{Label: "a"}, {Label: "b"}, {Label: "c"}}
	for _, c := range counters {
		require.NoError(t, env.c.Add(c))
	}
	assert.Equal(t, 3, env.save(t))

	for i, c := range counters {
		assert.Equal(t, int64(i+1), c.ID)
	}

	counters[1].Label = "B"
	assert.Equal(t, 1, env.save(t))
	for i, c := range counters {
		assert.Equal(t, int64(i+1), c.ID)
	}
}

func TestRowVersion_StaleTokenFails(t *testing.T) {
	env := newTestEnv(t)
	p := &testProduct{Code: "P-1"}
	require.NoError(t, env.c.Add(p))
	env.save(t)

	first := p.Version
	p.Code = "P-1b"
	env.save(t)
	assert.NotEqual(t, first, p.Version)

	stale := uuid.New()
	p.Version = stale
	p.Code = "P-1c"
	_, err := env.c.SaveChanges(env.ctx)
	require.Error(t, err)

	var rvErr *dbcontext.RowVersioningError
	require.True(t, errors.As(err, &rvErr))
	assert.True(t, errors.Is(err, storage.ErrConcurrency))
	assert.Equal(t, apperror.CodeRowVersionConflict, rvErr.AppError().Code)
	assert.Equal(t, stale, p.Version)
}

func TestSave_DuplicateKeyIsTyped(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.c.Add(&testTag{Identity: entity.Identity[string]{ID: "red"}, Label: "Red"}))
	env.save(t)

	env.c.ChangeTracker().Clear()
	require.NoError(t, env.c.Add(&testTag{Identity: entity.Identity[string]{ID: "red"}, Label: "Again"}))
	_, err := env.c.SaveChanges(env.ctx)
	require.Error(t, err)

	var dupErr *dbcontext.DuplicateKeyError
	require.True(t, errors.As(err, &dupErr))
	assert.Equal(t, dberror.DuplicateKey, dupErr.Info.Kind)
	assert.Equal(t, "sqlite", dupErr.Info.Provider)
	assert.Equal(t, apperror.CodeDuplicateKey, dupErr.AppError().Code)
}

func TestReset_RestoresLastSavedState(t *testing.T) {
	env := newTestEnv(t)
	c1 := &testCounter{Label: "one"}
	c2 := &testCounter{Label: "two"}
	require.NoError(t, env.c.Add(c1))
	require.NoError(t, env.c.Add(c2))
	env.save(t)

	c1.Label = "changed"
	c3 := &testCounter{Label: "three"}
	require.NoError(t, env.c.Add(c3))
	require.NoError(t, env.c.Remove(c2))
	c2.Label = "gone"

	require.NoError(t, env.c.Reset(env.ctx))

	assert.Equal(t, "one", c1.Label)
	e1, _ := env.c.ChangeTracker().Tracked(c1)
	assert.Equal(t, tracking.Unchanged, e1.State())

	_, tracked := env.c.ChangeTracker().Tracked(c3)
	assert.False(t, tracked)

	e2, ok := env.c.ChangeTracker().Tracked(c2)
	require.True(t, ok)
	assert.Equal(t, tracking.Unchanged, e2.State())
	assert.Equal(t, "two", c2.Label)

	assert.False(t, env.c.ChangeTracker().HasChanges())
	assert.Equal(t, 0, env.save(t))
}

func TestTranslations_SavedAndIncluded(t *testing.T) {
	env := newTestEnv(t)
	p := &testProduct{Code: "P-1"}
	p.Texts.Add(&testProductText{TranslationOf: entity.TranslationOf[int64, string]{LocaleID: "en"}, Description: "A hammer"})
	p.Texts.Add(&testProductText{TranslationOf: entity.TranslationOf[int64, string]{LocaleID: "de"}, Description: "Ein Hammer"})
	p.Name.Set("en", "Hammer")
	p.Name.Set("de", "Hammer (de)")
	require.NoError(t, env.c.Add(p))
	env.save(t)

	for _, r := range p.Texts.Items {
		assert.Equal(t, p.ID, r.ParentID)
	}

	list, err := dbcontext.Set[testProduct](env.c).AsNoTracking().Include(TranslationsNavigation).ToList(env.ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	loaded := list[0]
	assert.Len(t, loaded.Texts.Items, 2)
	name, ok := loaded.Name.Get("de")
	require.True(t, ok)
	assert.Equal(t, "Hammer (de)", name)

	_, err = dbcontext.Set[testProduct](env.c).Include("Missing").ToList(env.ctx)
	assert.Error(t, err)
}

func TestAuditTrail_RecordsEveryChange(t *testing.T) {
	audit, err := NewAuditTrail()
	require.NoError(t, err)
	env := newTestEnv(t, audit)

	c := &testCounter{Label: "one"}
	require.NoError(t, env.c.Add(c))
	env.save(t)
	c.Label = "two"
	env.save(t)
	require.NoError(t, env.c.Remove(c))
	env.save(t)

	history, err := audit.History(env.ctx, env.c, "testCounter", []any{c.ID}, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)

	actions := make([]AuditAction, 0, len(history))
	for _, h := range history {
		actions = append(actions, h.Action)
		assert.Equal(t, "alice", h.UserID)
		assert.Equal(t, "test", h.Context)
		assert.Equal(t, "1", h.EntityKey)
		assert.Equal(t, CompressionNone, h.CompressionAlgo)
		if h.Action == AuditActionUpdate {
			assert.Contains(t, h.Changes, `"label":{"new":"two","old":"one"}`)
		}
	}
	assert.ElementsMatch(t, []AuditAction{AuditActionCreate, AuditActionUpdate, AuditActionDelete}, actions)
}

func TestAuditTrail_RecordsCascadedTranslations(t *testing.T) {
	audit, err := NewAuditTrail()
	require.NoError(t, err)
	env := newTestEnv(t, audit)

	p := &testProduct{Code: "P-1"}
	p.Texts.Add(&testProductText{TranslationOf: entity.TranslationOf[int64, string]{LocaleID: "en"}, Description: "A hammer"})
	require.NoError(t, env.c.Add(p))
	env.save(t)

	cfg, err := dbcontext.Provider[*ambient.SoftDeleteConfig](env.c.ExecutionContext(), ambient.SoftDeleteConfigKey)
	require.NoError(t, err)
	defer cfg.Disable().Restore()

	require.NoError(t, env.c.Remove(p))
	env.save(t)

	history, err := audit.History(env.ctx, env.c, "testProductText", []any{p.ID, "en"}, 10)
	require.NoError(t, err)
	var actions []AuditAction
	for _, h := range history {
		actions = append(actions, h.Action)
	}
	assert.ElementsMatch(t, []AuditAction{AuditActionCreate, AuditActionDelete}, actions)
	for _, h := range history {
		if h.Action == AuditActionDelete {
			assert.Contains(t, h.Changes, `"description":{"new":null,"old":"A hammer"}`)
		}
	}
}

func TestAuditTrail_FollowsCallerTransaction(t *testing.T) {
	audit, err := NewAuditTrail()
	require.NoError(t, err)
	env := newTestEnv(t, audit)
	txm := env.c.TxManager()

	kept := &testProduct{Code: "P-1"}
	require.NoError(t, txm.RunInTransaction(env.ctx, func(ctx context.Context) error {
		require.NoError(t, env.c.Add(kept))
		_, err := env.c.SaveChanges(ctx)
		return err
	}))
	history, err := audit.History(env.ctx, env.c, "testProduct", []any{kept.ID}, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	boom := errors.New("boom")
	dropped := &testProduct{Code: "P-2"}
	err = txm.RunInTransaction(env.ctx, func(ctx context.Context) error {
		require.NoError(t, env.c.Add(dropped))
		if _, err := env.c.SaveChanges(ctx); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	history, err = audit.History(env.ctx, env.c, "testProduct", []any{dropped.ID}, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAuditTrail_CompressesLargePayloads(t *testing.T) {
	audit, err := NewAuditTrail(WithCompressThreshold(8))
	require.NoError(t, err)
	env := newTestEnv(t, audit)

	p := &testProduct{Code: "P-1"}
	require.NoError(t, env.c.Add(p))
	env.save(t)
	require.NoError(t, env.c.Remove(p))
	env.save(t)

	history, err := audit.History(env.ctx, env.c, "testProduct", []any{p.ID}, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	var actions []AuditAction
	for _, h := range history {
		actions = append(actions, h.Action)
		assert.Equal(t, CompressionZstd, h.CompressionAlgo)
		assert.Nil(t, h.ChangesCompressed)
		switch h.Action {
		case AuditActionCreate:
			assert.Contains(t, h.Changes, `"code":{"new":"P-1","old":null}`)
		case AuditActionDelete:
			assert.Contains(t, h.Changes, `"is_deleted":{"new":true,"old":false}`)
		}
	}
	assert.ElementsMatch(t, []AuditAction{AuditActionCreate, AuditActionDelete}, actions)
}

func TestRules_RejectBeforeWrite(t *testing.T) {
	rules, err := NewRules(
		RuleFor[testCounter]("label-required", `row.label != ""`),
		Rule{Entity: "testCounter", Name: "short-label", Expr: `size(row.label) <= 5`, Message: "label too long"},
	)
	require.NoError(t, err)
	env := newTestEnv(t, rules)

	c := &testCounter{}
	require.NoError(t, env.c.Add(c))
	_, err = env.c.SaveChanges(env.ctx)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
	assert.Equal(t, "label-required", appErr.Details["rule"])

	c.Label = "much too long"
	_, err = env.c.SaveChanges(env.ctx)
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "label too long", appErr.Message)

	n, err := dbcontext.Set[testCounter](env.c).Count(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	c.Label = "ok"
	env.save(t)
	assert.Equal(t, int64(1), c.ID)
}

func TestRules_CompileErrors(t *testing.T) {
	_, err := NewRules(Rule{Entity: "x", Name: "broken", Expr: `row.`})
	assert.Error(t, err)

	_, err = NewRules(Rule{Entity: "x", Name: "not-bool", Expr: `"text"`})
	assert.Error(t, err)
}

func TestDiff(t *testing.T) {
	changes := Diff(
		map[string]any{"a": 1, "b": "x", "gone": true},
		map[string]any{"a": 1, "b": "y", "new": 2},
	)
	assert.Equal(t, map[string]any{
		"b":    map[string]any{"old": "x", "new": "y"},
		"new":  map[string]any{"old": nil, "new": 2},
		"gone": map[string]any{"old": true, "new": nil},
	}, changes)
}
