package ambient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	appctx "persistkit/internal/core/context"
)

func TestToggle_DeepNestingRestoresEnclosingState(t *testing.T) {
	cfg := NewSoftDeleteConfig()
	assert.True(t, cfg.IsQueryFilterEnabled())

	l1 := cfg.DisableQueryFilter()
	assert.False(t, cfg.IsQueryFilterEnabled())
	l2 := cfg.EnableQueryFilter()
	assert.True(t, cfg.IsQueryFilterEnabled())
	l3 := cfg.DisableQueryFilter()
	assert.False(t, cfg.IsQueryFilterEnabled())
	l4 := cfg.EnableQueryFilter()
	assert.True(t, cfg.IsQueryFilterEnabled())
	l5 := cfg.DisableQueryFilter()
	assert.False(t, cfg.IsQueryFilterEnabled())

	l5.Restore()
	assert.True(t, cfg.IsQueryFilterEnabled())
	l4.Restore()
	assert.False(t, cfg.IsQueryFilterEnabled())
	l3.Restore()
	assert.True(t, cfg.IsQueryFilterEnabled())
	l2.Restore()
	assert.False(t, cfg.IsQueryFilterEnabled())
	l1.Restore()
	assert.True(t, cfg.IsQueryFilterEnabled())
}

func TestToggle_NestingFromDisabledStart(t *testing.T) {
	cfg := NewMultiTenancyConfig()
	outer := cfg.DisableQueryFilter()
	defer outer.Restore()

	func() {
		defer cfg.EnableQueryFilter().Restore()
		assert.True(t, cfg.IsQueryFilterEnabled())
		func() {
			defer cfg.DisableQueryFilter().Restore()
			assert.False(t, cfg.IsQueryFilterEnabled())
			func() {
				defer cfg.EnableQueryFilter().Restore()
				assert.True(t, cfg.IsQueryFilterEnabled())
				func() {
					defer cfg.DisableQueryFilter().Restore()
					assert.False(t, cfg.IsQueryFilterEnabled())
				}()
				assert.True(t, cfg.IsQueryFilterEnabled())
			}()
			assert.False(t, cfg.IsQueryFilterEnabled())
		}()
		assert.True(t, cfg.IsQueryFilterEnabled())
	}()

	assert.False(t, cfg.IsQueryFilterEnabled())
}

func TestToggle_RestoreTwiceIsNoop(t *testing.T) {
	cfg := NewLocalizationConfig()
	a := cfg.DisableQueryFilter()
	b := cfg.EnableQueryFilter()
	a.Restore()
	assert.True(t, cfg.IsQueryFilterEnabled())
	b.Restore()
	assert.False(t, cfg.IsQueryFilterEnabled())
	b.Restore()
	assert.False(t, cfg.IsQueryFilterEnabled())
}

func TestToggle_SoftDeleteEnableIndependentOfFilter(t *testing.T) {
	cfg := NewSoftDeleteConfig()
	r := cfg.Disable()
	assert.False(t, cfg.IsEnabled())
	assert.True(t, cfg.IsQueryFilterEnabled())
	r.Restore()
	assert.True(t, cfg.IsEnabled())
}

func TestContextProviders(t *testing.T) {
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u-1", TenantID: "t-1"})
	ctx = appctx.WithLocale(ctx, "en_us")

	uid, ok := ContextUser().CurrentUserID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u-1", uid)

	tid, ok := ContextTenant().CurrentTenantID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "t-1", tid)

	loc, ok := ContextLocale().CurrentLocaleID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "en-US", loc)

	_, ok = ContextTenantUUID().CurrentTenantID(ctx)
	assert.False(t, ok)

	_, ok = ContextUser().CurrentUserID(context.Background())
	assert.False(t, ok)
}

func TestPreferredLocale(t *testing.T) {
	assert.Equal(t, "", PreferredLocale(""))
	assert.Equal(t, "de", PreferredLocale("de-CH;q=0.9, fr;q=0.5", "en", "de"))
	assert.Equal(t, "fr", PreferredLocale("fr;q=0.8"))
}
