package numerator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "persistkit/internal/core/context"
	"persistkit/internal/infrastructure/storage"
)

func newService(t *testing.T, name string, opts *Options) *Service {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), "file:"+name+"?mode=memory")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	svc := New(db, opts)
	require.NoError(t, svc.EnsureSchema(context.Background()))
	return svc
}

func TestGetNextNumber_Strict(t *testing.T) {
	svc := newService(t, "numerator_strict", nil)
	ctx := context.Background()
	period := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	cfg := DefaultConfig("PRD")
	for _, want := range []string{"PRD-00001", "PRD-00002", "PRD-00003"} {
		got, err := svc.GetNextNumber(ctx, cfg, period)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	yearly := Config{Prefix: "INV", IncludeYear: true, PadWidth: 3, ResetPeriod: "year"}
	got, err := svc.GetNextNumber(ctx, yearly, period)
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-001", got)

	got, err = svc.GetNextNumber(ctx, yearly, period.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, "INV-2027-001", got)
}

func TestGetNextNumber_PerTenant(t *testing.T) {
	svc := newService(t, "numerator_tenant", nil)
	cfg := DefaultConfig("PRD")

	t1 := appctx.WithTenantID(context.Background(), "t1")
	t2 := appctx.WithTenantID(context.Background(), "t2")

	a, err := svc.Next(t1, cfg)
	require.NoError(t, err)
	b, err := svc.Next(t1, cfg)
	require.NoError(t, err)
	c, err := svc.Next(t2, cfg)
	require.NoError(t, err)

	assert.Equal(t, "PRD-00001", a)
	assert.Equal(t, "PRD-00002", b)
	assert.Equal(t, "PRD-00001", c)
}

func TestGetNextNumber_CachedReservesRanges(t *testing.T) {
	svc := newService(t, "numerator_cached", &Options{Strategy: StrategyCached, RangeSize: 10})
	ctx := context.Background()
	cfg := DefaultConfig("ORD")

	for i := int64(1); i <= 12; i++ {
		got, err := svc.Next(ctx, cfg)
		require.NoError(t, err)
		assert.Equal(t, i, ParseNumber(got))
	}

	// Two ranges were reserved; a fresh service continues after them.
	other := New(svc.tx.DB(), &Options{Strategy: StrategyCached, RangeSize: 10})
	got, err := other.Next(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, "ORD-00021", got)
}

func TestSetNextNumber(t *testing.T) {
	svc := newService(t, "numerator_set", &Options{Strategy: StrategyCached, RangeSize: 5})
	ctx := context.Background()
	cfg := DefaultConfig("PRD")
	now := time.Now()

	_, err := svc.GetNextNumber(ctx, cfg, now)
	require.NoError(t, err)

	require.NoError(t, svc.SetNextNumber(ctx, cfg, now, 100))
	got, err := svc.GetNextNumber(ctx, cfg, now)
	require.NoError(t, err)
	assert.Equal(t, "PRD-00101", got)
}

func TestParseNumber(t *testing.T) {
	assert.Equal(t, int64(42), ParseNumber("PRD-00042"))
	assert.Equal(t, int64(7), ParseNumber("INV-2026-007"))
	assert.Equal(t, int64(-1), ParseNumber("PRD"))
	assert.Equal(t, int64(-1), ParseNumber("PRD-"))
	assert.Equal(t, int64(-1), ParseNumber("PRD-x1"))
}
