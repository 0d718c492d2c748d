package behavior

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"persistkit/internal/ambient"
	"persistkit/internal/core/apperror"
	"persistkit/internal/core/di"
	"persistkit/internal/core/entity"
	"persistkit/internal/dbcontext"
	"persistkit/internal/mapping"
	"persistkit/internal/tracking"
)

// Tenancy scopes TenantScopable entities to the current tenant: queries see
// only its rows while the filter is on and new entities are assigned to it.
type Tenancy struct{}

func (Tenancy) Name() string { return "tenancy" }

func (Tenancy) OnRegistering(reg *di.Registry) {
	reg.TryAdd(ambient.MultiTenancyConfigKey, di.Scoped, func(di.Resolver) (any, error) {
		return ambient.NewMultiTenancyConfig(), nil
	})
}

func (Tenancy) OnExecutionContextCreating(r di.Resolver) map[string]any {
	return contribute(r, ambient.MultiTenancyConfigKey, ambient.CurrentTenantProviderKey)
}

func (Tenancy) OnModelCreating(_ *mapping.ModelBuilder, _ *dbcontext.Definition, et *mapping.EntityType) {
	sample, ok := et.New().(entity.TenantScopable)
	if !ok {
		return
	}
	f := sample.TenantKey()
	et.Property(f.Column).IsRequired()
	et.UseKind(slotTenant, f.Kind)
	et.AddCapability(mapping.CapTenant)

	col := f.Column
	et.HasQueryFilter(mapping.QueryFilter{
		Name: "tenancy",
		Predicate: func(ctx context.Context, env mapping.FilterEnv) (squirrel.Sqlizer, error) {
			cfg, err := resolve[*ambient.MultiTenancyConfig](env, ambient.MultiTenancyConfigKey)
			if err != nil {
				return nil, err
			}
			var current any
			if cfg.IsQueryFilterEnabled() {
				p, err := resolve[ambient.CurrentTenantProvider](env, ambient.CurrentTenantProviderKey)
				if err != nil {
					return nil, err
				}
				current, _ = p.CurrentTenantID(ctx)
			}
			return currentValueFilter(col, current, cfg.IsQueryFilterEnabled()), nil
		},
	})
}

func (Tenancy) OnBeforeSaveChanges(ctx context.Context, c *dbcontext.Context, _ time.Time) error {
	for _, e := range tracked(c, mapping.CapTenant, tracking.Added) {
		f := e.Entity().(entity.TenantScopable).TenantKey()
		if !f.IsZero() {
			continue
		}
		tenant, ok := c.CurrentTenantID(ctx)
		if !ok {
			return apperror.NewInvalidOperation(fmt.Sprintf("no current tenant to assign to new %s", e.EntityType().Name()))
		}
		if err := f.Set(tenant); err != nil {
			return fmt.Errorf("assign tenant of %s: %w", e.EntityType().Name(), err)
		}
	}
	return nil
}

// currentValueFilter matches rows whose col equals current, or every row when
// the filter is off. A missing current value matches no row.
func currentValueFilter(col string, current any, enabled bool) squirrel.Sqlizer {
	return squirrel.Or{
		squirrel.Eq{col: current},
		squirrel.Expr("? = 0", flag(enabled)),
	}
}
