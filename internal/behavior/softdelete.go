package behavior

import (
	"context"

	"github.com/Masterminds/squirrel"

	"persistkit/internal/ambient"
	"persistkit/internal/core/di"
	"persistkit/internal/core/entity"
	"persistkit/internal/dbcontext"
	"persistkit/internal/mapping"
)

// SoftDelete maps the deletion columns and hides flagged rows while the scope's
// query filter is on. Turning removals into flag updates is done by the save
// pipeline.
type SoftDelete struct{}

func (SoftDelete) Name() string { return "soft-delete" }

func (SoftDelete) OnRegistering(reg *di.Registry) {
	reg.TryAdd(ambient.SoftDeleteConfigKey, di.Scoped, func(di.Resolver) (any, error) {
		return ambient.NewSoftDeleteConfig(), nil
	})
}

func (SoftDelete) OnExecutionContextCreating(r di.Resolver) map[string]any {
	return contribute(r, ambient.SoftDeleteConfigKey, ambient.CurrentUserProviderKey)
}

func (SoftDelete) OnModelCreating(_ *mapping.ModelBuilder, _ *dbcontext.Definition, et *mapping.EntityType) {
	sample, ok := et.New().(entity.SoftDeletable)
	if !ok {
		return
	}
	d := sample.SoftDeletion()
	et.Property(d.Flag.Column).IsRequired()
	et.Property(d.At.Column).IsOptional()
	et.Property(d.By.Column).IsOptional()
	et.UseKind(slotUser, d.By.Kind)
	et.AddCapability(mapping.CapSoftDelete)

	col := d.Flag.Column
	et.HasQueryFilter(mapping.QueryFilter{
		Name: "soft-delete",
		// NOT is_deleted OR the filter is off.
		Predicate: func(_ context.Context, env mapping.FilterEnv) (squirrel.Sqlizer, error) {
			cfg, err := resolve[*ambient.SoftDeleteConfig](env, ambient.SoftDeleteConfigKey)
			if err != nil {
				return nil, err
			}
			return squirrel.Or{
				squirrel.Eq{col: false},
				squirrel.Expr("? = 0", flag(cfg.IsQueryFilterEnabled())),
			}, nil
		},
	})
}
