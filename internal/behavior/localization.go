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

// Localization restricts Localizable entities to the current locale while the
// filter is on.
type Localization struct{}

func (Localization) Name() string { return "localization" }

func (Localization) OnRegistering(reg *di.Registry) {
	reg.TryAdd(ambient.LocalizationConfigKey, di.Scoped, func(di.Resolver) (any, error) {
		return ambient.NewLocalizationConfig(), nil
	})
}

func (Localization) OnExecutionContextCreating(r di.Resolver) map[string]any {
	return contribute(r, ambient.LocalizationConfigKey, ambient.CurrentLocaleProviderKey)
}

func (Localization) OnModelCreating(_ *mapping.ModelBuilder, _ *dbcontext.Definition, et *mapping.EntityType) {
	sample, ok := et.New().(entity.Localizable)
	if !ok {
		return
	}
	f := sample.LocaleKey()
	et.Property(f.Column).IsRequired()
	et.UseKind(slotLocale, f.Kind)
	et.AddCapability(mapping.CapLocale)

	col := f.Column
	et.HasQueryFilter(mapping.QueryFilter{
		Name: "localization",
		Predicate: func(ctx context.Context, env mapping.FilterEnv) (squirrel.Sqlizer, error) {
			cfg, err := resolve[*ambient.LocalizationConfig](env, ambient.LocalizationConfigKey)
			if err != nil {
				return nil, err
			}
			var current any
			if cfg.IsQueryFilterEnabled() {
				p, err := resolve[ambient.CurrentLocaleProvider](env, ambient.CurrentLocaleProviderKey)
				if err != nil {
					return nil, err
				}
				current, _ = p.CurrentLocaleID(ctx)
			}
			return currentValueFilter(col, current, cfg.IsQueryFilterEnabled()), nil
		},
	})
}
