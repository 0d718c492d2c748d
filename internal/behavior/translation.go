package behavior

import (
	"fmt"
	"sort"

	"persistkit/internal/core/entity"
	"persistkit/internal/dbcontext"
	"persistkit/internal/mapping"
)

// TranslationsNavigation is the navigation name of translation records.
const TranslationsNavigation = "Translations"

// OwnerColumn references the owner row in translated-property tables.
const OwnerColumn = "owner_id"

// Translatable maps the translation records of Translatable entities: their
// key is (parent, locale) and they are deleted with their owner.
type Translatable struct{}

func (Translatable) Name() string { return "translatable" }

func (Translatable) OnModelCreating(b *mapping.ModelBuilder, _ *dbcontext.Definition, et *mapping.EntityType) {
	sample, ok := et.New().(entity.Translatable)
	if !ok {
		return
	}
	rt := b.EntityFor(sample.Translations().RecordType())
	rec, ok := rt.New().(entity.Translation)
	if !ok {
		b.Fail(fmt.Errorf("behavior: translation record %s of %s does not implement entity.Translation", rt.Name(), et.Name()))
		return
	}
	owner := rec.TranslationOwner()
	if kinds := et.KeyKinds(); len(kinds) == 1 && kinds[0] != owner.Kind {
		b.Fail(fmt.Errorf("behavior: %s is keyed by %s but %s references it with %s", et.Name(), kinds[0], rt.Name(), owner.Kind))
		return
	}

	rt.HasKey(mapping.KeySupplied, func(e any) []entity.Field {
		r := e.(entity.Translation)
		return []entity.Field{r.TranslationOwner(), r.TranslationLocale()}
	})
	rt.UseKind(slotLocale, rec.TranslationLocale().Kind)
	rt.AddCapability(mapping.CapTranslation)

	et.HasMany(&mapping.Navigation{
		Name:          TranslationsNavigation,
		Target:        rt,
		ForeignKey:    owner.Column,
		CascadeDelete: true,
		Collection: func(o any) entity.TranslationCollection {
			return o.(entity.Translatable).Translations()
		},
	})
	et.AddCapability(mapping.CapTranslatable)
}

// TranslatedProperties stores every translated property in its own
// "{Entity}_{Property}Translations" table of (owner, locale, text) rows.
type TranslatedProperties struct{}

func (TranslatedProperties) Name() string { return "translated-properties" }

func (TranslatedProperties) OnModelCreating(_ *mapping.ModelBuilder, _ *dbcontext.Definition, et *mapping.EntityType) {
	sample, ok := et.New().(entity.HasTranslatedProperties)
	if !ok {
		return
	}
	props := sample.TranslatedProperties()
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		et.OwnsMany(&mapping.OwnedCollection{
			Property:     name,
			Table:        et.Name() + "_" + name + "Translations",
			OwnerColumn:  OwnerColumn,
			LocaleColumn: entity.ColumnLocaleID,
			TextColumn:   entity.ColumnTranslation,
			LocaleKind:   props[name].LocaleKind(),
			Value: func(o any) entity.TranslatedValue {
				return o.(entity.HasTranslatedProperties).TranslatedProperties()[name]
			},
		})
	}
	et.AddCapability(mapping.CapTranslatedProperties)
}
