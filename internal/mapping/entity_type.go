package mapping

import (
	"context"
	"fmt"
	"reflect"

	"github.com/Masterminds/squirrel"

	"persistkit/internal/core/entity"
)

// Capability is a bitset of the capabilities detected on an entity type.
type Capability uint16

const (
	CapIdentity Capability = 1 << iota
	CapCreation
	CapModification
	CapSoftDelete
	CapRowVersion
	CapTenant
	CapLocale
	CapTranslatable
	CapTranslation
	CapTranslatedProperties
)

// KeyGeneration tells the writer who provides key values of added entities.
type KeyGeneration int

const (
	// KeySupplied keys must be set by the caller.
	KeySupplied KeyGeneration = iota
	// KeyGeneratedByStore keys left at zero are produced by the database.
	KeyGeneratedByStore
	// KeyGeneratedOnAdd keys left at zero are produced client-side before insert.
	KeyGeneratedOnAdd
)

// KeyAccessor returns the key fields of an entity instance, in key order.
type KeyAccessor func(e any) []entity.Field

// FilterEnv resolves scope providers while a query filter is evaluated.
type FilterEnv interface {
	Resolve(key string) (any, error)
}

// FilterFunc builds the predicate of a query filter for the current scope.
// It runs on every query, so toggles flipped after model build are honoured.
type FilterFunc func(ctx context.Context, env FilterEnv) (squirrel.Sqlizer, error)

// QueryFilter is a named predicate appended to every query of an entity type.
type QueryFilter struct {
	Name      string
	Predicate FilterFunc
}

// Navigation is a one-to-many relationship from an owner to dependent rows.
type Navigation struct {
	Name          string
	Target        *EntityType
	ForeignKey    string
	CascadeDelete bool
	// Collection returns the in-memory collection of an owner instance.
	Collection func(owner any) entity.TranslationCollection
}

// OwnedCollection maps a translated property to its own (owner, locale, text) table.
type OwnedCollection struct {
	Property     string
	Table        string
	OwnerColumn  string
	LocaleColumn string
	TextColumn   string
	LocaleKind   entity.ValueKind
	// Value returns the translated property container of an owner instance.
	Value func(owner any) entity.TranslatedValue
}

// EntityType is the mapping metadata of one Go struct type.
type EntityType struct {
	name   string
	table  string
	goType reflect.Type

	columns  []Column
	colIndex map[string]int

	key         []string
	keyKinds    []entity.ValueKind
	keyAccessor KeyAccessor
	keyGen      KeyGeneration

	token   string
	caps    Capability
	filters []QueryFilter
	navs    []*Navigation
	owned   []*OwnedCollection
	kinds   map[string]entity.ValueKind

	builder *ModelBuilder
}

func newEntityType(b *ModelBuilder, t reflect.Type) *EntityType {
	meta := columnsOf(t)
	cols := make([]Column, len(meta.columns))
	copy(cols, meta.columns)
	idx := make(map[string]int, len(meta.index))
	for k, v := range meta.index {
		idx[k] = v
	}
	return &EntityType{
		name:     t.Name(),
		table:    DefaultTableName(t.Name()),
		goType:   t,
		columns:  cols,
		colIndex: idx,
		kinds:    make(map[string]entity.ValueKind),
		builder:  b,
	}
}

func (et *EntityType) Name() string         { return et.name }
func (et *EntityType) Table() string        { return et.table }
func (et *EntityType) GoType() reflect.Type { return et.goType }

// New allocates a zero instance (*T) of the entity type.
func (et *EntityType) New() any {
	return reflect.New(et.goType).Interface()
}

// Owns reports whether e is an instance (*T) of this entity type.
func (et *EntityType) Owns(e any) bool {
	t := reflect.TypeOf(e)
	return t != nil && t.Kind() == reflect.Ptr && t.Elem() == et.goType
}

// Columns returns the mapped columns in declaration order.
func (et *EntityType) Columns() []Column { return et.columns }

// ColumnNames returns the mapped column names in declaration order.
func (et *EntityType) ColumnNames() []string {
	names := make([]string, len(et.columns))
	for i, c := range et.columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (et *EntityType) Column(name string) (Column, bool) {
	i, ok := et.colIndex[name]
	if !ok {
		return Column{}, false
	}
	return et.columns[i], true
}

// TextColumns returns the string-typed columns, used by free-text search.
func (et *EntityType) TextColumns() []string {
	var out []string
	for _, c := range et.columns {
		if c.IsText() {
			out = append(out, c.Name)
		}
	}
	return out
}

// Property starts configuring a mapped column.
func (et *EntityType) Property(column string) *PropertyBuilder {
	i, ok := et.colIndex[column]
	if !ok {
		et.fail(fmt.Errorf("mapping: %s has no column %q", et.name, column))
		return &PropertyBuilder{}
	}
	return &PropertyBuilder{et: et, idx: i}
}

// HasKey declares the key. Column names and kinds are read from a sample instance.
func (et *EntityType) HasKey(gen KeyGeneration, accessor KeyAccessor) {
	fields := accessor(et.New())
	et.key = et.key[:0]
	et.keyKinds = et.keyKinds[:0]
	for _, f := range fields {
		if _, ok := et.colIndex[f.Column]; !ok {
			et.fail(fmt.Errorf("mapping: %s key column %q is not mapped", et.name, f.Column))
			continue
		}
		et.key = append(et.key, f.Column)
		et.keyKinds = append(et.keyKinds, f.Kind)
		et.columns[et.colIndex[f.Column]].Required = true
	}
	et.keyAccessor = accessor
	et.keyGen = gen
}

func (et *EntityType) Key() []string                  { return et.key }
func (et *EntityType) KeyKinds() []entity.ValueKind   { return et.keyKinds }
func (et *EntityType) KeyGeneration() KeyGeneration   { return et.keyGen }
func (et *EntityType) KeyFields(e any) []entity.Field { return et.keyAccessor(e) }

// KeyValues returns the current key values of e.
func (et *EntityType) KeyValues(e any) []any {
	fields := et.keyAccessor(e)
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = f.Get()
	}
	return out
}

// ConcurrencyToken returns the token column, "" when the type has none.
func (et *EntityType) ConcurrencyToken() string { return et.token }

// AddCapability marks a capability as applied.
func (et *EntityType) AddCapability(c Capability) { et.caps |= c }

// Has reports whether the capability was applied.
func (et *EntityType) Has(c Capability) bool { return et.caps&c != 0 }

// UseKind binds a capability value slot ("user", "key", ...) to a kind.
// Binding the same slot to two different kinds is a configuration error.
func (et *EntityType) UseKind(slot string, kind entity.ValueKind) {
	if prev, ok := et.kinds[slot]; ok && prev != kind {
		et.fail(fmt.Errorf("mapping: %s uses %s for %q but %s was already declared", et.name, kind, slot, prev))
		return
	}
	et.kinds[slot] = kind
}

// KindOf returns the kind bound to slot.
func (et *EntityType) KindOf(slot string) (entity.ValueKind, bool) {
	k, ok := et.kinds[slot]
	return k, ok
}

// HasQueryFilter appends a filter. Filters of one type are combined with AND.
func (et *EntityType) HasQueryFilter(f QueryFilter) {
	et.filters = append(et.filters, f)
}

func (et *EntityType) QueryFilters() []QueryFilter { return et.filters }

// FilterPredicate evaluates every filter for the current scope and ANDs them.
// It returns nil when the type has no filters.
func (et *EntityType) FilterPredicate(ctx context.Context, env FilterEnv) (squirrel.Sqlizer, error) {
	if len(et.filters) == 0 {
		return nil, nil
	}
	and := make(squirrel.And, 0, len(et.filters))
	for _, f := range et.filters {
		p, err := f.Predicate(ctx, env)
		if err != nil {
			return nil, fmt.Errorf("query filter %s on %s: %w", f.Name, et.name, err)
		}
		if p != nil {
			and = append(and, p)
		}
	}
	if len(and) == 0 {
		return nil, nil
	}
	return and, nil
}

// HasMany adds a navigation to dependent rows.
func (et *EntityType) HasMany(nav *Navigation) {
	if nav.Target == nil {
		et.fail(fmt.Errorf("mapping: navigation %s.%s has no target", et.name, nav.Name))
		return
	}
	if _, ok := nav.Target.colIndex[nav.ForeignKey]; !ok {
		et.fail(fmt.Errorf("mapping: %s has no foreign key column %q", nav.Target.name, nav.ForeignKey))
		return
	}
	et.navs = append(et.navs, nav)
}

func (et *EntityType) Navigations() []*Navigation { return et.navs }

// Navigation looks up a navigation by name.
func (et *EntityType) Navigation(name string) (*Navigation, bool) {
	for _, n := range et.navs {
		if n.Name == name {
			return n, true
		}
	}
	return nil, false
}

// OwnsMany adds an owned translated-property collection.
func (et *EntityType) OwnsMany(o *OwnedCollection) {
	et.owned = append(et.owned, o)
}

func (et *EntityType) OwnedCollections() []*OwnedCollection { return et.owned }

func (et *EntityType) fail(err error) {
	if et.builder != nil {
		et.builder.errs = append(et.builder.errs, err)
	}
}

// PropertyBuilder configures one column.
type PropertyBuilder struct {
	et  *EntityType
	idx int
}

// IsRequired marks the column NOT NULL.
func (p *PropertyBuilder) IsRequired() *PropertyBuilder {
	if p.et != nil {
		p.et.columns[p.idx].Required = true
	}
	return p
}

// IsOptional marks the column nullable.
func (p *PropertyBuilder) IsOptional() *PropertyBuilder {
	if p.et != nil {
		p.et.columns[p.idx].Required = false
	}
	return p
}

// IsConcurrencyToken marks the column as the optimistic concurrency token.
func (p *PropertyBuilder) IsConcurrencyToken() *PropertyBuilder {
	if p.et != nil {
		p.et.token = p.et.columns[p.idx].Name
	}
	return p
}
