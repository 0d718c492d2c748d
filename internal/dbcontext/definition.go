// Package dbcontext runs the behavior pipeline around a persistence context:
// model building, per-scope execution contexts, the save pipeline with typed
// failures, reset and queries.
package dbcontext

import (
	"fmt"
	"reflect"
	"sync"

	"persistkit/internal/core/entity"
	"persistkit/internal/dberror"
	"persistkit/internal/mapping"
)

// Definition is a persistence-context type: a named model configuration plus
// its ordered behavior units. The model is built once on first use.
type Definition struct {
	name      string
	configure func(b *mapping.ModelBuilder)
	behaviors []Behavior
	chain     *dberror.Chain

	once  sync.Once
	model *mapping.Model
	err   error
}

// DefinitionOption configures a Definition.
type DefinitionOption func(*Definition)

// WithBehaviors appends behavior units after the ones already present.
func WithBehaviors(behaviors ...Behavior) DefinitionOption {
	return func(d *Definition) {
		d.behaviors = append(d.behaviors, behaviors...)
	}
}

// WithErrorChain replaces the default classification chain.
func WithErrorChain(chain *dberror.Chain) DefinitionOption {
	return func(d *Definition) {
		d.chain = chain
	}
}

// NewDefinition creates a context type. configure registers the entity types.
func NewDefinition(name string, configure func(b *mapping.ModelBuilder), opts ...DefinitionOption) *Definition {
	d := &Definition{
		name:      name,
		configure: configure,
		chain:     dberror.DefaultChain(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Definition) Name() string               { return d.name }
func (d *Definition) ErrorChain() *dberror.Chain { return d.chain }

// Behaviors returns the units in registration order.
func (d *Definition) Behaviors() []Behavior {
	out := make([]Behavior, len(d.behaviors))
	copy(out, d.behaviors)
	return out
}

// Model builds the mapping on first call and returns the same result afterwards.
func (d *Definition) Model() (*mapping.Model, error) {
	d.once.Do(func() {
		d.model, d.err = d.buildModel()
	})
	return d.model, d.err
}

// EntityTypes lists the Go struct types of the built model.
func (d *Definition) EntityTypes() ([]reflect.Type, error) {
	m, err := d.Model()
	if err != nil {
		return nil, err
	}
	return m.GoTypes(), nil
}

// buildModel runs every model behavior for every entity type in registration
// order. Types registered by a behavior (translation records) are visited too.
func (d *Definition) buildModel() (*mapping.Model, error) {
	b := mapping.NewModelBuilder(d.name)
	if d.configure != nil {
		d.configure(b)
	}

	for _, et := range append([]*mapping.EntityType(nil), b.EntityTypes()...) {
		if entity.IsTranslatedContainer(et.New()) {
			b.Ignore(et.GoType())
		}
	}

	for i := 0; i < len(b.EntityTypes()); i++ {
		et := b.EntityTypes()[i]
		for _, bh := range d.behaviors {
			if mb, ok := bh.(ModelBehavior); ok {
				mb.OnModelCreating(b, d, et)
			}
		}
	}

	m, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("context %s: %w", d.name, err)
	}
	return m, nil
}
