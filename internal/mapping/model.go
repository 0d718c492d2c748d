// Package mapping holds the relational model of a persistence context:
// entity types, their columns, keys, query filters and relationships.
package mapping

import (
	"errors"
	"fmt"
	"reflect"
)

// EntityOption customises an entity type at registration.
type EntityOption func(*EntityType)

// WithTable overrides the default table name.
func WithTable(table string) EntityOption {
	return func(et *EntityType) { et.table = table }
}

// ModelBuilder collects entity types and their configuration.
// Configuration errors are accumulated and reported by Build.
type ModelBuilder struct {
	name     string
	entities []*EntityType
	byType   map[reflect.Type]*EntityType
	errs     []error
}

// NewModelBuilder creates a builder for the model of one persistence context.
func NewModelBuilder(name string) *ModelBuilder {
	return &ModelBuilder{
		name:   name,
		byType: make(map[reflect.Type]*EntityType),
	}
}

// Entity registers T (a struct type) or returns its existing entity type.
func Entity[T any](b *ModelBuilder, opts ...EntityOption) *EntityType {
	return b.EntityFor(reflect.TypeFor[T](), opts...)
}

// EntityFor registers the struct type t or returns its existing entity type.
func (b *ModelBuilder) EntityFor(t reflect.Type, opts ...EntityOption) *EntityType {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	et, ok := b.byType[t]
	if !ok {
		if t.Kind() != reflect.Struct {
			b.errs = append(b.errs, fmt.Errorf("mapping: %s is not a struct type", t))
		}
		et = newEntityType(b, t)
		b.byType[t] = et
		b.entities = append(b.entities, et)
	}
	for _, opt := range opts {
		opt(et)
	}
	return et
}

// Find returns the entity type registered for t.
func (b *ModelBuilder) Find(t reflect.Type) (*EntityType, bool) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	et, ok := b.byType[t]
	return et, ok
}

// Ignore removes t from the model.
func (b *ModelBuilder) Ignore(t reflect.Type) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if _, ok := b.byType[t]; !ok {
		return
	}
	delete(b.byType, t)
	for i, et := range b.entities {
		if et.goType == t {
			b.entities = append(b.entities[:i], b.entities[i+1:]...)
			return
		}
	}
}

// EntityTypes returns the registered entity types in registration order.
// Types registered while iterating are appended at the end.
func (b *ModelBuilder) EntityTypes() []*EntityType { return b.entities }

// Fail records a configuration error.
func (b *ModelBuilder) Fail(err error) {
	b.errs = append(b.errs, err)
}

// Build validates the configuration and freezes it into a Model.
func (b *ModelBuilder) Build() (*Model, error) {
	for _, et := range b.entities {
		if len(et.key) == 0 {
			b.errs = append(b.errs, fmt.Errorf("mapping: %s has no key", et.name))
		}
	}
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("build model %s: %w", b.name, errors.Join(b.errs...))
	}

	m := &Model{
		name:     b.name,
		entities: make([]*EntityType, len(b.entities)),
		byType:   make(map[reflect.Type]*EntityType, len(b.entities)),
	}
	copy(m.entities, b.entities)
	for _, et := range m.entities {
		et.builder = nil
		m.byType[et.goType] = et
	}
	return m, nil
}

// Model is the frozen mapping of one persistence context.
type Model struct {
	name     string
	entities []*EntityType
	byType   map[reflect.Type]*EntityType
}

func (m *Model) Name() string               { return m.name }
func (m *Model) EntityTypes() []*EntityType { return m.entities }

// FindEntityType returns the entity type of the struct type t (or *t).
func (m *Model) FindEntityType(t reflect.Type) (*EntityType, bool) {
	if t == nil {
		return nil, false
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	et, ok := m.byType[t]
	return et, ok
}

// EntityTypeOf returns the entity type of instance e.
func (m *Model) EntityTypeOf(e any) (*EntityType, bool) {
	return m.FindEntityType(reflect.TypeOf(e))
}

// GoTypes lists the struct types the model maps.
func (m *Model) GoTypes() []reflect.Type {
	out := make([]reflect.Type, len(m.entities))
	for i, et := range m.entities {
		out[i] = et.goType
	}
	return out
}
