package dbcontext

import (
	"fmt"
	"reflect"
	"sync"

	"persistkit/internal/core/apperror"
)

// TypeRegistry maps entity types to the context definition that owns them.
// It is built at startup and passed to whatever resolves repositories.
type TypeRegistry struct {
	mu     sync.RWMutex
	defs   []*Definition
	byType map[reflect.Type]*Definition
}

// NewTypeRegistry creates an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{byType: make(map[reflect.Type]*Definition)}
}

// Register builds the model of def and records every type it maps.
// A type already owned by another definition is an error.
func (r *TypeRegistry) Register(def *Definition) error {
	types, err := def.EntityTypes()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range types {
		if owner, ok := r.byType[t]; ok && owner != def {
			return apperror.NewInvalidOperation(fmt.Sprintf("%s is already mapped by context %s", t, owner.Name()))
		}
	}
	for _, t := range types {
		r.byType[t] = def
	}
	for _, d := range r.defs {
		if d == def {
			return nil
		}
	}
	r.defs = append(r.defs, def)
	return nil
}

// Definitions returns the registered definitions in registration order.
func (r *TypeRegistry) Definitions() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// DefinitionFor returns the definition mapping the struct type t (or *t).
func (r *TypeRegistry) DefinitionFor(t reflect.Type) (*Definition, bool) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byType[t]
	return def, ok
}

// DefinitionOf returns the definition mapping T.
func DefinitionOf[T any](r *TypeRegistry) (*Definition, error) {
	t := reflect.TypeFor[T]()
	def, ok := r.DefinitionFor(t)
	if !ok {
		return nil, apperror.NewInvalidOperation(fmt.Sprintf("%s is not mapped by any registered context", t))
	}
	return def, nil
}
