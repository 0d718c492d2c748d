// Package di provides a small service registry with singleton, scoped and
// transient lifetimes.
//
// Services are keyed by name (conventionally the provider interface name).
// A Registry is populated at startup and frozen into a root Scope; request
// handling creates child scopes that cache their own scoped instances.
package di

import (
	"fmt"
	"sort"
	"sync"

	"persistkit/internal/core/apperror"
)

// Lifetime controls instance caching.
type Lifetime int

const (
	// Singleton instances are created once per root scope.
	Singleton Lifetime = iota
	// Scoped instances are created once per scope.
	Scoped
	// Transient instances are created on every resolution.
	Transient
)

func (l Lifetime) String() string {
	switch l {
	case Singleton:
		return "singleton"
	case Scoped:
		return "scoped"
	case Transient:
		return "transient"
	default:
		return fmt.Sprintf("lifetime(%d)", int(l))
	}
}

// Factory builds a service instance.
type Factory func(r Resolver) (any, error)

// Resolver resolves services by name.
type Resolver interface {
	// Resolve returns the service or an INVALID_OPERATION error when it is not registered.
	Resolve(name string) (any, error)
	// TryResolve returns false when the service is not registered.
	TryResolve(name string) (any, bool)
}

// Disposer is implemented by scoped or transient instances that need cleanup when their scope closes.
type Disposer interface {
	Dispose()
}

type descriptor struct {
	name     string
	lifetime Lifetime
	factory  Factory
}

// Registry collects service descriptors. It is not safe for concurrent registration.
type Registry struct {
	descriptors map[string]descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[string]descriptor)}
}

// Add registers a service, replacing any previous registration with the same name.
func (r *Registry) Add(name string, lifetime Lifetime, factory Factory) {
	r.descriptors[name] = descriptor{name: name, lifetime: lifetime, factory: factory}
}

// TryAdd registers a service only when name is not registered yet.
// It reports whether the registration happened.
func (r *Registry) TryAdd(name string, lifetime Lifetime, factory Factory) bool {
	if _, exists := r.descriptors[name]; exists {
		return false
	}
	r.Add(name, lifetime, factory)
	return true
}

// AddInstance registers an existing singleton instance.
func (r *Registry) AddInstance(name string, instance any) {
	r.Add(name, Singleton, func(Resolver) (any, error) { return instance, nil })
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.descriptors[name]
	return ok
}

// Names returns registered service names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.descriptors))
	for k := range r.descriptors {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Build freezes the registry into a root scope.
func (r *Registry) Build() *Scope {
	frozen := make(map[string]descriptor, len(r.descriptors))
	for k, v := range r.descriptors {
		frozen[k] = v
	}
	root := &Scope{descriptors: frozen, instances: make(map[string]any)}
	root.root = root
	return root
}

// Scope caches scoped instances; the root scope also caches singletons.
type Scope struct {
	descriptors map[string]descriptor
	root        *Scope
	parent      *Scope

	mu        sync.Mutex
	instances map[string]any
	disposers []Disposer
	closed    bool
}

// NewScope creates a child scope. Child scopes share singletons with the root
// but never share scoped instances with their parent.
func (s *Scope) NewScope() *Scope {
	return &Scope{
		descriptors: s.descriptors,
		root:        s.root,
		parent:      s,
		instances:   make(map[string]any),
	}
}

// Parent returns the enclosing scope or nil for the root.
func (s *Scope) Parent() *Scope { return s.parent }

// Resolve implements Resolver.
func (s *Scope) Resolve(name string) (any, error) {
	d, ok := s.descriptors[name]
	if !ok {
		return nil, apperror.NewInvalidOperation(fmt.Sprintf("service %s is not registered", name)).
			WithDetail("service", name)
	}

	switch d.lifetime {
	case Singleton:
		return s.root.cached(d, s.root)
	case Scoped:
		return s.cached(d, s)
	default:
		inst, err := d.factory(s)
		if err != nil {
			return nil, fmt.Errorf("create service %s: %w", name, err)
		}
		s.track(inst)
		return inst, nil
	}
}

// TryResolve implements Resolver.
func (s *Scope) TryResolve(name string) (any, bool) {
	if _, ok := s.descriptors[name]; !ok {
		return nil, false
	}
	inst, err := s.Resolve(name)
	if err != nil {
		return nil, false
	}
	return inst, true
}

// cached returns the instance cached in owner, creating it with resolver r on first use.
// The factory runs outside the lock so it may resolve other services of the same scope.
func (s *Scope) cached(d descriptor, r Resolver) (any, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, apperror.NewInvalidOperation("scope is closed")
	}
	if inst, ok := s.instances[d.name]; ok {
		s.mu.Unlock()
		return inst, nil
	}
	s.mu.Unlock()

	inst, err := d.factory(r)
	if err != nil {
		return nil, fmt.Errorf("create service %s: %w", d.name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.instances[d.name]; ok {
		if disp, ok := inst.(Disposer); ok {
			disp.Dispose()
		}
		return existing, nil
	}
	s.instances[d.name] = inst
	if disp, ok := inst.(Disposer); ok {
		s.disposers = append(s.disposers, disp)
	}
	return inst, nil
}

func (s *Scope) track(inst any) {
	disp, ok := inst.(Disposer)
	if !ok {
		return
	}
	s.mu.Lock()
	s.disposers = append(s.disposers, disp)
	s.mu.Unlock()
}

// Close disposes instances created by this scope in reverse creation order.
// Closing twice is a no-op.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	disposers := s.disposers
	s.disposers = nil
	s.instances = make(map[string]any)
	s.mu.Unlock()

	for i := len(disposers) - 1; i >= 0; i-- {
		disposers[i].Dispose()
	}
}

// Resolve resolves name and asserts its type.
func Resolve[T any](r Resolver, name string) (T, error) {
	var zero T
	inst, err := r.Resolve(name)
	if err != nil {
		return zero, err
	}
	typed, ok := inst.(T)
	if !ok {
		return zero, apperror.NewInvalidOperation(fmt.Sprintf("service %s has type %T, want %T", name, inst, zero))
	}
	return typed, nil
}

// MustResolve resolves name or panics.
// Use where a missing service is a programming error.
func MustResolve[T any](r Resolver, name string) T {
	v, err := Resolve[T](r, name)
	if err != nil {
		panic(err)
	}
	return v
}
