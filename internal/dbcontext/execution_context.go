package dbcontext

import (
	"fmt"
	"sort"

	"persistkit/internal/core/apperror"
	"persistkit/internal/core/di"
)

// ExecutionContext holds the providers of one scope, keyed by provider name.
// It is frozen once built.
type ExecutionContext struct {
	providers map[string]any
}

// NewExecutionContext asks every contributing behavior for its providers.
// On a key collision the first contribution wins.
func NewExecutionContext(r di.Resolver, behaviors []Behavior) *ExecutionContext {
	providers := make(map[string]any)
	for _, b := range behaviors {
		c, ok := b.(ContextContributor)
		if !ok {
			continue
		}
		for k, v := range c.OnExecutionContextCreating(r) {
			if _, exists := providers[k]; exists || v == nil {
				continue
			}
			providers[k] = v
		}
	}
	return &ExecutionContext{providers: providers}
}

// Resolve returns the provider registered under key. A missing provider is a
// configuration error.
func (x *ExecutionContext) Resolve(key string) (any, error) {
	if x != nil {
		if v, ok := x.providers[key]; ok {
			return v, nil
		}
	}
	return nil, apperror.NewInvalidOperation(fmt.Sprintf("provider %s is not available in the execution context", key)).
		WithDetail("provider", key)
}

// TryResolve returns false when key has no provider.
func (x *ExecutionContext) TryResolve(key string) (any, bool) {
	if x == nil {
		return nil, false
	}
	v, ok := x.providers[key]
	return v, ok
}

// Keys lists the provider names in sorted order.
func (x *ExecutionContext) Keys() []string {
	if x == nil {
		return nil
	}
	keys := make([]string, 0, len(x.providers))
	for k := range x.providers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Provider resolves key and asserts its type.
func Provider[T any](x *ExecutionContext, key string) (T, error) {
	var zero T
	v, err := x.Resolve(key)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, apperror.NewInvalidOperation(fmt.Sprintf("provider %s has type %T, want %T", key, v, zero))
	}
	return typed, nil
}

// TryProvider is Provider without the error for a missing key.
func TryProvider[T any](x *ExecutionContext, key string) (T, bool) {
	var zero T
	v, ok := x.TryResolve(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}
