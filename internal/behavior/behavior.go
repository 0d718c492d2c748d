// Package behavior holds the built-in behavior units: one per entity
// capability, plus the audit trail and rule units that hosts can append.
package behavior

import (
	"fmt"

	"persistkit/internal/core/apperror"
	"persistkit/internal/core/di"
	"persistkit/internal/dbcontext"
	"persistkit/internal/mapping"
	"persistkit/internal/tracking"
)

// Default returns the built-in units in registration order.
func Default() []dbcontext.Behavior {
	return []dbcontext.Behavior{
		Identity{},
		Translatable{},
		Creation{},
		Modification{},
		SoftDelete{},
		RowVersion{},
		Tenancy{},
		Localization{},
		TranslatedProperties{},
	}
}

// Value slots bound with EntityType.UseKind.
const (
	slotKey    = "key"
	slotUser   = "user"
	slotTenant = "tenant"
	slotLocale = "locale"
)

// tracked returns the entries of entity types with capability in one of states.
func tracked(c *dbcontext.Context, capability mapping.Capability, states ...tracking.EntityState) []*tracking.Entry {
	var out []*tracking.Entry
	for _, e := range c.ChangeTracker().EntriesIn(states...) {
		if e.EntityType().Has(capability) {
			out = append(out, e)
		}
	}
	return out
}

// contribute copies the resolvable providers among keys into a new map.
func contribute(r di.Resolver, keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	if r == nil {
		return out
	}
	for _, k := range keys {
		if v, ok := r.TryResolve(k); ok {
			out[k] = v
		}
	}
	return out
}

// resolve reads a typed provider while a query filter is evaluated.
func resolve[T any](env mapping.FilterEnv, key string) (T, error) {
	var zero T
	v, err := env.Resolve(key)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, apperror.NewInvalidOperation(fmt.Sprintf("provider %s has type %T, want %T", key, v, zero))
	}
	return typed, nil
}

// flag renders a toggle as an integer parameter every dialect compares with 1.
func flag(on bool) int {
	if on {
		return 1
	}
	return 0
}
