package dbcontext

import (
	"context"
	"time"

	"persistkit/internal/core/di"
	"persistkit/internal/infrastructure/storage"
	"persistkit/internal/mapping"
)

// Behavior is a behavior unit. Units are stateless across scopes and take
// part in the phases whose interfaces they implement.
type Behavior interface {
	Name() string
}

// RegisteringBehavior registers default providers at startup. Implementations
// use try-add semantics so host registrations win.
type RegisteringBehavior interface {
	OnRegistering(reg *di.Registry)
}

// ContextContributor contributes providers to the execution context of a scope.
// Providers that cannot be resolved are left out.
type ContextContributor interface {
	OnExecutionContextCreating(r di.Resolver) map[string]any
}

// ModelBehavior shapes the mapping of entity types. It must skip types that
// do not declare its capability.
type ModelBehavior interface {
	OnModelCreating(b *mapping.ModelBuilder, def *Definition, et *mapping.EntityType)
}

// BeforeSaveBehavior mutates tracked entities before they are written.
// now is shared by every unit of one save.
type BeforeSaveBehavior interface {
	OnBeforeSaveChanges(ctx context.Context, c *Context, now time.Time) error
}

// AfterSaveBehavior runs after a successful save.
type AfterSaveBehavior interface {
	OnAfterSaveChanges(ctx context.Context, c *Context) error
}

// SchemaBehavior owns tables outside the entity model.
type SchemaBehavior interface {
	Schema(d storage.Dialect) []string
}
