package behavior

import (
	"context"
	"fmt"
	"time"

	"persistkit/internal/ambient"
	"persistkit/internal/core/di"
	"persistkit/internal/core/entity"
	"persistkit/internal/dbcontext"
	"persistkit/internal/mapping"
	"persistkit/internal/tracking"
)

// Creation stamps the creation time and creator of added entities.
type Creation struct{}

func (Creation) Name() string { return "creation" }

func (Creation) OnExecutionContextCreating(r di.Resolver) map[string]any {
	return contribute(r, ambient.CurrentUserProviderKey)
}

func (Creation) OnModelCreating(_ *mapping.ModelBuilder, _ *dbcontext.Definition, et *mapping.EntityType) {
	sample, ok := et.New().(entity.Creatable)
	if !ok {
		return
	}
	a := sample.CreationAudit()
	et.Property(a.At.Column).IsRequired()
	et.Property(a.By.Column).IsRequired()
	et.UseKind(slotUser, a.By.Kind)
	et.AddCapability(mapping.CapCreation)
}

func (Creation) OnBeforeSaveChanges(ctx context.Context, c *dbcontext.Context, now time.Time) error {
	for _, e := range tracked(c, mapping.CapCreation, tracking.Added) {
		a := e.Entity().(entity.Creatable).CreationAudit()
		if err := stamp(ctx, c, e, a, now); err != nil {
			return err
		}
	}
	return nil
}

// Modification stamps the modification time and modifier of updated entities.
type Modification struct{}

func (Modification) Name() string { return "modification" }

func (Modification) OnExecutionContextCreating(r di.Resolver) map[string]any {
	return contribute(r, ambient.CurrentUserProviderKey)
}

func (Modification) OnModelCreating(_ *mapping.ModelBuilder, _ *dbcontext.Definition, et *mapping.EntityType) {
	sample, ok := et.New().(entity.Modifiable)
	if !ok {
		return
	}
	a := sample.ModificationAudit()
	et.Property(a.At.Column).IsOptional()
	et.Property(a.By.Column).IsOptional()
	et.UseKind(slotUser, a.By.Kind)
	et.AddCapability(mapping.CapModification)
}

func (Modification) OnBeforeSaveChanges(ctx context.Context, c *dbcontext.Context, now time.Time) error {
	for _, e := range tracked(c, mapping.CapModification, tracking.Modified) {
		a := e.Entity().(entity.Modifiable).ModificationAudit()
		if err := stamp(ctx, c, e, a, now); err != nil {
			return err
		}
	}
	return nil
}

func stamp(ctx context.Context, c *dbcontext.Context, e *tracking.Entry, a entity.Audit, now time.Time) error {
	if err := a.At.Set(now); err != nil {
		return err
	}
	user, ok := c.CurrentUserID(ctx)
	if !ok {
		return nil
	}
	if err := a.By.Set(user); err != nil {
		return fmt.Errorf("stamp %s of %s: %w", a.By.Column, e.EntityType().Name(), err)
	}
	return nil
}
