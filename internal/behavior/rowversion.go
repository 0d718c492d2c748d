package behavior

import (
	"context"
	"time"

	"persistkit/internal/core/entity"
	"persistkit/internal/dbcontext"
	"persistkit/internal/mapping"
	"persistkit/internal/tracking"
)

// RowVersion marks the token column as the concurrency token. Before save the
// token the caller holds becomes the value the store is checked against, so a
// stale token fails the write instead of being overwritten.
type RowVersion struct{}

func (RowVersion) Name() string { return "row-version" }

func (RowVersion) OnModelCreating(_ *mapping.ModelBuilder, _ *dbcontext.Definition, et *mapping.EntityType) {
	sample, ok := et.New().(entity.RowVersionable)
	if !ok {
		return
	}
	et.Property(sample.RowVersionToken().Column).IsConcurrencyToken()
	et.AddCapability(mapping.CapRowVersion)
}

func (RowVersion) OnBeforeSaveChanges(_ context.Context, c *dbcontext.Context, _ time.Time) error {
	for _, e := range tracked(c, mapping.CapRowVersion, tracking.Modified, tracking.Deleted) {
		tok := e.EntityType().ConcurrencyToken()
		e.SetOriginalValue(tok, e.CurrentValue(tok))
	}
	return nil
}
