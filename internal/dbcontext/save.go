package dbcontext

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"persistkit/internal/ambient"
	"persistkit/internal/core/entity"
	"persistkit/internal/dberror"
	"persistkit/internal/infrastructure/storage"
	"persistkit/internal/mapping"
	"persistkit/internal/tracking"
	"persistkit/pkg/logger"
)

// SaveChanges writes every pending change in one transaction and returns the
// number of affected rows.
//
// Before the write, changes are detected, deletions of soft-deletable
// entities become flag updates and every before-save behavior runs with one
// shared UTC timestamp; cascade deletes are deferred meanwhile. A concurrency
// token mismatch fails with *RowVersioningError and a unique violation with
// *DuplicateKeyError. Other failures are returned as they are.
//
// An after-save failure is reported together with the committed row count:
// the rows are written and the entries accepted by then.
func (c *Context) SaveChanges(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "SaveChanges", trace.WithAttributes(
		attribute.String("dbcontext.name", c.def.Name()),
		attribute.String("dbcontext.id", c.id.String()),
	))
	defer span.End()

	n, err := c.saveChanges(ctx)
	span.SetAttributes(attribute.Int("dbcontext.rows", n))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return n, err
	}
	return n, nil
}

func (c *Context) saveChanges(ctx context.Context) (int, error) {
	c.saveState = nil
	if err := c.tracker.DetectChanges(); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	if err := c.beforeSave(ctx, now); err != nil {
		return 0, err
	}
	c.tracker.CascadeChanges()

	entries := c.tracker.EntriesIn(tracking.Added, tracking.Modified, tracking.Deleted)
	rows := 0
	if len(entries) > 0 {
		logger.Debug(ctx, "saving changes", "context", c.def.Name(), "entries", len(entries))
		n, err := c.writer.Save(ctx, entries)
		if err != nil {
			return 0, c.translateSaveError(ctx, err)
		}
		rows = n
		for _, e := range entries {
			e.AcceptChanges()
		}
	}

	if err := c.afterSave(ctx); err != nil {
		return rows, err
	}
	return rows, nil
}

func (c *Context) beforeSave(ctx context.Context, now time.Time) error {
	defer c.tracker.DeferCascades().Restore()

	if err := c.applySoftDeletes(ctx, now); err != nil {
		return err
	}
	for _, b := range c.def.behaviors {
		bs, ok := b.(BeforeSaveBehavior)
		if !ok {
			continue
		}
		if err := bs.OnBeforeSaveChanges(ctx, c, now); err != nil {
			return fmt.Errorf("%s: %w", b.Name(), err)
		}
	}
	return nil
}

func (c *Context) afterSave(ctx context.Context) error {
	defer c.tracker.DeferCascades().Restore()

	for _, b := range c.def.behaviors {
		as, ok := b.(AfterSaveBehavior)
		if !ok {
			continue
		}
		if err := as.OnAfterSaveChanges(ctx, c); err != nil {
			return fmt.Errorf("%s: %w", b.Name(), err)
		}
	}
	return nil
}

// applySoftDeletes turns Deleted soft-deletable entries into flag updates and
// brings back the dependents their removal cascaded to.
func (c *Context) applySoftDeletes(ctx context.Context, now time.Time) error {
	var cfg *ambient.SoftDeleteConfig
	for _, e := range c.tracker.EntriesIn(tracking.Deleted) {
		if !e.EntityType().Has(mapping.CapSoftDelete) || e.CascadedFrom() != nil {
			continue
		}
		if cfg == nil {
			var err error
			if cfg, err = Provider[*ambient.SoftDeleteConfig](c.ExecutionContext(), ambient.SoftDeleteConfigKey); err != nil {
				return err
			}
		}
		if !cfg.IsEnabled() {
			continue
		}

		sd, ok := e.Entity().(entity.SoftDeletable)
		if !ok {
			continue
		}
		del := sd.SoftDeletion()
		if err := del.Flag.Set(true); err != nil {
			return err
		}
		if err := del.At.Set(now); err != nil {
			return err
		}
		if user, ok := c.CurrentUserID(ctx); ok {
			if err := del.By.Set(user); err != nil {
				return fmt.Errorf("stamp deleter of %s: %w", e.EntityType().Name(), err)
			}
		}
		e.SetState(tracking.Modified)
		c.tracker.RestoreCascaded(e)
	}
	return nil
}

func (c *Context) translateSaveError(ctx context.Context, err error) error {
	var ce *storage.ConcurrencyError
	if errors.As(err, &ce) {
		logger.Warn(ctx, "row versioning conflict", "context", c.def.Name(), "entity", ce.Entity, "key", ce.Key)
		return &RowVersioningError{Message: ce.Error(), Err: err}
	}

	info := c.def.chain.Classify(err)
	if info.Kind == dberror.DuplicateKey {
		logger.Warn(ctx, "duplicate key", "context", c.def.Name(), "provider", info.Provider, "constraint", info.Constraint)
		return &DuplicateKeyError{Info: info}
	}
	if info.Kind != dberror.Unknown {
		logger.Warn(ctx, "save failed", "context", c.def.Name(), "kind", info.Kind.String(), "provider", info.Provider)
	}
	return err
}
