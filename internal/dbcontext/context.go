package dbcontext

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"

	"persistkit/internal/ambient"
	"persistkit/internal/core/apperror"
	"persistkit/internal/core/di"
	"persistkit/internal/core/id"
	"persistkit/internal/infrastructure/storage"
	"persistkit/internal/mapping"
	"persistkit/internal/tracking"
	"persistkit/pkg/logger"
)

var tracer = otel.Tracer("persistkit/dbcontext")

// Context is one persistence-context instance. It belongs to a single scope
// and is not safe for concurrent use.
type Context struct {
	id      id.ID
	def     *Definition
	model   *mapping.Model
	db      *storage.DB
	tx      *storage.TxManager
	tracker *tracking.ChangeTracker
	writer  *storage.Writer
	reader  *storage.Reader

	resolver  di.Resolver
	exec      *ExecutionContext
	release   func(*Context)
	saveState map[any]any
}

// Option configures a Context.
type Option func(*Context)

// WithRelease sets the function Dispose hands the context to, typically a pool.
func WithRelease(fn func(*Context)) Option {
	return func(c *Context) { c.release = fn }
}

// New creates a context of def over db. The execution context is built from
// resolver right away; resolver may be nil when no providers are needed.
func New(def *Definition, db *storage.DB, resolver di.Resolver, opts ...Option) (*Context, error) {
	model, err := def.Model()
	if err != nil {
		return nil, err
	}
	tx := storage.NewTxManager(db)
	c := &Context{
		id:      id.New(),
		def:     def,
		model:   model,
		db:      db,
		tx:      tx,
		tracker: tracking.NewChangeTracker(model),
		writer:  storage.NewWriter(tx),
		reader:  storage.NewReader(tx),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Bind(resolver)
	return c, nil
}

func (c *Context) ID() id.ID                              { return c.id }
func (c *Context) Definition() *Definition                { return c.def }
func (c *Context) Model() *mapping.Model                  { return c.model }
func (c *Context) DB() *storage.DB                        { return c.db }
func (c *Context) TxManager() *storage.TxManager          { return c.tx }
func (c *Context) Reader() *storage.Reader                { return c.reader }
func (c *Context) ChangeTracker() *tracking.ChangeTracker { return c.tracker }

// ExecutionContext returns the providers of the current scope.
func (c *Context) ExecutionContext() *ExecutionContext {
	if c.exec == nil {
		c.exec = NewExecutionContext(c.resolver, c.def.behaviors)
	}
	return c.exec
}

// Bind attaches the context to a scope and builds its execution context.
func (c *Context) Bind(resolver di.Resolver) {
	c.resolver = resolver
	c.exec = NewExecutionContext(resolver, c.def.behaviors)
}

// ClearExecutionContext drops the providers of the previous scope.
func (c *Context) ClearExecutionContext() {
	c.resolver = nil
	c.exec = nil
}

// Dispose implements di.Disposer. Pooled contexts go back to their pool.
func (c *Context) Dispose() {
	if c.release != nil {
		c.release(c)
	}
}

// EnsureCreated creates the model tables and the tables of schema behaviors.
func (c *Context) EnsureCreated(ctx context.Context) error {
	if err := storage.EnsureCreated(ctx, c.db, c.model); err != nil {
		return err
	}
	for _, b := range c.def.behaviors {
		sb, ok := b.(SchemaBehavior)
		if !ok {
			continue
		}
		for _, stmt := range sb.Schema(c.db.Dialect) {
			if _, err := c.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("ensure schema of %s: %w", b.Name(), err)
			}
		}
	}
	return nil
}

// SetSaveState keeps a value between the before-save and after-save phases
// of the save in progress. Every save starts with an empty state.
func (c *Context) SetSaveState(key, v any) {
	if c.saveState == nil {
		c.saveState = make(map[any]any)
	}
	c.saveState[key] = v
}

// SaveState returns a value stored by SetSaveState.
func (c *Context) SaveState(key any) any {
	return c.saveState[key]
}

// EntityType returns the mapping of e's type.
func (c *Context) EntityType(e any) (*mapping.EntityType, error) {
	et, ok := c.model.EntityTypeOf(e)
	if !ok {
		return nil, apperror.NewInvalidOperation(fmt.Sprintf("type %T is not part of context %s", e, c.def.Name()))
	}
	return et, nil
}

// Entry returns the tracking entry of e.
func (c *Context) Entry(e any) (*tracking.Entry, error) {
	return c.tracker.Entry(e)
}

// Add tracks e as new.
func (c *Context) Add(e any) error {
	_, err := c.tracker.Add(e)
	return err
}

// Attach tracks e as unchanged.
func (c *Context) Attach(e any) error {
	_, err := c.tracker.Attach(e)
	return err
}

// Update tracks e as modified in every column.
func (c *Context) Update(e any) error {
	_, err := c.tracker.Update(e)
	return err
}

// Remove tracks e as deleted. Soft-deletable entities are flagged instead
// when the changes are saved.
func (c *Context) Remove(e any) error {
	_, err := c.tracker.Remove(e)
	return err
}

// CurrentUserID asks the scope's user provider, if any.
func (c *Context) CurrentUserID(ctx context.Context) (any, bool) {
	p, ok := TryProvider[ambient.CurrentUserProvider](c.ExecutionContext(), ambient.CurrentUserProviderKey)
	if !ok {
		return nil, false
	}
	return p.CurrentUserID(ctx)
}

// CurrentTenantID asks the scope's tenant provider, if any.
func (c *Context) CurrentTenantID(ctx context.Context) (any, bool) {
	p, ok := TryProvider[ambient.CurrentTenantProvider](c.ExecutionContext(), ambient.CurrentTenantProviderKey)
	if !ok {
		return nil, false
	}
	return p.CurrentTenantID(ctx)
}

// CurrentLocaleID asks the scope's locale provider, if any.
func (c *Context) CurrentLocaleID(ctx context.Context) (any, bool) {
	p, ok := TryProvider[ambient.CurrentLocaleProvider](c.ExecutionContext(), ambient.CurrentLocaleProviderKey)
	if !ok {
		return nil, false
	}
	return p.CurrentLocaleID(ctx)
}

// Reset brings the tracker back to its last saved state: modified entities
// are reverted, added ones detached and deleted ones reloaded from the store.
func (c *Context) Reset(ctx context.Context) error {
	defer c.tracker.DeferCascades().Restore()

	if err := c.tracker.DetectChanges(); err != nil {
		return err
	}
	for _, e := range c.tracker.Entries() {
		switch e.State() {
		case tracking.Modified:
			if err := e.Revert(); err != nil {
				return fmt.Errorf("revert %s: %w", e.EntityType().Name(), err)
			}
		case tracking.Added:
			e.SetState(tracking.Detached)
		case tracking.Deleted:
			if err := c.reload(ctx, e); err != nil {
				return err
			}
		}
	}
	logger.Debug(ctx, "context reset", "context", c.def.Name(), "context_id", c.id.String())
	return nil
}

func (c *Context) reload(ctx context.Context, e *tracking.Entry) error {
	et := e.EntityType()
	ent := e.Entity()
	sb := c.reader.SelectFrom(et).Where(KeyPredicate(et, et.KeyValues(ent)))
	rows, err := c.reader.Select(ctx, et, sb)
	if err != nil {
		return fmt.Errorf("reload %s: %w", et.Name(), err)
	}
	if len(rows) == 0 {
		e.SetState(tracking.Detached)
		return nil
	}

	stored := mapping.ColumnValues(rows[0])
	for _, col := range et.Columns() {
		if err := mapping.SetColumnValue(ent, col.Name, stored[col.Name]); err != nil {
			return fmt.Errorf("reload %s: %w", et.Name(), err)
		}
	}
	for _, o := range et.OwnedCollections() {
		if err := o.Value(ent).Load(o.Value(rows[0]).Entries()); err != nil {
			return fmt.Errorf("reload %s.%s: %w", et.Name(), o.Property, err)
		}
	}
	e.SetState(tracking.Unchanged)
	e.AcceptChanges()
	return nil
}
