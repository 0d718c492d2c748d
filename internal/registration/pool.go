package registration

import (
	"context"
	"sync/atomic"

	"persistkit/internal/core/di"
	"persistkit/internal/dbcontext"
	"persistkit/internal/infrastructure/storage"
	"persistkit/pkg/logger"
)

// Pool keeps up to size idle contexts of one definition. A rented context is
// bound to the renting scope; a returned one is reset and unbound.
type Pool struct {
	def  *dbcontext.Definition
	db   *storage.DB
	idle chan *dbcontext.Context

	created atomic.Int64
	reused  atomic.Int64
}

// NewPool creates an empty pool.
func NewPool(def *dbcontext.Definition, db *storage.DB, size int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &Pool{def: def, db: db, idle: make(chan *dbcontext.Context, size)}
}

// Rent returns an idle context bound to r, or a new one when none is idle.
func (p *Pool) Rent(r di.Resolver) (*dbcontext.Context, error) {
	select {
	case c := <-p.idle:
		c.Bind(r)
		p.reused.Add(1)
		return c, nil
	default:
	}

	c, err := dbcontext.New(p.def, p.db, r, dbcontext.WithRelease(p.Return))
	if err != nil {
		return nil, err
	}
	p.created.Add(1)
	return c, nil
}

// Return resets c and keeps it for the next scope. Contexts that fail to
// reset, or arrive when the pool is full, are dropped.
func (p *Pool) Return(c *dbcontext.Context) {
	ctx := context.Background()
	if err := c.Reset(ctx); err != nil {
		logger.Warn(ctx, "dropping pooled context", "context", p.def.Name(), "context_id", c.ID().String(), "error", err)
		return
	}
	c.ChangeTracker().Clear()
	c.ClearExecutionContext()

	select {
	case p.idle <- c:
	default:
	}
}

// Idle returns the number of contexts waiting to be rented.
func (p *Pool) Idle() int { return len(p.idle) }

// PoolStats reports pool usage.
type PoolStats struct {
	Idle    int
	Size    int
	Created int64
	Reused  int64
}

func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Idle:    len(p.idle),
		Size:    cap(p.idle),
		Created: p.created.Load(),
		Reused:  p.reused.Load(),
	}
}
