package repository

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"persistkit/internal/dbcontext"
	"persistkit/pkg/logger"
)

// UnitOfWork saves several persistence contexts with one call. Each context
// commits its own transaction; a failure of one does not roll back the others.
type UnitOfWork struct {
	contexts []*dbcontext.Context
}

// NewUnitOfWork groups contexts. Duplicates are saved once.
func NewUnitOfWork(contexts ...*dbcontext.Context) *UnitOfWork {
	u := &UnitOfWork{}
	seen := make(map[*dbcontext.Context]bool, len(contexts))
	for _, c := range contexts {
		if c == nil || seen[c] {
			continue
		}
		seen[c] = true
		u.contexts = append(u.contexts, c)
	}
	return u
}

func (u *UnitOfWork) Contexts() []*dbcontext.Context { return u.contexts }

// Save runs SaveChanges on every context concurrently with the caller's ctx
// and returns the rows committed. Every context gets to commit even when a
// sibling fails; failures are returned joined, in context order, together
// with the rows of the contexts that succeeded.
func (u *UnitOfWork) Save(ctx context.Context) (int, error) {
	if len(u.contexts) == 1 {
		return u.contexts[0].SaveChanges(ctx)
	}

	var (
		total atomic.Int64
		eg    errgroup.Group
	)
	errs := make([]error, len(u.contexts))
	for i, c := range u.contexts {
		eg.Go(func() error {
			n, err := c.SaveChanges(ctx)
			total.Add(int64(n))
			errs[i] = err
			return nil
		})
	}
	_ = eg.Wait()

	if err := errors.Join(errs...); err != nil {
		logger.Warn(ctx, "unit of work save failed", "contexts", len(u.contexts), "error", err)
		return int(total.Load()), err
	}
	return int(total.Load()), nil
}

// Reset brings every context back to its last saved state.
func (u *UnitOfWork) Reset(ctx context.Context) error {
	for _, c := range u.contexts {
		if err := c.Reset(ctx); err != nil {
			return err
		}
	}
	return nil
}
