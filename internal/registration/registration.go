package registration

import (
	"context"
	"fmt"

	"persistkit/internal/behavior"
	"persistkit/internal/core/di"
	"persistkit/internal/dbcontext"
	"persistkit/internal/infrastructure/storage"
	"persistkit/internal/mapping"
	"persistkit/internal/repository"
	"persistkit/pkg/logger"
)

// TypeRegistryKey names the singleton *dbcontext.TypeRegistry in the service registry.
const TypeRegistryKey = "TypeRegistry"

// ServiceName is the registry name of the context called name.
func ServiceName(name string) string { return "dbcontext:" + name }

// Registration is one context type added to a service registry.
type Registration struct {
	def    *dbcontext.Definition
	db     *storage.DB
	ownsDB bool
	pool   *Pool
}

func (r *Registration) Definition() *dbcontext.Definition { return r.def }
func (r *Registration) DB() *storage.DB                   { return r.db }

// Pool returns the context pool, nil without pooling.
func (r *Registration) Pool() *Pool { return r.pool }

// Close closes the database handle when the registration opened it.
func (r *Registration) Close() error {
	if r.ownsDB {
		return r.db.Close()
	}
	return nil
}

// AddContext registers the context type name in reg: it builds the model
// with the built-in units plus opts' custom units, records the mapped types
// in types, opens the store and adds a scoped factory resolving one context
// per scope. Disposing the scope disposes the context, returning it to the
// pool when pooling is on.
func AddContext(ctx context.Context, reg *di.Registry, types *dbcontext.TypeRegistry, name string, configure func(b *mapping.ModelBuilder), opts *OptionsBuilder) (*Registration, error) {
	o, err := opts.Build()
	if err != nil {
		return nil, err
	}

	behaviors := append(behavior.Default(), o.Behaviors...)
	def := dbcontext.NewDefinition(name, configure, dbcontext.WithBehaviors(behaviors...))
	if err := types.Register(def); err != nil {
		return nil, err
	}

	r := &Registration{def: def, db: o.DB}
	if r.db == nil {
		if r.db, err = storage.Open(ctx, o.Dialect, o.Pool); err != nil {
			return nil, fmt.Errorf("open %s store of %s: %w", o.Dialect.Name, name, err)
		}
		r.ownsDB = true
	}
	if o.EnsureCreated {
		c, err := dbcontext.New(def, r.db, nil)
		if err != nil {
			_ = r.Close()
			return nil, err
		}
		if err := c.EnsureCreated(ctx); err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("ensure schema of %s: %w", name, err)
		}
	}
	if o.Pooling {
		r.pool = NewPool(def, r.db, o.PoolSize)
	}

	for _, b := range def.Behaviors() {
		if rb, ok := b.(dbcontext.RegisteringBehavior); ok {
			rb.OnRegistering(reg)
		}
	}
	reg.TryAdd(TypeRegistryKey, di.Singleton, func(di.Resolver) (any, error) { return types, nil })
	reg.Add(ServiceName(name), di.Scoped, func(res di.Resolver) (any, error) {
		if r.pool != nil {
			return r.pool.Rent(res)
		}
		return dbcontext.New(def, r.db, res)
	})

	logger.Info(ctx, "persistence context registered",
		"context", name,
		"provider", r.db.Dialect.Name,
		"behaviors", len(behaviors),
		"pooling", o.Pooling,
	)
	return r, nil
}

// ContextFrom resolves the context called name from the scope.
func ContextFrom(r di.Resolver, name string) (*dbcontext.Context, error) {
	return di.Resolve[*dbcontext.Context](r, ServiceName(name))
}

// ContextFor resolves the context that maps T.
func ContextFor[T any](r di.Resolver) (*dbcontext.Context, error) {
	types, err := di.Resolve[*dbcontext.TypeRegistry](r, TypeRegistryKey)
	if err != nil {
		return nil, err
	}
	def, err := dbcontext.DefinitionOf[T](types)
	if err != nil {
		return nil, err
	}
	return ContextFrom(r, def.Name())
}

// RepositoryFor returns a repository of T over the scope's context.
func RepositoryFor[T any](r di.Resolver) (*repository.Repository[T], error) {
	c, err := ContextFor[T](r)
	if err != nil {
		return nil, err
	}
	return repository.New[T](c)
}

// UnitOfWorkFor groups the scope's contexts of every registered type.
func UnitOfWorkFor(r di.Resolver) (*repository.UnitOfWork, error) {
	types, err := di.Resolve[*dbcontext.TypeRegistry](r, TypeRegistryKey)
	if err != nil {
		return nil, err
	}
	defs := types.Definitions()
	contexts := make([]*dbcontext.Context, 0, len(defs))
	for _, def := range defs {
		c, err := ContextFrom(r, def.Name())
		if err != nil {
			return nil, err
		}
		contexts = append(contexts, c)
	}
	return repository.NewUnitOfWork(contexts...), nil
}
