// Package registration wires persistence contexts into a service registry:
// the options builder, the YAML configuration file, context pooling and
// per-scope resolution of contexts, repositories and units of work.
package registration

import (
	"fmt"

	"persistkit/internal/dbcontext"
	"persistkit/internal/infrastructure/storage"
)

// DefaultPoolSize is used when pooling is enabled without a size.
const DefaultPoolSize = 1024

// Options configures one persistence context.
type Options struct {
	Dialect       storage.Dialect
	Pool          storage.PoolConfig
	DB            *storage.DB
	Pooling       bool
	PoolSize      int
	EnsureCreated bool
	// Behaviors run after the built-in units, in order.
	Behaviors []dbcontext.Behavior
}

// OptionsBuilder builds Options fluently.
//
//	opts := registration.NewOptions().
//	    UsePostgres(dsn).
//	    WithPooling(128).
//	    AddBehaviors(audit)
type OptionsBuilder struct {
	opts Options
	err  error
}

// NewOptions starts an options builder without a store.
func NewOptions() *OptionsBuilder {
	return &OptionsBuilder{}
}

func (b *OptionsBuilder) use(d storage.Dialect, dsn string) *OptionsBuilder {
	b.opts.Dialect = d
	b.opts.Pool = storage.DefaultPoolConfig(dsn)
	return b
}

func (b *OptionsBuilder) UsePostgres(dsn string) *OptionsBuilder { return b.use(storage.Postgres, dsn) }
func (b *OptionsBuilder) UseSQLite(dsn string) *OptionsBuilder   { return b.use(storage.SQLite, dsn) }
func (b *OptionsBuilder) UseMySQL(dsn string) *OptionsBuilder    { return b.use(storage.MySQL, dsn) }

// UseProvider selects the store by dialect name ("postgres", "sqlite", "mysql").
func (b *OptionsBuilder) UseProvider(name, dsn string) *OptionsBuilder {
	d, err := storage.DialectByName(name)
	if err != nil {
		b.err = err
		return b
	}
	return b.use(d, dsn)
}

// UseDB shares an open handle instead of opening one. The caller closes it.
func (b *OptionsBuilder) UseDB(db *storage.DB) *OptionsBuilder {
	b.opts.DB = db
	b.opts.Dialect = db.Dialect
	return b
}

// WithPoolConfig adjusts the connection pool settings of the selected store.
func (b *OptionsBuilder) WithPoolConfig(fn func(cfg *storage.PoolConfig)) *OptionsBuilder {
	fn(&b.opts.Pool)
	return b
}

// WithPooling reuses context instances across scopes. size <= 0 means DefaultPoolSize.
func (b *OptionsBuilder) WithPooling(size int) *OptionsBuilder {
	if size <= 0 {
		size = DefaultPoolSize
	}
	b.opts.Pooling = true
	b.opts.PoolSize = size
	return b
}

func (b *OptionsBuilder) WithoutPooling() *OptionsBuilder {
	b.opts.Pooling = false
	b.opts.PoolSize = 0
	return b
}

// AddBehaviors appends custom units after the built-in set.
func (b *OptionsBuilder) AddBehaviors(behaviors ...dbcontext.Behavior) *OptionsBuilder {
	b.opts.Behaviors = append(b.opts.Behaviors, behaviors...)
	return b
}

// EnsureCreated creates missing tables when the context is registered.
func (b *OptionsBuilder) EnsureCreated() *OptionsBuilder {
	b.opts.EnsureCreated = true
	return b
}

// Build returns the options or the first configuration error.
func (b *OptionsBuilder) Build() (Options, error) {
	if b.err != nil {
		return Options{}, b.err
	}
	if b.opts.DB == nil && b.opts.Dialect.Name == "" {
		return Options{}, fmt.Errorf("registration: no store configured")
	}
	if b.opts.DB == nil && b.opts.Pool.DSN == "" {
		return Options{}, fmt.Errorf("registration: empty %s connection string", b.opts.Dialect.Name)
	}
	opts := b.opts
	opts.Behaviors = append([]dbcontext.Behavior(nil), b.opts.Behaviors...)
	return opts, nil
}
