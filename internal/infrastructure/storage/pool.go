package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"persistkit/pkg/logger"
)

// PoolConfig holds connection pool configuration.
type PoolConfig struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"max_conns"`
	MinConns          int32         `yaml:"min_conns"`
	MaxConnLifetime   time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `yaml:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `yaml:"health_check_period"`
	ApplicationName   string        `yaml:"application_name"`
}

// DefaultPoolConfig returns sensible defaults for production.
func DefaultPoolConfig(dsn string) PoolConfig {
	return PoolConfig{
		DSN:               dsn,
		MaxConns:          25,
		MinConns:          5,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
		ApplicationName:   "persistkit",
	}
}

// DB is a database handle bound to its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect

	pgPool *pgxpool.Pool
}

// Close closes the handle and, for Postgres, the underlying pgx pool.
func (db *DB) Close() error {
	err := db.DB.Close()
	if db.pgPool != nil {
		db.pgPool.Close()
	}
	return err
}

// Open connects to the store described by dialect and cfg and verifies the connection.
func Open(ctx context.Context, dialect Dialect, cfg PoolConfig) (*DB, error) {
	if dialect.Name == Postgres.Name {
		return openPostgres(ctx, cfg)
	}

	sqlDB, err := sql.Open(dialect.DriverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dialect.Name, err)
	}
	if dialect.Name == SQLite.Name {
		// In-memory databases live per connection.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(int(cfg.MaxConns))
		sqlDB.SetMaxIdleConns(int(cfg.MinConns))
		sqlDB.SetConnMaxLifetime(cfg.MaxConnLifetime)
		sqlDB.SetConnMaxIdleTime(cfg.MaxConnIdleTime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{DB: sqlDB, Dialect: dialect}, nil
}

// OpenSQLite opens an SQLite database, e.g. "file:test?mode=memory".
func OpenSQLite(ctx context.Context, dsn string) (*DB, error) {
	return Open(ctx, SQLite, PoolConfig{DSN: dsn})
}

// Wrap binds an existing handle to a dialect (used with go-sqlmock in tests).
func Wrap(sqlDB *sql.DB, dialect Dialect) *DB {
	return &DB{DB: sqlDB, Dialect: dialect}
}

func openPostgres(ctx context.Context, cfg PoolConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	appName := cfg.ApplicationName
	if appName == "" {
		appName = "persistkit"
	}
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SELECT set_config('application_name', $1, false)", appName)
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: stdlib.OpenDBFromPool(pool), Dialect: Postgres, pgPool: pool}, nil
}

// PoolStats returns current pool statistics for metrics.
type PoolStats struct {
	OpenConns       int
	InUse           int
	Idle            int
	MaxOpen         int
	WaitCount       int64
	WaitDuration    time.Duration
	AcquireCount    int64
	AcquireDuration time.Duration
}

// Stats extracts statistics from the handle and, for Postgres, the pgx pool.
func (db *DB) Stats() PoolStats {
	s := db.DB.Stats()
	stats := PoolStats{
		OpenConns:    s.OpenConnections,
		InUse:        s.InUse,
		Idle:         s.Idle,
		MaxOpen:      s.MaxOpenConnections,
		WaitCount:    s.WaitCount,
		WaitDuration: s.WaitDuration,
	}
	if db.pgPool != nil {
		ps := db.pgPool.Stat()
		stats.AcquireCount = ps.AcquireCount()
		stats.AcquireDuration = ps.AcquireDuration()
	}
	return stats
}

// LogPoolStats logs pool statistics.
func LogPoolStats(ctx context.Context, db *DB) {
	stats := db.Stats()
	logger.Info(ctx, "database pool stats",
		"dialect", db.Dialect.Name,
		"open", stats.OpenConns,
		"in_use", stats.InUse,
		"idle", stats.Idle,
		"max", stats.MaxOpen,
	)
}
