// Package numerator hands out human-readable sequential numbers (PRD-00001)
// backed by a counter table. Counters are kept per tenant.
package numerator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"

	appctx "persistkit/internal/core/context"
	"persistkit/internal/core/numerator"
	"persistkit/internal/infrastructure/storage"
)

// Table holds one row per sequence key.
const Table = "sys_sequences"

type (
	Strategy = numerator.Strategy
	Options  = numerator.Options
	Config   = numerator.Config
)

const (
	StrategyStrict = numerator.StrategyStrict
	StrategyCached = numerator.StrategyCached
)

func DefaultConfig(prefix string) Config { return numerator.DefaultConfig(prefix) }

type cachedRange struct {
	current int64
	max     int64
}

var _ numerator.Generator = (*Service)(nil)

// Service allocates numbers. It is safe for concurrent use.
type Service struct {
	tx   *storage.TxManager
	opts Options

	mu     sync.Mutex
	ranges map[string]*cachedRange
}

// New creates a service over db. nil opts means StrategyStrict.
func New(db *storage.DB, opts *Options) *Service {
	s := &Service{tx: storage.NewTxManager(db), ranges: make(map[string]*cachedRange)}
	if opts != nil {
		s.opts = *opts
	}
	if s.opts.RangeSize <= 0 {
		s.opts.RangeSize = 50
	}
	return s
}

// Schema returns the DDL of the counter table.
func Schema() string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (seq_key VARCHAR(200) NOT NULL PRIMARY KEY, current_val BIGINT NOT NULL)", Table)
}

// EnsureSchema creates the counter table when missing.
func (s *Service) EnsureSchema(ctx context.Context) error {
	if _, err := s.tx.DB().ExecContext(ctx, Schema()); err != nil {
		return fmt.Errorf("ensure %s: %w", Table, err)
	}
	return nil
}

// Next returns the next number of cfg for the current period.
func (s *Service) Next(ctx context.Context, cfg Config) (string, error) {
	return s.GetNextNumber(ctx, cfg, time.Now())
}

// GetNextNumber returns the next number of cfg in period, formatted as
// PREFIX-[YEAR-]00042.
func (s *Service) GetNextNumber(ctx context.Context, cfg Config, period time.Time) (string, error) {
	if s == nil {
		return "", fmt.Errorf("numerator service is not initialized")
	}
	key := s.buildKey(ctx, cfg, period)

	var (
		num int64
		err error
	)
	switch s.opts.Strategy {
	case StrategyCached:
		num, err = s.nextCached(ctx, key)
	default:
		num, err = s.reserve(ctx, key, 1)
	}
	if err != nil {
		return "", err
	}
	return formatNumber(cfg, period, num), nil
}

func (s *Service) nextCached(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rng, ok := s.ranges[key]
	if !ok {
		rng = &cachedRange{}
		s.ranges[key] = rng
	}
	if rng.current >= rng.max {
		newMax, err := s.reserve(ctx, key, s.opts.RangeSize)
		if err != nil {
			return 0, err
		}
		rng.current = newMax - s.opts.RangeSize
		rng.max = newMax
	}
	rng.current++
	return rng.current, nil
}

// reserve bumps the counter of key by n and returns the new value, the last
// reserved number.
func (s *Service) reserve(ctx context.Context, key string, n int64) (int64, error) {
	var current int64
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		b := s.tx.DB().Dialect.Builder()
		if err := s.upsert(ctx, b.Update(Table).Set("current_val", squirrel.Expr("current_val + ?", n)), key, n); err != nil {
			return err
		}
		query, args, err := b.Select("current_val").From(Table).Where(squirrel.Eq{"seq_key": key}).ToSql()
		if err != nil {
			return err
		}
		return s.tx.GetQuerier(ctx).QueryRowContext(ctx, query, args...).Scan(&current)
	})
	if err != nil {
		return 0, fmt.Errorf("reserve %s: %w", key, err)
	}
	return current, nil
}

// SetNextNumber moves the counter so the next number is value+1. Cached
// ranges of the key are dropped.
func (s *Service) SetNextNumber(ctx context.Context, cfg Config, period time.Time, value int64) error {
	key := s.buildKey(ctx, cfg, period)
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		b := s.tx.DB().Dialect.Builder()
		return s.upsert(ctx, b.Update(Table).Set("current_val", value), key, value)
	})

	s.mu.Lock()
	delete(s.ranges, key)
	s.mu.Unlock()
	return err
}

// upsert runs update for key and inserts the row with initial when there is
// none. It must run inside a transaction.
func (s *Service) upsert(ctx context.Context, update squirrel.UpdateBuilder, key string, initial int64) error {
	q := s.tx.GetQuerier(ctx)
	query, args, err := update.Where(squirrel.Eq{"seq_key": key}).ToSql()
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err != nil || affected > 0 {
		return err
	}

	query, args, err = s.tx.DB().Dialect.Builder().
		Insert(Table).Columns("seq_key", "current_val").Values(key, initial).ToSql()
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, query, args...)
	return err
}

// buildKey scopes the prefix to the tenant and reset period.
func (s *Service) buildKey(ctx context.Context, cfg Config, period time.Time) string {
	key := cfg.Prefix
	switch cfg.ResetPeriod {
	case "month":
		key += "_" + period.Format("2006_01")
	case "year":
		key += "_" + period.Format("2006")
	}
	if tenantID := appctx.GetTenantID(ctx); tenantID != "" {
		key = tenantID + ":" + key
	}
	return key
}

func formatNumber(cfg Config, period time.Time, num int64) string {
	pad := cfg.PadWidth
	if pad == 0 {
		pad = 5
	}
	if cfg.IncludeYear {
		return fmt.Sprintf("%s-%s-%0*d", cfg.Prefix, period.Format("2006"), pad, num)
	}
	return fmt.Sprintf("%s-%0*d", cfg.Prefix, pad, num)
}

// ParseNumber extracts the numeric part of a formatted number, or -1.
func ParseNumber(formatted string) int64 {
	i := strings.LastIndexByte(formatted, '-')
	if i < 0 || i == len(formatted)-1 {
		return -1
	}
	num, err := strconv.ParseInt(formatted[i+1:], 10, 64)
	if err != nil || num < 0 {
		return -1
	}
	return num
}
