// Package numerator holds the numbering contract entity services depend on.
// pkg/numerator implements it over a counter table.
package numerator

import (
	"context"
	"time"
)

// Strategy defines the numbering generation strategy.
type Strategy int

const (
	// StrategyStrict reserves every number in its own transaction. No gaps.
	StrategyStrict Strategy = iota

	// StrategyCached reserves ranges and hands them out from memory. A
	// restart leaves gaps.
	StrategyCached
)

type Options struct {
	Strategy Strategy
	// RangeSize is the number of values reserved at once by StrategyCached.
	RangeSize int64
}

// Config controls the number format.
type Config struct {
	Prefix      string
	IncludeYear bool
	PadWidth    int
	// ResetPeriod is "year", "month" or "never".
	ResetPeriod string
}

func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		PadWidth:    5,
		ResetPeriod: "never",
	}
}

// Generator hands out sequential numbers scoped to the tenant of ctx.
type Generator interface {
	// Next returns the next number of cfg for the current period.
	Next(ctx context.Context, cfg Config) (string, error)
	GetNextNumber(ctx context.Context, cfg Config, period time.Time) (string, error)
	// SetNextNumber moves the counter so the next number is value+1.
	SetNextNumber(ctx context.Context, cfg Config, period time.Time, value int64) error
}
