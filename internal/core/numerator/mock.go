package numerator

import (
	"context"
	"time"
)

// MockGenerator is a Generator for tests. Unset funcs return "MOCK-00001".
type MockGenerator struct {
	NextFunc          func(ctx context.Context, cfg Config) (string, error)
	SetNextNumberFunc func(ctx context.Context, cfg Config, period time.Time, value int64) error
}

func (m *MockGenerator) Next(ctx context.Context, cfg Config) (string, error) {
	return m.GetNextNumber(ctx, cfg, time.Now())
}

func (m *MockGenerator) GetNextNumber(ctx context.Context, cfg Config, _ time.Time) (string, error) {
	if m.NextFunc != nil {
		return m.NextFunc(ctx, cfg)
	}
	return "MOCK-00001", nil
}

func (m *MockGenerator) SetNextNumber(ctx context.Context, cfg Config, period time.Time, value int64) error {
	if m.SetNextNumberFunc != nil {
		return m.SetNextNumberFunc(ctx, cfg, period, value)
	}
	return nil
}

var _ Generator = (*MockGenerator)(nil)
