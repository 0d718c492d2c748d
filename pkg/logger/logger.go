// Package logger is the zap-based structured logger. Request-scoped fields
// (trace, user, tenant, locale) are read from the context of each call.
package logger

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appctx "persistkit/internal/core/context"
)

// Logger wraps zap.SugaredLogger.
type Logger struct {
	*zap.SugaredLogger
}

type loggerKey struct{}

type Config struct {
	// Level is debug, info, warn or error. Unknown values mean info.
	Level string `yaml:"level"`
	// Development switches to the console encoder with colored levels.
	Development bool     `yaml:"development"`
	OutputPaths []string `yaml:"output_paths"`
}

// New builds a logger from cfg.
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}

	zl, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return Wrap(zl), nil
}

// Wrap adapts an existing zap logger.
func Wrap(zl *zap.Logger) *Logger {
	return &Logger{zl.Sugar()}
}

func Nop() *Logger {
	return Wrap(zap.NewNop())
}

var fallback atomic.Pointer[Logger]

// SetDefault replaces the logger used when a context carries none.
func SetDefault(l *Logger) {
	fallback.Store(l)
}

// Default returns the logger set by SetDefault, or a production logger on
// stdout built on first use.
func Default() *Logger {
	if l := fallback.Load(); l != nil {
		return l
	}
	zc := zap.NewProductionConfig()
	zc.OutputPaths = []string{"stdout"}
	zl, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		zl = zap.NewNop()
	}
	l := Wrap(zl)
	if fallback.CompareAndSwap(nil, l) {
		return l
	}
	return fallback.Load()
}

// WithContext adds the request fields found in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var fields []any
	if t := appctx.GetTrace(ctx); t != nil {
		fields = append(fields, "trace_id", t.TraceID)
		if t.RequestID != "" {
			fields = append(fields, "request_id", t.RequestID)
		}
	}
	if uid := appctx.GetUserID(ctx); uid != "" {
		fields = append(fields, "user_id", uid)
	}
	if tid := appctx.GetTenantID(ctx); tid != "" {
		fields = append(fields, "tenant_id", tid)
	}
	if loc := appctx.GetLocale(ctx); loc != "" {
		fields = append(fields, "locale", loc)
	}
	if len(fields) == 0 {
		return l
	}
	return &Logger{l.SugaredLogger.With(fields...)}
}

// WithLogger stores l in ctx for the package-level helpers.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger of ctx, or Default, with the request fields.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return l.WithContext(ctx)
	}
	return Default().WithContext(ctx)
}

func Debug(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Debugw(msg, keysAndValues...)
}

func Info(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Infow(msg, keysAndValues...)
}

func Warn(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Warnw(msg, keysAndValues...)
}

func Error(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Errorw(msg, keysAndValues...)
}
