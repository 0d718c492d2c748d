package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	appctx "persistkit/internal/core/context"
)

func TestFromContext_AddsRequestFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := WithLogger(context.Background(), Wrap(zap.New(core)))
	ctx = appctx.WithTrace(ctx, &appctx.TraceContext{TraceID: "tr-1", RequestID: "rq-1"})
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: "alice", TenantID: "t1"})
	ctx = appctx.WithLocale(ctx, "de")

	Warn(ctx, "row versioning conflict", "entity", "Product")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "tr-1", fields["trace_id"])
	assert.Equal(t, "rq-1", fields["request_id"])
	assert.Equal(t, "alice", fields["user_id"])
	assert.Equal(t, "t1", fields["tenant_id"])
	assert.Equal(t, "de", fields["locale"])
	assert.Equal(t, "Product", fields["entity"])
}

func TestFromContext_UsesDefault(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := Default()
	SetDefault(Wrap(zap.New(core)))
	t.Cleanup(func() { SetDefault(prev) })

	Debug(context.Background(), "dropped")
	Info(context.Background(), "kept")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)
	assert.Empty(t, logs.All()[0].ContextMap())
}

func TestNew_UnknownLevelIsInfo(t *testing.T) {
	l, err := New(Config{Level: "loud", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	assert.False(t, l.Desugar().Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Desugar().Core().Enabled(zapcore.InfoLevel))
}
