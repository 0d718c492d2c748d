package registration

import (
	"context"

	"persistkit/internal/core/apperror"
	"persistkit/internal/core/di"
)

type scopeKey struct{}

// WithScope carries the request scope down to services.
func WithScope(ctx context.Context, scope di.Resolver) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom returns the scope stored by WithScope.
func ScopeFrom(ctx context.Context) (di.Resolver, error) {
	if s, ok := ctx.Value(scopeKey{}).(di.Resolver); ok && s != nil {
		return s, nil
	}
	return nil, apperror.NewInvalidOperation("no service scope in context")
}
