package ambient

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	appctx "persistkit/internal/core/context"
	"persistkit/internal/core/entity"
)

// CurrentUserProvider returns the id of the acting user, if any.
type CurrentUserProvider interface {
	CurrentUserID(ctx context.Context) (any, bool)
}

// CurrentTenantProvider returns the tenant the scope works for, if any.
type CurrentTenantProvider interface {
	CurrentTenantID(ctx context.Context) (any, bool)
}

// CurrentLocaleProvider returns the locale of the scope, if any.
type CurrentLocaleProvider interface {
	CurrentLocaleID(ctx context.Context) (any, bool)
}

// UserFunc adapts a typed function to CurrentUserProvider.
type UserFunc[U entity.Key] func(ctx context.Context) (U, bool)

func (f UserFunc[U]) CurrentUserID(ctx context.Context) (any, bool) { return optional(f(ctx)) }

// TenantFunc adapts a typed function to CurrentTenantProvider.
type TenantFunc[T entity.Key] func(ctx context.Context) (T, bool)

func (f TenantFunc[T]) CurrentTenantID(ctx context.Context) (any, bool) { return optional(f(ctx)) }

// LocaleFunc adapts a typed function to CurrentLocaleProvider.
type LocaleFunc[L entity.Key] func(ctx context.Context) (L, bool)

func (f LocaleFunc[L]) CurrentLocaleID(ctx context.Context) (any, bool) { return optional(f(ctx)) }

func optional[V entity.Key](v V, ok bool) (any, bool) {
	if !ok {
		return nil, false
	}
	return v, true
}

// ContextUser reads the user id stored by the HTTP layer (string ids).
func ContextUser() UserFunc[string] {
	return func(ctx context.Context) (string, bool) {
		uid := appctx.GetUserID(ctx)
		return uid, uid != ""
	}
}

// ContextTenant reads the tenant id stored by the HTTP layer (string ids).
func ContextTenant() TenantFunc[string] {
	return func(ctx context.Context) (string, bool) {
		tid := appctx.GetTenantID(ctx)
		return tid, tid != ""
	}
}

// ContextTenantUUID reads the tenant id stored by the HTTP layer and parses it as a UUID.
func ContextTenantUUID() TenantFunc[uuid.UUID] {
	return func(ctx context.Context) (uuid.UUID, bool) {
		tid, err := uuid.Parse(appctx.GetTenantID(ctx))
		if err != nil {
			return uuid.Nil, false
		}
		return tid, true
	}
}

// ContextLocale reads the request locale and canonicalises it.
func ContextLocale() LocaleFunc[string] {
	return func(ctx context.Context) (string, bool) {
		return CanonicalLocale(appctx.GetLocale(ctx))
	}
}

// StaticTenant always reports the same tenant. Useful for workers and tests.
func StaticTenant[T entity.Key](tenantID T) TenantFunc[T] {
	return func(context.Context) (T, bool) { return tenantID, true }
}

// StaticUser always reports the same user.
func StaticUser[U entity.Key](userID U) UserFunc[U] {
	return func(context.Context) (U, bool) { return userID, true }
}

// CanonicalLocale normalises a BCP 47 tag ("en_us" -> "en-US").
func CanonicalLocale(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return "", false
	}
	return tag.String(), true
}

// PreferredLocale picks the best match of an Accept-Language header among supported tags.
// It returns "" when the header is empty or unparsable.
func PreferredLocale(acceptLanguage string, supported ...string) string {
	if acceptLanguage == "" {
		return ""
	}
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return ""
	}
	if len(supported) == 0 {
		return prefs[0].String()
	}
	tags := make([]language.Tag, 0, len(supported))
	for _, s := range supported {
		if t, err := language.Parse(s); err == nil {
			tags = append(tags, t)
		}
	}
	if len(tags) == 0 {
		return prefs[0].String()
	}
	_, idx, _ := language.NewMatcher(tags).Match(prefs...)
	return tags[idx].String()
}
