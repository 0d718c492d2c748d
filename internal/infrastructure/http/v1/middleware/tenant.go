package middleware

import (
	"github.com/gin-gonic/gin"

	"persistkit/internal/ambient"
	"persistkit/internal/core/apperror"
	appctx "persistkit/internal/core/context"
)

const (
	// TenantHeader is the HTTP header for tenant identification.
	TenantHeader = "X-Tenant-ID"
	// LocaleHeader overrides Accept-Language.
	LocaleHeader = "X-Locale"
)

// Tenant resolves the request tenant from X-Tenant-ID, falling back to the
// token's tenant. Requests without either are rejected when required is set.
func Tenant(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		tenantID := c.GetHeader(TenantHeader)
		if tenantID == "" {
			tenantID = appctx.GetTenantID(ctx)
		}
		if tenantID == "" && required {
			_ = c.Error(
				apperror.NewValidation("tenant is required").
					WithDetail("header", TenantHeader),
			)
			c.Abort()
			return
		}
		if tenantID != "" {
			c.Request = c.Request.WithContext(appctx.WithTenantID(ctx, tenantID))
			c.Set("tenant_id", tenantID)
		}
		c.Next()
	}
}

// Locale picks the request locale from X-Locale or Accept-Language among
// supported tags. An empty supported list accepts any well-formed tag.
func Locale(fallback string, supported ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		locale, ok := ambient.CanonicalLocale(c.GetHeader(LocaleHeader))
		if !ok {
			locale = ambient.PreferredLocale(c.GetHeader("Accept-Language"), supported...)
		}
		if locale == "" {
			locale = fallback
		}
		if locale != "" {
			c.Request = c.Request.WithContext(appctx.WithLocale(c.Request.Context(), locale))
			c.Header("Content-Language", locale)
		}
		c.Next()
	}
}
