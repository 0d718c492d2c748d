package middleware

import (
	"github.com/gin-gonic/gin"

	"persistkit/internal/core/di"
	"persistkit/internal/registration"
)

// Scope opens a child scope of root for every request and closes it once the
// handlers are done, returning pooled persistence contexts.
func Scope(root *di.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope := root.NewScope()
		defer scope.Close()

		c.Request = c.Request.WithContext(registration.WithScope(c.Request.Context(), scope))
		c.Next()
	}
}
