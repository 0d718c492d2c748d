// Package middleware provides the gin middleware of the demo API.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"persistkit/internal/core/apperror"
	"persistkit/pkg/logger"
)

// Recovery answers a panic with a 500 body shaped like ErrorHandler's. It is
// the outermost middleware, so it writes the response itself.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.Error(c.Request.Context(), "panic recovered",
				"panic", rec,
				"path", c.FullPath(),
				"stack", string(debug.Stack()),
			)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":    apperror.CodeInternal,
				"message": "Internal server error",
				"details": map[string]any{"request_id": c.GetString("request_id")},
			})
		}()
		c.Next()
	}
}
