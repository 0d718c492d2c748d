package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"persistkit/internal/core/apperror"
	"persistkit/pkg/logger"
)

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Internal causes are logged, never returned.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		appErr, ok := asAppError(err)
		if !ok {
			logger.Error(c.Request.Context(), "unhandled error", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    apperror.CodeInternal,
				"message": "Internal server error",
				"details": map[string]any{"request_id": c.GetString("request_id")},
			})
			return
		}

		if appErr.Err != nil {
			logger.Error(c.Request.Context(), "request error", "code", appErr.Code, "cause", appErr.Err)
		}
		c.JSON(appErr.HTTPStatus, gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
			"details": appErr.Details,
		})
	}
}

// asAppError also accepts the typed save failures that convert themselves.
func asAppError(err error) (*apperror.AppError, bool) {
	if conv, ok := err.(interface{ AppError() *apperror.AppError }); ok {
		return conv.AppError(), true
	}
	return apperror.AsAppError(err)
}
