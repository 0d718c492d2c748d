// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"persistkit/internal/infrastructure/http/v1/middleware"
)

// EntityRouteHandler is implemented by every entity handler.
type EntityRouteHandler interface {
	List(c *gin.Context)
	Create(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
	Purge(c *gin.Context)
	Clone(c *gin.Context)
}

// RegisterEntityRoutes registers the standard CRUD routes of an entity.
// Purge requires adminRole when it is set.
//
// Usage:
//
//	handler := handlers.NewProductHandler(base, catalog.NewProductService(num))
//	RegisterEntityRoutes(rg.Group("/products"), handler, "admin")
func RegisterEntityRoutes(group *gin.RouterGroup, handler EntityRouteHandler, adminRole string) {
	group.GET("", handler.List)
	group.POST("", handler.Create)
	group.GET("/:id", handler.Get)
	group.PUT("/:id", handler.Update)
	group.DELETE("/:id", handler.Delete)
	group.POST("/:id/clone", handler.Clone)

	purge := []gin.HandlerFunc{handler.Purge}
	if adminRole != "" {
		purge = append([]gin.HandlerFunc{middleware.RequireRole(adminRole)}, purge...)
	}
	group.DELETE("/:id/purge", purge...)
}
