package v1

import (
	"github.com/gin-gonic/gin"

	"persistkit/internal/core/di"
	"persistkit/internal/domain"
	"persistkit/internal/domain/catalog"
	"persistkit/internal/infrastructure/http/v1/handlers"
	"persistkit/internal/infrastructure/http/v1/middleware"
	"persistkit/internal/registration"
	"persistkit/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Root is the built service registry; every request gets a child scope.
	Root *di.Scope

	// Registrations are reported by the health endpoints.
	Registrations []*registration.Registration

	Logger *logger.Logger

	// JWTValidator validates bearer tokens. Nil disables authentication and
	// the tenant must come from the X-Tenant-ID header.
	JWTValidator middleware.JWTValidator

	// TokenIssuer serves POST /api/v1/auth/token when set. Development only.
	TokenIssuer handlers.TokenIssuer

	Products *domain.Service[catalog.Product, *catalog.Product]

	DefaultLocale    string
	SupportedLocales []string
	AdminRole        string
	Version          string
	Debug            bool
}

// NewRouter creates and configures the gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Order matters: errors are rendered before the logger sees the status.
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	health := handlers.NewHealthHandler(cfg.Version, cfg.Registrations...)
	hg := router.Group("/health")
	{
		hg.GET("/live", health.Live)
		hg.GET("/ready", health.Ready)
		hg.GET("/info", health.Info)
	}

	base := handlers.NewBaseHandler()
	v1 := router.Group("/api/v1")
	{
		if cfg.TokenIssuer != nil {
			authHandler := handlers.NewAuthHandler(base, cfg.TokenIssuer)
			v1.POST("/auth/token", authHandler.Token)
		}

		protected := v1.Group("")
		adminRole := ""
		if cfg.JWTValidator != nil {
			protected.Use(middleware.Auth(cfg.JWTValidator))
			adminRole = cfg.AdminRole
		}
		protected.Use(middleware.Tenant(true))
		protected.Use(middleware.Locale(cfg.DefaultLocale, cfg.SupportedLocales...))
		protected.Use(middleware.Scope(cfg.Root))

		if cfg.Products != nil {
			RegisterEntityRoutes(protected.Group("/catalog/products"), handlers.NewProductHandler(base, cfg.Products), adminRole)
		}
	}

	return router
}
