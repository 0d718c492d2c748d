// Package main is the entry point of the persistkit demo API: a product
// catalog served over gin on top of a pooled persistence context.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"persistkit/internal/ambient"
	"persistkit/internal/core/di"
	"persistkit/internal/dbcontext"
	"persistkit/internal/domain/auth"
	"persistkit/internal/domain/catalog"
	v1 "persistkit/internal/infrastructure/http/v1"
	"persistkit/internal/registration"
	"persistkit/pkg/logger"
	"persistkit/pkg/numerator"
)

const version = "0.1.0"

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)
	defer func() { _ = log.Sync() }()
	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting persistkit server", "provider", cfg.Provider, "version", version)

	opts, err := cfg.Options()
	if err != nil {
		log.Fatalw("invalid configuration", "error", err)
	}

	// --- Services ---
	reg := di.NewRegistry()
	reg.AddInstance(ambient.CurrentUserProviderKey, ambient.ContextUser())
	reg.AddInstance(ambient.CurrentTenantProviderKey, ambient.ContextTenant())
	reg.AddInstance(ambient.CurrentLocaleProviderKey, ambient.ContextLocale())

	catalogReg, err := registration.AddContext(ctx, reg, dbcontext.NewTypeRegistry(), catalog.ContextName, catalog.Configure, opts)
	if err != nil {
		log.Fatalw("failed to register catalog context", "error", err)
	}
	defer func() {
		if err := catalogReg.Close(); err != nil {
			log.Warnw("failed to close catalog store", "error", err)
		}
	}()

	num := numerator.New(catalogReg.DB(), &numerator.Options{
		Strategy:  numerator.StrategyCached,
		RangeSize: int64(getEnvInt("SKU_RANGE_SIZE", 20)),
	})
	if err := num.EnsureSchema(ctx); err != nil {
		log.Fatalw("failed to prepare sku numbering", "error", err)
	}

	// --- Auth ---
	var validator *auth.JWTService
	if secret := getEnv("JWT_SECRET", ""); secret != "" {
		jwtCfg := auth.DefaultJWTConfig(secret)
		jwtCfg.AccessTokenTTL = getEnvDuration("JWT_TTL", jwtCfg.AccessTokenTTL)
		validator = auth.NewJWTService(jwtCfg)
	} else {
		log.Warn("JWT_SECRET not set, authentication is disabled")
	}

	routerCfg := v1.RouterConfig{
		Root:             reg.Build(),
		Registrations:    []*registration.Registration{catalogReg},
		Logger:           log,
		Products:         catalog.NewProductService(num),
		DefaultLocale:    getEnv("DEFAULT_LOCALE", "en"),
		SupportedLocales: splitList(getEnv("SUPPORTED_LOCALES", "")),
		AdminRole:        getEnv("ADMIN_ROLE", "admin"),
		Version:          version,
		Debug:            getEnv("APP_ENV", "production") == "development",
	}
	if validator != nil {
		routerCfg.JWTValidator = validator
		if getEnv("DEV_TOKENS", "false") == "true" {
			routerCfg.TokenIssuer = validator
		}
	}
	router := v1.NewRouter(routerCfg)

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	log.Info("server stopped")
}

// loadConfig reads CONFIG_PATH when set. Otherwise the store comes from
// DB_PROVIDER and DATABASE_URL.
func loadConfig() (*registration.Config, error) {
	if path := getEnv("CONFIG_PATH", ""); path != "" {
		return registration.LoadConfig(path)
	}

	cfg, err := registration.ParseConfig(nil)
	if err != nil {
		return nil, err
	}
	cfg.Provider = getEnv("DB_PROVIDER", cfg.Provider)
	cfg.Database.DSN = mustEnv("DATABASE_URL")
	cfg.Database.MaxConns = int32(getEnvInt("DB_MAX_CONNS", int(cfg.Database.MaxConns)))
	cfg.Pooling.Enabled = getEnv("CONTEXT_POOLING", "true") == "true"
	cfg.Pooling.Size = getEnvInt("CONTEXT_POOL_SIZE", registration.DefaultPoolSize)
	cfg.EnsureCreated = getEnv("ENSURE_CREATED", "false") == "true"
	cfg.Audit.Enabled = getEnv("AUDIT_ENABLED", "false") == "true"
	cfg.Logger.Level = getEnv("LOG_LEVEL", "info")
	cfg.Logger.Development = getEnv("APP_ENV", "production") == "development"
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
