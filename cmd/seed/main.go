// Package main seeds a tenant of the demo catalog with sample products.
package main

import (
	"context"
	"fmt"
	"os"

	"persistkit/internal/ambient"
	appctx "persistkit/internal/core/context"
	"persistkit/internal/core/di"
	"persistkit/internal/core/types"
	"persistkit/internal/dbcontext"
	"persistkit/internal/domain/catalog"
	"persistkit/internal/registration"
	"persistkit/pkg/logger"
	"persistkit/pkg/numerator"
)

type sample struct {
	price string
	stock float64
	names map[string]string
	about map[string]string
}

var samples = []sample{
	{"12.50", 40, map[string]string{"en": "Claw hammer", "de": "Klauenhammer"}, map[string]string{"en": "16 oz steel head"}},
	{"4.99", 250, map[string]string{"en": "Wood screws", "de": "Holzschrauben"}, map[string]string{"en": "Box of 100, 4x40 mm"}},
	{"89.00", 6, map[string]string{"en": "Cordless drill", "de": "Akkubohrer"}, map[string]string{"en": "18 V, two batteries", "de": "18 V, zwei Akkus"}},
}

func main() {
	log, err := logger.New(logger.Config{Level: "info", Development: true})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}
	provider := os.Getenv("DB_PROVIDER")
	if provider == "" {
		provider = "postgres"
	}
	tenantID := os.Getenv("SEED_TENANT_ID")
	if tenantID == "" {
		tenantID = "demo"
	}

	ctx := logger.WithLogger(context.Background(), log)

	reg := di.NewRegistry()
	reg.AddInstance(ambient.CurrentUserProviderKey, ambient.StaticUser("seed"))
	reg.AddInstance(ambient.CurrentTenantProviderKey, ambient.StaticTenant(tenantID))
	reg.AddInstance(ambient.CurrentLocaleProviderKey, ambient.ContextLocale())

	r, err := registration.AddContext(ctx, reg, dbcontext.NewTypeRegistry(), catalog.ContextName, catalog.Configure,
		registration.NewOptions().UseProvider(provider, dsn).EnsureCreated().WithoutPooling())
	if err != nil {
		log.Fatalw("failed to register catalog context", "error", err)
	}
	defer r.Close()

	num := numerator.New(r.DB(), nil)
	if err := num.EnsureSchema(ctx); err != nil {
		log.Fatalw("failed to prepare sku numbering", "error", err)
	}
	service := catalog.NewProductService(num)

	scope := reg.Build().NewScope()
	defer scope.Close()
	ctx = registration.WithScope(appctx.WithTenantID(ctx, tenantID), scope)

	for _, s := range samples {
		p := &catalog.Product{Price: types.MustMoney(s.price), Stock: types.NewQuantityFromFloat64(s.stock)}
		for locale, name := range s.names {
			p.Name.Set(locale, name)
		}
		for locale, text := range s.about {
			p.Describe(locale, text)
		}
		if err := service.Create(ctx, p); err != nil {
			log.Fatalw("failed to seed product", "name", s.names["en"], "error", err)
		}
		log.Infow("product seeded", "sku", p.SKU, "id", p.ID.String())
	}
	log.Infow("seeding complete", "tenant_id", tenantID, "products", len(samples))
}
