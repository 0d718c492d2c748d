// Package catalog is the product catalog served by the demo API.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"persistkit/internal/behavior"
	"persistkit/internal/core/apperror"
	"persistkit/internal/core/entity"
	"persistkit/internal/core/types"
	"persistkit/internal/domain"
	"persistkit/internal/mapping"
	"persistkit/internal/core/numerator"
)

// ContextName is the persistence context the catalog lives in.
const ContextName = "catalog"

// SKUPrefix prefixes generated SKUs (PRD-00001).
const SKUPrefix = "PRD"

const maxSKULength = 64

// Product is a tenant-owned, soft-deletable catalog item with a localized name
// and per-locale descriptions.
type Product struct {
	entity.Identity[uuid.UUID]
	entity.Created[string]
	entity.Modified[string]
	entity.SoftDelete[string]
	entity.RowVersion
	entity.TenantScope[string]

	SKU   string         `db:"sku" json:"sku"`
	Price types.Money    `db:"price" json:"price"`
	Stock types.Quantity `db:"stock" json:"stock"`

	Name  entity.TranslatedText[string]                  `db:"-" json:"-"`
	Texts entity.Translations[ProductText, *ProductText] `db:"-" json:"-"`
}

func (p *Product) Translations() entity.TranslationCollection { return &p.Texts }

func (p *Product) TranslatedProperties() map[string]entity.TranslatedValue {
	return map[string]entity.TranslatedValue{"Name": &p.Name}
}

// Validate implements entity.Validatable.
func (p *Product) Validate(ctx context.Context) error {
	if len(p.SKU) > maxSKULength {
		return apperror.NewValidation("sku is too long").WithDetail("field", "sku")
	}
	if len(p.Name.Entries()) == 0 {
		return apperror.NewValidation("name is required in at least one locale").WithDetail("field", "name")
	}
	if p.Price.IsNegative() {
		return apperror.NewValidation("price must not be negative").WithDetail("field", "price")
	}
	if p.Stock < 0 {
		return apperror.NewValidation("stock must not be negative").WithDetail("field", "stock")
	}
	return nil
}

// Describe sets the description of locale, replacing an existing one.
func (p *Product) Describe(locale, text string) {
	for _, t := range p.Texts.Items {
		if t.LocaleID == locale {
			t.Description = text
			return
		}
	}
	p.Texts.Add(&ProductText{
		TranslationOf: entity.TranslationOf[uuid.UUID, string]{ParentID: p.ID, LocaleID: locale},
		Description:   text,
	})
}

// ProductText is the description of a product in one locale.
type ProductText struct {
	entity.TranslationOf[uuid.UUID, string]
	Description string `db:"description" json:"description"`
}

// Configure registers the catalog entity types.
func Configure(b *mapping.ModelBuilder) {
	mapping.Entity[Product](b)
}

// NewProductService creates the product service. Descriptions are loaded with
// every product it reads. Products created without a SKU get the next number
// of num; without num the SKU is required.
func NewProductService(num numerator.Generator) *domain.Service[Product, *Product] {
	svc := domain.NewService[Product, *Product]("Product", behavior.TranslationsNavigation)
	svc.Hooks().On(domain.BeforeCreate, func(ctx context.Context, p *Product) error {
		if strings.TrimSpace(p.SKU) != "" {
			return nil
		}
		if num == nil {
			return apperror.NewValidation("sku is required").WithDetail("field", "sku")
		}
		sku, err := num.Next(ctx, numerator.DefaultConfig(SKUPrefix))
		if err != nil {
			return fmt.Errorf("generate sku: %w", err)
		}
		p.SKU = sku
		return nil
	})
	return svc
}
