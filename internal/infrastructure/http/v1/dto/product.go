package dto

import (
	"github.com/google/uuid"

	"persistkit/internal/core/types"
	"persistkit/internal/domain/catalog"
)

// ProductResponse is the API view of a product. Name and Descriptions are
// keyed by locale.
type ProductResponse struct {
	AuditResponse
	SKU          string            `json:"sku"`
	Price        types.Money       `json:"price"`
	Stock        types.Quantity    `json:"stock"`
	Name         map[string]string `json:"name"`
	Descriptions map[string]string `json:"descriptions,omitempty"`
}

func FromProduct(p *catalog.Product) ProductResponse {
	resp := ProductResponse{
		AuditResponse: FromTraits(p.Identity, p.Created, p.Modified, p.SoftDelete, p.RowVersion),
		SKU:           p.SKU,
		Price:         p.Price,
		Stock:         p.Stock,
		Name:          make(map[string]string),
	}
	for _, e := range p.Name.Entries() {
		if locale, ok := e.Locale.(string); ok {
			resp.Name[locale] = e.Text
		}
	}
	if len(p.Texts.Items) > 0 {
		resp.Descriptions = make(map[string]string, len(p.Texts.Items))
		for _, t := range p.Texts.Items {
			resp.Descriptions[t.LocaleID] = t.Description
		}
	}
	return resp
}

type CreateProductRequest struct {
	SKU          string            `json:"sku" binding:"omitempty,max=64"`
	Price        types.Money       `json:"price"`
	Stock        types.Quantity    `json:"stock"`
	Name         map[string]string `json:"name" binding:"required,min=1"`
	Descriptions map[string]string `json:"descriptions"`
}

func (r CreateProductRequest) ToProduct() *catalog.Product {
	p := &catalog.Product{SKU: r.SKU, Price: r.Price, Stock: r.Stock}
	for locale, text := range r.Name {
		p.Name.Set(locale, text)
	}
	for locale, text := range r.Descriptions {
		p.Describe(locale, text)
	}
	return p
}

// UpdateProductRequest changes only the fields that are present. RowVersion
// is the version the client last read.
type UpdateProductRequest struct {
	RowVersion   uuid.UUID         `json:"rowVersion" binding:"required"`
	SKU          *string           `json:"sku" binding:"omitempty,min=1,max=64"`
	Price        *types.Money      `json:"price"`
	Stock        *types.Quantity   `json:"stock"`
	Name         map[string]string `json:"name"`
	Descriptions map[string]string `json:"descriptions"`
}

// Apply copies the present fields onto p. An empty text removes the locale
// from Name.
func (r UpdateProductRequest) Apply(p *catalog.Product) error {
	if r.SKU != nil {
		p.SKU = *r.SKU
	}
	if r.Price != nil {
		p.Price = *r.Price
	}
	if r.Stock != nil {
		p.Stock = *r.Stock
	}
	for locale, text := range r.Name {
		if text == "" {
			p.Name.Remove(locale)
			continue
		}
		p.Name.Set(locale, text)
	}
	for locale, text := range r.Descriptions {
		p.Describe(locale, text)
	}
	return nil
}

// CloneProductRequest sets the SKU of the copy.
type CloneProductRequest struct {
	SKU string `json:"sku" binding:"required,max=64"`
}
