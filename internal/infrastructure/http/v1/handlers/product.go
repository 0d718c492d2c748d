package handlers

import (
	"github.com/google/uuid"

	"persistkit/internal/domain"
	"persistkit/internal/domain/catalog"
	"persistkit/internal/infrastructure/http/v1/dto"
)

type ProductHandler = EntityHandler[catalog.Product, *catalog.Product, dto.CreateProductRequest, dto.UpdateProductRequest, dto.CloneProductRequest]

func NewProductHandler(base *BaseHandler, service *domain.Service[catalog.Product, *catalog.Product]) *ProductHandler {
	return NewEntityHandler(base, service, EntityHandlerConfig[catalog.Product, *catalog.Product, dto.CreateProductRequest, dto.UpdateProductRequest, dto.CloneProductRequest]{
		MapCreate: dto.CreateProductRequest.ToProduct,
		Version:   func(req dto.UpdateProductRequest) uuid.UUID { return req.RowVersion },
		Apply:     dto.UpdateProductRequest.Apply,
		MapClone:  func(req dto.CloneProductRequest, p *catalog.Product) { p.SKU = req.SKU },
		MapToDTO:  func(p *catalog.Product) any { return dto.FromProduct(p) },
	})
}
