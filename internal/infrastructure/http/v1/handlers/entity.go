package handlers

import (
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"persistkit/internal/core/apperror"
	"persistkit/internal/domain"
	"persistkit/internal/infrastructure/http/v1/dto"
	"persistkit/internal/repository"
)

// EntityHandler serves the CRUD endpoints of one entity service.
type EntityHandler[T any, PT domain.Entity[T], CreateDTO any, UpdateDTO any, CloneDTO any] struct {
	*BaseHandler
	service *domain.Service[T, PT]
	cfg     EntityHandlerConfig[T, PT, CreateDTO, UpdateDTO, CloneDTO]
}

// EntityHandlerConfig maps between the entity and its DTOs.
type EntityHandlerConfig[T any, PT domain.Entity[T], CreateDTO any, UpdateDTO any, CloneDTO any] struct {
	MapCreate func(req CreateDTO) PT
	// Version returns the row version the client last read.
	Version  func(req UpdateDTO) uuid.UUID
	Apply    func(req UpdateDTO, e PT) error
	MapClone func(req CloneDTO, e PT)
	MapToDTO func(e PT) any
}

func NewEntityHandler[T any, PT domain.Entity[T], CreateDTO any, UpdateDTO any, CloneDTO any](
	base *BaseHandler,
	service *domain.Service[T, PT],
	cfg EntityHandlerConfig[T, PT, CreateDTO, UpdateDTO, CloneDTO],
) *EntityHandler[T, PT, CreateDTO, UpdateDTO, CloneDTO] {
	return &EntityHandler[T, PT, CreateDTO, UpdateDTO, CloneDTO]{BaseHandler: base, service: service, cfg: cfg}
}

// List handles GET /{entity}.
//
// Query: search, page, pageSize, orderBy (comma separated, "-" for
// descending), includeDeleted and filter, a JSON array of
// {"field","operator","value"} items.
func (h *EntityHandler[T, PT, CreateDTO, UpdateDTO, CloneDTO]) List(c *gin.Context) {
	crit := repository.Criteria{
		Search:   c.Query("search"),
		Page:     h.ParseIntQuery(c, "page", 1),
		PageSize: h.ParseIntQuery(c, "pageSize", repository.DefaultPageSize),
	}
	if orderBy := c.Query("orderBy"); orderBy != "" {
		crit.OrderBy = strings.Split(orderBy, ",")
	}
	if raw := c.Query("filter"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &crit.Filters); err != nil {
			h.Error(c, apperror.NewValidation("invalid filter format (json expected)"))
			return
		}
	}
	opts := domain.SearchOptions{IncludeDeleted: c.Query("includeDeleted") == "true"}

	result, err := h.service.List(c.Request.Context(), crit, opts)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]any, len(result.Items))
	for i, item := range result.Items {
		items[i] = h.cfg.MapToDTO(item)
	}
	h.OK(c, dto.NewListResponse(items, result.TotalCount, result.Page, result.PageSize))
}

// Get handles GET /{entity}/:id.
func (h *EntityHandler[T, PT, CreateDTO, UpdateDTO, CloneDTO]) Get(c *gin.Context) {
	id, ok := h.ParseID(c)
	if !ok {
		return
	}
	e, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, h.cfg.MapToDTO(e))
}

// Create handles POST /{entity}.
func (h *EntityHandler[T, PT, CreateDTO, UpdateDTO, CloneDTO]) Create(c *gin.Context) {
	var req CreateDTO
	if !h.BindJSON(c, &req) {
		return
	}
	e := h.cfg.MapCreate(req)
	if err := h.service.Create(c.Request.Context(), e); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, h.cfg.MapToDTO(e))
}

// Update handles PUT /{entity}/:id. A stale row version answers 409.
func (h *EntityHandler[T, PT, CreateDTO, UpdateDTO, CloneDTO]) Update(c *gin.Context) {
	id, ok := h.ParseID(c)
	if !ok {
		return
	}
	var req UpdateDTO
	if !h.BindJSON(c, &req) {
		return
	}
	e, err := h.service.Update(c.Request.Context(), id, h.cfg.Version(req), func(e PT) error {
		return h.cfg.Apply(req, e)
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, h.cfg.MapToDTO(e))
}

// Delete handles DELETE /{entity}/:id. Soft-deletable entities are flagged.
func (h *EntityHandler[T, PT, CreateDTO, UpdateDTO, CloneDTO]) Delete(c *gin.Context) {
	id, ok := h.ParseID(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// Purge handles DELETE /{entity}/:id/purge.
func (h *EntityHandler[T, PT, CreateDTO, UpdateDTO, CloneDTO]) Purge(c *gin.Context) {
	id, ok := h.ParseID(c)
	if !ok {
		return
	}
	if err := h.service.Purge(c.Request.Context(), id); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// Clone handles POST /{entity}/:id/clone.
func (h *EntityHandler[T, PT, CreateDTO, UpdateDTO, CloneDTO]) Clone(c *gin.Context) {
	id, ok := h.ParseID(c)
	if !ok {
		return
	}
	var req CloneDTO
	if !h.BindJSON(c, &req) {
		return
	}
	e, err := h.service.Clone(c.Request.Context(), id, func(e PT) { h.cfg.MapClone(req, e) })
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, h.cfg.MapToDTO(e))
}
