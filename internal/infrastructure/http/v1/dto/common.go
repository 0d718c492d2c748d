// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"time"

	"github.com/google/uuid"

	"persistkit/internal/core/entity"
)

// ListResponse wraps one page of results.
type ListResponse struct {
	Items      any   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalPages int   `json:"totalPages"`
}

// NewListResponse computes the page count from the total.
func NewListResponse(items any, total int64, page, pageSize int) ListResponse {
	pages := 0
	if pageSize > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return ListResponse{Items: items, TotalCount: total, Page: page, PageSize: pageSize, TotalPages: pages}
}

// AuditResponse carries the bookkeeping columns every stored entity exposes.
type AuditResponse struct {
	ID         string     `json:"id"`
	RowVersion string     `json:"rowVersion"`
	IsDeleted  bool       `json:"isDeleted"`
	CreatedAt  time.Time  `json:"createdAt"`
	CreatedBy  string     `json:"createdBy,omitempty"`
	ModifiedAt *time.Time `json:"modifiedAt,omitempty"`
	ModifiedBy *string    `json:"modifiedBy,omitempty"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty"`
}

// FromTraits fills an AuditResponse from the standard entity traits.
func FromTraits(
	id entity.Identity[uuid.UUID],
	created entity.Created[string],
	modified entity.Modified[string],
	deleted entity.SoftDelete[string],
	version entity.RowVersion,
) AuditResponse {
	return AuditResponse{
		ID:         id.ID.String(),
		RowVersion: version.Version.String(),
		IsDeleted:  deleted.IsDeleted,
		CreatedAt:  created.CreatedAt,
		CreatedBy:  created.CreatedBy,
		ModifiedAt: modified.ModifiedAt,
		ModifiedBy: modified.ModifiedBy,
		DeletedAt:  deleted.DeletedAt,
	}
}

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
