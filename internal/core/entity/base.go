package entity

import "context"

// Validatable is implemented by entities that support self-validation.
// Validation checks internal invariants without database access.
type Validatable interface {
	// Validate returns nil if valid, an AppError with details otherwise.
	Validate(ctx context.Context) error
}
