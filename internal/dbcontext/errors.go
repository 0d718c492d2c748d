package dbcontext

import (
	"persistkit/internal/core/apperror"
	"persistkit/internal/dberror"
)

// RowVersioningError reports a concurrency-token mismatch during save.
type RowVersioningError struct {
	Message string
	Err     error
}

func (e *RowVersioningError) Error() string { return "row versioning conflict: " + e.Message }
func (e *RowVersioningError) Unwrap() error { return e.Err }

// AppError converts the failure for API responses.
func (e *RowVersioningError) AppError() *apperror.AppError {
	return apperror.NewRowVersionConflict(e.Message).WithCause(e)
}

// DuplicateKeyError reports a unique or primary key violation during save.
type DuplicateKeyError struct {
	Info *dberror.Info
}

func (e *DuplicateKeyError) Error() string {
	msg := "duplicate key"
	if e.Info.Constraint != "" {
		msg += " (" + e.Info.Constraint + ")"
	}
	return msg + ": " + e.Info.Err.Error()
}

func (e *DuplicateKeyError) Unwrap() error { return e.Info.Err }

// AppError converts the failure for API responses.
func (e *DuplicateKeyError) AppError() *apperror.AppError {
	ae := apperror.NewDuplicateKey(e.Info.Constraint).WithCause(e)
	if e.Info.Table != "" {
		ae.WithDetail("table", e.Info.Table)
	}
	return ae
}
