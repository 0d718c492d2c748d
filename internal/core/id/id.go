// Package id generates the values of generated keys and concurrency tokens.
package id

import "github.com/google/uuid"

// ID is the uuid type used for generated keys and row versions.
type ID = uuid.UUID

// New returns a UUIDv7, so generated keys sort by creation time.
func New() ID {
	if v, err := uuid.NewV7(); err == nil {
		return v
	}
	return uuid.New()
}

// IsNil reports whether v is the zero uuid, the marker of an unset key or token.
func IsNil(v ID) bool {
	return v == uuid.Nil
}
