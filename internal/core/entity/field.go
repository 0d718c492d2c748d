// Package entity declares the persistence capabilities an entity type can opt into.
//
// Capabilities are plain interfaces discovered by type assertion on *T when the
// model is built. Each capability hands out typed Field handles so behaviors can
// read and stamp values without knowing the concrete key types; the key types
// themselves are described by the closed ValueKind set.
package entity

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ValueKind is the closed set of value types a capability field can carry.
type ValueKind uint8

const (
	KindUnknown ValueKind = iota
	KindInt64
	KindString
	KindUUID
	KindTime
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindInt64:
		return "int64"
	case KindString:
		return "string"
	case KindUUID:
		return "uuid"
	case KindTime:
		return "time"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Key is the set of Go types usable as identifier, user, tenant and locale values.
type Key interface {
	int64 | string | uuid.UUID
}

// KindOf reports the ValueKind of a key type.
func KindOf[V Key]() ValueKind {
	var zero V
	switch any(zero).(type) {
	case int64:
		return KindInt64
	case string:
		return KindString
	case uuid.UUID:
		return KindUUID
	}
	return KindUnknown
}

// KindOfValue reports the ValueKind of a runtime value, KindUnknown for anything else.
func KindOfValue(v any) ValueKind {
	switch v.(type) {
	case int64:
		return KindInt64
	case string:
		return KindString
	case uuid.UUID:
		return KindUUID
	case time.Time:
		return KindTime
	case bool:
		return KindBool
	}
	return KindUnknown
}

// ErrKindMismatch is returned when a value of the wrong kind is assigned to a Field.
var ErrKindMismatch = errors.New("entity: value kind mismatch")

// Field is a typed handle to one mapped column of an entity instance.
type Field struct {
	Column   string
	Kind     ValueKind
	Nullable bool

	get  func() any
	set  func(any) error
	zero func() bool
}

// Valid reports whether the handle is bound to an entity.
func (f Field) Valid() bool { return f.get != nil }

// Get returns the current value; nullable fields return nil when unset.
func (f Field) Get() any {
	if f.get == nil {
		return nil
	}
	return f.get()
}

// Set assigns v. Nullable fields accept nil to clear the value.
func (f Field) Set(v any) error {
	if f.set == nil {
		return fmt.Errorf("entity: field %q is not bound", f.Column)
	}
	return f.set(v)
}

// IsZero reports whether the field holds its zero value (nil for nullable fields).
func (f Field) IsZero() bool {
	if f.zero == nil {
		return true
	}
	return f.zero()
}

func mismatch(column string, want ValueKind, got any) error {
	return fmt.Errorf("%w: column %q expects %s, got %T", ErrKindMismatch, column, want, got)
}

// KeyField binds a required key-typed column.
func KeyField[V Key](column string, p *V) Field {
	kind := KindOf[V]()
	return Field{
		Column: column,
		Kind:   kind,
		get:    func() any { return *p },
		set: func(v any) error {
			tv, ok := v.(V)
			if !ok {
				return mismatch(column, kind, v)
			}
			*p = tv
			return nil
		},
		zero: func() bool {
			var z V
			return *p == z
		},
	}
}

// OptionalKeyField binds a nullable key-typed column stored as *V.
func OptionalKeyField[V Key](column string, p **V) Field {
	kind := KindOf[V]()
	return Field{
		Column:   column,
		Kind:     kind,
		Nullable: true,
		get: func() any {
			if *p == nil {
				return nil
			}
			return **p
		},
		set: func(v any) error {
			switch tv := v.(type) {
			case nil:
				*p = nil
			case V:
				*p = &tv
			case *V:
				*p = tv
			default:
				return mismatch(column, kind, v)
			}
			return nil
		},
		zero: func() bool { return *p == nil },
	}
}

// TimeField binds a required timestamp column.
func TimeField(column string, p *time.Time) Field {
	return Field{
		Column: column,
		Kind:   KindTime,
		get:    func() any { return *p },
		set: func(v any) error {
			t, ok := v.(time.Time)
			if !ok {
				return mismatch(column, KindTime, v)
			}
			*p = t
			return nil
		},
		zero: func() bool { return p.IsZero() },
	}
}

// OptionalTimeField binds a nullable timestamp column stored as *time.Time.
func OptionalTimeField(column string, p **time.Time) Field {
	return Field{
		Column:   column,
		Kind:     KindTime,
		Nullable: true,
		get: func() any {
			if *p == nil {
				return nil
			}
			return **p
		},
		set: func(v any) error {
			switch t := v.(type) {
			case nil:
				*p = nil
			case time.Time:
				*p = &t
			case *time.Time:
				*p = t
			default:
				return mismatch(column, KindTime, v)
			}
			return nil
		},
		zero: func() bool { return *p == nil },
	}
}

// BoolField binds a required boolean column.
func BoolField(column string, p *bool) Field {
	return Field{
		Column: column,
		Kind:   KindBool,
		get:    func() any { return *p },
		set: func(v any) error {
			b, ok := v.(bool)
			if !ok {
				return mismatch(column, KindBool, v)
			}
			*p = b
			return nil
		},
		zero: func() bool { return !*p },
	}
}
