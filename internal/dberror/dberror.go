// Package dberror classifies driver errors raised by a failed save into a
// small provider-independent taxonomy.
//
// Handlers recognise driver error types by package and type name through
// reflection, so no driver has to be linked in for its errors to be
// classified. The first handler of a Chain that recognises a failure wins.
package dberror

import (
	"errors"
	"path"
	"reflect"
	"strings"
)

// Kind is the classification of a database failure.
type Kind int

const (
	Unknown Kind = iota
	DuplicateKey
	ForeignKeyViolation
	NotNullViolation
	CheckViolation
	Deadlock
	// Retryable covers serialization failures and lock timeouts.
	Retryable
)

func (k Kind) String() string {
	switch k {
	case DuplicateKey:
		return "duplicate_key"
	case ForeignKeyViolation:
		return "foreign_key_violation"
	case NotNullViolation:
		return "not_null_violation"
	case CheckViolation:
		return "check_violation"
	case Deadlock:
		return "deadlock"
	case Retryable:
		return "retryable"
	default:
		return "unknown"
	}
}

// Info is the classification result of one failure.
type Info struct {
	Kind    Kind
	Message string

	// Provider names the backend whose handler recognised the failure.
	Provider string

	SQLState     string
	Number       int
	Constraint   string
	Table        string
	Schema       string
	ConnectionID string

	// Err is the classified failure itself.
	Err error
}

// IsRetryable reports whether repeating the unit of work may succeed.
func (i *Info) IsRetryable() bool {
	return i.Kind == Deadlock || i.Kind == Retryable
}

// Handler recognises the failures of one provider.
type Handler interface {
	Provider() string
	// Classify returns false when err carries no recognised failure of this provider.
	Classify(err error) (*Info, bool)
}

// Chain tries its handlers in order.
type Chain struct {
	handlers []Handler
}

// NewChain creates a chain of handlers.
func NewChain(handlers ...Handler) *Chain {
	return &Chain{handlers: handlers}
}

// DefaultChain covers Postgres (pgx and lib/pq), SQL Server, MySQL and SQLite.
func DefaultChain() *Chain {
	return NewChain(Postgres{}, SQLServer{}, MySQL{}, SQLite{})
}

// Append adds handlers after the existing ones.
func (c *Chain) Append(handlers ...Handler) *Chain {
	c.handlers = append(c.handlers, handlers...)
	return c
}

// Classify never returns nil. Unrecognised failures are Unknown with no
// diagnostic fields set.
func (c *Chain) Classify(err error) *Info {
	if err == nil {
		return nil
	}
	for _, h := range c.handlers {
		if info, ok := h.Classify(err); ok {
			info.Provider = h.Provider()
			info.Err = err
			return info
		}
	}
	return &Info{Kind: Unknown, Message: err.Error(), Err: err}
}

// causes lists err and every error it wraps, outermost first.
func causes(err error) []error {
	var out []error
	var walk func(error)
	walk = func(e error) {
		for e != nil {
			out = append(out, e)
			switch x := e.(type) {
			case interface{ Unwrap() []error }:
				for _, inner := range x.Unwrap() {
					walk(inner)
				}
				return
			default:
				e = errors.Unwrap(e)
			}
		}
	}
	walk(err)
	return out
}

// findByName returns the first error in the chain whose type is named name
// and declared in a package whose last path element is pkg.
func findByName(err error, pkg string, names ...string) (reflect.Value, bool) {
	for _, e := range causes(err) {
		t := reflect.TypeOf(e)
		v := reflect.ValueOf(e)
		if t.Kind() == reflect.Pointer {
			if v.IsNil() {
				continue
			}
			t = t.Elem()
			v = v.Elem()
		}
		if path.Base(t.PkgPath()) != pkg {
			continue
		}
		for _, n := range names {
			if t.Name() == n {
				return v, true
			}
		}
	}
	return reflect.Value{}, false
}

func fieldString(v reflect.Value, names ...string) string {
	for _, n := range names {
		if v.Kind() != reflect.Struct {
			return ""
		}
		f := v.FieldByName(n)
		if !f.IsValid() {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			return f.String()
		case reflect.Array:
			if f.Type().Elem().Kind() == reflect.Uint8 {
				b := make([]byte, f.Len())
				for i := range b {
					b[i] = byte(f.Index(i).Uint())
				}
				return strings.TrimRight(string(b), "\x00")
			}
		}
	}
	return ""
}

func fieldInt(v reflect.Value, names ...string) (int, bool) {
	if v.Kind() != reflect.Struct {
		return 0, false
	}
	for _, n := range names {
		f := v.FieldByName(n)
		if !f.IsValid() {
			continue
		}
		switch f.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return int(f.Int()), true
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return int(f.Uint()), true
		}
	}
	return 0, false
}

// methodInt calls a niladic method returning an integer, on the value or its address.
func methodInt(v reflect.Value, name string) (int, bool) {
	m := v.MethodByName(name)
	if !m.IsValid() && v.CanAddr() {
		m = v.Addr().MethodByName(name)
	}
	if !m.IsValid() || m.Type().NumIn() != 0 || m.Type().NumOut() != 1 {
		return 0, false
	}
	out := m.Call(nil)[0]
	switch out.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(out.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(out.Uint()), true
	}
	return 0, false
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
