// Package storage executes tracked changes and queries against a relational
// store through database/sql.
package storage

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"persistkit/internal/mapping"
)

// Dialect describes the SQL flavour of a backend.
type Dialect struct {
	Name        string
	DriverName  string
	Placeholder squirrel.PlaceholderFormat
	// Returning reports whether INSERT ... RETURNING reads generated keys.
	// Without it, sql.Result.LastInsertId is used.
	Returning bool
}

var (
	Postgres = Dialect{Name: "postgres", DriverName: "pgx", Placeholder: squirrel.Dollar, Returning: true}
	SQLite   = Dialect{Name: "sqlite", DriverName: "sqlite", Placeholder: squirrel.Question}
	MySQL    = Dialect{Name: "mysql", DriverName: "mysql", Placeholder: squirrel.Question}
)

// DialectByName resolves "postgres", "sqlite" or "mysql".
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "mysql", "mariadb":
		return MySQL, nil
	}
	return Dialect{}, fmt.Errorf("storage: unknown dialect %q", name)
}

// Builder returns a squirrel statement builder using the dialect placeholders.
func (d Dialect) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(d.Placeholder)
}

var (
	timeType    = reflect.TypeFor[time.Time]()
	uuidType    = reflect.TypeFor[uuid.UUID]()
	bytesType   = reflect.TypeFor[[]byte]()
	decimalName = "decimal.Decimal"
)

// ColumnType returns the DDL type of a mapped column.
func (d Dialect) ColumnType(c mapping.Column, key bool) string {
	t := c.GoType
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch {
	case t == timeType:
		return d.pick("TIMESTAMPTZ", "DATETIME", "DATETIME(6)")
	case t == uuidType:
		return d.pick("UUID", "TEXT", "CHAR(36)")
	case t == bytesType:
		return d.pick("BYTEA", "BLOB", "BLOB")
	case t.String() == decimalName:
		return d.pick("NUMERIC(18,4)", "NUMERIC", "DECIMAL(18,4)")
	}
	switch t.Kind() {
	case reflect.Bool:
		return "BOOLEAN"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return d.pick("BIGINT", "INTEGER", "BIGINT")
	case reflect.Float32, reflect.Float64:
		return d.pick("DOUBLE PRECISION", "REAL", "DOUBLE")
	case reflect.String:
		if key {
			return d.pick("TEXT", "TEXT", "VARCHAR(191)")
		}
		return "TEXT"
	}
	return d.pick("JSONB", "TEXT", "JSON")
}

// IdentityColumn returns the DDL of a store-generated int64 primary key.
func (d Dialect) IdentityColumn(name string) string {
	return name + " " + d.pick(
		"BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY",
		"INTEGER PRIMARY KEY AUTOINCREMENT",
		"BIGINT AUTO_INCREMENT PRIMARY KEY",
	)
}

func (d Dialect) pick(postgres, sqlite, mysql string) string {
	switch d.Name {
	case SQLite.Name:
		return sqlite
	case MySQL.Name:
		return mysql
	default:
		return postgres
	}
}
