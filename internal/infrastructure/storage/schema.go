package storage

import (
	"context"
	"fmt"
	"strings"

	"persistkit/internal/core/entity"
	"persistkit/internal/mapping"
	"persistkit/pkg/logger"
)

// EnsureCreated creates the tables of model that do not exist yet, including
// the tables of owned translated properties. It never alters existing tables.
func EnsureCreated(ctx context.Context, db *DB, model *mapping.Model) error {
	for _, stmt := range CreateStatements(db.Dialect, model) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	logger.Info(ctx, "schema ensured", "model", model.Name(), "dialect", db.Dialect.Name)
	return nil
}

// CreateStatements renders CREATE TABLE IF NOT EXISTS statements for model.
func CreateStatements(d Dialect, model *mapping.Model) []string {
	foreignKeys := make(map[*mapping.EntityType][]string)
	for _, et := range model.EntityTypes() {
		if len(et.Key()) != 1 {
			continue
		}
		for _, nav := range et.Navigations() {
			fk := "FOREIGN KEY (" + nav.ForeignKey + ") REFERENCES " + et.Table() + " (" + et.Key()[0] + ")"
			if nav.CascadeDelete {
				fk += " ON DELETE CASCADE"
			}
			foreignKeys[nav.Target] = append(foreignKeys[nav.Target], fk)
		}
	}

	var stmts []string
	for _, et := range model.EntityTypes() {
		stmts = append(stmts, createTable(d, et, foreignKeys[et]))
		for _, o := range et.OwnedCollections() {
			stmts = append(stmts, createOwnedTable(d, et, o))
		}
	}
	return stmts
}

func createTable(d Dialect, et *mapping.EntityType, foreignKeys []string) string {
	key := et.Key()
	identity := len(key) == 1 && et.KeyGeneration() == mapping.KeyGeneratedByStore

	isKey := make(map[string]bool, len(key))
	for _, k := range key {
		isKey[k] = true
	}

	var defs []string
	for _, c := range et.Columns() {
		if identity && c.Name == key[0] {
			defs = append(defs, d.IdentityColumn(c.Name))
			continue
		}
		def := c.Name + " " + d.ColumnType(c, isKey[c.Name])
		if c.Required || !c.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if !identity && len(key) > 0 {
		defs = append(defs, "PRIMARY KEY ("+strings.Join(key, ", ")+")")
	}
	defs = append(defs, foreignKeys...)
	return "CREATE TABLE IF NOT EXISTS " + et.Table() + " (\n\t" + strings.Join(defs, ",\n\t") + "\n)"
}

func createOwnedTable(d Dialect, owner *mapping.EntityType, o *mapping.OwnedCollection) string {
	ownerKey, _ := owner.Column(owner.Key()[0])
	ownerKey.Nullable = false

	localeType := "TEXT"
	if d.Name == MySQL.Name {
		localeType = "VARCHAR(64)"
	}
	switch o.LocaleKind {
	case entity.KindInt64:
		localeType = d.pick("BIGINT", "INTEGER", "BIGINT")
	case entity.KindUUID:
		localeType = d.pick("UUID", "TEXT", "CHAR(36)")
	}

	defs := []string{
		o.OwnerColumn + " " + d.ColumnType(ownerKey, true) + " NOT NULL",
		o.LocaleColumn + " " + localeType + " NOT NULL",
		o.TextColumn + " TEXT NOT NULL",
		"PRIMARY KEY (" + o.OwnerColumn + ", " + o.LocaleColumn + ")",
		"FOREIGN KEY (" + o.OwnerColumn + ") REFERENCES " + owner.Table() + " (" + owner.Key()[0] + ") ON DELETE CASCADE",
	}
	return "CREATE TABLE IF NOT EXISTS " + o.Table + " (\n\t" + strings.Join(defs, ",\n\t") + "\n)"
}
