package mapping

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/iancoleman/strcase"
	"github.com/jinzhu/inflection"
)

// Column describes one mapped column of an entity type.
type Column struct {
	Name     string
	GoType   reflect.Type
	Nullable bool
	Required bool

	index []int
}

// IsText reports whether the column holds a string (free-text searchable).
func (c Column) IsText() bool {
	t := c.GoType
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.String
}

// typeColumns is the cached column metadata of a struct type.
type typeColumns struct {
	columns []Column
	index   map[string]int
}

// Global cache for column metadata (thread-safe).
var columnCache sync.Map // map[reflect.Type]*typeColumns

// columnsOf returns the cached columns of struct type t.
// It is called once per type at model build, then metadata is reused by every
// snapshot and write.
func columnsOf(t reflect.Type) *typeColumns {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := columnCache.Load(t); ok {
		return cached.(*typeColumns)
	}

	meta := &typeColumns{index: make(map[string]int)}
	if t.Kind() == reflect.Struct {
		collectColumns(t, nil, meta)
	}
	actual, _ := columnCache.LoadOrStore(t, meta)
	return actual.(*typeColumns)
}

// collectColumns walks exported fields recursively. Embedded structs (the
// entity traits) contribute their columns; fields without a "db" tag or with
// "-" are not mapped. The first occurrence of a column name wins.
func collectColumns(t reflect.Type, prefix []int, meta *typeColumns) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		path := append(append([]int(nil), prefix...), i)

		tag := field.Tag.Get("db")
		if field.Anonymous && field.Type.Kind() == reflect.Struct && tag == "" {
			collectColumns(field.Type, path, meta)
			continue
		}
		if !field.IsExported() || tag == "" || tag == "-" {
			continue
		}
		if _, dup := meta.index[tag]; dup {
			continue
		}

		meta.index[tag] = len(meta.columns)
		meta.columns = append(meta.columns, Column{
			Name:     tag,
			GoType:   field.Type,
			Nullable: field.Type.Kind() == reflect.Ptr,
			index:    path,
		})
	}
}

// ColumnValues converts an entity to a column -> value map using "db" tags.
// Pointer fields are dereferenced (nil stays nil) so that snapshots compare
// values, not addresses.
func ColumnValues(e any) map[string]any {
	rv := reflect.ValueOf(e)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	meta := columnsOf(rv.Type())
	res := make(map[string]any, len(meta.columns))
	for _, c := range meta.columns {
		fv := rv.FieldByIndex(c.index)
		if fv.Kind() == reflect.Ptr {
			if fv.IsNil() {
				res[c.Name] = nil
				continue
			}
			fv = fv.Elem()
		}
		res[c.Name] = fv.Interface()
	}
	return res
}

// SameValue compares two column values the way change detection needs:
// timestamps by instant, byte slices by content, everything else deeply.
func SameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// DefaultTableName derives the table name from the Go type name:
// ProductCategory -> product_categories.
func DefaultTableName(typeName string) string {
	return strcase.ToSnake(inflection.Plural(typeName))
}

// SetColumnValue assigns v to the field mapped to column. Nil clears nullable
// fields; values are converted when the Go types are convertible.
func SetColumnValue(e any, column string, v any) error {
	rv := reflect.ValueOf(e)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("mapping: set %q on non-pointer %T", column, e)
	}
	rv = rv.Elem()
	meta := columnsOf(rv.Type())
	i, ok := meta.index[column]
	if !ok {
		return fmt.Errorf("mapping: %s has no column %q", rv.Type().Name(), column)
	}
	fv := rv.FieldByIndex(meta.columns[i].index)

	if v == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	target := fv.Type()
	if target.Kind() == reflect.Ptr {
		target = target.Elem()
	}
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			fv.Set(reflect.Zero(fv.Type()))
			return nil
		}
		val = val.Elem()
	}
	if !val.Type().AssignableTo(target) {
		if !val.Type().ConvertibleTo(target) {
			return fmt.Errorf("mapping: cannot assign %T to column %q", v, column)
		}
		val = val.Convert(target)
	}
	if fv.Kind() == reflect.Ptr {
		p := reflect.New(target)
		p.Elem().Set(val)
		fv.Set(p)
		return nil
	}
	fv.Set(val)
	return nil
}
