package tracking

import (
	"maps"

	"persistkit/internal/core/entity"
	"persistkit/internal/mapping"
)

// EntityState is the change-tracking state of an entity instance.
type EntityState int

const (
	Detached EntityState = iota
	Unchanged
	Added
	Modified
	Deleted
)

func (s EntityState) String() string {
	switch s {
	case Unchanged:
		return "Unchanged"
	case Added:
		return "Added"
	case Modified:
		return "Modified"
	case Deleted:
		return "Deleted"
	default:
		return "Detached"
	}
}

// Entry is the tracking record of one entity instance.
type Entry struct {
	entity   any
	et       *mapping.EntityType
	state    EntityState
	original map[string]any
	// allModified marks entries passed to Update: every column is written.
	allModified bool
	// cascadedFrom is the owner whose deletion cascaded to this entry.
	cascadedFrom *Entry

	tracker *ChangeTracker
}

func (e *Entry) Entity() any                     { return e.entity }
func (e *Entry) EntityType() *mapping.EntityType { return e.et }
func (e *Entry) State() EntityState              { return e.state }

// SetState moves the entry to s. Setting Detached stops tracking it.
func (e *Entry) SetState(s EntityState) {
	if s == Detached {
		e.tracker.detach(e)
		return
	}
	if e.state == Detached {
		e.tracker.attach(e)
	}
	if s != Modified {
		e.allModified = false
	}
	e.state = s
}

// OriginalValue returns the snapshot value of column.
func (e *Entry) OriginalValue(column string) any {
	return e.original[column]
}

// SetOriginalValue overwrites the snapshot value of column.
func (e *Entry) SetOriginalValue(column string, v any) {
	if e.original == nil {
		e.original = make(map[string]any)
	}
	e.original[column] = v
}

// OriginalValues returns a copy of the snapshot.
func (e *Entry) OriginalValues() map[string]any {
	return maps.Clone(e.original)
}

// CurrentValues reads the column values of the entity now. Owned translated
// properties are included under their OwnedKey.
func (e *Entry) CurrentValues() map[string]any {
	values := mapping.ColumnValues(e.entity)
	for _, o := range e.et.OwnedCollections() {
		values[OwnedKey(o)] = o.Value(e.entity).Entries()
	}
	return values
}

// OwnedKey is the snapshot key of an owned translated property.
func OwnedKey(o *mapping.OwnedCollection) string {
	return "#" + o.Property
}

// CurrentValue reads one column of the entity now.
func (e *Entry) CurrentValue(column string) any {
	return e.CurrentValues()[column]
}

// ModifiedColumns lists the non-key columns whose value differs from the
// snapshot, or every non-key column for entries passed to Update.
func (e *Entry) ModifiedColumns() []string {
	key := make(map[string]bool, len(e.et.Key()))
	for _, k := range e.et.Key() {
		key[k] = true
	}
	current := e.CurrentValues()
	var out []string
	for _, c := range e.et.Columns() {
		if key[c.Name] {
			continue
		}
		if e.allModified || !mapping.SameValue(e.original[c.Name], current[c.Name]) {
			out = append(out, c.Name)
		}
	}
	return out
}

// HasChanges reports whether any column or owned property differs from the snapshot.
func (e *Entry) HasChanges() bool {
	current := e.CurrentValues()
	for k, v := range current {
		if !mapping.SameValue(e.original[k], v) {
			return true
		}
	}
	return false
}

// OwnedChanged reports whether the owned property differs from the snapshot.
func (e *Entry) OwnedChanged(o *mapping.OwnedCollection) bool {
	return e.allModified || !mapping.SameValue(e.original[OwnedKey(o)], o.Value(e.entity).Entries())
}

// AcceptChanges takes a new snapshot after a successful save. Deleted entries
// stop being tracked; everything else becomes Unchanged.
func (e *Entry) AcceptChanges() {
	if e.state == Deleted {
		e.tracker.detach(e)
		return
	}
	e.original = e.CurrentValues()
	e.allModified = false
	e.cascadedFrom = nil
	e.state = Unchanged
}

// Revert writes the snapshot back into the entity and marks it Unchanged.
func (e *Entry) Revert() error {
	for _, c := range e.et.Columns() {
		if err := mapping.SetColumnValue(e.entity, c.Name, e.original[c.Name]); err != nil {
			return err
		}
	}
	for _, o := range e.et.OwnedCollections() {
		entries, _ := e.original[OwnedKey(o)].([]entity.TextEntry)
		if err := o.Value(e.entity).Load(entries); err != nil {
			return err
		}
	}
	e.allModified = false
	e.cascadedFrom = nil
	e.state = Unchanged
	return nil
}

// CascadedFrom returns the owner whose deletion cascaded to this entry.
func (e *Entry) CascadedFrom() *Entry { return e.cascadedFrom }
