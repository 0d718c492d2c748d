// Package tracking keeps the unit-of-work state of a persistence context:
// which entity instances are new, changed or removed since they were loaded.
package tracking

import (
	"fmt"

	"persistkit/internal/ambient"
	"persistkit/internal/core/apperror"
	"persistkit/internal/mapping"
)

// CascadeTiming controls when deleting an owner deletes its tracked dependents.
type CascadeTiming int

const (
	// CascadeImmediate marks dependents Deleted as soon as the owner is removed.
	CascadeImmediate CascadeTiming = iota
	// CascadeOnSaveChanges defers the cascade until CascadeChanges runs.
	CascadeOnSaveChanges
)

// ChangeTracker tracks entity instances of one persistence context.
// It is not safe for concurrent use.
type ChangeTracker struct {
	model    *mapping.Model
	entries  []*Entry
	byEntity map[any]*Entry
	deferred *ambient.Toggle
}

// NewChangeTracker creates an empty tracker over model.
func NewChangeTracker(model *mapping.Model) *ChangeTracker {
	return &ChangeTracker{
		model:    model,
		byEntity: make(map[any]*Entry),
		deferred: ambient.NewToggle(false),
	}
}

// Model returns the mapping the tracker works with.
func (t *ChangeTracker) Model() *mapping.Model { return t.model }

// CascadeDeleteTiming returns the current cascade timing.
func (t *ChangeTracker) CascadeDeleteTiming() CascadeTiming {
	if t.deferred.Value() {
		return CascadeOnSaveChanges
	}
	return CascadeImmediate
}

// SetCascadeDeleteTiming switches the cascade timing permanently.
func (t *ChangeTracker) SetCascadeDeleteTiming(timing CascadeTiming) {
	t.deferred.Set(timing == CascadeOnSaveChanges)
}

// DeferCascades switches to CascadeOnSaveChanges until the returned action is restored.
//
//	defer tracker.DeferCascades().Restore()
func (t *ChangeTracker) DeferCascades() *ambient.RestoreAction {
	return t.deferred.Set(true)
}

// Entries returns the tracked entries in tracking order.
func (t *ChangeTracker) Entries() []*Entry {
	out := make([]*Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// EntriesIn returns the tracked entries in any of the given states.
func (t *ChangeTracker) EntriesIn(states ...EntityState) []*Entry {
	var out []*Entry
	for _, e := range t.entries {
		for _, s := range states {
			if e.state == s {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// HasChanges reports whether any entry is Added, Modified or Deleted.
func (t *ChangeTracker) HasChanges() bool {
	return len(t.EntriesIn(Added, Modified, Deleted)) > 0
}

// Entry returns the entry of e. Untracked instances get a Detached entry.
func (t *ChangeTracker) Entry(e any) (*Entry, error) {
	if entry, ok := t.byEntity[e]; ok {
		return entry, nil
	}
	et, ok := t.model.EntityTypeOf(e)
	if !ok {
		return nil, apperror.NewInvalidOperation(fmt.Sprintf("type %T is not part of model %s", e, t.model.Name()))
	}
	return &Entry{entity: e, et: et, state: Detached, tracker: t}, nil
}

// Tracked returns the entry of e if it is tracked.
func (t *ChangeTracker) Tracked(e any) (*Entry, bool) {
	entry, ok := t.byEntity[e]
	return entry, ok
}

// FindTracked returns the tracked entry of et with the given key values.
func (t *ChangeTracker) FindTracked(et *mapping.EntityType, key []any) (*Entry, bool) {
	for _, e := range t.entries {
		if e.et != et {
			continue
		}
		if sameKey(et.KeyValues(e.entity), key) {
			return e, true
		}
	}
	return nil, false
}

func sameKey(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !mapping.SameValue(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Add starts tracking e as Added, together with its dependents.
func (t *ChangeTracker) Add(e any) (*Entry, error) {
	entry, err := t.Entry(e)
	if err != nil {
		return nil, err
	}
	switch entry.state {
	case Detached:
		entry.SetState(Added)
	case Deleted:
		entry.SetState(Modified)
	}
	return entry, t.trackDependents(entry, Added)
}

// Attach starts tracking e as Unchanged with a snapshot of its current values.
func (t *ChangeTracker) Attach(e any) (*Entry, error) {
	entry, err := t.Entry(e)
	if err != nil {
		return nil, err
	}
	if entry.state == Detached {
		entry.original = entry.CurrentValues()
		entry.SetState(Unchanged)
	}
	return entry, t.trackDependents(entry, Unchanged)
}

// Update tracks e as Modified so every column is written. Instances with a
// store-generated key still at zero are tracked as Added.
func (t *ChangeTracker) Update(e any) (*Entry, error) {
	entry, err := t.Entry(e)
	if err != nil {
		return nil, err
	}
	if entry.state == Detached && t.keyUnset(entry) {
		return t.Add(e)
	}
	if entry.state == Detached {
		entry.original = entry.CurrentValues()
	}
	if entry.state != Added {
		entry.SetState(Modified)
		entry.allModified = true
	}
	return entry, t.trackDependents(entry, Unchanged)
}

// Remove marks e Deleted. Added instances simply stop being tracked.
func (t *ChangeTracker) Remove(e any) (*Entry, error) {
	entry, err := t.Entry(e)
	if err != nil {
		return nil, err
	}
	switch entry.state {
	case Added:
		entry.SetState(Detached)
		return entry, nil
	case Detached:
		entry.original = entry.CurrentValues()
	}
	entry.SetState(Deleted)
	if t.CascadeDeleteTiming() == CascadeImmediate {
		t.cascade(entry)
	}
	return entry, nil
}

// Detach stops tracking e.
func (t *ChangeTracker) Detach(e any) {
	if entry, ok := t.byEntity[e]; ok {
		t.detach(entry)
	}
}

// DetectChanges promotes Unchanged entries with changed values to Modified
// and starts tracking dependents appended to tracked owners.
func (t *ChangeTracker) DetectChanges() error {
	for _, e := range t.Entries() {
		if e.state == Unchanged && e.HasChanges() {
			e.state = Modified
		}
		if e.state == Added || e.state == Modified || e.state == Unchanged {
			if err := t.trackDependents(e, Added); err != nil {
				return err
			}
		}
	}
	return nil
}

// CascadeChanges applies deferred cascades of Deleted owners.
func (t *ChangeTracker) CascadeChanges() {
	for _, e := range t.EntriesIn(Deleted) {
		t.cascade(e)
	}
}

// PendingCascades lists the tracked dependents that CascadeChanges would
// delete, without changing any state. Added dependents are left out since
// the cascade detaches them.
func (t *ChangeTracker) PendingCascades() []*Entry {
	var out []*Entry
	seen := make(map[*Entry]bool)
	var walk func(owner *Entry)
	walk = func(owner *Entry) {
		for _, nav := range owner.et.Navigations() {
			if !nav.CascadeDelete || nav.Collection == nil {
				continue
			}
			for _, rec := range nav.Collection(owner.entity).Records() {
				child, ok := t.byEntity[any(rec)]
				if !ok || seen[child] || child.state == Deleted || child.state == Added {
					continue
				}
				seen[child] = true
				out = append(out, child)
				walk(child)
			}
		}
	}
	for _, e := range t.EntriesIn(Deleted) {
		walk(e)
	}
	return out
}

// RestoreCascaded brings dependents back that owner's deletion cascaded to.
func (t *ChangeTracker) RestoreCascaded(owner *Entry) {
	for _, e := range t.entries {
		if e.cascadedFrom == owner && e.state == Deleted {
			e.cascadedFrom = nil
			e.state = Unchanged
		}
	}
}

// Clear stops tracking everything.
func (t *ChangeTracker) Clear() {
	for _, e := range t.entries {
		e.state = Detached
	}
	t.entries = nil
	t.byEntity = make(map[any]*Entry)
}

func (t *ChangeTracker) cascade(owner *Entry) {
	for _, nav := range owner.et.Navigations() {
		if !nav.CascadeDelete || nav.Collection == nil {
			continue
		}
		for _, rec := range nav.Collection(owner.entity).Records() {
			child, ok := t.byEntity[any(rec)]
			if !ok || child.state == Deleted {
				continue
			}
			if child.state == Added {
				t.detach(child)
				continue
			}
			child.state = Deleted
			child.cascadedFrom = owner
			t.cascade(child)
		}
	}
}

// trackDependents tracks untracked navigation records of owner in state.
func (t *ChangeTracker) trackDependents(owner *Entry, state EntityState) error {
	for _, nav := range owner.et.Navigations() {
		if nav.Collection == nil {
			continue
		}
		for _, rec := range nav.Collection(owner.entity).Records() {
			if _, ok := t.byEntity[any(rec)]; ok {
				continue
			}
			child, err := t.Entry(rec)
			if err != nil {
				return err
			}
			if state == Unchanged {
				child.original = child.CurrentValues()
			}
			child.SetState(state)
		}
	}
	return nil
}

func (t *ChangeTracker) keyUnset(e *Entry) bool {
	if e.et.KeyGeneration() == mapping.KeySupplied {
		return false
	}
	for _, f := range e.et.KeyFields(e.entity) {
		if !f.IsZero() {
			return false
		}
	}
	return true
}

func (t *ChangeTracker) attach(e *Entry) {
	if _, ok := t.byEntity[e.entity]; ok {
		return
	}
	t.byEntity[e.entity] = e
	t.entries = append(t.entries, e)
}

func (t *ChangeTracker) detach(e *Entry) {
	e.state = Detached
	if _, ok := t.byEntity[e.entity]; !ok {
		return
	}
	delete(t.byEntity, e.entity)
	for i, x := range t.entries {
		if x == e {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
}
