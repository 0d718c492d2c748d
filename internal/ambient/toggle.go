// Package ambient defines the per-scope providers and toggles behaviors consult:
// the current user, tenant and locale, and the query-filter switches.
package ambient

// RestoreAction restores a toggle to the value it held right before the
// action was acquired. Restoring twice is a no-op.
//
//	defer cfg.DisableQueryFilter().Restore()
type RestoreAction struct {
	restore func()
	done    bool
}

// Restore puts the previous value back.
func (r *RestoreAction) Restore() {
	if r == nil || r.done {
		return
	}
	r.done = true
	r.restore()
}

// Toggle is a scope-local boolean switch. It is not safe for concurrent use,
// like the persistence context it belongs to.
type Toggle struct {
	value bool
}

// NewToggle creates a toggle holding initial.
func NewToggle(initial bool) *Toggle {
	return &Toggle{value: initial}
}

// Value returns the current state.
func (t *Toggle) Value() bool {
	return t.value
}

// Set switches the toggle to v until the returned action is restored.
func (t *Toggle) Set(v bool) *RestoreAction {
	prev := t.value
	t.value = v
	return &RestoreAction{restore: func() { t.value = prev }}
}
