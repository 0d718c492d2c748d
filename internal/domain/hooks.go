package domain

import "context"

// HookEvent is a lifecycle point of an entity service operation.
type HookEvent string

const (
	BeforeCreate HookEvent = "before_create"
	AfterCreate  HookEvent = "after_create"
	BeforeUpdate HookEvent = "before_update"
	AfterUpdate  HookEvent = "after_update"
	BeforeDelete HookEvent = "before_delete"
	AfterDelete  HookEvent = "after_delete"
)

// Hook runs at one lifecycle point. A before-hook error aborts the operation
// before anything is saved.
type Hook[T any] func(ctx context.Context, e T) error

// HookRegistry stores the hooks of one entity type in registration order.
type HookRegistry[T any] struct {
	hooks map[HookEvent][]Hook[T]
}

func NewHookRegistry[T any]() *HookRegistry[T] {
	return &HookRegistry[T]{hooks: make(map[HookEvent][]Hook[T])}
}

// On registers hook for event.
func (r *HookRegistry[T]) On(event HookEvent, hook Hook[T]) {
	r.hooks[event] = append(r.hooks[event], hook)
}

// Run executes the hooks of event, stopping at the first error.
func (r *HookRegistry[T]) Run(ctx context.Context, event HookEvent, e T) error {
	for _, hook := range r.hooks[event] {
		if err := hook(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
