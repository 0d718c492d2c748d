// Package tx holds the transaction contract shared by the storage layer and
// the services that commit through it.
package tx

import "context"

// Manager commits fn when it returns nil and rolls back otherwise. A call
// made with a ctx that already carries a transaction joins it.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager also runs read-only transactions.
type ReadOnlyManager interface {
	Manager
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
