package ledger

import "context"

// #region backend

// Backend is the storage interface behind a Ledger. Implementations must be
// safe for concurrent readers; Insert calls are already serialized by the
// Ledger's append lock.
type Backend interface {
	// Insert persists one entry. The entry's hash fields are final by the
	// time Insert is called.
	Insert(ctx context.Context, e DecisionEntry) error

	// Get returns the entry with the given id; found is false when absent.
	Get(ctx context.Context, id string) (e DecisionEntry, found bool, err error)

	// Query returns entries matching the filter, newest first.
	Query(ctx context.Context, f Filter) ([]DecisionEntry, error)

	// All returns every entry in insertion order.
	All(ctx context.Context) ([]DecisionEntry, error)

	Close() error
}

// #endregion backend
