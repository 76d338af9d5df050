package ledger

import (
	"context"
	"time"
)

// Order controls the sequence ordering of query results.
type Order string

const (
	// OrderAsc returns events oldest first, as chain verification requires.
	OrderAsc Order = "asc"
	// OrderDesc returns events newest first, the dashboard default.
	OrderDesc Order = "desc"
)

// Filter narrows a ledger query. Zero values mean "no constraint".
// UserID and AppID match either the event's actor or its payload subject.
type Filter struct {
	UserID    string
	AppID     string
	EventType EventType
	From      time.Time
	To        time.Time
}

// Page bounds a ledger query. A zero Limit falls back to the store default;
// Order defaults to OrderDesc.
type Page struct {
	Limit  int
	Offset int
	Order  Order
}

// Store is the append-only persistence boundary for ledger events.
//
// Error Contract:
//   - Append returns CodeConcurrencyConflict when the write section cannot be
//     acquired within the configured bound, and CodeStoreUnavailable for
//     persistence failures. It never leaves a partially applied event.
//   - There are deliberately no update or delete operations: events are
//     immutable once appended.
type Store interface {
	Append(ctx context.Context, draft Draft) (*Event, error)
	Query(ctx context.Context, filter Filter, page Page) ([]*Event, error)
	// Tail returns the latest event, or nil when the ledger is at genesis.
	Tail(ctx context.Context) (*Event, error)
}
