package ledger

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"veritas/internal/ledger/hashchain"
	dErrors "veritas/pkg/domain-errors"
)

const (
	defaultQueryLimit    = 50
	defaultAppendTimeout = 5 * time.Second
)

// InMemoryStore keeps the ledger in process memory. It honors the same
// contract a database-backed store must: gapless sequences, linearized
// appends, and no mutation of persisted events (readers only ever see
// copies). The logical SQL schema ships under migrations/.
type InMemoryStore struct {
	// writeSection serializes appends so two writers can never observe the
	// same chain tail. A semaphore rather than a mutex so acquisition honors
	// context cancellation and the bounded wait.
	writeSection *semaphore.Weighted

	appendTimeout time.Duration
	clock         func() time.Time

	mu     sync.RWMutex
	events []*Event
}

// StoreOption configures the InMemoryStore.
type StoreOption func(*InMemoryStore)

// WithAppendTimeout bounds how long an append may wait for the write section
// before failing with CodeConcurrencyConflict.
func WithAppendTimeout(d time.Duration) StoreOption {
	return func(s *InMemoryStore) {
		if d > 0 {
			s.appendTimeout = d
		}
	}
}

// WithClock overrides the store clock. Tests use this for deterministic
// timestamps; production uses time.Now.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewInMemoryStore constructs an empty ledger store.
func NewInMemoryStore(opts ...StoreOption) *InMemoryStore {
	s := &InMemoryStore{
		writeSection:  semaphore.NewWeighted(1),
		appendTimeout: defaultAppendTimeout,
		clock:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append assigns sequence, timestamp and chain hashes to the draft and
// persists it. The write section is held for the whole read-tail/compute/
// persist cycle; once entered, the append runs to completion or fails
// atomically.
func (s *InMemoryStore) Append(ctx context.Context, draft Draft) (*Event, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	acquireCtx, cancel := context.WithTimeout(ctx, s.appendTimeout)
	defer cancel()
	if err := s.writeSection.Acquire(acquireCtx, 1); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConcurrencyConflict, "ledger write section busy, retry append")
	}
	defer s.writeSection.Release(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	event := &Event{
		ID:        uuid.New().String(),
		Sequence:  int64(len(s.events)),
		Timestamp: s.clock().UTC(),
		ActorType: draft.ActorType,
		ActorID:   draft.ActorID,
		Type:      draft.Payload.Type(),
		Payload:   draft.Payload,
		HashPrev:  s.tailHashLocked(),
	}

	hash, err := event.ComputeHash()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to hash event")
	}
	event.HashCurrent = hash

	s.events = append(s.events, event)
	return event.Clone(), nil
}

// tailHashLocked returns the current chain tail hash, or the genesis
// constant for an empty ledger. Callers must hold at least a read lock.
func (s *InMemoryStore) tailHashLocked() string {
	if len(s.events) == 0 {
		return hashchain.Genesis
	}
	return s.events[len(s.events)-1].HashCurrent
}

// Query returns events matching the filter, ordered by sequence and paged.
func (s *InMemoryStore) Query(ctx context.Context, filter Filter, page Page) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "query cancelled")
	}

	var matched []*Event
	for _, event := range s.events {
		if matchesFilter(event, filter) {
			matched = append(matched, event)
		}
	}

	if page.Order != OrderAsc {
		reverse(matched)
	}

	limit := page.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	offset := page.Offset
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	result := make([]*Event, 0, end-offset)
	for _, event := range matched[offset:end] {
		result = append(result, event.Clone())
	}
	return result, nil
}

// Tail returns the latest event, or nil at genesis.
func (s *InMemoryStore) Tail(_ context.Context) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.events) == 0 {
		return nil, nil
	}
	return s.events[len(s.events)-1].Clone(), nil
}

// TamperTail overwrites the latest event's hash_current with an obviously
// wrong constant. Demo-only: it exists so the gated /audit/tamper endpoint
// can demonstrate the verification engine, and must never be reachable in
// production deployments.
func (s *InMemoryStore) TamperTail(_ context.Context) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "no events to tamper with")
	}
	tail := s.events[len(s.events)-1]
	tail.HashCurrent = "deadbeef" + strings.Repeat("0", 56)
	return tail.Clone(), nil
}

func matchesFilter(event *Event, filter Filter) bool {
	subject := event.Payload.Subject()
	if filter.UserID != "" && event.ActorID != filter.UserID && subject.UserID != filter.UserID {
		return false
	}
	if filter.AppID != "" && event.ActorID != filter.AppID && subject.AppID != filter.AppID {
		return false
	}
	if filter.EventType != "" && event.Type != filter.EventType {
		return false
	}
	if !filter.From.IsZero() && event.Timestamp.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && event.Timestamp.After(filter.To) {
		return false
	}
	return true
}

func reverse(events []*Event) {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
}
