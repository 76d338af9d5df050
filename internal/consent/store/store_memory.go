package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"veritas/internal/consent/models"
	"veritas/internal/ledger"
	"veritas/internal/sentinel"
)

// InMemoryStore keeps consent projections in process memory, keyed by
// consent ID. Readers always receive copies.
type InMemoryStore struct {
	mu       sync.RWMutex
	consents map[string]*models.Consent
}

// New constructs an empty in-memory consent store.
func New() *InMemoryStore {
	return &InMemoryStore{consents: make(map[string]*models.Consent)}
}

func (s *InMemoryStore) Save(_ context.Context, consent *models.Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyRecord := *consent
	s.consents[consent.ID] = &copyRecord
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, consentID string) (*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.consents[consentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copyRecord := *record
	return &copyRecord, nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID string, filter *models.RecordFilter) ([]*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().UTC()
	var filtered []*models.Consent
	for _, record := range s.consents {
		if record.UserID != userID {
			continue
		}
		if filter != nil && filter.Status != nil && record.ComputeStatus(now) != *filter.Status {
			continue
		}
		copyRecord := *record
		filtered = append(filtered, &copyRecord)
	}
	return filtered, nil
}

func (s *InMemoryStore) Update(_ context.Context, consent *models.Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.consents[consent.ID]; !ok {
		return sentinel.ErrNotFound
	}
	copyRecord := *consent
	s.consents[consent.ID] = &copyRecord
	return nil
}

func (s *InMemoryStore) ListActiveExpiredBefore(_ context.Context, cutoff time.Time) ([]*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*models.Consent
	for _, record := range s.consents {
		if record.Status != models.StatusActive {
			continue
		}
		if record.ExpiresAt == nil || record.ExpiresAt.After(cutoff) {
			continue
		}
		copyRecord := *record
		due = append(due, &copyRecord)
	}
	return due, nil
}

const rebuildBatchSize = 200

// Rebuild discards the projection and replays the ledger from sequence zero.
// Every lifecycle transition was validated when its event was appended, so a
// replay failure means the ledger and projection code disagree and the error
// surfaces rather than being skipped.
func (s *InMemoryStore) Rebuild(ctx context.Context, source ledger.Store) error {
	rebuilt := make(map[string]*models.Consent)

	var offset int
	for {
		batch, err := source.Query(ctx, ledger.Filter{}, ledger.Page{
			Limit:  rebuildBatchSize,
			Offset: offset,
			Order:  ledger.OrderAsc,
		})
		if err != nil {
			return fmt.Errorf("replaying ledger at offset %d: %w", offset, err)
		}
		if len(batch) == 0 {
			break
		}
		for _, event := range batch {
			if err := applyEvent(rebuilt, event); err != nil {
				return fmt.Errorf("replaying event %s (sequence %d): %w", event.ID, event.Sequence, err)
			}
		}
		offset += len(batch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.consents = rebuilt
	return nil
}

func applyEvent(consents map[string]*models.Consent, event *ledger.Event) error {
	switch payload := event.Payload.(type) {
	case ledger.GrantedPayload:
		consent, err := models.NewConsent(
			payload.ConsentID,
			payload.UserID,
			payload.AppID,
			payload.Purposes,
			event.Timestamp,
			payload.ExpiresAt,
		)
		if err != nil {
			return err
		}
		consents[payload.ConsentID] = consent
		return nil
	case ledger.RevokedPayload:
		consent, ok := consents[payload.ConsentID]
		if !ok {
			return fmt.Errorf("revocation for unknown consent %s", payload.ConsentID)
		}
		return consent.Revoke(event.Timestamp, payload.Reason)
	case ledger.ExpiredPayload:
		consent, ok := consents[payload.ConsentID]
		if !ok {
			return fmt.Errorf("expiry for unknown consent %s", payload.ConsentID)
		}
		return consent.Expire(payload.ExpiredAt)
	default:
		return fmt.Errorf("unsupported event type %s", event.Type)
	}
}
