package store

import (
	"context"
	"time"

	"veritas/internal/consent/models"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return sentinel.ErrNotFound when the requested record does not exist
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures

// Store persists the consent projection. The ledger stays authoritative;
// implementations must survive a full rebuild by replay at any time.
type Store interface {
	Save(ctx context.Context, consent *models.Consent) error
	FindByID(ctx context.Context, consentID string) (*models.Consent, error)
	ListByUser(ctx context.Context, userID string, filter *models.RecordFilter) ([]*models.Consent, error)
	Update(ctx context.Context, consent *models.Consent) error
	// ListActiveExpiredBefore returns ACTIVE consents whose expiry has passed
	// at the given instant. The sweeper drives these to EXPIRED.
	ListActiveExpiredBefore(ctx context.Context, cutoff time.Time) ([]*models.Consent, error)
}
