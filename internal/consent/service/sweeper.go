package service

import (
	"context"
	"errors"
	"time"

	"veritas/internal/consent/models"
	"veritas/internal/ledger"
	"veritas/internal/sentinel"
	dErrors "veritas/pkg/domain-errors"
)

// SweeperActorID identifies expiry events in the ledger.
const SweeperActorID = "expiry-sweeper"

// ExpireDue transitions every ACTIVE consent whose expiry has passed to
// EXPIRED, appending one CONSENT_EXPIRED event per consent. Returns how many
// consents were expired. A failure on one consent stops the sweep; the
// remaining consents are picked up on the next run.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	now := s.clock().UTC()
	due, err := s.store.ListActiveExpiredBefore(ctx, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to list expired consents")
	}

	expired := 0
	for _, candidate := range due {
		didExpire, err := s.expireOne(ctx, candidate.ID, now)
		if err != nil {
			return expired, err
		}
		if didExpire {
			expired++
		}
	}
	return expired, nil
}

// expireOne claims the terminal transition for a single consent. The record
// is re-read under the transition lock because the candidate scan is a
// snapshot: a revoke may have landed since, and a consent that is no longer
// ACTIVE and due must not get a second terminal event.
func (s *Service) expireOne(ctx context.Context, consentID string, now time.Time) (bool, error) {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	consent, err := s.store.FindByID(ctx, consentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to load consent")
	}
	if consent.Status != models.StatusActive || consent.ExpiresAt == nil || consent.ExpiresAt.After(now) {
		return false, nil
	}

	event, err := s.appendWithRetry(ctx, ledger.Draft{
		ActorType: ledger.ActorSystem,
		ActorID:   SweeperActorID,
		Payload: ledger.ExpiredPayload{
			ConsentID: consent.ID,
			UserID:    consent.UserID,
			AppID:     consent.AppID,
			ExpiredAt: *consent.ExpiresAt,
		},
	})
	if err != nil {
		return false, err
	}

	if err := consent.Expire(now); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "expiry event recorded but projection transition failed")
	}
	if err := s.store.Update(ctx, consent); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to update consent projection")
	}

	if s.metrics != nil {
		s.metrics.IncrementConsentsExpired()
	}
	s.logger.InfoContext(ctx, "consent expired",
		"consent_id", consent.ID,
		"expired_at", consent.ExpiresAt,
		"event_id", event.ID,
	)
	return true, nil
}

// RunSweeper runs ExpireDue on the given interval until the context is
// cancelled. Sweep errors are logged and the loop keeps going.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "expiry sweeper started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.ExpireDue(ctx); err != nil {
				s.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
			}
		}
	}
}
