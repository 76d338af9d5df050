package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"veritas/internal/consent/models"
	"veritas/internal/consent/receipt"
	consentstore "veritas/internal/consent/store"
	"veritas/internal/jwtauth"
	"veritas/internal/ledger"
	"veritas/internal/platform/metrics"
	"veritas/internal/platform/middleware"
	"veritas/internal/sentinel"
	dErrors "veritas/pkg/domain-errors"
)

const defaultAppendRetries = 3

// Ledger is the slice of the event store the consent service writes to.
type Ledger interface {
	Append(ctx context.Context, draft ledger.Draft) (*ledger.Event, error)
	Query(ctx context.Context, filter ledger.Filter, page ledger.Page) ([]*ledger.Event, error)
}

// ReceiptSigner issues and parses signed consent receipts.
type ReceiptSigner interface {
	Issue(event *ledger.Event, device string) (string, error)
	Parse(tokenString string) (*receipt.Claims, error)
}

type Option func(*Service)

// Service runs the consent lifecycle. Every state change appends exactly one
// ledger event; the projection store is updated from the appended event so a
// replay reproduces the same record.
type Service struct {
	ledger        Ledger
	store         consentstore.Store
	signer        ReceiptSigner
	logger        *slog.Logger
	metrics       *metrics.Metrics
	clock         func() time.Time
	appendRetries int

	// transitionMu serializes terminal transitions (revoke, expire) so the
	// status check and the ledger append act on the same state: without it,
	// two racing revokers could both read ACTIVE and record two terminal
	// events for one consent. Grants need no claim, each one creates a
	// fresh consent.
	transitionMu sync.Mutex
}

func NewService(ledgerStore Ledger, store consentstore.Store, signer ReceiptSigner, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		ledger:        ledgerStore,
		store:         store,
		signer:        signer,
		logger:        logger,
		clock:         time.Now,
		appendRetries: defaultAppendRetries,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// WithMetrics sets the metrics instance for the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the service clock for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithAppendRetries bounds how many times an append is retried after a
// concurrency conflict before the conflict is returned to the caller.
func WithAppendRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.appendRetries = n
		}
	}
}

// Grant records a new consent. The caller must be the subject user or the
// receiving app; each grant creates a fresh consent with its own ID, even if
// an equivalent one is already active.
func (s *Service) Grant(ctx context.Context, principal middleware.Principal, req models.GrantRequest, device string) (*models.GrantResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	actorType, err := grantActor(principal, req)
	if err != nil {
		return nil, err
	}

	consentID := uuid.NewString()
	expiresAt := req.ExpiresAt(s.clock().UTC())

	event, err := s.appendWithRetry(ctx, ledger.Draft{
		ActorType: actorType,
		ActorID:   principal.Subject,
		Payload: ledger.GrantedPayload{
			ConsentID: consentID,
			UserID:    req.UserID,
			AppID:     req.AppID,
			Purposes:  req.Purposes,
			ExpiresAt: expiresAt,
		},
	})
	if err != nil {
		return nil, err
	}

	consent, err := models.NewConsent(consentID, req.UserID, req.AppID, req.Purposes, event.Timestamp, expiresAt)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "appended grant event produced an invalid consent")
	}
	if err := s.store.Save(ctx, consent); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to save consent projection")
	}

	signedReceipt, err := s.signer.Issue(event, device)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue consent receipt")
	}

	if s.metrics != nil {
		for _, link := range req.Purposes {
			s.metrics.IncrementConsentsGranted(link.PurposeCode)
		}
	}
	s.logger.InfoContext(ctx, "consent granted",
		"consent_id", consentID,
		"user_id", req.UserID,
		"app_id", req.AppID,
		"event_id", event.ID,
		"sequence", event.Sequence,
	)

	return &models.GrantResponse{
		ConsentID: consentID,
		Status:    models.StatusActive,
		EventID:   event.ID,
		Sequence:  event.Sequence,
		GrantedAt: event.Timestamp,
		ExpiresAt: expiresAt,
		Receipt:   signedReceipt,
		Device:    device,
		Event:     event,
	}, nil
}

// Revoke transitions a consent to REVOKED and records the event. Allowed for
// the subject user, the app the consent was granted to, and regulators.
func (s *Service) Revoke(ctx context.Context, principal middleware.Principal, req models.RevokeRequest) (*models.RevokeResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	consent, err := s.store.FindByID(ctx, req.ConsentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "consent not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to load consent")
	}

	actorType, err := revokeActor(principal, consent)
	if err != nil {
		return nil, err
	}

	// Check the transition on a scratch copy first so an append only happens
	// for revocations the state machine accepts.
	scratch := *consent
	if err := scratch.Revoke(s.clock().UTC(), req.Reason); err != nil {
		return nil, err
	}

	event, err := s.appendWithRetry(ctx, ledger.Draft{
		ActorType: actorType,
		ActorID:   principal.Subject,
		Payload: ledger.RevokedPayload{
			ConsentID: consent.ID,
			UserID:    consent.UserID,
			AppID:     consent.AppID,
			Reason:    req.Reason,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := consent.Revoke(event.Timestamp, req.Reason); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "revocation event recorded but projection transition failed")
	}
	if err := s.store.Update(ctx, consent); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to update consent projection")
	}

	if s.metrics != nil {
		s.metrics.IncrementConsentsRevoked()
	}
	s.logger.InfoContext(ctx, "consent revoked",
		"consent_id", consent.ID,
		"actor_type", actorType,
		"actor_id", principal.Subject,
		"event_id", event.ID,
	)

	return &models.RevokeResponse{
		ConsentID: consent.ID,
		Status:    models.StatusRevoked,
		EventID:   event.ID,
		Sequence:  event.Sequence,
		RevokedAt: event.Timestamp,
		Event:     event,
	}, nil
}

// ListConsents returns consent views for a user. Users may only list their
// own; regulators may list anyone's.
func (s *Service) ListConsents(ctx context.Context, principal middleware.Principal, userID string, filter *models.RecordFilter) ([]models.ConsentView, error) {
	switch principal.Role {
	case jwtauth.RoleUser:
		userID = principal.Subject
	case jwtauth.RoleRegulator:
		if userID == "" {
			return nil, dErrors.New(dErrors.CodeBadRequest, "user_id query parameter is required for regulator access")
		}
	default:
		return nil, dErrors.New(dErrors.CodeForbidden, "apps cannot list user consents")
	}

	consents, err := s.store.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to list consents")
	}

	now := s.clock().UTC()
	views := make([]models.ConsentView, 0, len(consents))
	for _, consent := range consents {
		views = append(views, consent.View(now))
	}
	return views, nil
}

// VerifyReceipt checks a signed receipt against the ledger. A receipt is
// valid when its signature holds, the referenced event exists, and the
// stored event hash matches the one captured at grant time.
func (s *Service) VerifyReceipt(ctx context.Context, req models.VerifyReceiptRequest) (*models.VerifyReceiptResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	claims, err := s.signer.Parse(req.Receipt)
	if err != nil {
		return &models.VerifyReceiptResponse{Valid: false, Reason: "receipt signature or format invalid"}, nil
	}

	response := &models.VerifyReceiptResponse{
		ConsentID: claims.ConsentID,
		UserID:    claims.Subject,
		AppID:     claims.AppID,
		EventID:   claims.EventID,
		Sequence:  claims.Sequence,
		EventHash: claims.EventHash,
		Device:    claims.Device,
	}

	events, err := s.ledger.Query(ctx, ledger.Filter{}, ledger.Page{
		Limit:  1,
		Offset: int(claims.Sequence),
		Order:  ledger.OrderAsc,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to read ledger event")
	}
	switch {
	case len(events) == 0 || events[0].ID != claims.EventID:
		response.Reason = "referenced event is not in the ledger"
	case events[0].HashCurrent != claims.EventHash:
		response.Reason = "ledger event hash no longer matches the receipt"
	default:
		response.Valid = true
	}
	return response, nil
}

// appendWithRetry retries appends that lose the race for the write section.
// Any other failure returns immediately.
func (s *Service) appendWithRetry(ctx context.Context, draft ledger.Draft) (*ledger.Event, error) {
	var lastErr error
	for attempt := 0; attempt < s.appendRetries; attempt++ {
		start := time.Now()
		event, err := s.ledger.Append(ctx, draft)
		if err == nil {
			if s.metrics != nil {
				s.metrics.IncrementEventsAppended(string(event.Type))
				s.metrics.ObserveAppendLatency(time.Since(start).Seconds())
			}
			return event, nil
		}
		if !dErrors.HasCode(err, dErrors.CodeConcurrencyConflict) {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.IncrementAppendConflicts()
		}
		lastErr = err
	}
	return nil, lastErr
}

func grantActor(principal middleware.Principal, req models.GrantRequest) (ledger.ActorType, error) {
	switch principal.Role {
	case jwtauth.RoleUser:
		if principal.Subject != req.UserID {
			return "", dErrors.New(dErrors.CodeForbidden, "users can only grant consent for themselves")
		}
		return ledger.ActorUser, nil
	case jwtauth.RoleApp:
		if principal.AppID != req.AppID {
			return "", dErrors.New(dErrors.CodeForbidden, "apps can only record consent granted to themselves")
		}
		return ledger.ActorApp, nil
	default:
		return "", dErrors.New(dErrors.CodeForbidden, "only users and apps can grant consent")
	}
}

func revokeActor(principal middleware.Principal, consent *models.Consent) (ledger.ActorType, error) {
	switch principal.Role {
	case jwtauth.RoleUser:
		if principal.Subject != consent.UserID {
			return "", dErrors.New(dErrors.CodeForbidden, "users can only revoke their own consents")
		}
		return ledger.ActorUser, nil
	case jwtauth.RoleApp:
		if principal.AppID != consent.AppID {
			return "", dErrors.New(dErrors.CodeForbidden, "apps can only revoke consents granted to themselves")
		}
		return ledger.ActorApp, nil
	case jwtauth.RoleRegulator:
		return ledger.ActorRegulator, nil
	default:
		return "", dErrors.New(dErrors.CodeForbidden, "unknown caller role")
	}
}
