// Package audit exposes the ledger read side: event queries scoped to the
// caller, chain verification, and the demo-only tamper hook.
package audit

import (
	"context"
	"log/slog"

	"veritas/internal/jwtauth"
	"veritas/internal/ledger"
	"veritas/internal/ledger/verify"
	"veritas/internal/platform/middleware"
	dErrors "veritas/pkg/domain-errors"
)

// Ledger is the read slice of the event store the audit service needs.
type Ledger interface {
	Query(ctx context.Context, filter ledger.Filter, page ledger.Page) ([]*ledger.Event, error)
	Tail(ctx context.Context) (*ledger.Event, error)
}

// Tamperer corrupts the chain tail for verification demos.
type Tamperer interface {
	TamperTail(ctx context.Context) (*ledger.Event, error)
}

// Verifier replays the chain and reports violations.
type Verifier interface {
	Verify(ctx context.Context, fromSequence int64) (*verify.Report, error)
}

// Query carries the caller-supplied event filters. The service narrows them
// to what the principal is allowed to see before touching the ledger.
type Query struct {
	Filter ledger.Filter
	Page   ledger.Page
}

// Service answers audit queries over the ledger.
type Service struct {
	ledger   Ledger
	verifier Verifier
	tamperer Tamperer
	logger   *slog.Logger
}

// NewService creates the audit service. tamperer may be nil when the tamper
// endpoint is disabled.
func NewService(ledgerStore Ledger, verifier Verifier, tamperer Tamperer, logger *slog.Logger) *Service {
	return &Service{
		ledger:   ledgerStore,
		verifier: verifier,
		tamperer: tamperer,
		logger:   logger,
	}
}

// Events returns ledger events visible to the principal. Users are pinned to
// their own events and apps to their own, whatever filters they pass;
// regulators query without restriction.
func (s *Service) Events(ctx context.Context, principal middleware.Principal, q Query) ([]*ledger.Event, error) {
	switch principal.Role {
	case jwtauth.RoleUser:
		q.Filter.UserID = principal.Subject
	case jwtauth.RoleApp:
		q.Filter.AppID = principal.AppID
	case jwtauth.RoleRegulator:
		// unrestricted
	default:
		return nil, dErrors.New(dErrors.CodeForbidden, "unknown caller role")
	}

	events, err := s.ledger.Query(ctx, q.Filter, q.Page)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to query audit events")
	}
	return events, nil
}

// VerifyChain replays the hash chain from fromSequence and reports every
// violation found.
func (s *Service) VerifyChain(ctx context.Context, fromSequence int64) (*verify.Report, error) {
	return s.verifier.Verify(ctx, fromSequence)
}

// Tamper corrupts the chain tail so the next verification run fails. Only
// wired up when the deployment explicitly enables it.
func (s *Service) Tamper(ctx context.Context) (*ledger.Event, error) {
	if s.tamperer == nil {
		return nil, dErrors.New(dErrors.CodeForbidden, "tampering is not enabled in this deployment")
	}
	event, err := s.tamperer.TamperTail(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.WarnContext(ctx, "ledger tail tampered on request",
		"event_id", event.ID,
		"sequence", event.Sequence,
	)
	return event, nil
}
