package models

import (
	"fmt"
	"strings"
	"time"

	"veritas/internal/ledger"
	dErrors "veritas/pkg/domain-errors"
)

// PurposeCode enumerates the processing purposes a consent can cover.
type PurposeCode string

const (
	PurposeCoreFunction PurposeCode = "CORE_FUNCTION"
	PurposeAnalytics    PurposeCode = "ANALYTICS"
	PurposeMarketing    PurposeCode = "MARKETING"
)

// IsValid reports whether the purpose code is one of the known values.
func (p PurposeCode) IsValid() bool {
	switch p {
	case PurposeCoreFunction, PurposeAnalytics, PurposeMarketing:
		return true
	}
	return false
}

// Status is the consent lifecycle state. REVOKED and EXPIRED are terminal.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusRevoked Status = "REVOKED"
	StatusExpired Status = "EXPIRED"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusRevoked || s == StatusExpired
}

// Consent is the read-optimized projection of a user's authorization for an
// app. The ledger is authoritative; this record is maintained alongside each
// append and can be rebuilt by replay, so it is never the source of truth.
type Consent struct {
	ID               string
	UserID           string
	AppID            string
	Purposes         []ledger.PurposeLink
	Status           Status
	GrantedAt        time.Time
	ExpiresAt        *time.Time
	RevokedAt        *time.Time
	RevocationReason string
}

// NewConsent creates an ACTIVE consent with domain invariant checks.
func NewConsent(id, userID, appID string, purposes []ledger.PurposeLink, grantedAt time.Time, expiresAt *time.Time) (*Consent, error) {
	if id == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "consent ID required")
	}
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user ID required")
	}
	if appID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "app ID required")
	}
	if err := ValidatePurposes(purposes); err != nil {
		return nil, err
	}
	if grantedAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "grant time required")
	}
	if expiresAt != nil && !expiresAt.After(grantedAt) {
		return nil, dErrors.New(dErrors.CodeValidation, "expiry must be after grant time")
	}
	return &Consent{
		ID:        id,
		UserID:    userID,
		AppID:     appID,
		Purposes:  purposes,
		Status:    StatusActive,
		GrantedAt: grantedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// ValidatePurposes checks that every purpose link carries a known purpose
// code and at least one well-formed, non-duplicated data category.
func ValidatePurposes(purposes []ledger.PurposeLink) error {
	if len(purposes) == 0 {
		return dErrors.New(dErrors.CodeValidation, "purposes must not be empty")
	}
	for _, link := range purposes {
		if !PurposeCode(link.PurposeCode).IsValid() {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid purpose code: %s", link.PurposeCode))
		}
		if len(link.DataCategories) == 0 {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("purpose %s has no data categories", link.PurposeCode))
		}
		seen := make(map[string]bool, len(link.DataCategories))
		for _, category := range link.DataCategories {
			category = strings.TrimSpace(category)
			if category == "" {
				return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("purpose %s has an empty data category", link.PurposeCode))
			}
			if seen[category] {
				return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("purpose %s lists data category %s twice", link.PurposeCode, category))
			}
			seen[category] = true
		}
	}
	return nil
}

// Revoke transitions ACTIVE -> REVOKED. Revoking a revoked consent is the
// idempotency violation AlreadyRevoked; any other terminal state rejects
// with InvalidTransition. An ACTIVE consent past its expiry is already
// logically EXPIRED and cannot be revoked either.
func (c *Consent) Revoke(at time.Time, reason string) error {
	switch {
	case c.Status == StatusRevoked:
		return dErrors.New(dErrors.CodeAlreadyRevoked, "consent already revoked")
	case c.Status == StatusExpired:
		return dErrors.New(dErrors.CodeInvalidTransition, "cannot revoke an expired consent")
	case c.ExpiresAt != nil && c.ExpiresAt.Before(at):
		return dErrors.New(dErrors.CodeInvalidTransition, "cannot revoke a consent past its expiry")
	}
	c.Status = StatusRevoked
	c.RevokedAt = &at
	c.RevocationReason = reason
	return nil
}

// Expire transitions ACTIVE -> EXPIRED. Only the sweeper calls this, and
// only for consents whose expiry has actually passed.
func (c *Consent) Expire(now time.Time) error {
	if c.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvalidTransition, fmt.Sprintf("cannot expire a %s consent", strings.ToLower(string(c.Status))))
	}
	if c.ExpiresAt == nil || c.ExpiresAt.After(now) {
		return dErrors.New(dErrors.CodeInvalidTransition, "consent has not reached its expiry")
	}
	c.Status = StatusExpired
	return nil
}

// ComputeStatus reports the consent lifecycle state at the provided time.
// A persisted ACTIVE consent whose expiry has passed reads as EXPIRED even
// before the sweeper records the transition.
func (c Consent) ComputeStatus(now time.Time) Status {
	if c.Status == StatusRevoked {
		return StatusRevoked
	}
	if c.Status == StatusExpired {
		return StatusExpired
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(now) {
		return StatusExpired
	}
	return StatusActive
}

// IsActive returns true when consent is currently valid.
func (c Consent) IsActive(now time.Time) bool {
	return c.ComputeStatus(now) == StatusActive
}

// RecordFilter allows filtering consent records by status.
type RecordFilter struct {
	Status *Status
}
