package models

import (
	"time"

	"veritas/internal/ledger"
	dErrors "veritas/pkg/domain-errors"
)

// GrantRequest is the payload for creating a consent. Leaving expiry_hours
// unset grants a consent with no expiry.
type GrantRequest struct {
	UserID      string               `json:"user_id"`
	AppID       string               `json:"app_id"`
	Purposes    []ledger.PurposeLink `json:"purposes"`
	ExpiryHours *int                 `json:"expiry_hours,omitempty"`
}

// Validate checks the grant request fields.
func (r GrantRequest) Validate() error {
	if r.UserID == "" {
		return dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	if r.AppID == "" {
		return dErrors.New(dErrors.CodeValidation, "app_id is required")
	}
	if err := ValidatePurposes(r.Purposes); err != nil {
		return err
	}
	if r.ExpiryHours != nil && *r.ExpiryHours <= 0 {
		return dErrors.New(dErrors.CodeValidation, "expiry_hours must be positive")
	}
	return nil
}

// ExpiresAt resolves the requested expiry relative to the grant time.
// Nil means the consent never expires and the sweeper leaves it alone.
func (r GrantRequest) ExpiresAt(grantedAt time.Time) *time.Time {
	if r.ExpiryHours == nil {
		return nil
	}
	expiry := grantedAt.Add(time.Duration(*r.ExpiryHours) * time.Hour)
	return &expiry
}

// RevokeRequest is the payload for revoking a consent.
type RevokeRequest struct {
	ConsentID string `json:"consent_id"`
	Reason    string `json:"reason,omitempty"`
}

// Validate checks the revoke request fields.
func (r RevokeRequest) Validate() error {
	if r.ConsentID == "" {
		return dErrors.New(dErrors.CodeValidation, "consent_id is required")
	}
	return nil
}

// VerifyReceiptRequest carries a signed receipt token for validation.
type VerifyReceiptRequest struct {
	Receipt string `json:"receipt"`
}

// Validate checks the verify-receipt request fields.
func (r VerifyReceiptRequest) Validate() error {
	if r.Receipt == "" {
		return dErrors.New(dErrors.CodeValidation, "receipt is required")
	}
	return nil
}

// VerifyReceiptResponse reports whether a receipt still matches the ledger.
// An invalid receipt is an answer, not an error: Valid is false and Reason
// says what diverged.
type VerifyReceiptResponse struct {
	Valid     bool   `json:"valid"`
	Reason    string `json:"reason,omitempty"`
	ConsentID string `json:"consent_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	AppID     string `json:"app_id,omitempty"`
	EventID   string `json:"event_id,omitempty"`
	Sequence  int64  `json:"sequence"`
	EventHash string `json:"event_hash,omitempty"`
	Device    string `json:"device,omitempty"`
}

// GrantResponse is returned after a successful grant. The receipt is a
// signed token the subject can retain and later verify offline.
type GrantResponse struct {
	ConsentID string        `json:"consent_id"`
	Status    Status        `json:"status"`
	EventID   string        `json:"event_id"`
	Sequence  int64         `json:"sequence"`
	GrantedAt time.Time     `json:"granted_at"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
	Receipt   string        `json:"receipt"`
	Device    string        `json:"device,omitempty"`
	Event     *ledger.Event `json:"event"`
}

// RevokeResponse is returned after a successful revocation.
type RevokeResponse struct {
	ConsentID string        `json:"consent_id"`
	Status    Status        `json:"status"`
	EventID   string        `json:"event_id"`
	Sequence  int64         `json:"sequence"`
	RevokedAt time.Time     `json:"revoked_at"`
	Event     *ledger.Event `json:"event"`
}

// ConsentView is the API shape of a consent record. Status is computed at
// read time so a past-expiry record reads as EXPIRED before the sweeper runs.
type ConsentView struct {
	ConsentID        string               `json:"consent_id"`
	UserID           string               `json:"user_id"`
	AppID            string               `json:"app_id"`
	Purposes         []ledger.PurposeLink `json:"purposes"`
	Status           Status               `json:"status"`
	GrantedAt        time.Time            `json:"granted_at"`
	ExpiresAt        *time.Time           `json:"expires_at,omitempty"`
	RevokedAt        *time.Time           `json:"revoked_at,omitempty"`
	RevocationReason string               `json:"revocation_reason,omitempty"`
}

// View renders the consent for API responses with the status computed at now.
func (c Consent) View(now time.Time) ConsentView {
	return ConsentView{
		ConsentID:        c.ID,
		UserID:           c.UserID,
		AppID:            c.AppID,
		Purposes:         c.Purposes,
		Status:           c.ComputeStatus(now),
		GrantedAt:        c.GrantedAt,
		ExpiresAt:        c.ExpiresAt,
		RevokedAt:        c.RevokedAt,
		RevocationReason: c.RevocationReason,
	}
}
