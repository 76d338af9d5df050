// Package receipt issues signed consent receipts. A receipt is a compact
// JWT binding a consent grant to its ledger event and hash, so the subject
// can later prove what was recorded without trusting the API's live answer.
package receipt

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"veritas/internal/ledger"
	dErrors "veritas/pkg/domain-errors"
)

// Claims bind a receipt to one ledger event. Subject is the user ID; the
// event hash is what ties the receipt to the tamper-evident chain. Receipts
// carry no expiry: they attest a historical fact.
type Claims struct {
	ConsentID string `json:"consent_id"`
	AppID     string `json:"app_id"`
	EventID   string `json:"event_id"`
	Sequence  int64  `json:"sequence"`
	EventHash string `json:"event_hash"`
	Device    string `json:"device,omitempty"`
	jwt.RegisteredClaims
}

// Signer issues and parses receipt tokens with an HS256 key.
type Signer struct {
	signingKey []byte
	issuer     string
}

// NewSigner constructs a receipt signer.
func NewSigner(signingKey, issuer string) *Signer {
	return &Signer{signingKey: []byte(signingKey), issuer: issuer}
}

// Issue signs a receipt for a grant event. The device string is a human
// readable summary of the client the grant was made from.
func (s *Signer) Issue(event *ledger.Event, device string) (string, error) {
	payload, ok := event.Payload.(ledger.GrantedPayload)
	if !ok {
		return "", dErrors.New(dErrors.CodeInternal, "receipts are only issued for grant events")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ConsentID: payload.ConsentID,
		AppID:     payload.AppID,
		EventID:   event.ID,
		Sequence:  event.Sequence,
		EventHash: event.HashCurrent,
		Device:    device,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  payload.UserID,
			IssuedAt: jwt.NewNumericDate(event.Timestamp),
			Issuer:   s.issuer,
			ID:       event.ID,
		},
	})
	return token.SignedString(s.signingKey)
}

// Parse checks the receipt signature and returns its claims. The claims
// still need to be checked against the ledger to confirm the referenced
// event exists and its hash is unchanged.
func (s *Signer) Parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "empty receipt")
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, dErrors.New(dErrors.CodeValidation, "receipt signature invalid")
		}
		return nil, dErrors.New(dErrors.CodeValidation, "malformed receipt")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeValidation, "receipt signature invalid")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid receipt claims")
	}
	if claims.Issuer != s.issuer {
		return nil, dErrors.New(dErrors.CodeValidation, "receipt issued by another service")
	}
	return claims, nil
}
