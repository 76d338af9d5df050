// Package jwtauth issues and validates the bearer tokens that callers
// present to the API. Identity management itself lives outside this service;
// tokens carry the already-established subject and role.
package jwtauth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "veritas/pkg/domain-errors"
)

// Role classifies the caller for authorization decisions.
type Role string

const (
	RoleUser      Role = "user"
	RoleApp       Role = "app"
	RoleRegulator Role = "regulator"
)

// IsValid reports whether the role is one of the known values.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleApp, RoleRegulator:
		return true
	}
	return false
}

// AccessClaims are the JWT claims for API access tokens. Subject holds the
// user ID for user tokens and the app ID for app tokens.
type AccessClaims struct {
	Role  Role   `json:"role"`
	AppID string `json:"app_id,omitempty"`
	jwt.RegisteredClaims
}

// Service handles access token creation and validation.
type Service struct {
	signingKey []byte
	issuer     string
	tokenTTL   time.Duration
}

// NewService constructs a token service with the given HS256 signing key.
func NewService(signingKey, issuer string, tokenTTL time.Duration) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		tokenTTL:   tokenTTL,
	}
}

// GenerateAccessToken mints a signed token for the subject. Used by the
// tokengen tool and by tests; production callers obtain tokens upstream.
func (s *Service) GenerateAccessToken(subject string, role Role, appID string) (string, error) {
	if subject == "" {
		return "", dErrors.New(dErrors.CodeValidation, "token subject cannot be empty")
	}
	if !role.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown role")
	}

	now := time.Now().UTC()
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		Role:  role,
		AppID: appID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})

	return newToken.SignedString(s.signingKey)
}

// ValidateToken checks signature, algorithm, expiry and issuer, and returns
// the parsed claims.
func (s *Service) ValidateToken(tokenString string) (*AccessClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if claims.Issuer != s.issuer {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token issuer")
	}
	if !claims.Role.IsValid() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token carries an unknown role")
	}
	return claims, nil
}
