package middleware

import (
	"context"
	"net/http"
	"strings"

	"veritas/internal/jwtauth"
	"veritas/internal/transport/http/shared"
	dErrors "veritas/pkg/domain-errors"
)

// TokenValidator checks a bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*jwtauth.AccessClaims, error)
}

// Principal is the authenticated caller, resolved from the bearer token.
// Subject is the user ID for user tokens and the app ID for app tokens.
type Principal struct {
	Subject string
	Role    jwtauth.Role
	AppID   string
}

// IsRegulator reports whether the caller holds the regulator role.
func (p Principal) IsRegulator() bool {
	return p.Role == jwtauth.RoleRegulator
}

type principalKey struct{}

// RequireAuth rejects requests without a valid bearer token and stores the
// resolved principal in the request context.
func RequireAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing authorization header"))
				return
			}
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authorization header must be a bearer token"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				shared.WriteError(w, err)
				return
			}

			principal := Principal{
				Subject: claims.Subject,
				Role:    claims.Role,
				AppID:   claims.AppID,
			}
			ctx := context.WithValue(r.Context(), principalKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole allows only callers holding one of the listed roles. It must
// run after RequireAuth.
func RequireRole(roles ...jwtauth.Role) func(http.Handler) http.Handler {
	allowed := make(map[jwtauth.Role]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := GetPrincipal(r.Context())
			if !ok {
				shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no authenticated principal"))
				return
			}
			if !allowed[principal.Role] {
				shared.WriteError(w, dErrors.New(dErrors.CodeForbidden, "caller role is not allowed to access this resource"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithPrincipal returns a context carrying the principal. Handler tests use
// this to stand in for RequireAuth.
func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// GetPrincipal retrieves the authenticated principal from the context.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalKey{}).(Principal)
	return principal, ok
}
