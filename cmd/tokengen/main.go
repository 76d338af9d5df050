// Package main provides a CLI tool for generating test tokens for the
// veritas API. These tokens use dev/demo signing keys and will NOT work in
// production.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"veritas/internal/jwtauth"
)

const (
	// Dev signing key - matches config.go when JWT_SIGNING_KEY is not set
	devSigningKey = "dev-secret-key-change-in-production"
	defaultIssuer = "https://veritas.local"
	defaultTTL    = time.Hour
)

type tokenOutput struct {
	Token     string            `json:"token"`
	Role      string            `json:"role"`
	Subject   string            `json:"subject"`
	ExpiresIn string            `json:"expires_in"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	role := flag.String("role", "user", "Token role: user, app, or regulator")
	subject := flag.String("subject", "", "Token subject (user ID or app ID). Generated if empty.")
	appID := flag.String("app-id", "", "App ID claim (defaults to subject for app tokens)")
	signingKey := flag.String("signing-key", devSigningKey, "HS256 signing key (must match the server's JWT_SIGNING_KEY)")
	issuer := flag.String("issuer", defaultIssuer, "Token issuer (must match the server's JWT_ISSUER)")
	ttl := flag.Duration("ttl", defaultTTL, "Token time-to-live")
	asJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	tokenRole := jwtauth.Role(*role)
	if !tokenRole.IsValid() {
		fmt.Fprintf(os.Stderr, "unknown role %q: want user, app, or regulator\n", *role)
		os.Exit(1)
	}

	sub := *subject
	if sub == "" {
		sub = uuid.NewString()
	}
	app := *appID
	if app == "" && tokenRole == jwtauth.RoleApp {
		app = sub
	}

	svc := jwtauth.NewService(*signingKey, *issuer, *ttl)
	token, err := svc.GenerateAccessToken(sub, tokenRole, app)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate token: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		out := tokenOutput{
			Token:     token,
			Role:      string(tokenRole),
			Subject:   sub,
			ExpiresIn: ttl.String(),
			Usage: map[string]string{
				"header": "Authorization: Bearer " + token,
			},
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}

	fmt.Println(token)
}
