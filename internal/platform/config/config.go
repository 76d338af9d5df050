package config

import (
	"os"
	"time"
)

// Server captures process level configuration for the ledger service.
type Server struct {
	Addr          string
	Environment   string
	JWTSigningKey string
	JWTIssuer     string
	SweepInterval time.Duration
	AppendTimeout time.Duration
	// TamperEnabled gates the demo-only ledger corruption endpoint. It is
	// forced off whenever Environment is "production".
	TamperEnabled bool
}

const (
	defaultAddr          = ":8080"
	defaultIssuer        = "https://veritas.local"
	defaultSweepInterval = time.Minute
	defaultAppendTimeout = 5 * time.Second
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("VERITAS_ADDR")
	if addr == "" {
		addr = defaultAddr
	}

	env := os.Getenv("VERITAS_ENV")
	if env == "" {
		env = "development"
	}

	signingKey := os.Getenv("JWT_SIGNING_KEY")
	if signingKey == "" {
		// Use a default for development - should be overridden in production
		signingKey = "dev-secret-key-change-in-production"
	}

	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		issuer = defaultIssuer
	}

	sweepInterval := defaultSweepInterval
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			sweepInterval = d
		}
	}

	appendTimeout := defaultAppendTimeout
	if v := os.Getenv("APPEND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			appendTimeout = d
		}
	}

	tamper := os.Getenv("TAMPER_ENDPOINT_ENABLED") == "true"
	if env == "production" {
		tamper = false
	}

	return Server{
		Addr:          addr,
		Environment:   env,
		JWTSigningKey: signingKey,
		JWTIssuer:     issuer,
		SweepInterval: sweepInterval,
		AppendTimeout: appendTimeout,
		TamperEnabled: tamper,
	}
}
