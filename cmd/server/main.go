// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	auditservice "veritas/internal/audit"
	audithandler "veritas/internal/audit/handler"
	consenthandler "veritas/internal/consent/handler"
	"veritas/internal/consent/receipt"
	consentservice "veritas/internal/consent/service"
	consentstore "veritas/internal/consent/store"
	"veritas/internal/jwtauth"
	"veritas/internal/ledger"
	"veritas/internal/ledger/verify"
	"veritas/internal/platform/config"
	"veritas/internal/platform/health"
	"veritas/internal/platform/logger"
	"veritas/internal/platform/metrics"
	httptransport "veritas/internal/transport/http"
)

const (
	accessTokenTTL  = time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing veritas",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"tamper_enabled", cfg.TamperEnabled,
	)

	m := metrics.New()

	ledgerStore := ledger.NewInMemoryStore(ledger.WithAppendTimeout(cfg.AppendTimeout))
	projection := consentstore.New()

	tokens := jwtauth.NewService(cfg.JWTSigningKey, cfg.JWTIssuer, accessTokenTTL)
	signer := receipt.NewSigner(cfg.JWTSigningKey, cfg.JWTIssuer)

	consents := consentservice.NewService(ledgerStore, projection, signer, log,
		consentservice.WithMetrics(m),
	)
	verifier := verify.NewEngine(ledgerStore, log, verify.WithMetrics(m))

	var tamperer auditservice.Tamperer
	if cfg.TamperEnabled {
		tamperer = ledgerStore
	}
	audits := auditservice.NewService(ledgerStore, verifier, tamperer, log)

	healthHandler := health.New(cfg.Environment)
	healthHandler.RegisterCheck("ledger", func() error {
		_, err := ledgerStore.Tail(context.Background())
		return err
	})

	router := httptransport.NewRouter(log, tokens,
		[]httptransport.Registrar{healthHandler},
		[]httptransport.Registrar{
			consenthandler.New(consents, log, m),
			audithandler.New(audits, log, m, cfg.TamperEnabled),
		},
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		consents.RunSweeper(ctx, cfg.SweepInterval)
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
