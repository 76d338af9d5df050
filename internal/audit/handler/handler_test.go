package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/internal/audit"
	"veritas/internal/jwtauth"
	"veritas/internal/ledger"
	"veritas/internal/ledger/verify"
	"veritas/internal/platform/middleware"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRouter(t *testing.T, tamperEnabled bool) (*chi.Mux, *ledger.InMemoryStore) {
	t.Helper()
	store := ledger.NewInMemoryStore()
	ctx := context.Background()
	purposes := []ledger.PurposeLink{{PurposeCode: "CORE_FUNCTION", DataCategories: []string{"email"}}}

	for _, user := range []string{"u1", "u2"} {
		_, err := store.Append(ctx, ledger.Draft{
			ActorType: ledger.ActorUser, ActorID: user,
			Payload: ledger.GrantedPayload{ConsentID: "c-" + user, UserID: user, AppID: "app-demo-v1", Purposes: purposes},
		})
		require.NoError(t, err)
	}

	var tamperer audit.Tamperer
	if tamperEnabled {
		tamperer = store
	}
	svc := audit.NewService(store, verify.NewEngine(store, testLogger()), tamperer, testLogger())

	router := chi.NewRouter()
	New(svc, testLogger(), nil, tamperEnabled).Register(router)
	return router, store
}

func do(router *chi.Mux, method, target string, principal middleware.Principal) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req = req.WithContext(middleware.WithPrincipal(context.Background(), principal))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

var (
	userPrincipal      = middleware.Principal{Subject: "u1", Role: jwtauth.RoleUser}
	regulatorPrincipal = middleware.Principal{Subject: "reg-1", Role: jwtauth.RoleRegulator}
)

func TestEventsEndpoint(t *testing.T) {
	router, _ := newRouter(t, false)

	t.Run("user sees only their events", func(t *testing.T) {
		rec := do(router, http.MethodGet, "/audit/events?user_id=u2", userPrincipal)
		require.Equal(t, http.StatusOK, rec.Code)

		var events []*ledger.Event
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
		require.Len(t, events, 1)
		assert.Equal(t, "u1", events[0].ActorID)
	})

	t.Run("regulator sees all, ascending", func(t *testing.T) {
		rec := do(router, http.MethodGet, "/audit/events?order=asc", regulatorPrincipal)
		require.Equal(t, http.StatusOK, rec.Code)

		var events []*ledger.Event
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
		require.Len(t, events, 2)
		assert.Equal(t, int64(0), events[0].Sequence)
	})

	t.Run("no matches is an empty array, not null", func(t *testing.T) {
		rec := do(router, http.MethodGet, "/audit/events?event_type=CONSENT_EXPIRED", regulatorPrincipal)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "[]\n", rec.Body.String())
	})

	t.Run("bad timestamp rejected", func(t *testing.T) {
		rec := do(router, http.MethodGet, "/audit/events?from=yesterday", userPrincipal)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad order rejected", func(t *testing.T) {
		rec := do(router, http.MethodGet, "/audit/events?order=sideways", userPrincipal)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestVerifyChainEndpoint(t *testing.T) {
	router, store := newRouter(t, false)

	t.Run("regulator only", func(t *testing.T) {
		rec := do(router, http.MethodGet, "/audit/verify-chain", userPrincipal)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("valid chain", func(t *testing.T) {
		rec := do(router, http.MethodGet, "/audit/verify-chain", regulatorPrincipal)
		require.Equal(t, http.StatusOK, rec.Code)

		var report verify.Report
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, verify.StatusValid, report.Status)
		assert.Equal(t, 2, report.VerifiedCount)
	})

	t.Run("detects tampering", func(t *testing.T) {
		_, err := store.TamperTail(context.Background())
		require.NoError(t, err)

		rec := do(router, http.MethodGet, "/audit/verify-chain", regulatorPrincipal)
		require.Equal(t, http.StatusOK, rec.Code)

		var report verify.Report
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, verify.StatusInvalid, report.Status)
		assert.NotEmpty(t, report.Violations)
	})

	t.Run("malformed from_sequence", func(t *testing.T) {
		rec := do(router, http.MethodGet, "/audit/verify-chain?from_sequence=abc", regulatorPrincipal)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTamperEndpoint(t *testing.T) {
	t.Run("not mounted when disabled", func(t *testing.T) {
		router, _ := newRouter(t, false)
		rec := do(router, http.MethodPost, "/audit/tamper", regulatorPrincipal)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("corrupts the tail when enabled", func(t *testing.T) {
		router, _ := newRouter(t, true)

		rec := do(router, http.MethodPost, "/audit/tamper", regulatorPrincipal)
		require.Equal(t, http.StatusOK, rec.Code)

		verifyRec := do(router, http.MethodGet, "/audit/verify-chain", regulatorPrincipal)
		var report verify.Report
		require.NoError(t, json.Unmarshal(verifyRec.Body.Bytes(), &report))
		assert.Equal(t, verify.StatusInvalid, report.Status)
	})

	t.Run("regulator only", func(t *testing.T) {
		router, _ := newRouter(t, true)
		rec := do(router, http.MethodPost, "/audit/tamper", userPrincipal)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
