package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"veritas/internal/audit"
	"veritas/internal/jwtauth"
	"veritas/internal/ledger"
	"veritas/internal/ledger/verify"
	"veritas/internal/platform/metrics"
	"veritas/internal/platform/middleware"
	"veritas/internal/transport/http/shared"
	respond "veritas/internal/transport/http/shared/json"
	dErrors "veritas/pkg/domain-errors"
)

// Service defines the interface for audit operations.
type Service interface {
	Events(ctx context.Context, principal middleware.Principal, q audit.Query) ([]*ledger.Event, error)
	VerifyChain(ctx context.Context, fromSequence int64) (*verify.Report, error)
	Tamper(ctx context.Context) (*ledger.Event, error)
}

// Handler handles audit endpoints.
type Handler struct {
	logger        *slog.Logger
	audit         Service
	metrics       *metrics.Metrics
	tamperEnabled bool
}

// New creates a new audit Handler. tamperEnabled controls whether the
// POST /audit/tamper route is mounted at all.
func New(auditService Service, logger *slog.Logger, m *metrics.Metrics, tamperEnabled bool) *Handler {
	return &Handler{
		logger:        logger,
		audit:         auditService,
		metrics:       m,
		tamperEnabled: tamperEnabled,
	}
}

// Register registers the audit routes with the chi router. Chain
// verification is regulator-only; the event feed is open to any
// authenticated caller because the service scopes results by principal.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit/events", h.handleEvents)
	r.With(middleware.RequireRole(jwtauth.RoleRegulator)).Get("/audit/verify-chain", h.handleVerifyChain)
	if h.tamperEnabled {
		r.With(middleware.RequireRole(jwtauth.RoleRegulator)).Post("/audit/tamper", h.handleTamper)
	}
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("audit_events", time.Now())

	principal, ok := middleware.GetPrincipal(ctx)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	query, err := parseQuery(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	events, err := h.audit.Events(ctx, principal, query)
	if err != nil {
		h.logger.WarnContext(ctx, "audit events query failed",
			"request_id", middleware.GetRequestID(ctx), "error", err)
		shared.WriteError(w, err)
		return
	}

	if events == nil {
		events = []*ledger.Event{}
	}
	// The event feed is the ordered sequence itself, no envelope.
	respond.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("audit_verify_chain", time.Now())

	var fromSequence int64
	if raw := r.URL.Query().Get("from_sequence"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "from_sequence must be an integer"))
			return
		}
		fromSequence = parsed
	}

	report, err := h.audit.VerifyChain(ctx, fromSequence)
	if err != nil {
		h.logger.WarnContext(ctx, "chain verification failed",
			"request_id", middleware.GetRequestID(ctx), "error", err)
		shared.WriteError(w, err)
		return
	}

	respond.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleTamper(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	event, err := h.audit.Tamper(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	respond.WriteJSON(w, http.StatusOK, map[string]any{
		"message":  "chain tail corrupted; run verification to observe the violation",
		"sequence": event.Sequence,
		"event_id": event.ID,
	})
}

func (h *Handler) observe(endpoint string, start time.Time) {
	if h.metrics != nil {
		h.metrics.ObserveEndpointLatency(endpoint, time.Since(start).Seconds())
	}
}

func parseQuery(r *http.Request) (audit.Query, error) {
	values := r.URL.Query()
	q := audit.Query{
		Filter: ledger.Filter{
			UserID: values.Get("user_id"),
			AppID:  values.Get("app_id"),
		},
	}

	if raw := values.Get("event_type"); raw != "" {
		eventType := ledger.EventType(raw)
		if !eventType.IsValid() {
			return q, dErrors.New(dErrors.CodeBadRequest, "unknown event_type")
		}
		q.Filter.EventType = eventType
	}

	for name, target := range map[string]*time.Time{"from": &q.Filter.From, "to": &q.Filter.To} {
		if raw := values.Get(name); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return q, dErrors.New(dErrors.CodeBadRequest, name+" must be an RFC 3339 timestamp")
			}
			*target = parsed
		}
	}

	for name, target := range map[string]*int{"limit": &q.Page.Limit, "offset": &q.Page.Offset} {
		if raw := values.Get(name); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				return q, dErrors.New(dErrors.CodeBadRequest, name+" must be a non-negative integer")
			}
			*target = parsed
		}
	}

	switch values.Get("order") {
	case "", "desc":
		q.Page.Order = ledger.OrderDesc
	case "asc":
		q.Page.Order = ledger.OrderAsc
	default:
		return q, dErrors.New(dErrors.CodeBadRequest, "order must be asc or desc")
	}

	return q, nil
}
