package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"veritas/internal/consent/models"
	"veritas/internal/platform/device"
	"veritas/internal/platform/metrics"
	"veritas/internal/platform/middleware"
	"veritas/internal/transport/http/shared"
	respond "veritas/internal/transport/http/shared/json"
	dErrors "veritas/pkg/domain-errors"
)

// Service defines the interface for consent operations.
type Service interface {
	Grant(ctx context.Context, principal middleware.Principal, req models.GrantRequest, device string) (*models.GrantResponse, error)
	Revoke(ctx context.Context, principal middleware.Principal, req models.RevokeRequest) (*models.RevokeResponse, error)
	ListConsents(ctx context.Context, principal middleware.Principal, userID string, filter *models.RecordFilter) ([]models.ConsentView, error)
	VerifyReceipt(ctx context.Context, req models.VerifyReceiptRequest) (*models.VerifyReceiptResponse, error)
}

// Handler handles consent-related endpoints.
type Handler struct {
	logger  *slog.Logger
	consent Service
	metrics *metrics.Metrics
}

// New creates a new consent Handler.
func New(consent Service, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		logger:  logger,
		consent: consent,
		metrics: metrics,
	}
}

// Register registers the consent routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/consent/grant", h.handleGrant)
	r.Post("/consent/revoke", h.handleRevoke)
	r.Get("/consent", h.handleList)
	r.Post("/consent/verify-receipt", h.handleVerifyReceipt)
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("consent_grant", time.Now())

	principal, ok := middleware.GetPrincipal(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "principal missing from context despite auth middleware",
			"request_id", middleware.GetRequestID(ctx))
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var req models.GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode grant request",
			"request_id", middleware.GetRequestID(ctx), "error", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	clientDevice := device.ParseUserAgent(middleware.GetUserAgent(ctx))
	resp, err := h.consent.Grant(ctx, principal, req, clientDevice)
	if err != nil {
		h.logger.WarnContext(ctx, "grant consent failed",
			"request_id", middleware.GetRequestID(ctx), "error", err)
		shared.WriteError(w, err)
		return
	}

	respond.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("consent_revoke", time.Now())

	principal, ok := middleware.GetPrincipal(ctx)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var req models.RevokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	resp, err := h.consent.Revoke(ctx, principal, req)
	if err != nil {
		h.logger.WarnContext(ctx, "revoke consent failed",
			"request_id", middleware.GetRequestID(ctx),
			"consent_id", req.ConsentID,
			"error", err)
		shared.WriteError(w, err)
		return
	}

	respond.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("consent_list", time.Now())

	principal, ok := middleware.GetPrincipal(ctx)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	filter, err := parseStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	views, err := h.consent.ListConsents(ctx, principal, r.URL.Query().Get("user_id"), filter)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	respond.WriteJSON(w, http.StatusOK, map[string]any{
		"consents": views,
		"count":    len(views),
	})
}

func (h *Handler) handleVerifyReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("consent_verify_receipt", time.Now())

	var req models.VerifyReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	resp, err := h.consent.VerifyReceipt(ctx, req)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	respond.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) observe(endpoint string, start time.Time) {
	if h.metrics != nil {
		h.metrics.ObserveEndpointLatency(endpoint, time.Since(start).Seconds())
	}
}

func parseStatusFilter(raw string) (*models.RecordFilter, error) {
	if raw == "" {
		return nil, nil
	}
	status := models.Status(raw)
	switch status {
	case models.StatusActive, models.StatusRevoked, models.StatusExpired:
		return &models.RecordFilter{Status: &status}, nil
	default:
		return nil, dErrors.New(dErrors.CodeBadRequest, "status must be one of ACTIVE, REVOKED, EXPIRED")
	}
}
