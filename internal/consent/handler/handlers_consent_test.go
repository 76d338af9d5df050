package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"veritas/internal/consent/handler/mocks"
	"veritas/internal/consent/models"
	"veritas/internal/jwtauth"
	"veritas/internal/ledger"
	"veritas/internal/platform/middleware"
	dErrors "veritas/pkg/domain-errors"
)

//go:generate mockgen -source=handler.go -destination=mocks/consent-mocks.go -package=mocks Service
type ConsentHandlerSuite struct {
	suite.Suite

	ctrl    *gomock.Controller
	service *mocks.MockService
	router  *chi.Mux
}

func TestConsentHandlerSuite(t *testing.T) {
	suite.Run(t, new(ConsentHandlerSuite))
}

func (s *ConsentHandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.router = chi.NewRouter()
	New(s.service, logger, nil).Register(s.router)
}

func (s *ConsentHandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

var testPrincipal = middleware.Principal{Subject: "u1", Role: jwtauth.RoleUser}

func (s *ConsentHandlerSuite) request(method, target string, body any, principal *middleware.Principal) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if principal != nil {
		req = req.WithContext(middleware.WithPrincipal(context.Background(), *principal))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *ConsentHandlerSuite) TestGrant() {
	req := models.GrantRequest{
		UserID:   "u1",
		AppID:    "app-demo-v1",
		Purposes: []ledger.PurposeLink{{PurposeCode: "CORE_FUNCTION", DataCategories: []string{"email"}}},
	}
	s.service.EXPECT().
		Grant(gomock.Any(), testPrincipal, req, gomock.Any()).
		Return(&models.GrantResponse{ConsentID: "c1", Status: models.StatusActive, Receipt: "signed"}, nil)

	rec := s.request(http.MethodPost, "/consent/grant", req, &testPrincipal)

	s.Equal(http.StatusCreated, rec.Code)
	var resp models.GrantResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("c1", resp.ConsentID)
	s.Equal("signed", resp.Receipt)
}

func (s *ConsentHandlerSuite) TestGrantMalformedBody() {
	req := httptest.NewRequest(http.MethodPost, "/consent/grant", bytes.NewBufferString("{not json"))
	req = req.WithContext(middleware.WithPrincipal(context.Background(), testPrincipal))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ConsentHandlerSuite) TestGrantWithoutPrincipal() {
	rec := s.request(http.MethodPost, "/consent/grant", models.GrantRequest{}, nil)
	s.Equal(http.StatusInternalServerError, rec.Code)
}

func (s *ConsentHandlerSuite) TestGrantServiceError() {
	s.service.EXPECT().
		Grant(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeForbidden, "users can only grant consent for themselves"))

	rec := s.request(http.MethodPost, "/consent/grant", models.GrantRequest{UserID: "u2"}, &testPrincipal)
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *ConsentHandlerSuite) TestRevoke() {
	req := models.RevokeRequest{ConsentID: "c1", Reason: "User Interface Revocation"}
	s.service.EXPECT().
		Revoke(gomock.Any(), testPrincipal, req).
		Return(&models.RevokeResponse{ConsentID: "c1", Status: models.StatusRevoked, RevokedAt: time.Now().UTC()}, nil)

	rec := s.request(http.MethodPost, "/consent/revoke", req, &testPrincipal)

	s.Equal(http.StatusOK, rec.Code)
	var resp models.RevokeResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(models.StatusRevoked, resp.Status)
}

func (s *ConsentHandlerSuite) TestRevokeConflictMapsTo409() {
	s.service.EXPECT().
		Revoke(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeAlreadyRevoked, "consent already revoked"))

	rec := s.request(http.MethodPost, "/consent/revoke", models.RevokeRequest{ConsentID: "c1"}, &testPrincipal)
	s.Equal(http.StatusConflict, rec.Code)

	var body map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("already_revoked", body["error"])
}

func (s *ConsentHandlerSuite) TestList() {
	s.service.EXPECT().
		ListConsents(gomock.Any(), testPrincipal, "", (*models.RecordFilter)(nil)).
		Return([]models.ConsentView{{ConsentID: "c1", UserID: "u1", Status: models.StatusActive}}, nil)

	rec := s.request(http.MethodGet, "/consent", nil, &testPrincipal)

	s.Equal(http.StatusOK, rec.Code)
	var resp struct {
		Consents []models.ConsentView `json:"consents"`
		Count    int                  `json:"count"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(1, resp.Count)
	s.Equal("c1", resp.Consents[0].ConsentID)
}

func (s *ConsentHandlerSuite) TestListWithStatusFilter() {
	s.service.EXPECT().
		ListConsents(gomock.Any(), testPrincipal, "", gomock.Cond(func(x any) bool {
			f, ok := x.(*models.RecordFilter)
			return ok && f != nil && f.Status != nil && *f.Status == models.StatusRevoked
		})).
		Return([]models.ConsentView{}, nil)

	rec := s.request(http.MethodGet, "/consent?status=REVOKED", nil, &testPrincipal)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *ConsentHandlerSuite) TestListRejectsUnknownStatus() {
	rec := s.request(http.MethodGet, "/consent?status=PAUSED", nil, &testPrincipal)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ConsentHandlerSuite) TestVerifyReceipt() {
	req := models.VerifyReceiptRequest{Receipt: "signed"}
	s.service.EXPECT().
		VerifyReceipt(gomock.Any(), req).
		Return(&models.VerifyReceiptResponse{Valid: true, ConsentID: "c1"}, nil)

	rec := s.request(http.MethodPost, "/consent/verify-receipt", req, &testPrincipal)

	s.Equal(http.StatusOK, rec.Code)
	var resp models.VerifyReceiptResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.True(resp.Valid)
}
