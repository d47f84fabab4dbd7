package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dealdesk/internal/importer"
	"dealdesk/internal/lifecycle"
	"dealdesk/internal/middleware"
	"dealdesk/internal/pricing"
	"dealdesk/internal/service"
	"dealdesk/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("handler-test-secret")

// fakeDealService records ApplyAction calls. Unused methods panic through the nil embedded interface.
type fakeDealService struct {
	service.DealService
	calls []service.ActionRequest
	err   error
}

func (f *fakeDealService) ApplyAction(_ context.Context, id string, req service.ActionRequest) (service.ActionResult, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return service.ActionResult{}, f.err
	}
	return service.ActionResult{DealID: uuid.MustParse(id), Action: req.Action, From: lifecycle.M01, To: lifecycle.M02, Version: 2}, nil
}

func newDealRouter(t *testing.T, deals service.DealService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewDealHandler(deals, nil).RegisterRoutes(router.Group(""), middleware.NewAuth(testSecret))
	return router
}

func token(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID.String(),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)
	return s
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var res response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res), w.Body.String())
	return res
}

func TestListStatuses(t *testing.T) {
	router := newDealRouter(t, &fakeDealService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/statuses", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []lifecycle.StatusInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 25)
	assert.Equal(t, lifecycle.M01, body.Data[0].Code)
	assert.Equal(t, lifecycle.M25, body.Data[24].Code)
}

func TestApplyAction(t *testing.T) {
	userID := uuid.New()
	dealID := uuid.New()
	path := fmt.Sprintf("/api/deals/%s/actions/%s", dealID, lifecycle.ActionSendQuoteRequest)

	do := func(router *gin.Engine, body io.Reader, auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, body)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if auth != "" {
			req.Header.Set("Authorization", "Bearer "+auth)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("unauthenticated", func(t *testing.T) {
		deals := &fakeDealService{}
		w := do(newDealRouter(t, deals), nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Empty(t, deals.calls)
	})

	t.Run("empty body", func(t *testing.T) {
		deals := &fakeDealService{}
		w := do(newDealRouter(t, deals), nil, token(t, userID, lifecycle.RoleStaff))

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.Len(t, deals.calls, 1)
		assert.Equal(t, lifecycle.ActionSendQuoteRequest, deals.calls[0].Action)
		assert.Equal(t, service.Actor{UserID: userID, Role: lifecycle.RoleStaff}, deals.calls[0].Actor)
		assert.Nil(t, deals.calls[0].QuoteID)
	})

	t.Run("payload fields reach the service", func(t *testing.T) {
		deals := &fakeDealService{}
		quoteID := uuid.New()
		body := fmt.Sprintf(`{"quote_id":%q,"amount_usd":"780.50","amount_jpy":120000,"carrier":" DHL ","note":"ok"}`, quoteID)
		w := do(newDealRouter(t, deals), strings.NewReader(body), token(t, userID, lifecycle.RoleAccounting))

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		req := deals.calls[0]
		require.NotNil(t, req.QuoteID)
		assert.Equal(t, quoteID, *req.QuoteID)
		require.NotNil(t, req.AmountUsd)
		assert.Equal(t, "780.5", req.AmountUsd.String())
		require.NotNil(t, req.AmountJpy)
		assert.Equal(t, int64(120000), *req.AmountJpy)
		assert.Equal(t, "DHL", req.Carrier)
	})

	t.Run("malformed json", func(t *testing.T) {
		deals := &fakeDealService{}
		w := do(newDealRouter(t, deals), strings.NewReader(`{"note":`), token(t, userID, lifecycle.RoleStaff))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, CodeInvalidPayload, decode(t, w).Code)
		assert.Empty(t, deals.calls)
	})

	t.Run("bad quote id", func(t *testing.T) {
		deals := &fakeDealService{}
		w := do(newDealRouter(t, deals), strings.NewReader(`{"quote_id":"nope"}`), token(t, userID, lifecycle.RoleStaff))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, CodeValidation, decode(t, w).Code)
		assert.Empty(t, deals.calls)
	})

	t.Run("service rejection keeps its kind", func(t *testing.T) {
		deals := &fakeDealService{err: &lifecycle.ActionError{Kind: lifecycle.InvalidTransition, DealID: dealID.String(), Status: lifecycle.M05, Action: lifecycle.ActionSendQuoteRequest}}
		w := do(newDealRouter(t, deals), nil, token(t, userID, lifecycle.RoleStaff))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, string(lifecycle.InvalidTransition), decode(t, w).Code)
	})
}

func TestInvoicesRequireAccountingRole(t *testing.T) {
	router := newDealRouter(t, &fakeDealService{})

	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, uuid.New(), lifecycle.RoleStaff))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWriteError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &pricing.ValidationError{Field: "quantity", Message: "must be positive"}, http.StatusBadRequest, CodeValidation},
		{"not found", fmt.Errorf("partner %w", service.ErrNotFound), http.StatusNotFound, CodeNotFound},
		{"duplicate", fmt.Errorf("code %w", service.ErrAlreadyExists), http.StatusConflict, CodeAlreadyExists},
		{"credentials", service.ErrInvalidCredentials, http.StatusUnauthorized, CodeUnauthorized},
		{"token", service.ErrInvalidToken, http.StatusUnauthorized, CodeUnauthorized},
		{"bootstrap closed", service.ErrBootstrapClosed, http.StatusForbidden, string(lifecycle.Forbidden)},
		{"import", &importer.ImportError{Errors: []importer.RowError{{Line: 3, Column: "quantity", Message: "must be positive"}}}, http.StatusBadRequest, CodeImportRejected},
		{"invalid transition", &lifecycle.ActionError{Kind: lifecycle.InvalidTransition}, http.StatusConflict, string(lifecycle.InvalidTransition)},
		{"conflict", &lifecycle.ActionError{Kind: lifecycle.Conflict}, http.StatusConflict, string(lifecycle.Conflict)},
		{"precondition", &lifecycle.ActionError{Kind: lifecycle.PreconditionFailed, Fact: lifecycle.FactInvoiceIssued}, http.StatusUnprocessableEntity, string(lifecycle.PreconditionFailed)},
		{"forbidden", &lifecycle.ActionError{Kind: lifecycle.Forbidden}, http.StatusForbidden, string(lifecycle.Forbidden)},
		{"deal missing", &lifecycle.ActionError{Kind: lifecycle.NotFound}, http.StatusNotFound, string(lifecycle.NotFound)},
		{"persistence", &lifecycle.ActionError{Kind: lifecycle.PersistenceFailure, Err: errors.New("disk full")}, http.StatusInternalServerError, string(lifecycle.PersistenceFailure)},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			writeError(c, tc.err)

			assert.Equal(t, tc.status, w.Code)
			res := decode(t, w)
			assert.Equal(t, tc.code, res.Code)
			assert.Equal(t, "error", res.Status)
		})
	}

	t.Run("internal details stay out of the body", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		writeError(c, &lifecycle.ActionError{Kind: lifecycle.PersistenceFailure, Err: errors.New("pq: deadlock detected")})

		res := decode(t, w)
		assert.Equal(t, persistenceFailedMsg, res.Error)
		assert.NotContains(t, w.Body.String(), "deadlock")
	})

	t.Run("import rows are returned as data", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		writeError(c, &importer.ImportError{Errors: []importer.RowError{{Line: 2, Column: "unit_price_usd", Message: "not a number"}, {Line: 5, Column: "category", Message: "required"}}})

		var body struct {
			Data []importer.RowError `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Len(t, body.Data, 2)
	})
}
