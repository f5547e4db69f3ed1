package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oparaugo/giftcash/internal/api"
	"github.com/oparaugo/giftcash/internal/domain"
	"github.com/oparaugo/giftcash/internal/service"
)

const testSecret = "test-signing-secret"

// stubCashouts and stubReviews return canned results per method.
type stubCashouts struct {
	receipt domain.CashoutReceipt
	balance domain.Balance
	history []domain.CashoutRequest
	err     error
}

func (s *stubCashouts) Create(context.Context, string, domain.PayoutDetails) (domain.CashoutReceipt, error) {
	return s.receipt, s.err
}

func (s *stubCashouts) Balance(context.Context, string) (domain.Balance, error) {
	return s.balance, s.err
}

func (s *stubCashouts) History(context.Context, string) ([]domain.CashoutRequest, error) {
	return s.history, s.err
}

type stubReviews struct {
	req      domain.CashoutRequest
	giftIDs  []int64
	list     []domain.CashoutRequest
	err      error
	lastID   int64
	lastBy   string
	lastWhat service.Decision
}

func (s *stubReviews) Review(_ context.Context, id int64, adminID string, d service.Decision) (domain.CashoutRequest, error) {
	s.lastID, s.lastBy, s.lastWhat = id, adminID, d
	return s.req, s.err
}

func (s *stubReviews) Retry(_ context.Context, id int64, adminID string) (domain.CashoutRequest, error) {
	s.lastID, s.lastBy = id, adminID
	return s.req, s.err
}

func (s *stubReviews) Get(_ context.Context, id int64) (domain.CashoutRequest, []int64, error) {
	return s.req, s.giftIDs, s.err
}

func (s *stubReviews) List(context.Context, domain.Status) ([]domain.CashoutRequest, error) {
	return s.list, s.err
}

func newTestServer(t *testing.T, cashouts api.Cashouts, reviews api.Reviews) *httptest.Server {
	t.Helper()
	h := api.NewHandler(cashouts, reviews, nil)
	srv := httptest.NewServer(api.Routes(h, api.NewAuth(testSecret)))
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, subject, role, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, api.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func doRequest(t *testing.T, srv *httptest.Server, method, path, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealthUnauthenticated(t *testing.T) {
	srv := newTestServer(t, &stubCashouts{}, &stubReviews{})
	resp := doRequest(t, srv, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, &stubCashouts{}, &stubReviews{})

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/balance", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, srv, http.MethodGet, "/api/v1/balance", "garbage-token", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	wrongKey := signToken(t, "user-1", "user", "some-other-secret")
	resp = doRequest(t, srv, http.MethodGet, "/api/v1/balance", wrongKey, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminRoleRequired(t *testing.T) {
	srv := newTestServer(t, &stubCashouts{}, &stubReviews{})
	userToken := signToken(t, "user-1", "user", testSecret)

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/admin/cashouts/1/review", userToken, `{"action":"approve"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", decodeBody(t, resp)["error"])
}

func TestCreateCashoutSuccess(t *testing.T) {
	cashouts := &stubCashouts{receipt: domain.CashoutReceipt{
		Request: domain.CashoutRequest{ID: 7, UserID: "user-1", TotalCoins: 1000, TotalKobo: 1000, Status: domain.StatusPending},
		GiftIDs: []int64{1, 2, 3},
	}}
	srv := newTestServer(t, cashouts, &stubReviews{})
	token := signToken(t, "user-1", "user", testSecret)

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/cashouts", token,
		`{"payout_bank_name":"GTBank","payout_bank_code":"058","payout_account_number":"0123456789","payout_account_name":"Ada Obi"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	cashout := body["cashout"].(map[string]any)
	assert.Equal(t, float64(7), cashout["id"])
	assert.Equal(t, "pending", cashout["status"])
	assert.Len(t, body["gift_ids"], 3)
}

func TestCreateCashoutErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"missing params", fmt.Errorf("%w: missing payout_bank_name", domain.ErrValidation), http.StatusUnprocessableEntity, "missing_params"},
		{"no funds", domain.ErrNoFunds, http.StatusUnprocessableEntity, "no_funds"},
		{"inexact rate", domain.ErrInexactRate, http.StatusUnprocessableEntity, "inexact_rate"},
		{"store down", fmt.Errorf("begin tx: connection refused"), http.StatusInternalServerError, "server_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, &stubCashouts{err: tc.err}, &stubReviews{})
			token := signToken(t, "user-1", "user", testSecret)

			resp := doRequest(t, srv, http.MethodPost, "/api/v1/cashouts", token, `{}`)
			assert.Equal(t, tc.wantCode, resp.StatusCode)
			assert.Equal(t, tc.wantErr, decodeBody(t, resp)["error"])
		})
	}
}

func TestReviewCashoutSuccess(t *testing.T) {
	reviews := &stubReviews{req: domain.CashoutRequest{ID: 9, Status: domain.StatusPaid, TransferRef: "TRF_OK"}}
	srv := newTestServer(t, &stubCashouts{}, reviews)
	token := signToken(t, "admin-1", "admin", testSecret)

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/admin/cashouts/9/review", token, `{"action":"approve"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, int64(9), reviews.lastID)
	assert.Equal(t, "admin-1", reviews.lastBy)
	assert.Equal(t, service.DecisionApprove, reviews.lastWhat)
}

func TestReviewCashoutErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"not found", domain.ErrNotFound, http.StatusNotFound, "not_found"},
		{"already processed", fmt.Errorf("not pending: %w", domain.ErrAlreadyProcessed), http.StatusConflict, "already_processed"},
		{"payout failed", fmt.Errorf("%w: transfer failed: insufficient balance", domain.ErrPayoutFailed), http.StatusBadGateway, "payout_failed"},
		{"store down", fmt.Errorf("begin tx: connection refused"), http.StatusInternalServerError, "server_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, &stubCashouts{}, &stubReviews{err: tc.err})
			token := signToken(t, "admin-1", "admin", testSecret)

			resp := doRequest(t, srv, http.MethodPost, "/api/v1/admin/cashouts/9/review", token, `{"action":"reject"}`)
			assert.Equal(t, tc.wantCode, resp.StatusCode)
			assert.Equal(t, tc.wantErr, decodeBody(t, resp)["error"])
		})
	}
}

func TestReviewCashoutBadInput(t *testing.T) {
	srv := newTestServer(t, &stubCashouts{}, &stubReviews{})
	token := signToken(t, "admin-1", "admin", testSecret)

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/admin/cashouts/9/review", token, `{"action":"escalate"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, srv, http.MethodPost, "/api/v1/admin/cashouts/abc/review", token, `{"action":"approve"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, srv, http.MethodPost, "/api/v1/admin/cashouts/9/review", token, `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRetryCashout(t *testing.T) {
	reviews := &stubReviews{req: domain.CashoutRequest{ID: 4, Status: domain.StatusPaid, TransferRef: "TRF_RETRY"}}
	srv := newTestServer(t, &stubCashouts{}, reviews)
	token := signToken(t, "admin-2", "admin", testSecret)

	resp := doRequest(t, srv, http.MethodPost, "/api/v1/admin/cashouts/4/retry", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeBody(t, resp)["success"])
	assert.Equal(t, "admin-2", reviews.lastBy)
}

func TestGetBalance(t *testing.T) {
	srv := newTestServer(t, &stubCashouts{balance: domain.Balance{Coins: 500, Kobo: 500}}, &stubReviews{})
	token := signToken(t, "user-1", "user", testSecret)

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/balance", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, float64(500), body["coins"])
	assert.Equal(t, float64(500), body["kobo"])
}

func TestListMyCashouts(t *testing.T) {
	srv := newTestServer(t, &stubCashouts{history: []domain.CashoutRequest{
		{ID: 1, Status: domain.StatusApproved},
		{ID: 2, Status: domain.StatusRejected},
	}}, &stubReviews{})
	token := signToken(t, "user-1", "user", testSecret)

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/cashouts", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody(t, resp)["cashouts"], 2)
}

func TestAdminListFilterValidation(t *testing.T) {
	srv := newTestServer(t, &stubCashouts{}, &stubReviews{list: []domain.CashoutRequest{{ID: 1, Status: domain.StatusPending}}})
	token := signToken(t, "admin-1", "admin", testSecret)

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/admin/cashouts?status=pending", token, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, srv, http.MethodGet, "/api/v1/admin/cashouts?status=bogus", token, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminGetCashout(t *testing.T) {
	reviews := &stubReviews{
		req:     domain.CashoutRequest{ID: 3, Status: domain.StatusFailed, FailureReason: "transfer failed: insufficient balance"},
		giftIDs: []int64{10, 11},
	}
	srv := newTestServer(t, &stubCashouts{}, reviews)
	token := signToken(t, "admin-1", "admin", testSecret)

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/admin/cashouts/3", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	cashout := body["cashout"].(map[string]any)
	// Admins see the raw gateway failure, unlike end users.
	assert.Equal(t, "failed", cashout["status"])
	assert.Contains(t, cashout["failure_reason"], "insufficient balance")
	assert.Len(t, body["gift_ids"], 2)
}
