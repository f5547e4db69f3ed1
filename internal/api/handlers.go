package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/oparaugo/giftcash/internal/domain"
	"github.com/oparaugo/giftcash/internal/service"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftcash_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "giftcash_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "endpoint"})
)

// Cashouts is the user-facing aggregator surface.
type Cashouts interface {
	Create(ctx context.Context, userID string, details domain.PayoutDetails) (domain.CashoutReceipt, error)
	Balance(ctx context.Context, userID string) (domain.Balance, error)
	History(ctx context.Context, userID string) ([]domain.CashoutRequest, error)
}

// Reviews is the admin-facing review-engine surface.
type Reviews interface {
	Review(ctx context.Context, cashoutID int64, adminID string, decision service.Decision) (domain.CashoutRequest, error)
	Retry(ctx context.Context, cashoutID int64, adminID string) (domain.CashoutRequest, error)
	Get(ctx context.Context, cashoutID int64) (domain.CashoutRequest, []int64, error)
	List(ctx context.Context, status domain.Status) ([]domain.CashoutRequest, error)
}

// Handler holds the request handlers for the cashout API.
type Handler struct {
	cashouts Cashouts
	reviews  Reviews
	logger   *zap.Logger
}

// NewHandler wires the handlers to their services.
func NewHandler(cashouts Cashouts, reviews Reviews, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{cashouts: cashouts, reviews: reviews, logger: logger}
}

// Routes builds the full router: health and metrics unauthenticated,
// /api/v1 behind the auth middleware, /api/v1/admin additionally behind
// the admin-role check.
func Routes(h *Handler, auth *Auth) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(mux.MiddlewareFunc(auth.Middleware))
	v1.HandleFunc("/balance", h.GetBalance).Methods(http.MethodGet)
	v1.HandleFunc("/cashouts", h.CreateCashout).Methods(http.MethodPost)
	v1.HandleFunc("/cashouts", h.ListMyCashouts).Methods(http.MethodGet)

	admin := v1.PathPrefix("/admin").Subrouter()
	admin.Use(mux.MiddlewareFunc(auth.RequireAdmin))
	admin.HandleFunc("/cashouts", h.ListCashouts).Methods(http.MethodGet)
	admin.HandleFunc("/cashouts/{id}", h.GetCashout).Methods(http.MethodGet)
	admin.HandleFunc("/cashouts/{id}/review", h.ReviewCashout).Methods(http.MethodPost)
	admin.HandleFunc("/cashouts/{id}/retry", h.RetryCashout).Methods(http.MethodPost)

	return r
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createCashoutRequest struct {
	PayoutBankName      string `json:"payout_bank_name"`
	PayoutBankCode      string `json:"payout_bank_code"`
	PayoutAccountNumber string `json:"payout_account_number"`
	PayoutAccountName   string `json:"payout_account_name"`
}

// CreateCashout bundles the caller's cashable gifts into a pending
// request.
func (h *Handler) CreateCashout(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/cashouts"))
	defer timer.ObserveDuration()

	identity, ok := IdentityFrom(r.Context())
	if !ok {
		h.respondError(w, "POST", "/cashouts", http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	var req createCashoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, "POST", "/cashouts", http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	receipt, err := h.cashouts.Create(r.Context(), identity.UserID, domain.PayoutDetails{
		BankName:      req.PayoutBankName,
		BankCode:      req.PayoutBankCode,
		AccountNumber: req.PayoutAccountNumber,
		AccountName:   req.PayoutAccountName,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			h.respondError(w, "POST", "/cashouts", http.StatusUnprocessableEntity, "missing_params", err.Error())
		case errors.Is(err, domain.ErrNoFunds):
			h.respondError(w, "POST", "/cashouts", http.StatusUnprocessableEntity, "no_funds", "no cashable gifts")
		case errors.Is(err, domain.ErrInexactRate):
			h.respondError(w, "POST", "/cashouts", http.StatusUnprocessableEntity, "inexact_rate", err.Error())
		default:
			h.logger.Error("create cashout", zap.Error(err))
			h.respondError(w, "POST", "/cashouts", http.StatusInternalServerError, "server_error", "internal server error")
		}
		return
	}

	httpRequestsTotal.WithLabelValues("POST", "/cashouts", "201").Inc()
	respondWithJSON(w, http.StatusCreated, receipt)
}

// GetBalance returns the caller's cashable balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		h.respondError(w, "GET", "/balance", http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	balance, err := h.cashouts.Balance(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("get balance", zap.Error(err))
		h.respondError(w, "GET", "/balance", http.StatusInternalServerError, "server_error", "internal server error")
		return
	}

	httpRequestsTotal.WithLabelValues("GET", "/balance", "200").Inc()
	respondWithJSON(w, http.StatusOK, balance)
}

// ListMyCashouts returns the caller's own request history with gateway
// internals masked.
func (h *Handler) ListMyCashouts(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		h.respondError(w, "GET", "/cashouts", http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	list, err := h.cashouts.History(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("list cashouts", zap.Error(err))
		h.respondError(w, "GET", "/cashouts", http.StatusInternalServerError, "server_error", "internal server error")
		return
	}

	httpRequestsTotal.WithLabelValues("GET", "/cashouts", "200").Inc()
	respondWithJSON(w, http.StatusOK, map[string]any{"cashouts": orEmpty(list)})
}

// ListCashouts is the admin listing, optionally filtered by status.
func (h *Handler) ListCashouts(w http.ResponseWriter, r *http.Request) {
	var status domain.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := domain.ParseStatus(raw)
		if err != nil {
			h.respondError(w, "GET", "/admin/cashouts", http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		status = parsed
	}

	list, err := h.reviews.List(r.Context(), status)
	if err != nil {
		h.logger.Error("admin list cashouts", zap.Error(err))
		h.respondError(w, "GET", "/admin/cashouts", http.StatusInternalServerError, "server_error", "internal server error")
		return
	}

	httpRequestsTotal.WithLabelValues("GET", "/admin/cashouts", "200").Inc()
	respondWithJSON(w, http.StatusOK, map[string]any{"cashouts": orEmpty(list)})
}

// GetCashout is the admin detail view, including linked gifts and any
// gateway failure message.
func (h *Handler) GetCashout(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "GET", "/admin/cashouts/{id}")
	if !ok {
		return
	}

	req, giftIDs, err := h.reviews.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.respondError(w, "GET", "/admin/cashouts/{id}", http.StatusNotFound, "not_found", "cashout not found")
			return
		}
		h.logger.Error("admin get cashout", zap.Error(err))
		h.respondError(w, "GET", "/admin/cashouts/{id}", http.StatusInternalServerError, "server_error", "internal server error")
		return
	}

	httpRequestsTotal.WithLabelValues("GET", "/admin/cashouts/{id}", "200").Inc()
	respondWithJSON(w, http.StatusOK, domain.CashoutReceipt{Request: req, GiftIDs: giftIDs})
}

type reviewCashoutRequest struct {
	Action string `json:"action"`
}

// ReviewCashout processes an admin approve/reject decision.
func (h *Handler) ReviewCashout(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/admin/cashouts/{id}/review"))
	defer timer.ObserveDuration()

	const endpoint = "/admin/cashouts/{id}/review"
	id, ok := h.pathID(w, r, "POST", endpoint)
	if !ok {
		return
	}

	identity, ok := IdentityFrom(r.Context())
	if !ok {
		h.respondError(w, "POST", endpoint, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	var body reviewCashoutRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, "POST", endpoint, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	decision, err := service.ParseDecision(body.Action)
	if err != nil {
		h.respondError(w, "POST", endpoint, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	req, err := h.reviews.Review(r.Context(), id, identity.UserID, decision)
	h.respondReviewResult(w, endpoint, req, err)
}

// RetryCashout re-drives the payout of a failed request.
func (h *Handler) RetryCashout(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/admin/cashouts/{id}/retry"
	id, ok := h.pathID(w, r, "POST", endpoint)
	if !ok {
		return
	}

	identity, ok := IdentityFrom(r.Context())
	if !ok {
		h.respondError(w, "POST", endpoint, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	req, err := h.reviews.Retry(r.Context(), id, identity.UserID)
	h.respondReviewResult(w, endpoint, req, err)
}

func (h *Handler) respondReviewResult(w http.ResponseWriter, endpoint string, req domain.CashoutRequest, err error) {
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			h.respondError(w, "POST", endpoint, http.StatusNotFound, "not_found", "cashout not found")
		case errors.Is(err, domain.ErrAlreadyProcessed):
			h.respondError(w, "POST", endpoint, http.StatusConflict, "already_processed", "cashout already processed")
		case errors.Is(err, domain.ErrValidation):
			h.respondError(w, "POST", endpoint, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, domain.ErrPayoutFailed):
			// The decision stuck; only the transfer failed. The admin
			// sees the raw gateway message and can retry explicitly.
			httpRequestsTotal.WithLabelValues("POST", endpoint, "502").Inc()
			respondWithJSON(w, http.StatusBadGateway, map[string]any{
				"success": false,
				"error":   "payout_failed",
				"message": err.Error(),
				"cashout": req,
			})
		default:
			h.logger.Error("review cashout", zap.Error(err))
			h.respondError(w, "POST", endpoint, http.StatusInternalServerError, "server_error", "internal server error")
		}
		return
	}

	httpRequestsTotal.WithLabelValues("POST", endpoint, "200").Inc()
	respondWithJSON(w, http.StatusOK, map[string]any{"success": true, "cashout": req})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, method, endpoint string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, method, endpoint, http.StatusBadRequest, "invalid_request", "invalid cashout id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, method, endpoint string, status int, code, message string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	respondWithError(w, status, code, message)
}

func orEmpty(list []domain.CashoutRequest) []domain.CashoutRequest {
	if list == nil {
		return []domain.CashoutRequest{}
	}
	return list
}

func respondWithError(w http.ResponseWriter, status int, code, message string) {
	respondWithJSON(w, status, map[string]string{"error": code, "message": message})
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
