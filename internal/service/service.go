package service

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/oparaugo/giftcash/internal/domain"
)

// Ledger is the persistence surface the cashout core needs. The
// Postgres store implements it; tests substitute an in-memory fake.
// Every transition method is conditional on the current status and
// returns domain.ErrAlreadyProcessed when the guard trips.
type Ledger interface {
	CreateCashout(ctx context.Context, userID string, details domain.PayoutDetails, rate domain.Rate) (domain.CashoutRequest, []int64, error)
	GetCashout(ctx context.Context, id int64) (domain.CashoutRequest, error)
	LinkedGiftIDs(ctx context.Context, cashoutID int64) ([]int64, error)
	ListCashouts(ctx context.Context, status domain.Status) ([]domain.CashoutRequest, error)
	ListUserCashouts(ctx context.Context, userID string) ([]domain.CashoutRequest, error)
	Balance(ctx context.Context, userID string) (int64, error)

	ApproveCashout(ctx context.Context, id int64, adminID string) (domain.CashoutRequest, error)
	RejectCashout(ctx context.Context, id int64, adminID string) (domain.CashoutRequest, error)
	ReopenFailed(ctx context.Context, id int64, adminID string) (domain.CashoutRequest, error)
	MarkPaid(ctx context.Context, id int64, transferRef string) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

// Gateway executes a single best-effort transfer. Retry policy, if any,
// belongs to the caller.
type Gateway interface {
	Payout(ctx context.Context, amountKobo int64, details domain.PayoutDetails) (string, error)
}

var (
	cashoutsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "giftcash_cashouts_created_total",
		Help: "Cashout requests created",
	})

	reviewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftcash_reviews_total",
		Help: "Review decisions processed, labeled by decision",
	}, []string{"decision"})

	payoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftcash_payouts_total",
		Help: "Gateway payout attempts, labeled by outcome",
	}, []string{"outcome"})
)
