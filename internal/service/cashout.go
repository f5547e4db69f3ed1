package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/oparaugo/giftcash/internal/domain"
)

// CashoutService is the aggregator: it bundles a user's cashable gifts
// into a pending request and answers balance and history queries.
type CashoutService struct {
	ledger Ledger
	rate   domain.Rate
	logger *zap.Logger
}

// NewCashoutService wires the aggregator. The conversion rate is
// injected here once; no other component converts coins.
func NewCashoutService(ledger Ledger, rate domain.Rate, logger *zap.Logger) *CashoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CashoutService{ledger: ledger, rate: rate, logger: logger}
}

// Create validates the payout destination and snapshots all of the
// user's cashable gifts into one pending cashout request. Gifts are
// reserved, not spent: only approval marks them cashed out, so a
// rejected request leaves them eligible for a future attempt.
func (s *CashoutService) Create(ctx context.Context, userID string, details domain.PayoutDetails) (domain.CashoutReceipt, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.CashoutReceipt{}, fmt.Errorf("%w: user identifier required", domain.ErrValidation)
	}
	if err := details.Validate(); err != nil {
		return domain.CashoutReceipt{}, err
	}

	req, giftIDs, err := s.ledger.CreateCashout(ctx, userID, details, s.rate)
	if err != nil {
		return domain.CashoutReceipt{}, err
	}

	cashoutsCreated.Inc()
	s.logger.Info("cashout request created",
		zap.Int64("cashout_id", req.ID),
		zap.String("user_id", userID),
		zap.Int64("total_coins", req.TotalCoins),
		zap.Int64("total_kobo", req.TotalKobo),
		zap.Int("gifts", len(giftIDs)))

	return domain.CashoutReceipt{Request: req, GiftIDs: giftIDs}, nil
}

// Balance reports the user's cashable total in coins and kobo.
func (s *CashoutService) Balance(ctx context.Context, userID string) (domain.Balance, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Balance{}, fmt.Errorf("%w: user identifier required", domain.ErrValidation)
	}
	coins, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return domain.Balance{}, err
	}
	kobo, err := s.rate.Kobo(coins)
	if err != nil {
		return domain.Balance{}, err
	}
	return domain.Balance{Coins: coins, Kobo: kobo}, nil
}

// History returns the user's own requests with gateway internals
// stripped: a failed payout is presented as approved, because the
// failure is an operational matter between the admin and the gateway,
// not something the end user can act on.
func (s *CashoutService) History(ctx context.Context, userID string) ([]domain.CashoutRequest, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user identifier required", domain.ErrValidation)
	}
	list, err := s.ledger.ListUserCashouts(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Status == domain.StatusFailed {
			list[i].Status = domain.StatusApproved
		}
		list[i].FailureReason = ""
		list[i].TransferRef = ""
		list[i].AdminID = ""
	}
	return list, nil
}
