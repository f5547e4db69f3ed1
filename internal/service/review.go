package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oparaugo/giftcash/internal/domain"
)

// Decision is an administrator's verdict on a pending cashout.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ParseDecision validates the action string from the boundary.
func ParseDecision(raw string) (Decision, error) {
	switch Decision(raw) {
	case DecisionApprove, DecisionReject:
		return Decision(raw), nil
	}
	return "", fmt.Errorf("%w: action must be approve or reject", domain.ErrValidation)
}

// ReviewService drives the cashout state machine. On approval the gift
// marking is committed before the gateway is called, and the terminal
// status is written after the gateway returns; a crash in between
// leaves the request visibly stuck in approved with gifts spent, which
// an operator can reconcile. No multi-request transaction spans the
// gateway call.
type ReviewService struct {
	ledger  Ledger
	gateway Gateway
	timeout time.Duration
	logger  *zap.Logger
}

// NewReviewService wires the review engine. timeout bounds each gateway
// call; a timed-out payout is a failed payout, never a request left in
// approved indefinitely.
func NewReviewService(ledger Ledger, gw Gateway, timeout time.Duration, logger *zap.Logger) *ReviewService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewService{ledger: ledger, gateway: gw, timeout: timeout, logger: logger}
}

// Review processes an admin decision on a pending request. The admin
// identity is an explicit precondition here, not an assumption about
// the transport layer. Exactly one of two concurrent reviewers wins the
// pending guard; the other receives domain.ErrAlreadyProcessed.
func (s *ReviewService) Review(ctx context.Context, cashoutID int64, adminID string, decision Decision) (domain.CashoutRequest, error) {
	if strings.TrimSpace(adminID) == "" {
		return domain.CashoutRequest{}, fmt.Errorf("%w: admin identifier required", domain.ErrValidation)
	}

	switch decision {
	case DecisionReject:
		req, err := s.ledger.RejectCashout(ctx, cashoutID, adminID)
		if err != nil {
			return domain.CashoutRequest{}, err
		}
		reviewsTotal.WithLabelValues(string(DecisionReject)).Inc()
		s.logger.Info("cashout rejected",
			zap.Int64("cashout_id", req.ID),
			zap.String("admin_id", adminID))
		return req, nil

	case DecisionApprove:
		req, err := s.ledger.ApproveCashout(ctx, cashoutID, adminID)
		if err != nil {
			return domain.CashoutRequest{}, err
		}
		reviewsTotal.WithLabelValues(string(DecisionApprove)).Inc()
		return s.executePayout(ctx, req)

	default:
		return domain.CashoutRequest{}, fmt.Errorf("%w: action must be approve or reject", domain.ErrValidation)
	}
}

// Retry re-drives the payout of a failed request. This is the only way
// out of failed, and it is always an explicit admin action.
func (s *ReviewService) Retry(ctx context.Context, cashoutID int64, adminID string) (domain.CashoutRequest, error) {
	if strings.TrimSpace(adminID) == "" {
		return domain.CashoutRequest{}, fmt.Errorf("%w: admin identifier required", domain.ErrValidation)
	}
	req, err := s.ledger.ReopenFailed(ctx, cashoutID, adminID)
	if err != nil {
		return domain.CashoutRequest{}, err
	}
	s.logger.Info("retrying failed payout",
		zap.Int64("cashout_id", req.ID),
		zap.String("admin_id", adminID))
	return s.executePayout(ctx, req)
}

// Get returns a request with its linked gift ids, for the admin view.
func (s *ReviewService) Get(ctx context.Context, cashoutID int64) (domain.CashoutRequest, []int64, error) {
	req, err := s.ledger.GetCashout(ctx, cashoutID)
	if err != nil {
		return domain.CashoutRequest{}, nil, err
	}
	giftIDs, err := s.ledger.LinkedGiftIDs(ctx, cashoutID)
	if err != nil {
		return domain.CashoutRequest{}, nil, err
	}
	return req, giftIDs, nil
}

// List returns requests for the admin dashboard, optionally filtered.
func (s *ReviewService) List(ctx context.Context, status domain.Status) ([]domain.CashoutRequest, error) {
	return s.ledger.ListCashouts(ctx, status)
}

// executePayout runs the single gateway attempt for an approved request
// and writes the terminal status. Gifts are already marked cashed out
// and stay that way on failure: the money question is settled by a
// human, not by silently retrying a transfer that may have gone
// through.
func (s *ReviewService) executePayout(ctx context.Context, req domain.CashoutRequest) (domain.CashoutRequest, error) {
	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	ref, payErr := s.gateway.Payout(gctx, req.TotalKobo, req.Details)
	cancel()

	if payErr != nil {
		payoutsTotal.WithLabelValues("failed").Inc()
		s.logger.Error("payout failed",
			zap.Int64("cashout_id", req.ID),
			zap.Int64("amount_kobo", req.TotalKobo),
			zap.Error(payErr))
		if err := s.ledger.MarkFailed(ctx, req.ID, payErr.Error()); err != nil {
			s.logger.Error("recording payout failure",
				zap.Int64("cashout_id", req.ID),
				zap.Error(err))
		}
		req.Status = domain.StatusFailed
		req.FailureReason = payErr.Error()
		return req, fmt.Errorf("%w: %w", domain.ErrPayoutFailed, payErr)
	}

	if err := s.ledger.MarkPaid(ctx, req.ID, ref); err != nil {
		return domain.CashoutRequest{}, fmt.Errorf("recording payout success: %w", err)
	}
	payoutsTotal.WithLabelValues("paid").Inc()
	s.logger.Info("payout completed",
		zap.Int64("cashout_id", req.ID),
		zap.Int64("amount_kobo", req.TotalKobo),
		zap.String("transfer_ref", ref))

	req.Status = domain.StatusPaid
	req.TransferRef = ref
	return req, nil
}
