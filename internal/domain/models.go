package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a cashout request.
// pending -> approved -> paid | failed, pending -> rejected.
// paid, failed and rejected are terminal; a failed request can only be
// re-driven by an explicit admin retry.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusRejected Status = "rejected"
)

// Terminal reports whether no automatic transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusFailed || s == StatusRejected
}

// ParseStatus validates a status string coming from the boundary.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusPending, StatusApproved, StatusPaid, StatusFailed, StatusRejected:
		return Status(raw), nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, raw)
}

// Gift is a coin credit earned by a user, eligible for cashout until it
// is reserved by a request and ultimately cashed out on approval.
type Gift struct {
	ID          int64     `json:"id"`
	RecipientID string    `json:"recipient_id"`
	Coins       int64     `json:"coins"`
	CashedOut   bool      `json:"cashed_out"`
	Reserved    bool      `json:"reserved"`
	CreatedAt   time.Time `json:"created_at"`
}

// PayoutDetails is the bank destination supplied by the requesting user.
type PayoutDetails struct {
	BankName      string `json:"payout_bank_name"`
	BankCode      string `json:"payout_bank_code"`
	AccountNumber string `json:"payout_account_number"`
	AccountName   string `json:"payout_account_name"`
}

// Validate checks the required fields before any row is written.
func (d PayoutDetails) Validate() error {
	var missing []string
	if strings.TrimSpace(d.BankName) == "" {
		missing = append(missing, "payout_bank_name")
	}
	if strings.TrimSpace(d.AccountNumber) == "" {
		missing = append(missing, "payout_account_number")
	}
	if strings.TrimSpace(d.AccountName) == "" {
		missing = append(missing, "payout_account_name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// CashoutRequest is a snapshot of a user's intent to convert accumulated
// gift coins to currency. Totals are fixed at creation time; only the
// review engine mutates status and review metadata afterwards.
type CashoutRequest struct {
	ID            int64         `json:"id"`
	UserID        string        `json:"user_id"`
	TotalCoins    int64         `json:"total_coins"`
	TotalKobo     int64         `json:"total_kobo"`
	Details       PayoutDetails `json:"payout_details"`
	Status        Status        `json:"status"`
	AdminID       string        `json:"admin_id,omitempty"`
	ReviewedAt    *time.Time    `json:"reviewed_at,omitempty"`
	TransferRef   string        `json:"transfer_ref,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// CashoutReceipt is the result of a successful aggregation: the created
// request plus the identifiers of the gifts it consumed.
type CashoutReceipt struct {
	Request CashoutRequest `json:"cashout"`
	GiftIDs []int64        `json:"gift_ids"`
}

// Balance is a user's cashable total in both units.
type Balance struct {
	Coins int64 `json:"coins"`
	Kobo  int64 `json:"kobo"`
}
