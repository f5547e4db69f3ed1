package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oparaugo/giftcash/internal/domain"
)

// fakeLedger mirrors the store's conditional-update semantics in
// memory. All transitions happen under one mutex so concurrent callers
// exercise the same single-winner guarantee the SQL guards provide.
type fakeLedger struct {
	mu       sync.Mutex
	nextGift int64
	nextReq  int64
	gifts    map[int64]*domain.Gift
	requests map[int64]*domain.CashoutRequest
	links    map[int64][]int64 // cashout id -> gift ids

	failCreate error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		gifts:    make(map[int64]*domain.Gift),
		requests: make(map[int64]*domain.CashoutRequest),
		links:    make(map[int64][]int64),
	}
}

func (f *fakeLedger) addGift(recipientID string, coins int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextGift++
	f.gifts[f.nextGift] = &domain.Gift{
		ID:          f.nextGift,
		RecipientID: recipientID,
		Coins:       coins,
		CreatedAt:   time.Now(),
	}
	return f.nextGift
}

func (f *fakeLedger) gift(id int64) domain.Gift {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.gifts[id]
}

func (f *fakeLedger) request(id int64) domain.CashoutRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.requests[id]
}

func (f *fakeLedger) CreateCashout(_ context.Context, userID string, details domain.PayoutDetails, rate domain.Rate) (domain.CashoutRequest, []int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCreate != nil {
		return domain.CashoutRequest{}, nil, f.failCreate
	}

	var giftIDs []int64
	var total int64
	for id, g := range f.gifts {
		if g.RecipientID == userID && !g.CashedOut && !g.Reserved {
			giftIDs = append(giftIDs, id)
			total += g.Coins
		}
	}
	if len(giftIDs) == 0 {
		return domain.CashoutRequest{}, nil, domain.ErrNoFunds
	}

	kobo, err := rate.Kobo(total)
	if err != nil {
		return domain.CashoutRequest{}, nil, err
	}

	for _, id := range giftIDs {
		f.gifts[id].Reserved = true
	}

	f.nextReq++
	req := &domain.CashoutRequest{
		ID:         f.nextReq,
		UserID:     userID,
		TotalCoins: total,
		TotalKobo:  kobo,
		Details:    details,
		Status:     domain.StatusPending,
		CreatedAt:  time.Now(),
	}
	f.requests[req.ID] = req
	f.links[req.ID] = giftIDs
	return *req, giftIDs, nil
}

func (f *fakeLedger) GetCashout(_ context.Context, id int64) (domain.CashoutRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return domain.CashoutRequest{}, domain.ErrNotFound
	}
	return *req, nil
}

func (f *fakeLedger) LinkedGiftIDs(_ context.Context, id int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.links[id]...), nil
}

func (f *fakeLedger) ListCashouts(_ context.Context, status domain.Status) ([]domain.CashoutRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.CashoutRequest
	for _, req := range f.requests {
		if status == "" || req.Status == status {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (f *fakeLedger) ListUserCashouts(_ context.Context, userID string) ([]domain.CashoutRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.CashoutRequest
	for _, req := range f.requests {
		if req.UserID == userID {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (f *fakeLedger) Balance(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, g := range f.gifts {
		if g.RecipientID == userID && !g.CashedOut && !g.Reserved {
			total += g.Coins
		}
	}
	return total, nil
}

func (f *fakeLedger) ApproveCashout(_ context.Context, id int64, adminID string) (domain.CashoutRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, err := f.transition(id, domain.StatusPending, domain.StatusApproved, adminID)
	if err != nil {
		return domain.CashoutRequest{}, err
	}
	for _, giftID := range f.links[id] {
		f.gifts[giftID].CashedOut = true
	}
	return req, nil
}

func (f *fakeLedger) RejectCashout(_ context.Context, id int64, adminID string) (domain.CashoutRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, err := f.transition(id, domain.StatusPending, domain.StatusRejected, adminID)
	if err != nil {
		return domain.CashoutRequest{}, err
	}
	for _, giftID := range f.links[id] {
		f.gifts[giftID].Reserved = false
	}
	return req, nil
}

func (f *fakeLedger) ReopenFailed(_ context.Context, id int64, adminID string) (domain.CashoutRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, err := f.transition(id, domain.StatusFailed, domain.StatusApproved, adminID)
	if err != nil {
		return domain.CashoutRequest{}, err
	}
	f.requests[id].FailureReason = ""
	return req, nil
}

func (f *fakeLedger) MarkPaid(_ context.Context, id int64, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return domain.ErrNotFound
	}
	if req.Status != domain.StatusApproved {
		return domain.ErrAlreadyProcessed
	}
	req.Status = domain.StatusPaid
	req.TransferRef = ref
	return nil
}

func (f *fakeLedger) MarkFailed(_ context.Context, id int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return domain.ErrNotFound
	}
	if req.Status != domain.StatusApproved {
		return domain.ErrAlreadyProcessed
	}
	req.Status = domain.StatusFailed
	req.FailureReason = reason
	return nil
}

func (f *fakeLedger) transition(id int64, from, to domain.Status, adminID string) (domain.CashoutRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return domain.CashoutRequest{}, domain.ErrNotFound
	}
	if req.Status != from {
		return domain.CashoutRequest{}, fmt.Errorf("not %s: %w", from, domain.ErrAlreadyProcessed)
	}
	now := time.Now()
	req.Status = to
	req.AdminID = adminID
	req.ReviewedAt = &now
	return *req, nil
}

// fakeGateway counts calls and returns a configured result.
type fakeGateway struct {
	mu      sync.Mutex
	calls   int
	lastAmt int64
	err     error
	ref     string
}

func (g *fakeGateway) Payout(_ context.Context, amountKobo int64, _ domain.PayoutDetails) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastAmt = amountKobo
	if g.err != nil {
		return "", g.err
	}
	if g.ref == "" {
		return "TRF_TEST", nil
	}
	return g.ref, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *fakeGateway) lastAmount() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastAmt
}
