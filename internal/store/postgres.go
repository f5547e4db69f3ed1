package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oparaugo/giftcash/internal/domain"
)

// Store is the Postgres-backed ledger over gifts, cashout_requests and
// cashout_gifts. Every state transition is a conditional update checked
// by affected-row count, never a read followed by a blind write.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open parses the connection string, builds a pool and verifies it.
func Open(ctx context.Context, connString string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

const cashoutColumns = `id, user_id, total_coins, total_kobo, bank_name, bank_code,
	account_number, account_name, status, admin_id, reviewed_at, transfer_ref,
	failure_reason, created_at`

func scanCashout(row pgx.Row) (domain.CashoutRequest, error) {
	var c domain.CashoutRequest
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.TotalCoins,
		&c.TotalKobo,
		&c.Details.BankName,
		&c.Details.BankCode,
		&c.Details.AccountNumber,
		&c.Details.AccountName,
		&c.Status,
		&c.AdminID,
		&c.ReviewedAt,
		&c.TransferRef,
		&c.FailureReason,
		&c.CreatedAt,
	)
	return c, err
}

// CreateGift records a new gift credit. Gift creation itself happens
// outside the cashout core; this exists for the seeder and tests.
func (s *Store) CreateGift(ctx context.Context, recipientID string, coins int64) (domain.Gift, error) {
	var g domain.Gift
	err := s.pool.QueryRow(ctx, `
		INSERT INTO gifts (recipient_id, coins)
		VALUES ($1, $2)
		RETURNING id, recipient_id, coins, cashed_out, reserved, created_at
	`, recipientID, coins).Scan(&g.ID, &g.RecipientID, &g.Coins, &g.CashedOut, &g.Reserved, &g.CreatedAt)
	if err != nil {
		return domain.Gift{}, fmt.Errorf("insert gift: %w", err)
	}
	return g, nil
}

// GetGift fetches a single gift by id.
func (s *Store) GetGift(ctx context.Context, id int64) (domain.Gift, error) {
	var g domain.Gift
	err := s.pool.QueryRow(ctx, `
		SELECT id, recipient_id, coins, cashed_out, reserved, created_at
		FROM gifts WHERE id = $1
	`, id).Scan(&g.ID, &g.RecipientID, &g.Coins, &g.CashedOut, &g.Reserved, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Gift{}, domain.ErrNotFound
		}
		return domain.Gift{}, fmt.Errorf("select gift: %w", err)
	}
	return g, nil
}

// Balance sums a user's cashable coins: not cashed out and not claimed
// by a live request.
func (s *Store) Balance(ctx context.Context, userID string) (int64, error) {
	var coins int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(coins), 0) FROM gifts
		WHERE recipient_id = $1 AND cashed_out = false AND reserved = false
	`, userID).Scan(&coins)
	if err != nil {
		return 0, fmt.Errorf("sum balance: %w", err)
	}
	return coins, nil
}

// CreateCashout claims all of a user's cashable gifts and snapshots them
// into one pending request. The claim is a single conditional UPDATE on
// the reserved marker, so two concurrent calls for the same user cannot
// select overlapping gift sets: the loser finds nothing to claim.
func (s *Store) CreateCashout(ctx context.Context, userID string, details domain.PayoutDetails, rate domain.Rate) (domain.CashoutRequest, []int64, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.CashoutRequest{}, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE gifts SET reserved = true
		WHERE recipient_id = $1 AND cashed_out = false AND reserved = false
		RETURNING id, coins
	`, userID)
	if err != nil {
		return domain.CashoutRequest{}, nil, fmt.Errorf("claim gifts: %w", err)
	}

	var giftIDs []int64
	var totalCoins int64
	for rows.Next() {
		var id, coins int64
		if err := rows.Scan(&id, &coins); err != nil {
			rows.Close()
			return domain.CashoutRequest{}, nil, fmt.Errorf("scan gift: %w", err)
		}
		giftIDs = append(giftIDs, id)
		totalCoins += coins
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.CashoutRequest{}, nil, fmt.Errorf("claim gifts: %w", err)
	}

	if len(giftIDs) == 0 {
		return domain.CashoutRequest{}, nil, domain.ErrNoFunds
	}

	totalKobo, err := rate.Kobo(totalCoins)
	if err != nil {
		return domain.CashoutRequest{}, nil, err
	}

	req := domain.CashoutRequest{
		UserID:     userID,
		TotalCoins: totalCoins,
		TotalKobo:  totalKobo,
		Details:    details,
		Status:     domain.StatusPending,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO cashout_requests
			(user_id, total_coins, total_kobo, bank_name, bank_code, account_number, account_name, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, userID, totalCoins, totalKobo,
		details.BankName, details.BankCode, details.AccountNumber, details.AccountName,
		domain.StatusPending,
	).Scan(&req.ID, &req.CreatedAt)
	if err != nil {
		return domain.CashoutRequest{}, nil, fmt.Errorf("insert cashout request: %w", err)
	}

	linkRows := make([][]any, 0, len(giftIDs))
	for _, giftID := range giftIDs {
		linkRows = append(linkRows, []any{req.ID, giftID})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"cashout_gifts"},
		[]string{"cashout_id", "gift_id"},
		pgx.CopyFromRows(linkRows),
	); err != nil {
		return domain.CashoutRequest{}, nil, fmt.Errorf("link gifts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.CashoutRequest{}, nil, fmt.Errorf("commit tx: %w", err)
	}
	return req, giftIDs, nil
}

// GetCashout fetches one request by id.
func (s *Store) GetCashout(ctx context.Context, id int64) (domain.CashoutRequest, error) {
	c, err := scanCashout(s.pool.QueryRow(ctx,
		`SELECT `+cashoutColumns+` FROM cashout_requests WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CashoutRequest{}, domain.ErrNotFound
		}
		return domain.CashoutRequest{}, fmt.Errorf("select cashout: %w", err)
	}
	return c, nil
}

// LinkedGiftIDs lists the gifts a request consumed, in insertion order.
func (s *Store) LinkedGiftIDs(ctx context.Context, cashoutID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT gift_id FROM cashout_gifts WHERE cashout_id = $1 ORDER BY gift_id
	`, cashoutID)
	if err != nil {
		return nil, fmt.Errorf("select links: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListCashouts returns requests newest first, optionally filtered by
// status (empty status means all).
func (s *Store) ListCashouts(ctx context.Context, status domain.Status) ([]domain.CashoutRequest, error) {
	query := `SELECT ` + cashoutColumns + ` FROM cashout_requests`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	return s.listCashouts(ctx, query, args...)
}

// ListUserCashouts returns one user's requests newest first.
func (s *Store) ListUserCashouts(ctx context.Context, userID string) ([]domain.CashoutRequest, error) {
	return s.listCashouts(ctx,
		`SELECT `+cashoutColumns+` FROM cashout_requests WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID)
}

func (s *Store) listCashouts(ctx context.Context, query string, args ...any) ([]domain.CashoutRequest, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select cashouts: %w", err)
	}
	defer rows.Close()

	var out []domain.CashoutRequest
	for rows.Next() {
		c, err := scanCashout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cashout: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ApproveCashout atomically moves pending -> approved and marks every
// linked gift cashed out, in one transaction. The status guard and the
// transition are a single conditional update; the loser of a concurrent
// review gets ErrAlreadyProcessed.
func (s *Store) ApproveCashout(ctx context.Context, id int64, adminID string) (domain.CashoutRequest, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.CashoutRequest{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.transition(ctx, tx, id, domain.StatusPending, `
		UPDATE cashout_requests
		SET status = $2, admin_id = $3, reviewed_at = now()
		WHERE id = $1 AND status = $4
		RETURNING `+cashoutColumns,
		id, domain.StatusApproved, adminID, domain.StatusPending)
	if err != nil {
		return domain.CashoutRequest{}, err
	}

	// Irreversible once committed: failed payouts keep gifts spent.
	if _, err := tx.Exec(ctx, `
		UPDATE gifts SET cashed_out = true
		WHERE id IN (SELECT gift_id FROM cashout_gifts WHERE cashout_id = $1)
	`, id); err != nil {
		return domain.CashoutRequest{}, fmt.Errorf("mark gifts cashed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.CashoutRequest{}, fmt.Errorf("commit tx: %w", err)
	}
	return c, nil
}

// RejectCashout atomically moves pending -> rejected and releases the
// reserved marker on the linked gifts so they remain cashable later.
func (s *Store) RejectCashout(ctx context.Context, id int64, adminID string) (domain.CashoutRequest, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.CashoutRequest{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.transition(ctx, tx, id, domain.StatusPending, `
		UPDATE cashout_requests
		SET status = $2, admin_id = $3, reviewed_at = now()
		WHERE id = $1 AND status = $4
		RETURNING `+cashoutColumns,
		id, domain.StatusRejected, adminID, domain.StatusPending)
	if err != nil {
		return domain.CashoutRequest{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE gifts SET reserved = false
		WHERE id IN (SELECT gift_id FROM cashout_gifts WHERE cashout_id = $1)
	`, id); err != nil {
		return domain.CashoutRequest{}, fmt.Errorf("release gifts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.CashoutRequest{}, fmt.Errorf("commit tx: %w", err)
	}
	return c, nil
}

// ReopenFailed moves failed -> approved for an explicit admin retry of
// the payout. Gifts stay cashed out.
func (s *Store) ReopenFailed(ctx context.Context, id int64, adminID string) (domain.CashoutRequest, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.CashoutRequest{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.transition(ctx, tx, id, domain.StatusFailed, `
		UPDATE cashout_requests
		SET status = $2, admin_id = $3, reviewed_at = now(), failure_reason = ''
		WHERE id = $1 AND status = $4
		RETURNING `+cashoutColumns,
		id, domain.StatusApproved, adminID, domain.StatusFailed)
	if err != nil {
		return domain.CashoutRequest{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.CashoutRequest{}, fmt.Errorf("commit tx: %w", err)
	}
	return c, nil
}

// MarkPaid finalizes approved -> paid with the gateway reference.
func (s *Store) MarkPaid(ctx context.Context, id int64, transferRef string) error {
	return s.finalize(ctx, id, domain.StatusPaid, `
		UPDATE cashout_requests SET status = $2, transfer_ref = $3
		WHERE id = $1 AND status = $4
	`, id, domain.StatusPaid, transferRef, domain.StatusApproved)
}

// MarkFailed finalizes approved -> failed with the gateway's message.
func (s *Store) MarkFailed(ctx context.Context, id int64, reason string) error {
	return s.finalize(ctx, id, domain.StatusFailed, `
		UPDATE cashout_requests SET status = $2, failure_reason = $3
		WHERE id = $1 AND status = $4
	`, id, domain.StatusFailed, reason, domain.StatusApproved)
}

func (s *Store) finalize(ctx context.Context, id int64, to domain.Status, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finalize %s: %w", to, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finalize %s: %w", to, domain.ErrAlreadyProcessed)
	}
	return nil
}

// transition runs a conditional status update and distinguishes the two
// ways it can affect zero rows: the request is absent (ErrNotFound) or
// it is no longer in the required state (ErrAlreadyProcessed).
func (s *Store) transition(ctx context.Context, tx pgx.Tx, id int64, from domain.Status, query string, args ...any) (domain.CashoutRequest, error) {
	c, err := scanCashout(tx.QueryRow(ctx, query, args...))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.CashoutRequest{}, fmt.Errorf("update status: %w", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM cashout_requests WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return domain.CashoutRequest{}, fmt.Errorf("check existence: %w", err)
	}
	if !exists {
		return domain.CashoutRequest{}, domain.ErrNotFound
	}
	return domain.CashoutRequest{}, fmt.Errorf("not %s: %w", from, domain.ErrAlreadyProcessed)
}
