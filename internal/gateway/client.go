package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oparaugo/giftcash/internal/domain"
)

// Config holds the transfer API credentials and endpoint.
type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// Client wraps the external transfer API. It is stateless: each payout
// is one create-recipient call followed by one transfer call, with no
// retries and no rollback of partial gateway state. The caller decides
// what a failure means for the cashout request.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs a gateway client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// RecipientCreationError reports a failure creating the transfer
// recipient, the first gateway step.
type RecipientCreationError struct {
	Message string
}

func (e *RecipientCreationError) Error() string {
	return "recipient creation failed: " + e.Message
}

// TransferError reports a failure initiating the transfer, the second
// gateway step. The recipient created in step one is not cleaned up.
type TransferError struct {
	Message string
}

func (e *TransferError) Error() string {
	return "transfer failed: " + e.Message
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type recipientRequest struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	Currency      string `json:"currency"`
}

type recipientData struct {
	RecipientCode string `json:"recipient_code"`
}

type transferRequest struct {
	Source    string `json:"source"`
	Amount    int64  `json:"amount"`
	Recipient string `json:"recipient"`
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

type transferData struct {
	TransferCode string `json:"transfer_code"`
	Reference    string `json:"reference"`
}

// Payout moves amountKobo (currency minor units) to the bank account in
// details. On success it returns the gateway transfer reference.
func (c *Client) Payout(ctx context.Context, amountKobo int64, details domain.PayoutDetails) (string, error) {
	code, err := c.createRecipient(ctx, details)
	if err != nil {
		return "", err
	}
	ref, err := c.initiateTransfer(ctx, amountKobo, code)
	if err != nil {
		return "", err
	}
	c.logger.Info("payout transfer initiated",
		zap.Int64("amount_kobo", amountKobo),
		zap.String("transfer_ref", ref))
	return ref, nil
}

func (c *Client) createRecipient(ctx context.Context, details domain.PayoutDetails) (string, error) {
	req := recipientRequest{
		Type:          "nuban",
		Name:          details.AccountName,
		AccountNumber: details.AccountNumber,
		BankCode:      details.BankCode,
		Currency:      "NGN",
	}
	env, err := c.post(ctx, "/transferrecipient", req)
	if err != nil {
		return "", &RecipientCreationError{Message: err.Error()}
	}
	if !env.Status {
		return "", &RecipientCreationError{Message: env.Message}
	}
	var data recipientData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", &RecipientCreationError{Message: "malformed recipient response: " + err.Error()}
	}
	if data.RecipientCode == "" {
		return "", &RecipientCreationError{Message: "gateway returned no recipient code"}
	}
	return data.RecipientCode, nil
}

func (c *Client) initiateTransfer(ctx context.Context, amountKobo int64, recipientCode string) (string, error) {
	req := transferRequest{
		Source:    "balance",
		Amount:    amountKobo,
		Recipient: recipientCode,
		Reference: uuid.NewString(),
		Reason:    "gift cashout",
	}
	env, err := c.post(ctx, "/transfer", req)
	if err != nil {
		return "", &TransferError{Message: err.Error()}
	}
	if !env.Status {
		return "", &TransferError{Message: env.Message}
	}
	var data transferData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", &TransferError{Message: "malformed transfer response: " + err.Error()}
	}
	if data.Reference != "" {
		return data.Reference, nil
	}
	if data.TransferCode != "" {
		return data.TransferCode, nil
	}
	return req.Reference, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (*envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, truncate(respBody, 200))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("gateway returned %d", resp.StatusCode)
		}
		return &envelope{Status: false, Message: msg}, nil
	}
	return &env, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
