package midtrans

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andikaprasetya/kantin-backend/pkg/config"
)

const snapTransactionsPath = "/snap/v1/transactions"

// Client talks to the Midtrans Snap API over HTTP. The server key is sent as
// the basic auth username with an empty password, per the Midtrans docs.
type Client struct {
	baseURL   string
	serverKey string
	http      *http.Client
}

func New(cfg config.MidtransConfig) (*Client, error) {
	if cfg.ServerKey == "" {
		return nil, fmt.Errorf("midtrans server key is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("midtrans base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		serverKey: cfg.ServerKey,
		http:      &http.Client{Timeout: timeout},
	}, nil
}

// TransactionDetails identifies the charge being created.
type TransactionDetails struct {
	OrderID     string          `json:"order_id"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
}

// ItemDetail is an optional line item shown on the payment page.
type ItemDetail struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// CustomerDetails is forwarded to the payment page.
type CustomerDetails struct {
	FirstName string `json:"first_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// SnapRequest is the Snap transaction creation payload.
type SnapRequest struct {
	TransactionDetails TransactionDetails `json:"transaction_details"`
	ItemDetails        []ItemDetail       `json:"item_details,omitempty"`
	CustomerDetails    *CustomerDetails   `json:"customer_details,omitempty"`
	Expiry             *SnapExpiry        `json:"expiry,omitempty"`
}

// SnapExpiry bounds how long the payment page stays valid.
type SnapExpiry struct {
	Unit     string `json:"unit"`
	Duration int    `json:"duration"`
}

// SnapResponse carries the token the frontend uses to open the payment page.
type SnapResponse struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

type apiError struct {
	StatusCode    string   `json:"status_code"`
	ErrorMessages []string `json:"error_messages"`
}

// UpstreamError is returned when Midtrans rejects a request.
type UpstreamError struct {
	HTTPStatus int
	Messages   []string
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("midtrans returned status %d: %v", e.HTTPStatus, e.Messages)
}

// CreateTransaction creates a Snap transaction and returns the payment token.
func (c *Client) CreateTransaction(ctx context.Context, req SnapRequest) (*SnapResponse, error) {
	if req.TransactionDetails.OrderID == "" {
		return nil, fmt.Errorf("order id is required")
	}
	if req.TransactionDetails.GrossAmount.Sign() <= 0 {
		return nil, fmt.Errorf("gross amount must be positive")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding snap request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+snapTransactionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building snap request: %w", err)
	}
	httpReq.SetBasicAuth(c.serverKey, "")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling midtrans: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading midtrans response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var parsed apiError
		_ = json.Unmarshal(raw, &parsed)
		return nil, &UpstreamError{
			HTTPStatus: resp.StatusCode,
			Messages:   parsed.ErrorMessages,
			Body:       string(raw),
		}
	}

	var snap SnapResponse
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decoding snap response: %w", err)
	}
	if snap.Token == "" {
		return nil, fmt.Errorf("midtrans response missing token")
	}
	return &snap, nil
}

// ServerKey exposes the configured key for signature verification.
func (c *Client) ServerKey() string {
	return c.serverKey
}
