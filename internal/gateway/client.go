// Package gateway is the HTTP client for the external payment provider.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/kiranik/storefront/internal/models"
)

// default gateway request timeout
const defaultTimeout = 5 * time.Second

// remote order status reported by the gateway
const (
	OrderStatusCreated   = "created"
	OrderStatusAttempted = "attempted"
	OrderStatusPaid      = "paid"
)

// Client talks to the payment gateway REST API
type Client struct {
	client    *http.Client
	baseURL   string
	keyID     string
	keySecret string
}

// NewClient creates new gateway Client instance
func NewClient(baseURL, keyID, keySecret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: keySecret,
	}
}

// Order is remote payment order state
type Order struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	AmountMinor int64  `json:"amount"`
	AmountPaid  int64  `json:"amount_paid"`
	Receipt     string `json:"receipt"`
}

// Payment is a payment attempt against a remote order
type Payment struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Status string `json:"status"`
}

// QRCode is a single-use payment QR
type QRCode struct {
	ID       string `json:"id"`
	ImageURL string `json:"image_url"`
}

type createOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type paymentsResponse struct {
	Count int       `json:"count"`
	Items []Payment `json:"items"`
}

type createQRRequest struct {
	Type        string            `json:"type"`
	Usage       string            `json:"usage"`
	FixedAmount bool              `json:"fixed_amount"`
	Amount      int64             `json:"payment_amount"`
	Description string            `json:"description"`
	Notes       map[string]string `json:"notes,omitempty"`
}

// CreateOrder creates remote order for the amount. The receipt carries the
// local order number as idempotency token: a retried create returns the
// existing remote order instead of a duplicate.
func (c *Client) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*Order, error) {
	order := Order{}
	err := c.do(ctx, http.MethodPost, &order, createOrderRequest{
		Amount:   amountMinor,
		Currency: currency,
		Receipt:  receipt,
	}, "v1", "orders")
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FetchOrder returns current remote order state
func (c *Client) FetchOrder(ctx context.Context, gatewayOrderID string) (*Order, error) {
	order := Order{}
	if err := c.do(ctx, http.MethodGet, &order, nil, "v1", "orders", gatewayOrderID); err != nil {
		return nil, err
	}
	return &order, nil
}

// FetchPayments returns payment attempts recorded against remote order
func (c *Client) FetchPayments(ctx context.Context, gatewayOrderID string) ([]Payment, error) {
	resp := paymentsResponse{}
	if err := c.do(ctx, http.MethodGet, &resp, nil, "v1", "orders", gatewayOrderID, "payments"); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// CreateSingleUseQR creates an amount-fixed single-use payment QR for the order
func (c *Client) CreateSingleUseQR(ctx context.Context, gatewayOrderID string, amountMinor int64, description string) (*QRCode, error) {
	qr := QRCode{}
	err := c.do(ctx, http.MethodPost, &qr, createQRRequest{
		Type:        "upi_qr",
		Usage:       "single_use",
		FixedAmount: true,
		Amount:      amountMinor,
		Description: description,
		Notes:       map[string]string{"gateway_order_id": gatewayOrderID},
	}, "v1", "payments", "qr_codes")
	if err != nil {
		return nil, err
	}
	return &qr, nil
}

func (c *Client) do(ctx context.Context, method string, out any, body any, parts ...string) error {
	url, err := url.JoinPath(c.baseURL, parts...)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		// transport failure or timeout, caller falls back per reconcile policy
		return fmt.Errorf("%w: %v", models.ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
		return json.NewDecoder(resp.Body).Decode(out)
	case resp.StatusCode == http.StatusNotFound:
		return models.ErrDataNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: gateway returned %d", models.ErrGatewayUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("gateway returned unexpected status %d", resp.StatusCode)
	}
}
