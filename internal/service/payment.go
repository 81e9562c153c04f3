package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kiranik/storefront/internal/gateway"
	"github.com/kiranik/storefront/internal/models"
	"github.com/kiranik/storefront/internal/notify"
	"github.com/kiranik/storefront/internal/signature"
	"go.uber.org/zap"
)

const (
	orderNumberPrefix = "ORD"
	defaultCurrency   = "INR"
)

// PaymentRepository is interface for interacting with payment order data
type PaymentRepository interface {
	// CreateOrder inserts new payment order to database
	CreateOrder(ctx context.Context, order *models.PaymentOrder) (*models.PaymentOrder, error)
	// GetByGatewayOrderID returns payment order by gateway order id
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.PaymentOrder, error)
	// GetByOrderNumber returns payment order by order number
	GetByOrderNumber(ctx context.Context, num string) (*models.PaymentOrder, error)
	// Capture transitions order to captured, reports whether it was applied
	Capture(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (bool, error)
	// MarkPending transitions order from created to pending
	MarkPending(ctx context.Context, gatewayOrderID string) (bool, error)
	// Fail transitions a non-terminal order to failed
	Fail(ctx context.Context, gatewayOrderID string) (bool, error)
	// GetStaleOrders returns non-terminal gateway order ids created before cutoff
	GetStaleOrders(ctx context.Context, cutoff time.Time) ([]string, error)
}

// GatewayClient is interface over the external payment gateway
type GatewayClient interface {
	// CreateOrder creates remote order, receipt is the idempotency token
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*gateway.Order, error)
	// FetchOrder returns current remote order state
	FetchOrder(ctx context.Context, gatewayOrderID string) (*gateway.Order, error)
	// FetchPayments returns payment attempts against remote order
	FetchPayments(ctx context.Context, gatewayOrderID string) ([]gateway.Payment, error)
	// CreateSingleUseQR creates single-use payment QR for the order
	CreateSingleUseQR(ctx context.Context, gatewayOrderID string, amountMinor int64, description string) (*gateway.QRCode, error)
}

// PaymentService owns creation of payment intents and the capture transition
type PaymentService struct {
	repo     PaymentRepository
	gateway  GatewayClient
	notifier notify.Notifier
	secret   string
	logger   *zap.Logger
}

// NewPaymentService creates new PaymentService instance. secret is the
// gateway key secret shared for payment proof signatures.
func NewPaymentService(repo PaymentRepository, gw GatewayClient, notifier notify.Notifier, secret string, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		repo:     repo,
		gateway:  gw,
		notifier: notifier,
		secret:   secret,
		logger:   logger,
	}
}

// CreateOrderParams is checkout input captured at creation time
type CreateOrderParams struct {
	UserID          uint64
	AmountMinor     int64
	Currency        string
	Items           []byte
	DeliveryAddress []byte
}

// CaptureResult is outcome of a verify-and-capture call
type CaptureResult struct {
	Verified bool
	Status   string
}

// newOrderNumber generates order number: prefix + date + random suffix.
// The uuid-derived suffix makes collisions negligible; the unique index on
// order_number is the backstop.
func newOrderNumber(now time.Time) string {
	u := uuid.New()
	return fmt.Sprintf("%s%s-%s", orderNumberPrefix, now.Format("20060102"), hex.EncodeToString(u[:4]))
}

// CreateOrder creates remote payment intent and persists the local order
// with status created. Amount and currency are immutable afterwards.
func (ps *PaymentService) CreateOrder(ctx context.Context, p CreateOrderParams) (*models.PaymentOrder, error) {
	if p.AmountMinor <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", models.ErrValidation)
	}
	if len(p.Items) == 0 {
		return nil, fmt.Errorf("%w: items are required", models.ErrValidation)
	}
	if len(p.DeliveryAddress) == 0 {
		return nil, fmt.Errorf("%w: delivery address is required", models.ErrValidation)
	}
	if p.Currency == "" {
		p.Currency = defaultCurrency
	}

	num := newOrderNumber(time.Now())

	remote, err := ps.gateway.CreateOrder(ctx, p.AmountMinor, p.Currency, num)
	if err != nil {
		return nil, fmt.Errorf("create gateway order: %w", err)
	}

	order := &models.PaymentOrder{
		UserID:          p.UserID,
		OrderNumber:     num,
		GatewayOrderID:  remote.ID,
		AmountMinor:     p.AmountMinor,
		Currency:        p.Currency,
		Items:           p.Items,
		DeliveryAddress: p.DeliveryAddress,
		Status:          models.PaymentStatusCreated,
	}

	order, err = ps.repo.CreateOrder(ctx, order)
	if err != nil {
		// the remote order is dangling but stays reconcilable: a retried
		// create with the same receipt returns it instead of a duplicate
		ps.logger.Error("persist payment order",
			zap.String("number", num),
			zap.String("gateway_order_id", remote.ID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	return order, nil
}

// VerifyAndCapture validates the client-supplied payment proof and applies
// the capture transition. Capturing an already captured order is a silent
// success and does not re-trigger the notification.
func (ps *PaymentService) VerifyAndCapture(ctx context.Context, gatewayOrderID, gatewayPaymentID, sig string) (*CaptureResult, error) {
	if gatewayOrderID == "" || gatewayPaymentID == "" || sig == "" {
		return nil, fmt.Errorf("%w: order id, payment id and signature are required", models.ErrValidation)
	}

	expected := signature.Sign(gatewayOrderID, gatewayPaymentID, ps.secret)
	if !signature.Verify(sig, expected) {
		ps.logger.Warn("payment signature mismatch",
			zap.String("gateway_order_id", gatewayOrderID),
			zap.String("gateway_payment_id", gatewayPaymentID))
		return nil, models.ErrSignatureInvalid
	}

	applied, err := ps.repo.Capture(ctx, gatewayOrderID, gatewayPaymentID, sig)
	if err != nil {
		return nil, err
	}

	order, err := ps.repo.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return nil, err
	}

	if applied {
		ps.notifyCaptured(ctx, order)
	} else if order.Status != models.PaymentStatusCaptured {
		// valid proof against a failed order; remediation is operational
		return nil, fmt.Errorf("%w: order is %s", models.ErrConflictData, order.Status)
	}

	return &CaptureResult{Verified: true, Status: order.Status}, nil
}

// FailOrder marks a non-terminal order as failed. failed is terminal but
// unreconciled: any refund or retry happens outside this service with a new
// order number. Failing an already failed order is a silent success.
func (ps *PaymentService) FailOrder(ctx context.Context, gatewayOrderID string) (*models.PaymentOrder, error) {
	order, err := ps.repo.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return nil, err
	}

	if order.Status == models.PaymentStatusCaptured {
		return nil, fmt.Errorf("%w: order is already captured", models.ErrConflictData)
	}
	if order.Status == models.PaymentStatusFailed {
		return order, nil
	}

	applied, err := ps.repo.Fail(ctx, gatewayOrderID)
	if err != nil {
		return nil, err
	}

	order, err = ps.repo.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return nil, err
	}

	if !applied && order.Status == models.PaymentStatusCaptured {
		// lost the race against a concurrent capture
		return nil, fmt.Errorf("%w: order is already captured", models.ErrConflictData)
	}

	if applied {
		ps.notifyFailed(ctx, order)
	}

	return order, nil
}

// CreatePaymentQR creates a single-use payment QR for a non-terminal order
func (ps *PaymentService) CreatePaymentQR(ctx context.Context, gatewayOrderID string) (*gateway.QRCode, error) {
	order, err := ps.repo.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return nil, err
	}

	if models.PaymentStatusTerminal(order.Status) {
		return nil, fmt.Errorf("%w: order is already %s", models.ErrValidation, order.Status)
	}

	return ps.gateway.CreateSingleUseQR(ctx, gatewayOrderID, order.AmountMinor, "Order "+order.OrderNumber)
}

// notifyCaptured schedules the capture notification; failures never roll
// back the committed transition
func (ps *PaymentService) notifyCaptured(ctx context.Context, order *models.PaymentOrder) {
	payload := map[string]string{
		"order_number": order.OrderNumber,
		"amount":       strconv.FormatInt(order.AmountMinor, 10),
		"currency":     order.Currency,
	}
	if err := ps.notifier.Notify(ctx, notify.KindPaymentCaptured, strconv.FormatUint(order.UserID, 10), payload); err != nil {
		ps.logger.Error("schedule capture notification",
			zap.String("number", order.OrderNumber),
			zap.Error(err))
	}
}

func (ps *PaymentService) notifyFailed(ctx context.Context, order *models.PaymentOrder) {
	payload := map[string]string{
		"order_number": order.OrderNumber,
		"amount":       strconv.FormatInt(order.AmountMinor, 10),
		"currency":     order.Currency,
	}
	if err := ps.notifier.Notify(ctx, notify.KindPaymentFailed, strconv.FormatUint(order.UserID, 10), payload); err != nil {
		ps.logger.Error("schedule failure notification",
			zap.String("number", order.OrderNumber),
			zap.Error(err))
	}
}
