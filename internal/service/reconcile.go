package service

import (
	"context"
	"strconv"

	"github.com/kiranik/storefront/internal/gateway"
	"github.com/kiranik/storefront/internal/models"
	"github.com/kiranik/storefront/internal/notify"
	"go.uber.org/zap"
)

// StatusCache is a non-authoritative cache of terminal order statuses
type StatusCache interface {
	GetStatus(ctx context.Context, gatewayOrderID string) (string, bool)
	SetStatus(ctx context.Context, gatewayOrderID, status string)
}

// ReconcileService resolves local order status against the gateway when the
// client-driven payment proof is missing or inconclusive
type ReconcileService struct {
	repo     PaymentRepository
	gateway  GatewayClient
	notifier notify.Notifier
	cache    StatusCache
	logger   *zap.Logger
}

// NewReconcileService creates new ReconcileService instance. cache may be nil.
func NewReconcileService(repo PaymentRepository, gw GatewayClient, notifier notify.Notifier, cache StatusCache, logger *zap.Logger) *ReconcileService {
	return &ReconcileService{
		repo:     repo,
		gateway:  gw,
		notifier: notifier,
		cache:    cache,
		logger:   logger,
	}
}

// Reconcile returns the authoritative status for the order. A terminal local
// status is returned without contacting the gateway. A gateway failure is not
// an error: the last known local status is returned and the true status gets
// re-resolved on a later poll.
func (rs *ReconcileService) Reconcile(ctx context.Context, gatewayOrderID string) (string, error) {
	if rs.cache != nil {
		if status, ok := rs.cache.GetStatus(ctx, gatewayOrderID); ok {
			return status, nil
		}
	}

	order, err := rs.repo.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return "", err
	}

	if models.PaymentStatusTerminal(order.Status) {
		rs.cacheStatus(ctx, gatewayOrderID, order.Status)
		return order.Status, nil
	}

	remote, err := rs.gateway.FetchOrder(ctx, gatewayOrderID)
	if err != nil {
		rs.logger.Warn("gateway status check failed, returning local status",
			zap.String("gateway_order_id", gatewayOrderID),
			zap.String("status", order.Status),
			zap.Error(err))
		return order.Status, nil
	}

	switch remote.Status {
	case gateway.OrderStatusPaid:
		return rs.foldInPayment(ctx, order)
	case gateway.OrderStatusAttempted:
		return rs.markPending(ctx, order)
	default:
		// remote still created, nothing to resolve yet
		return order.Status, nil
	}
}

// foldInPayment applies the idempotent capture transition from the gateway's
// payment record. The compare-and-swap makes a concurrent webhook harmless.
func (rs *ReconcileService) foldInPayment(ctx context.Context, order *models.PaymentOrder) (string, error) {
	payments, err := rs.gateway.FetchPayments(ctx, order.GatewayOrderID)
	if err != nil {
		rs.logger.Warn("fetch gateway payments failed, returning local status",
			zap.String("gateway_order_id", order.GatewayOrderID),
			zap.Error(err))
		return order.Status, nil
	}

	if len(payments) == 0 {
		// paid order with no payment listed yet, resolve on a later poll
		return order.Status, nil
	}

	// no client signature exists on this path, the proof is the gateway itself
	applied, err := rs.repo.Capture(ctx, order.GatewayOrderID, payments[0].ID, "")
	if err != nil {
		return "", err
	}

	cur, err := rs.repo.GetByGatewayOrderID(ctx, order.GatewayOrderID)
	if err != nil {
		return "", err
	}

	if applied {
		payload := map[string]string{
			"order_number": cur.OrderNumber,
			"amount":       strconv.FormatInt(cur.AmountMinor, 10),
			"currency":     cur.Currency,
		}
		if err := rs.notifier.Notify(ctx, notify.KindPaymentCaptured, strconv.FormatUint(cur.UserID, 10), payload); err != nil {
			rs.logger.Error("schedule capture notification",
				zap.String("number", cur.OrderNumber),
				zap.Error(err))
		}
	}

	rs.cacheStatus(ctx, order.GatewayOrderID, cur.Status)
	return cur.Status, nil
}

// markPending records that a payment attempt exists at the gateway
func (rs *ReconcileService) markPending(ctx context.Context, order *models.PaymentOrder) (string, error) {
	applied, err := rs.repo.MarkPending(ctx, order.GatewayOrderID)
	if err != nil {
		return "", err
	}

	if !applied && order.Status != models.PaymentStatusPending {
		// lost a race against a concurrent transition, report the fresh state
		cur, err := rs.repo.GetByGatewayOrderID(ctx, order.GatewayOrderID)
		if err != nil {
			return "", err
		}
		rs.cacheStatus(ctx, order.GatewayOrderID, cur.Status)
		return cur.Status, nil
	}

	return models.PaymentStatusPending, nil
}

func (rs *ReconcileService) cacheStatus(ctx context.Context, gatewayOrderID, status string) {
	if rs.cache == nil {
		return
	}
	rs.cache.SetStatus(ctx, gatewayOrderID, status)
}
