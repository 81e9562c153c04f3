package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reconciler resolves one order against the gateway
type Reconciler interface {
	Reconcile(ctx context.Context, gatewayOrderID string) (string, error)
}

// StaleOrderSource lists non-terminal orders worth re-resolving
type StaleOrderSource interface {
	GetStaleOrders(ctx context.Context, cutoff time.Time) ([]string, error)
}

// ReconcilePoller periodically resolves stale non-terminal orders against
// the gateway, covering abandoned checkouts that never poll getStatus
type ReconcilePoller struct {
	svc        Reconciler
	orders     StaleOrderSource
	interval   time.Duration
	staleAfter time.Duration
	logger     *zap.Logger
}

// NewReconcilePoller creates new ReconcilePoller instance
func NewReconcilePoller(svc Reconciler, orders StaleOrderSource, interval, staleAfter time.Duration, logger *zap.Logger) *ReconcilePoller {
	return &ReconcilePoller{
		svc:        svc,
		orders:     orders,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// Run polls for stale orders until ctx is done
func (rp *ReconcilePoller) Run(ctx context.Context) {
	pending := make(chan string, 10)

	go rp.reconcileOrders(ctx, pending)

	ticker := time.NewTicker(rp.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rp.logger.Debug("reconcile poller is done")
			return
		case <-ticker.C:
			ids, err := rp.orders.GetStaleOrders(ctx, time.Now().Add(-rp.staleAfter))
			if err != nil {
				rp.logger.Error("list stale orders", zap.Error(err))
				continue
			}
			for _, id := range ids {
				select {
				case pending <- id:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (rp *ReconcilePoller) reconcileOrders(ctx context.Context, pending <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-pending:
			if !ok {
				return
			}

			status, err := rp.svc.Reconcile(ctx, id)
			if err != nil {
				rp.logger.Error("reconcile order", zap.String("gateway_order_id", id), zap.Error(err))
				continue
			}

			rp.logger.Debug("order reconciled",
				zap.String("gateway_order_id", id),
				zap.String("status", status))
		}
	}
}
