package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kiranik/storefront/internal/models"
	"github.com/kiranik/storefront/internal/notify"
	"go.uber.org/zap"
)

// DeliveryRepository is interface for interacting with delivery record data
type DeliveryRepository interface {
	// CreateDelivery inserts new delivery record in assigned state
	CreateDelivery(ctx context.Context, rec *models.DeliveryRecord) (*models.DeliveryRecord, error)
	// GetDelivery returns delivery record by id
	GetDelivery(ctx context.Context, id uint64) (*models.DeliveryRecord, error)
	// AdvanceStatus moves delivery from expected to target, reports whether applied
	AdvanceStatus(ctx context.Context, id uint64, expected, target string) (bool, error)
}

// DeliveryService drives the physical fulfillment state machine
type DeliveryService struct {
	repo     DeliveryRepository
	orders   PaymentRepository
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewDeliveryService creates new DeliveryService instance
func NewDeliveryService(repo DeliveryRepository, orders PaymentRepository, notifier notify.Notifier, logger *zap.Logger) *DeliveryService {
	return &DeliveryService{
		repo:     repo,
		orders:   orders,
		notifier: notifier,
		logger:   logger,
	}
}

// CreateDelivery assigns a delivery to a captured payment order
func (ds *DeliveryService) CreateDelivery(ctx context.Context, orderNumber, partnerID, carrier, trackingID string) (*models.DeliveryRecord, error) {
	if orderNumber == "" || partnerID == "" {
		return nil, fmt.Errorf("%w: order number and partner id are required", models.ErrValidation)
	}

	order, err := ds.orders.GetByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	if order.Status != models.PaymentStatusCaptured {
		return nil, fmt.Errorf("%w: order %s is not captured", models.ErrValidation, orderNumber)
	}

	rec := &models.DeliveryRecord{
		OrderNumber: orderNumber,
		PartnerID:   partnerID,
		Carrier:     carrier,
		TrackingID:  trackingID,
		Status:      models.DeliveryStatusAssigned,
	}

	rec, err = ds.repo.CreateDelivery(ctx, rec)
	if err != nil {
		return nil, err
	}

	ds.notifyTransition(ctx, rec)

	return rec, nil
}

// GetDelivery returns delivery record by id
func (ds *DeliveryService) GetDelivery(ctx context.Context, id uint64) (*models.DeliveryRecord, error) {
	return ds.repo.GetDelivery(ctx, id)
}

// Advance moves the delivery toward target. A target at or behind the
// current state is an idempotent no-op (duplicate partner callbacks); a
// request past a terminal state returns ErrAlreadyTerminal. Exactly one
// notification is scheduled per newly applied transition.
func (ds *DeliveryService) Advance(ctx context.Context, id uint64, target string) (*models.DeliveryRecord, error) {
	targetRank, onPath := models.DeliveryStatusRank(target)
	if !onPath && target != models.DeliveryStatusFailed {
		return nil, fmt.Errorf("%w: unknown delivery status %q", models.ErrValidation, target)
	}

	// one retry: losing the compare-and-swap means a concurrent caller moved
	// the record, reclassify against the fresh row
	for attempt := 0; attempt < 2; attempt++ {
		rec, err := ds.repo.GetDelivery(ctx, id)
		if err != nil {
			return nil, err
		}

		switch {
		case models.DeliveryStatusTerminal(rec.Status):
			if rec.Status == target {
				return rec, nil
			}
			return nil, models.ErrAlreadyTerminal
		case target == models.DeliveryStatusFailed:
			// reachable from any non-terminal state
		default:
			curRank, _ := models.DeliveryStatusRank(rec.Status)
			if targetRank <= curRank {
				return rec, nil
			}
		}

		applied, err := ds.repo.AdvanceStatus(ctx, id, rec.Status, target)
		if err != nil {
			return nil, err
		}
		if !applied {
			continue
		}

		rec, err = ds.repo.GetDelivery(ctx, id)
		if err != nil {
			return nil, err
		}

		ds.notifyTransition(ctx, rec)

		return rec, nil
	}

	return nil, fmt.Errorf("%w: delivery %d transition contention", models.ErrConflictData, id)
}

// notifyTransition schedules a delivery status notification; failures never
// revert the transition
func (ds *DeliveryService) notifyTransition(ctx context.Context, rec *models.DeliveryRecord) {
	payload := map[string]string{
		"delivery_id":  strconv.FormatUint(rec.ID, 10),
		"order_number": rec.OrderNumber,
		"status":       rec.Status,
		"tracking_id":  rec.TrackingID,
	}
	if err := ds.notifier.Notify(ctx, notify.KindDeliveryUpdate, rec.OrderNumber, payload); err != nil {
		ds.logger.Error("schedule delivery notification",
			zap.Uint64("delivery_id", rec.ID),
			zap.String("status", rec.Status),
			zap.Error(err))
	}
}
