package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kiranik/storefront/internal/models"
	"github.com/kiranik/storefront/internal/repository/postgres"
)

const (
	insertDeliveryQuery = `
						INSERT INTO deliveries (order_number, partner_id, carrier, tracking_id, status, assigned_at)
						VALUES ($1, $2, $3, $4, 'assigned', now())
						RETURNING id, status, assigned_at, created_at
`
	selectDeliveryByIDQuery = `
						SELECT id, order_number, partner_id, carrier, tracking_id, status,
						       assigned_at, picked_up_at, in_transit_at, out_for_delivery_at, delivered_at, failed_at, created_at
						FROM deliveries
						WHERE id = $1
`
	// compare-and-swap against the observed status; COALESCE keeps the
	// first-entry timestamp on re-application
	advanceDeliveryQuery = `
						UPDATE deliveries
						SET status = $1, %s = COALESCE(%s, now())
						WHERE id = $2 AND status = $3
`
)

// timestamp column set on first entry into each state
var deliveryTimestampColumns = map[string]string{
	models.DeliveryStatusPickedUp:       "picked_up_at",
	models.DeliveryStatusInTransit:      "in_transit_at",
	models.DeliveryStatusOutForDelivery: "out_for_delivery_at",
	models.DeliveryStatusDelivered:      "delivered_at",
	models.DeliveryStatusFailed:         "failed_at",
}

// DeliveryRepository implements delivery record persistence over the ledger store
type DeliveryRepository struct {
	db *postgres.DB
}

// NewDeliveryRepository creates new DeliveryRepository instance
func NewDeliveryRepository(db *postgres.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// CreateDelivery inserts new delivery record in assigned state
func (dr *DeliveryRepository) CreateDelivery(ctx context.Context, rec *models.DeliveryRecord) (*models.DeliveryRecord, error) {
	err := dr.db.QueryRow(ctx, insertDeliveryQuery,
		rec.OrderNumber, rec.PartnerID, rec.Carrier, rec.TrackingID).Scan(&rec.ID, &rec.Status, &rec.AssignedAt, &rec.CreatedAt)
	if err != nil {
		if errCode := dr.db.ErrorCode(err); errCode == pgErrUniqueViolationCode {
			return nil, models.ErrConflictData
		}
		return nil, err
	}

	return rec, nil
}

// GetDelivery returns delivery record by id
func (dr *DeliveryRepository) GetDelivery(ctx context.Context, id uint64) (*models.DeliveryRecord, error) {
	rec := models.DeliveryRecord{}
	err := dr.db.QueryRow(ctx, selectDeliveryByIDQuery, id).Scan(
		&rec.ID, &rec.OrderNumber, &rec.PartnerID, &rec.Carrier, &rec.TrackingID, &rec.Status,
		&rec.AssignedAt, &rec.PickedUpAt, &rec.InTransitAt, &rec.OutForDeliveryAt,
		&rec.DeliveredAt, &rec.FailedAt, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrDataNotFound
		}
		return nil, err
	}

	return &rec, nil
}

// AdvanceStatus moves delivery from expected to target status. It reports
// whether the transition was applied; false means the row changed underneath
// the caller and must be re-read.
func (dr *DeliveryRepository) AdvanceStatus(ctx context.Context, id uint64, expected, target string) (bool, error) {
	col, ok := deliveryTimestampColumns[target]
	if !ok {
		return false, fmt.Errorf("%w: unknown delivery status %q", models.ErrValidation, target)
	}

	cmd, err := dr.db.Exec(ctx, fmt.Sprintf(advanceDeliveryQuery, col, col), target, id, expected)
	if err != nil {
		return false, err
	}

	return cmd.RowsAffected() == 1, nil
}
