package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kiranik/storefront/internal/models"
	"github.com/kiranik/storefront/internal/repository/postgres"
)

const pgErrUniqueViolationCode = "23505"

const (
	insertPaymentOrderQuery = `
						INSERT INTO payment_orders (user_id, order_number, gateway_order_id, amount_minor, currency, items, delivery_address, status)
						VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
						RETURNING id, created_at
`
	selectPaymentOrderColumns = `
						SELECT id, user_id, order_number, gateway_order_id, amount_minor, currency, items, delivery_address,
						       status, gateway_payment_id, gateway_signature, captured_at, created_at
						FROM payment_orders
`
	selectPaymentOrderByGatewayIDQuery = selectPaymentOrderColumns + `WHERE gateway_order_id = $1`

	selectPaymentOrderByNumberQuery = selectPaymentOrderColumns + `WHERE order_number = $1`

	// compare-and-swap: only a non-terminal order can be captured,
	// captured_at is set exactly once on the winning update
	capturePaymentOrderQuery = `
						UPDATE payment_orders
						SET status = 'captured', gateway_payment_id = $2, gateway_signature = NULLIF($3, ''), captured_at = now()
						WHERE gateway_order_id = $1 AND status IN ('created', 'pending')
`
	markPaymentOrderPendingQuery = `
						UPDATE payment_orders
						SET status = 'pending'
						WHERE gateway_order_id = $1 AND status = 'created'
`
	failPaymentOrderQuery = `
						UPDATE payment_orders
						SET status = 'failed'
						WHERE gateway_order_id = $1 AND status IN ('created', 'pending')
`
	selectStalePaymentOrdersQuery = `
						SELECT gateway_order_id FROM payment_orders
						WHERE status IN ('created', 'pending') AND created_at < $1
						ORDER BY created_at
`
)

// PaymentRepository implements payment order persistence over the ledger store
type PaymentRepository struct {
	db *postgres.DB
}

// NewPaymentRepository creates new PaymentRepository instance
func NewPaymentRepository(db *postgres.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// CreateOrder inserts new payment order to database
func (pr *PaymentRepository) CreateOrder(ctx context.Context, order *models.PaymentOrder) (*models.PaymentOrder, error) {
	err := pr.db.QueryRow(ctx, insertPaymentOrderQuery,
		order.UserID, order.OrderNumber, order.GatewayOrderID, order.AmountMinor,
		order.Currency, order.Items, order.DeliveryAddress, order.Status).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		if errCode := pr.db.ErrorCode(err); errCode == pgErrUniqueViolationCode {
			return nil, models.ErrConflictData
		}
		return nil, err
	}

	return order, nil
}

// GetByGatewayOrderID returns payment order by gateway order id
func (pr *PaymentRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.PaymentOrder, error) {
	return pr.getOrder(ctx, selectPaymentOrderByGatewayIDQuery, gatewayOrderID)
}

// GetByOrderNumber returns payment order by order number
func (pr *PaymentRepository) GetByOrderNumber(ctx context.Context, num string) (*models.PaymentOrder, error) {
	return pr.getOrder(ctx, selectPaymentOrderByNumberQuery, num)
}

func (pr *PaymentRepository) getOrder(ctx context.Context, query, key string) (*models.PaymentOrder, error) {
	order := models.PaymentOrder{}
	err := pr.db.QueryRow(ctx, query, key).Scan(
		&order.ID, &order.UserID, &order.OrderNumber, &order.GatewayOrderID, &order.AmountMinor,
		&order.Currency, &order.Items, &order.DeliveryAddress, &order.Status,
		&order.GatewayPaymentID, &order.GatewaySignature, &order.CapturedAt, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrDataNotFound
		}
		return nil, err
	}

	return &order, nil
}

// Capture transitions order to captured. It reports whether the transition
// was applied; false means the order was not found or no longer capturable.
func (pr *PaymentRepository) Capture(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (bool, error) {
	cmd, err := pr.db.Exec(ctx, capturePaymentOrderQuery, gatewayOrderID, gatewayPaymentID, signature)
	if err != nil {
		return false, err
	}

	return cmd.RowsAffected() == 1, nil
}

// MarkPending transitions order from created to pending
func (pr *PaymentRepository) MarkPending(ctx context.Context, gatewayOrderID string) (bool, error) {
	cmd, err := pr.db.Exec(ctx, markPaymentOrderPendingQuery, gatewayOrderID)
	if err != nil {
		return false, err
	}

	return cmd.RowsAffected() == 1, nil
}

// Fail transitions a non-terminal order to failed
func (pr *PaymentRepository) Fail(ctx context.Context, gatewayOrderID string) (bool, error) {
	cmd, err := pr.db.Exec(ctx, failPaymentOrderQuery, gatewayOrderID)
	if err != nil {
		return false, err
	}

	return cmd.RowsAffected() == 1, nil
}

// GetStaleOrders returns gateway order ids of non-terminal orders created before cutoff
func (pr *PaymentRepository) GetStaleOrders(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := pr.db.Query(ctx, selectStalePaymentOrdersQuery, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}
