package models

import "time"

// payment order status
const (
	PaymentStatusCreated  = "created"
	PaymentStatusPending  = "pending"
	PaymentStatusCaptured = "captured"
	PaymentStatusFailed   = "failed"
)

// PaymentOrder is payment order entity
type PaymentOrder struct {
	ID               uint64
	UserID           uint64
	OrderNumber      string
	GatewayOrderID   string
	AmountMinor      int64
	Currency         string
	Items            []byte
	DeliveryAddress  []byte
	Status           string
	GatewayPaymentID *string
	GatewaySignature *string
	CapturedAt       *time.Time
	CreatedAt        time.Time
}

// PaymentStatusTerminal reports whether status allows no further transition
func PaymentStatusTerminal(status string) bool {
	return status == PaymentStatusCaptured || status == PaymentStatusFailed
}
