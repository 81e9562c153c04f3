package models

import "time"

// delivery status
const (
	DeliveryStatusAssigned       = "assigned"
	DeliveryStatusPickedUp       = "picked_up"
	DeliveryStatusInTransit      = "in_transit"
	DeliveryStatusOutForDelivery = "out_for_delivery"
	DeliveryStatusDelivered      = "delivered"
	DeliveryStatusFailed         = "failed"
)

// forward progression order, failed is out-of-band
var deliveryStatusRank = map[string]int{
	DeliveryStatusAssigned:       1,
	DeliveryStatusPickedUp:       2,
	DeliveryStatusInTransit:      3,
	DeliveryStatusOutForDelivery: 4,
	DeliveryStatusDelivered:      5,
}

// DeliveryStatusRank returns position of status on the forward path
func DeliveryStatusRank(status string) (int, bool) {
	rank, ok := deliveryStatusRank[status]
	return rank, ok
}

// DeliveryStatusTerminal reports whether status allows no further transition
func DeliveryStatusTerminal(status string) bool {
	return status == DeliveryStatusDelivered || status == DeliveryStatusFailed
}

// DeliveryRecord is delivery entity, one per captured payment order
type DeliveryRecord struct {
	ID               uint64
	OrderNumber      string
	PartnerID        string
	Carrier          string
	TrackingID       string
	Status           string
	AssignedAt       *time.Time
	PickedUpAt       *time.Time
	InTransitAt      *time.Time
	OutForDeliveryAt *time.Time
	DeliveredAt      *time.Time
	FailedAt         *time.Time
	CreatedAt        time.Time
}
