package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiranik/storefront/internal/models"
	"go.uber.org/zap"
)

// DeliveryService is the delivery lifecycle surface consumed by HTTP handlers
type DeliveryService interface {
	CreateDelivery(ctx context.Context, orderNumber, partnerID, carrier, trackingID string) (*models.DeliveryRecord, error)
	GetDelivery(ctx context.Context, id uint64) (*models.DeliveryRecord, error)
	Advance(ctx context.Context, id uint64, target string) (*models.DeliveryRecord, error)
}

// DeliveryHandler represents HTTP handler for delivery-related requests
type DeliveryHandler struct {
	svc    DeliveryService
	logger *zap.Logger
}

// NewDeliveryHandler creates new DeliveryHandler instance
func NewDeliveryHandler(svc DeliveryService, logger *zap.Logger) *DeliveryHandler {
	return &DeliveryHandler{svc: svc, logger: logger}
}

type createDeliveryRequest struct {
	OrderNumber string `json:"order_number"`
	PartnerID   string `json:"partner_id"`
	Carrier     string `json:"carrier"`
	TrackingID  string `json:"tracking_id"`
}

type deliveryResponse struct {
	ID               uint64     `json:"id"`
	OrderNumber      string     `json:"order_number"`
	PartnerID        string     `json:"partner_id"`
	Carrier          string     `json:"carrier,omitempty"`
	TrackingID       string     `json:"tracking_id,omitempty"`
	Status           string     `json:"status"`
	AssignedAt       *time.Time `json:"assigned_at,omitempty"`
	PickedUpAt       *time.Time `json:"picked_up_at,omitempty"`
	InTransitAt      *time.Time `json:"in_transit_at,omitempty"`
	OutForDeliveryAt *time.Time `json:"out_for_delivery_at,omitempty"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`
	FailedAt         *time.Time `json:"failed_at,omitempty"`
}

func newDeliveryResponse(rec *models.DeliveryRecord) deliveryResponse {
	return deliveryResponse{
		ID:               rec.ID,
		OrderNumber:      rec.OrderNumber,
		PartnerID:        rec.PartnerID,
		Carrier:          rec.Carrier,
		TrackingID:       rec.TrackingID,
		Status:           rec.Status,
		AssignedAt:       rec.AssignedAt,
		PickedUpAt:       rec.PickedUpAt,
		InTransitAt:      rec.InTransitAt,
		OutForDeliveryAt: rec.OutForDeliveryAt,
		DeliveredAt:      rec.DeliveredAt,
		FailedAt:         rec.FailedAt,
	}
}

// CreateDelivery assigns a delivery to a captured order
// 201 - delivery created
// 400 - invalid request or order not captured
// 404 - unknown order number
func (dh *DeliveryHandler) CreateDelivery() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := createDeliveryRequest{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		rec, err := dh.svc.CreateDelivery(r.Context(), req.OrderNumber, req.PartnerID, req.Carrier, req.TrackingID)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrValidation):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, models.ErrDataNotFound):
				http.Error(w, "order not found", http.StatusNotFound)
			default:
				dh.logger.Error("create delivery", zap.Error(err))
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusCreated, newDeliveryResponse(rec))
	}
}

type advanceDeliveryRequest struct {
	Target string `json:"target"`
}

// AdvanceDelivery advances the delivery state machine
// 200 - transition applied or idempotent no-op
// 400 - unknown target state
// 404 - unknown delivery id
// 409 - delivery is already in a terminal state
func (dh *DeliveryHandler) AdvanceDelivery() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "deliveryID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid delivery id", http.StatusBadRequest)
			return
		}

		req := advanceDeliveryRequest{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		rec, err := dh.svc.Advance(r.Context(), id, req.Target)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrValidation):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, models.ErrDataNotFound):
				http.Error(w, "delivery not found", http.StatusNotFound)
			case errors.Is(err, models.ErrAlreadyTerminal):
				http.Error(w, "delivery is already terminal", http.StatusConflict)
			case errors.Is(err, models.ErrConflictData):
				http.Error(w, err.Error(), http.StatusConflict)
			default:
				dh.logger.Error("advance delivery", zap.Uint64("delivery_id", id), zap.Error(err))
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusOK, newDeliveryResponse(rec))
	}
}

// GetDelivery returns delivery record by id
// 200 - delivery found
// 404 - unknown delivery id
func (dh *DeliveryHandler) GetDelivery() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "deliveryID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid delivery id", http.StatusBadRequest)
			return
		}

		rec, err := dh.svc.GetDelivery(r.Context(), id)
		if err != nil {
			if errors.Is(err, models.ErrDataNotFound) {
				http.Error(w, "delivery not found", http.StatusNotFound)
				return
			}
			dh.logger.Error("get delivery", zap.Uint64("delivery_id", id), zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, newDeliveryResponse(rec))
	}
}
