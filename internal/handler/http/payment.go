package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranik/storefront/internal/gateway"
	"github.com/kiranik/storefront/internal/models"
	"github.com/kiranik/storefront/internal/service"
	"go.uber.org/zap"
)

// PaymentService is the order lifecycle surface consumed by HTTP handlers
type PaymentService interface {
	CreateOrder(ctx context.Context, p service.CreateOrderParams) (*models.PaymentOrder, error)
	VerifyAndCapture(ctx context.Context, gatewayOrderID, gatewayPaymentID, sig string) (*service.CaptureResult, error)
	CreatePaymentQR(ctx context.Context, gatewayOrderID string) (*gateway.QRCode, error)
	FailOrder(ctx context.Context, gatewayOrderID string) (*models.PaymentOrder, error)
}

// ReconcileService resolves order status against the gateway
type ReconcileService interface {
	Reconcile(ctx context.Context, gatewayOrderID string) (string, error)
}

// PaymentHandler represents HTTP handler for payment-related requests
type PaymentHandler struct {
	svc        PaymentService
	reconciler ReconcileService
	logger     *zap.Logger
}

// NewPaymentHandler creates new PaymentHandler instance
func NewPaymentHandler(svc PaymentService, reconciler ReconcileService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		svc:        svc,
		reconciler: reconciler,
		logger:     logger,
	}
}

type createOrderRequest struct {
	UserID          uint64          `json:"user_id"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	Items           json.RawMessage `json:"items"`
	DeliveryAddress json.RawMessage `json:"delivery_address"`
}

type orderResponse struct {
	OrderNumber    string `json:"order_number"`
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
}

// CreateOrder creates payment order
// 201 - order created
// 400 - invalid request data
// 502 - payment gateway unavailable
// 500 - internal error
func (ph *PaymentHandler) CreateOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := createOrderRequest{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		order, err := ph.svc.CreateOrder(r.Context(), service.CreateOrderParams{
			UserID:          req.UserID,
			AmountMinor:     req.Amount,
			Currency:        req.Currency,
			Items:           req.Items,
			DeliveryAddress: req.DeliveryAddress,
		})
		if err != nil {
			switch {
			case errors.Is(err, models.ErrValidation):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, models.ErrGatewayUnavailable):
				http.Error(w, "payment gateway unavailable", http.StatusBadGateway)
			default:
				ph.logger.Error("create order", zap.Error(err))
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusCreated, orderResponse{
			OrderNumber:    order.OrderNumber,
			GatewayOrderID: order.GatewayOrderID,
			Amount:         order.AmountMinor,
			Currency:       order.Currency,
			Status:         order.Status,
		})
	}
}

type verifyRequest struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

type verifyResponse struct {
	Verified bool   `json:"verified"`
	Status   string `json:"status"`
}

// VerifyPayment validates the payment proof and captures the order
// 200 - proof accepted, order captured (idempotent)
// 400 - invalid request or signature verification failed
// 404 - unknown gateway order id
// 409 - order is in a conflicting terminal state
func (ph *PaymentHandler) VerifyPayment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := verifyRequest{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		res, err := ph.svc.VerifyAndCapture(r.Context(), req.GatewayOrderID, req.GatewayPaymentID, req.Signature)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrSignatureInvalid):
				http.Error(w, "signature verification failed", http.StatusBadRequest)
			case errors.Is(err, models.ErrValidation):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, models.ErrDataNotFound):
				http.Error(w, "order not found", http.StatusNotFound)
			case errors.Is(err, models.ErrConflictData):
				http.Error(w, err.Error(), http.StatusConflict)
			default:
				ph.logger.Error("verify payment", zap.Error(err))
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusOK, verifyResponse{
			Verified: res.Verified,
			Status:   res.Status,
		})
	}
}

type statusResponse struct {
	Status string `json:"status"`
}

// GetOrderStatus returns order status, reconciling non-terminal orders
// against the gateway
// 200 - status resolved (possibly from the local ledger on gateway failure)
// 404 - unknown gateway order id
func (ph *PaymentHandler) GetOrderStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gatewayOrderID := chi.URLParam(r, "gatewayOrderID")

		status, err := ph.reconciler.Reconcile(r.Context(), gatewayOrderID)
		if err != nil {
			if errors.Is(err, models.ErrDataNotFound) {
				http.Error(w, "order not found", http.StatusNotFound)
				return
			}
			ph.logger.Error("reconcile order", zap.String("gateway_order_id", gatewayOrderID), zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, statusResponse{Status: status})
	}
}

type qrResponse struct {
	QRID     string `json:"qr_id"`
	ImageURL string `json:"image_url"`
}

// CreatePaymentQR creates a single-use payment QR for a non-terminal order
// 201 - QR created
// 400 - order is already terminal
// 404 - unknown gateway order id
// 502 - payment gateway unavailable
func (ph *PaymentHandler) CreatePaymentQR() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gatewayOrderID := chi.URLParam(r, "gatewayOrderID")

		qr, err := ph.svc.CreatePaymentQR(r.Context(), gatewayOrderID)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrValidation):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, models.ErrDataNotFound):
				http.Error(w, "order not found", http.StatusNotFound)
			case errors.Is(err, models.ErrGatewayUnavailable):
				http.Error(w, "payment gateway unavailable", http.StatusBadGateway)
			default:
				ph.logger.Error("create payment qr", zap.Error(err))
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusCreated, qrResponse{QRID: qr.ID, ImageURL: qr.ImageURL})
	}
}

// FailOrder marks a non-terminal order as failed (operator remediation)
// 200 - order failed (idempotent)
// 404 - unknown gateway order id
// 409 - order is already captured
func (ph *PaymentHandler) FailOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gatewayOrderID := chi.URLParam(r, "gatewayOrderID")

		order, err := ph.svc.FailOrder(r.Context(), gatewayOrderID)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrDataNotFound):
				http.Error(w, "order not found", http.StatusNotFound)
			case errors.Is(err, models.ErrConflictData):
				http.Error(w, err.Error(), http.StatusConflict)
			default:
				ph.logger.Error("fail order", zap.String("gateway_order_id", gatewayOrderID), zap.Error(err))
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusOK, statusResponse{Status: order.Status})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
