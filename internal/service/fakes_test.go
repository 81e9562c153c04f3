package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kiranik/storefront/internal/gateway"
	"github.com/kiranik/storefront/internal/models"
)

// fakePaymentRepo is an in-memory ledger with the same compare-and-swap
// semantics as the postgres repository
type fakePaymentRepo struct {
	mu         sync.Mutex
	orders     map[string]*models.PaymentOrder // keyed by gateway order id
	failInsert bool
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{orders: map[string]*models.PaymentOrder{}}
}

func (f *fakePaymentRepo) put(order *models.PaymentOrder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[order.GatewayOrderID] = order
}

func (f *fakePaymentRepo) CreateOrder(_ context.Context, order *models.PaymentOrder) (*models.PaymentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert {
		return nil, errors.New("connection refused")
	}
	for _, cur := range f.orders {
		if cur.OrderNumber == order.OrderNumber || cur.GatewayOrderID == order.GatewayOrderID {
			return nil, models.ErrConflictData
		}
	}
	order.ID = uint64(len(f.orders) + 1)
	order.CreatedAt = time.Now()
	f.orders[order.GatewayOrderID] = order
	return order, nil
}

func (f *fakePaymentRepo) GetByGatewayOrderID(_ context.Context, gatewayOrderID string) (*models.PaymentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[gatewayOrderID]
	if !ok {
		return nil, models.ErrDataNotFound
	}
	cp := *order
	return &cp, nil
}

func (f *fakePaymentRepo) GetByOrderNumber(_ context.Context, num string) (*models.PaymentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, order := range f.orders {
		if order.OrderNumber == num {
			cp := *order
			return &cp, nil
		}
	}
	return nil, models.ErrDataNotFound
}

func (f *fakePaymentRepo) Capture(_ context.Context, gatewayOrderID, gatewayPaymentID, sig string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[gatewayOrderID]
	if !ok || models.PaymentStatusTerminal(order.Status) {
		return false, nil
	}
	order.Status = models.PaymentStatusCaptured
	order.GatewayPaymentID = &gatewayPaymentID
	if sig != "" {
		order.GatewaySignature = &sig
	}
	now := time.Now()
	order.CapturedAt = &now
	return true, nil
}

func (f *fakePaymentRepo) MarkPending(_ context.Context, gatewayOrderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[gatewayOrderID]
	if !ok || order.Status != models.PaymentStatusCreated {
		return false, nil
	}
	order.Status = models.PaymentStatusPending
	return true, nil
}

func (f *fakePaymentRepo) Fail(_ context.Context, gatewayOrderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[gatewayOrderID]
	if !ok || models.PaymentStatusTerminal(order.Status) {
		return false, nil
	}
	order.Status = models.PaymentStatusFailed
	return true, nil
}

func (f *fakePaymentRepo) GetStaleOrders(_ context.Context, cutoff time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := []string{}
	for _, order := range f.orders {
		if !models.PaymentStatusTerminal(order.Status) && order.CreatedAt.Before(cutoff) {
			ids = append(ids, order.GatewayOrderID)
		}
	}
	return ids, nil
}

// fakeGateway scripts gateway responses and counts calls
type fakeGateway struct {
	mu          sync.Mutex
	orderStatus string
	payments    []gateway.Payment
	createErr   error
	fetchErr    error
	paymentsErr error
	qrErr       error
	creates     int
	fetches     int
	lastReceipt string
}

func (f *fakeGateway) CreateOrder(_ context.Context, amountMinor int64, currency, receipt string) (*gateway.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	f.lastReceipt = receipt
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &gateway.Order{ID: "gw_1", Status: gateway.OrderStatusCreated, AmountMinor: amountMinor, Receipt: receipt}, nil
}

func (f *fakeGateway) FetchOrder(_ context.Context, gatewayOrderID string) (*gateway.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return &gateway.Order{ID: gatewayOrderID, Status: f.orderStatus}, nil
}

func (f *fakeGateway) FetchPayments(_ context.Context, _ string) ([]gateway.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paymentsErr != nil {
		return nil, f.paymentsErr
	}
	return f.payments, nil
}

func (f *fakeGateway) CreateSingleUseQR(_ context.Context, gatewayOrderID string, _ int64, _ string) (*gateway.QRCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.qrErr != nil {
		return nil, f.qrErr
	}
	return &gateway.QRCode{ID: "qr_" + gatewayOrderID, ImageURL: "https://gateway.test/qr/" + gatewayOrderID}, nil
}

// fakeNotifier records notifications synchronously
type fakeNotifier struct {
	mu    sync.Mutex
	kinds []string
	err   error
}

func (f *fakeNotifier) Notify(_ context.Context, kind, _ string, _ map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.kinds)
}

// fakeStatusCache records terminal status writes
type fakeStatusCache struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeStatusCache() *fakeStatusCache {
	return &fakeStatusCache{values: map[string]string{}}
}

func (f *fakeStatusCache) GetStatus(_ context.Context, gatewayOrderID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.values[gatewayOrderID]
	return val, ok
}

func (f *fakeStatusCache) SetStatus(_ context.Context, gatewayOrderID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !models.PaymentStatusTerminal(status) {
		return
	}
	f.values[gatewayOrderID] = status
}
