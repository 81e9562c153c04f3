package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kiranik/storefront/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeDeliveryRepo mirrors the postgres repository's compare-and-swap and
// first-entry timestamp semantics
type fakeDeliveryRepo struct {
	mu      sync.Mutex
	nextID  uint64
	records map[uint64]*models.DeliveryRecord
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{nextID: 1, records: map[uint64]*models.DeliveryRecord{}}
}

func (f *fakeDeliveryRepo) CreateDelivery(_ context.Context, rec *models.DeliveryRecord) (*models.DeliveryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.ID = f.nextID
	f.nextID++
	rec.Status = models.DeliveryStatusAssigned
	now := time.Now()
	rec.AssignedAt = &now
	rec.CreatedAt = now
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeDeliveryRepo) GetDelivery(_ context.Context, id uint64) (*models.DeliveryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, models.ErrDataNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeDeliveryRepo) AdvanceStatus(_ context.Context, id uint64, expected, target string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok || rec.Status != expected {
		return false, nil
	}
	rec.Status = target
	now := time.Now()
	switch target {
	case models.DeliveryStatusPickedUp:
		if rec.PickedUpAt == nil {
			rec.PickedUpAt = &now
		}
	case models.DeliveryStatusInTransit:
		if rec.InTransitAt == nil {
			rec.InTransitAt = &now
		}
	case models.DeliveryStatusOutForDelivery:
		if rec.OutForDeliveryAt == nil {
			rec.OutForDeliveryAt = &now
		}
	case models.DeliveryStatusDelivered:
		if rec.DeliveredAt == nil {
			rec.DeliveredAt = &now
		}
	case models.DeliveryStatusFailed:
		if rec.FailedAt == nil {
			rec.FailedAt = &now
		}
	}
	return true, nil
}

func newDeliveryFixture(t *testing.T, status string) (*DeliveryService, *fakeDeliveryRepo, *fakeNotifier, uint64) {
	t.Helper()

	orders := newFakePaymentRepo()
	orders.put(&models.PaymentOrder{
		UserID:         1,
		OrderNumber:    "ORD20260829-0a1b2c3d",
		GatewayOrderID: "gw_1",
		Status:         models.PaymentStatusCaptured,
	})

	repo := newFakeDeliveryRepo()
	notifier := &fakeNotifier{}
	svc := NewDeliveryService(repo, orders, notifier, zap.NewNop())

	rec, err := svc.CreateDelivery(context.Background(), "ORD20260829-0a1b2c3d", "partner_7", "bluedart", "trk_42")
	require.NoError(t, err)

	if status != models.DeliveryStatusAssigned {
		_, err = svc.Advance(context.Background(), rec.ID, status)
		require.NoError(t, err)
	}
	notifier.mu.Lock()
	notifier.kinds = nil // count only the transitions under test
	notifier.mu.Unlock()

	return svc, repo, notifier, rec.ID
}

func TestDeliveryService_CreateDelivery(t *testing.T) {
	orders := newFakePaymentRepo()
	orders.put(&models.PaymentOrder{
		OrderNumber:    "ORD20260829-0a1b2c3d",
		GatewayOrderID: "gw_1",
		Status:         models.PaymentStatusCaptured,
	})
	notifier := &fakeNotifier{}
	svc := NewDeliveryService(newFakeDeliveryRepo(), orders, notifier, zap.NewNop())

	rec, err := svc.CreateDelivery(context.Background(), "ORD20260829-0a1b2c3d", "partner_7", "bluedart", "trk_42")
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusAssigned, rec.Status)
	assert.NotNil(t, rec.AssignedAt)
	assert.Equal(t, "partner_7", rec.PartnerID)
	assert.Equal(t, 1, notifier.count())
}

func TestDeliveryService_CreateDelivery_OrderNotCaptured(t *testing.T) {
	orders := newFakePaymentRepo()
	orders.put(&models.PaymentOrder{
		OrderNumber:    "ORD20260829-0a1b2c3d",
		GatewayOrderID: "gw_1",
		Status:         models.PaymentStatusPending,
	})
	svc := NewDeliveryService(newFakeDeliveryRepo(), orders, &fakeNotifier{}, zap.NewNop())

	_, err := svc.CreateDelivery(context.Background(), "ORD20260829-0a1b2c3d", "partner_7", "", "")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestDeliveryService_CreateDelivery_UnknownOrder(t *testing.T) {
	svc := NewDeliveryService(newFakeDeliveryRepo(), newFakePaymentRepo(), &fakeNotifier{}, zap.NewNop())

	_, err := svc.CreateDelivery(context.Background(), "ORD00000000-ffffffff", "partner_7", "", "")
	assert.ErrorIs(t, err, models.ErrDataNotFound)
}

func TestDeliveryService_Advance_Forward(t *testing.T) {
	svc, _, notifier, id := newDeliveryFixture(t, models.DeliveryStatusPickedUp)

	rec, err := svc.Advance(context.Background(), id, models.DeliveryStatusOutForDelivery)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusOutForDelivery, rec.Status)
	assert.NotNil(t, rec.OutForDeliveryAt)
	assert.Equal(t, 1, notifier.count())

	// duplicate partner callback: no-op, no second notification
	again, err := svc.Advance(context.Background(), id, models.DeliveryStatusOutForDelivery)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusOutForDelivery, again.Status)
	assert.Equal(t, *rec.OutForDeliveryAt, *again.OutForDeliveryAt)
	assert.Equal(t, 1, notifier.count())
}

func TestDeliveryService_Advance_BackwardIsNoOp(t *testing.T) {
	svc, _, notifier, id := newDeliveryFixture(t, models.DeliveryStatusInTransit)

	rec, err := svc.Advance(context.Background(), id, models.DeliveryStatusPickedUp)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusInTransit, rec.Status)
	assert.Zero(t, notifier.count())
}

func TestDeliveryService_Advance_SkipStates(t *testing.T) {
	// the partner's device may miss intermediate callbacks entirely
	svc, _, _, id := newDeliveryFixture(t, models.DeliveryStatusAssigned)

	rec, err := svc.Advance(context.Background(), id, models.DeliveryStatusOutForDelivery)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusOutForDelivery, rec.Status)
	assert.NotNil(t, rec.OutForDeliveryAt)
	assert.Nil(t, rec.PickedUpAt, "skipped states keep no timestamp")
	assert.Nil(t, rec.InTransitAt)
}

func TestDeliveryService_Advance_Terminal(t *testing.T) {
	svc, _, notifier, id := newDeliveryFixture(t, models.DeliveryStatusDelivered)

	// repeating the terminal state is the idempotent no-op case
	rec, err := svc.Advance(context.Background(), id, models.DeliveryStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusDelivered, rec.Status)
	assert.Zero(t, notifier.count())

	// any other transition past a terminal state is rejected
	_, err = svc.Advance(context.Background(), id, models.DeliveryStatusFailed)
	assert.ErrorIs(t, err, models.ErrAlreadyTerminal)
}

func TestDeliveryService_Advance_FailedFromAnyState(t *testing.T) {
	svc, _, notifier, id := newDeliveryFixture(t, models.DeliveryStatusInTransit)

	rec, err := svc.Advance(context.Background(), id, models.DeliveryStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusFailed, rec.Status)
	assert.NotNil(t, rec.FailedAt)
	assert.Equal(t, 1, notifier.count())

	_, err = svc.Advance(context.Background(), id, models.DeliveryStatusDelivered)
	assert.ErrorIs(t, err, models.ErrAlreadyTerminal)
}

func TestDeliveryService_Advance_UnknownTarget(t *testing.T) {
	svc, _, _, id := newDeliveryFixture(t, models.DeliveryStatusAssigned)

	_, err := svc.Advance(context.Background(), id, "teleported")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestDeliveryService_Advance_UnknownDelivery(t *testing.T) {
	svc := NewDeliveryService(newFakeDeliveryRepo(), newFakePaymentRepo(), &fakeNotifier{}, zap.NewNop())

	_, err := svc.Advance(context.Background(), 99, models.DeliveryStatusPickedUp)
	assert.ErrorIs(t, err, models.ErrDataNotFound)
}

func TestDeliveryService_Advance_NotificationFailureDoesNotRevert(t *testing.T) {
	svc, repo, notifier, id := newDeliveryFixture(t, models.DeliveryStatusAssigned)
	notifier.err = assert.AnError

	rec, err := svc.Advance(context.Background(), id, models.DeliveryStatusPickedUp)
	require.NoError(t, err, "notification failure must not fail the transition")
	assert.Equal(t, models.DeliveryStatusPickedUp, rec.Status)

	stored, err := repo.GetDelivery(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusPickedUp, stored.Status)
}
