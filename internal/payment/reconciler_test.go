package payment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"paygate/internal/models"
)

// memStore is an in-memory OrderStore with the same conditional-update
// semantics as the gorm repository.
type memStore struct {
	mu      sync.Mutex
	orders  map[string]*models.Order
	lookups int32
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[string]*models.Order)}
}

func (s *memStore) Create(order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.PurchaseKey] = order
	return nil
}

func (s *memStore) FindByPurchaseKey(key string) (*models.Order, error) {
	atomic.AddInt32(&s.lookups, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[key]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *order
	copied.Notes = append([]models.OrderNote(nil), order.Notes...)
	return &copied, nil
}

func (s *memStore) CompleteByPurchaseKey(key, note string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[key]
	if !ok || order.Status != models.OrderStatusPending {
		return false, nil
	}
	order.Status = models.OrderStatusCompleted
	order.Notes = append(order.Notes, models.OrderNote{OrderID: order.ID, Note: note})
	return true, nil
}

func (s *memStore) MarkFailed(key, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[key]
	if !ok || order.Status != models.OrderStatusPending {
		return nil
	}
	order.Status = models.OrderStatusFailed
	order.Notes = append(order.Notes, models.OrderNote{OrderID: order.ID, Note: note})
	return nil
}

func (s *memStore) FindStalePending(olderThan time.Time) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, order := range s.orders {
		if order.Status == models.OrderStatusPending &&
			order.CreatedAt.Before(olderThan) &&
			order.ProviderChargeID != "" {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s *memStore) SetProviderChargeID(key, chargeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order, ok := s.orders[key]; ok {
		order.ProviderChargeID = chargeID
	}
	return nil
}

func (s *memStore) noteCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders[key].Notes)
}

func (s *memStore) status(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[key].Status
}

type fakeGateway struct {
	verifyResult *VerifyResult
	verifyErr    error
	verifyCalls  int32
}

func (g *fakeGateway) Name() string { return "piprapay" }

func (g *fakeGateway) CreateCharge(context.Context, ChargeRequest) (*ChargeResult, error) {
	return nil, errors.New("not implemented")
}

func (g *fakeGateway) VerifyPayment(context.Context, string) (*VerifyResult, error) {
	atomic.AddInt32(&g.verifyCalls, 1)
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	return g.verifyResult, nil
}

type countingNotifier struct {
	completed int32
}

func (n *countingNotifier) OrderCompleted(*models.Order, string) {
	atomic.AddInt32(&n.completed, 1)
}

func pendingOrder(key string) *models.Order {
	return &models.Order{
		ID:          1,
		PurchaseKey: key,
		FullName:    "Jane Doe",
		EmailMobile: "jane@example.com",
		Amount:      decimal.RequireFromString("150.00"),
		Currency:    "BDT",
		Status:      models.OrderStatusPending,
		CreatedAt:   time.Now(),
	}
}

func completedNotification(key string) WebhookNotification {
	return WebhookNotification{
		Status:        "completed",
		TransactionID: "txn-7",
		PPID:          "pp-42",
		Metadata:      NotificationMetadata{InvoiceID: key},
	}
}

func TestReconcile(t *testing.T) {
	logger := zap.NewNop()

	t.Run("completed notification transitions order once with one note", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.Create(pendingOrder("pk-1")))
		notifier := &countingNotifier{}
		r := NewReconciler(store, &fakeGateway{}, notifier, false, logger)

		outcome, err := r.Reconcile(context.Background(), completedNotification("pk-1"))
		require.NoError(t, err)

		assert.Equal(t, OutcomeCompleted, outcome)
		assert.Equal(t, models.OrderStatusCompleted, store.status("pk-1"))
		assert.Equal(t, 1, store.noteCount("pk-1"))
		assert.Equal(t, int32(1), atomic.LoadInt32(&notifier.completed))

		order, err := store.FindByPurchaseKey("pk-1")
		require.NoError(t, err)
		assert.Equal(t, "PipraPay transaction ID: txn-7", order.Notes[0].Note)
		assert.Equal(t, "pp-42", order.ProviderChargeID)
	})

	t.Run("second delivery is a no-op", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.Create(pendingOrder("pk-1")))
		notifier := &countingNotifier{}
		r := NewReconciler(store, &fakeGateway{}, notifier, false, logger)

		first, err := r.Reconcile(context.Background(), completedNotification("pk-1"))
		require.NoError(t, err)
		second, err := r.Reconcile(context.Background(), completedNotification("pk-1"))
		require.NoError(t, err)

		assert.Equal(t, OutcomeCompleted, first)
		assert.Equal(t, OutcomeAlreadyCompleted, second)
		assert.Equal(t, 1, store.noteCount("pk-1"))
		assert.Equal(t, int32(1), atomic.LoadInt32(&notifier.completed))
	})

	t.Run("concurrent duplicate deliveries apply exactly once", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.Create(pendingOrder("pk-1")))
		notifier := &countingNotifier{}
		r := NewReconciler(store, &fakeGateway{}, notifier, false, logger)

		const deliveries = 16
		var wg sync.WaitGroup
		var completed int32
		for i := 0; i < deliveries; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				outcome, err := r.Reconcile(context.Background(), completedNotification("pk-1"))
				assert.NoError(t, err)
				if outcome == OutcomeCompleted {
					atomic.AddInt32(&completed, 1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), completed)
		assert.Equal(t, 1, store.noteCount("pk-1"))
		assert.Equal(t, int32(1), atomic.LoadInt32(&notifier.completed))
		assert.Equal(t, models.OrderStatusCompleted, store.status("pk-1"))
	})

	t.Run("missing invoiceid is rejected without state change", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.Create(pendingOrder("pk-1")))
		r := NewReconciler(store, &fakeGateway{}, nil, false, logger)

		n := completedNotification("pk-1")
		n.Metadata.InvoiceID = ""
		_, err := r.Reconcile(context.Background(), n)

		assert.ErrorIs(t, err, ErrMissingInvoiceID)
		assert.Equal(t, models.OrderStatusPending, store.status("pk-1"))
	})

	t.Run("unknown purchase key is not found", func(t *testing.T) {
		store := newMemStore()
		r := NewReconciler(store, &fakeGateway{}, nil, false, logger)

		_, err := r.Reconcile(context.Background(), completedNotification("pk-missing"))
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("non-completed status is acknowledged without state change", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.Create(pendingOrder("pk-1")))
		notifier := &countingNotifier{}
		r := NewReconciler(store, &fakeGateway{}, notifier, false, logger)

		n := completedNotification("pk-1")
		n.Status = "pending"
		outcome, err := r.Reconcile(context.Background(), n)
		require.NoError(t, err)

		assert.Equal(t, OutcomeIgnored, outcome)
		assert.Equal(t, models.OrderStatusPending, store.status("pk-1"))
		assert.Equal(t, 0, store.noteCount("pk-1"))
		assert.Equal(t, int32(0), atomic.LoadInt32(&notifier.completed))
	})
}

func TestReconcileWithVerification(t *testing.T) {
	logger := zap.NewNop()

	t.Run("verify response overrides the webhook body", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.Create(pendingOrder("pk-1")))
		gw := &fakeGateway{verifyResult: &VerifyResult{Status: "completed", TransactionID: "txn-verified"}}
		r := NewReconciler(store, gw, nil, true, logger)

		n := completedNotification("pk-1")
		n.TransactionID = "txn-forged"
		outcome, err := r.Reconcile(context.Background(), n)
		require.NoError(t, err)

		assert.Equal(t, OutcomeCompleted, outcome)
		assert.Equal(t, int32(1), atomic.LoadInt32(&gw.verifyCalls))
		order, err := store.FindByPurchaseKey("pk-1")
		require.NoError(t, err)
		assert.Equal(t, "PipraPay transaction ID: txn-verified", order.Notes[0].Note)
	})

	t.Run("forged completed body fails closed when verify errors", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.Create(pendingOrder("pk-1")))
		gw := &fakeGateway{verifyErr: errors.New("connection refused")}
		r := NewReconciler(store, gw, nil, true, logger)

		_, err := r.Reconcile(context.Background(), completedNotification("pk-1"))

		assert.ErrorIs(t, err, ErrVerificationFailed)
		assert.Equal(t, models.OrderStatusPending, store.status("pk-1"))
		assert.Equal(t, 0, store.noteCount("pk-1"))

		// The charge id is persisted even though verification failed, so
		// the recovery sweep can still find and re-query this order.
		order, lookupErr := store.FindByPurchaseKey("pk-1")
		require.NoError(t, lookupErr)
		assert.Equal(t, "pp-42", order.ProviderChargeID)
	})

	t.Run("notification without pp_id fails closed", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.Create(pendingOrder("pk-1")))
		gw := &fakeGateway{verifyResult: &VerifyResult{Status: "completed"}}
		r := NewReconciler(store, gw, nil, true, logger)

		n := completedNotification("pk-1")
		n.PPID = ""
		_, err := r.Reconcile(context.Background(), n)

		assert.ErrorIs(t, err, ErrVerificationFailed)
		assert.Equal(t, int32(0), atomic.LoadInt32(&gw.verifyCalls))
		assert.Equal(t, models.OrderStatusPending, store.status("pk-1"))
	})

	t.Run("verify reporting non-completed leaves order pending", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.Create(pendingOrder("pk-1")))
		gw := &fakeGateway{verifyResult: &VerifyResult{Status: "cancelled"}}
		r := NewReconciler(store, gw, nil, true, logger)

		outcome, err := r.Reconcile(context.Background(), completedNotification("pk-1"))
		require.NoError(t, err)

		assert.Equal(t, OutcomeIgnored, outcome)
		assert.Equal(t, models.OrderStatusPending, store.status("pk-1"))
	})
}

func TestApplyVerified(t *testing.T) {
	store := newMemStore()
	order := pendingOrder("pk-1")
	order.ProviderChargeID = "pp-42"
	require.NoError(t, store.Create(order))
	r := NewReconciler(store, &fakeGateway{}, nil, true, zap.NewNop())

	outcome, err := r.ApplyVerified("pk-1", &VerifyResult{Status: "completed", TransactionID: "txn-9"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	assert.Equal(t, models.OrderStatusCompleted, store.status("pk-1"))

	outcome, err = r.ApplyVerified("pk-1", &VerifyResult{Status: "completed", TransactionID: "txn-9"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyCompleted, outcome)
	assert.Equal(t, 1, store.noteCount("pk-1"))
}

// lookupFailStore completes transitions normally but cannot reload orders,
// as when the database drops between the update and the follow-up read.
type lookupFailStore struct {
	*memStore
}

func (s *lookupFailStore) FindByPurchaseKey(string) (*models.Order, error) {
	return nil, errors.New("connection reset")
}

func TestCompletionSurvivesNotificationLookupFailure(t *testing.T) {
	base := newMemStore()
	require.NoError(t, base.Create(pendingOrder("pk-1")))
	store := &lookupFailStore{memStore: base}
	notifier := &countingNotifier{}
	core, logs := observer.New(zap.WarnLevel)
	r := NewReconciler(store, &fakeGateway{}, notifier, false, zap.New(core))

	outcome, err := r.ApplyVerified("pk-1", &VerifyResult{Status: "completed", TransactionID: "txn-9"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, outcome)
	assert.Equal(t, models.OrderStatusCompleted, base.status("pk-1"))
	assert.Equal(t, int32(0), atomic.LoadInt32(&notifier.completed))
	assert.Equal(t, 1, logs.FilterMessage("Completed order could not be reloaded for notification").Len())
}
