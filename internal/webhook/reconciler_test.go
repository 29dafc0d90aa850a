package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/shopdash/internal/domain"
)

type memStore struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
	err    error
}

func newMemStore(orders ...domain.Order) *memStore {
	s := &memStore{orders: map[string]*domain.Order{}}
	for i := range orders {
		o := orders[i]
		s.orders[o.ID] = &o
	}
	return s
}

func (s *memStore) GetByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *o
	return &out, nil
}

func (s *memStore) transition(id string, to domain.OrderStatus, paidAt *time.Time) (bool, *domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, nil, s.err
	}
	o, ok := s.orders[id]
	if !ok {
		return false, nil, domain.ErrNotFound
	}
	changed := false
	if !o.Status.Terminal() {
		o.Status = to
		if paidAt != nil {
			o.PaidAt = paidAt
		}
		changed = true
	}
	out := *o
	return changed, &out, nil
}

func (s *memStore) MarkPaid(_ context.Context, id string, paidAt time.Time) (bool, *domain.Order, error) {
	return s.transition(id, domain.OrderStatusSucceeded, &paidAt)
}

func (s *memStore) MarkFailed(_ context.Context, id string) (bool, *domain.Order, error) {
	return s.transition(id, domain.OrderStatusFailed, nil)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.OrderStatusChangedEvent
}

func (p *fakePublisher) Publish(_ context.Context, _, _, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.(domain.OrderStatusChangedEvent))
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func processingOrder(id string) domain.Order {
	ext := "ext-1"
	method := "qris"
	return domain.Order{
		ID:                    id,
		Subtotal:              decimal.NewFromInt(100000),
		Tax:                   decimal.NewFromInt(10000),
		GrandTotal:            decimal.NewFromInt(110000),
		Status:                domain.OrderStatusProcessing,
		ExternalTransactionID: &ext,
		PaymentMethod:         &method,
	}
}

func newTestReconciler(store OrderStore, pub *fakePublisher, clock *time.Time) *Reconciler {
	r := NewReconciler(store, pub, "order.status_changed", discardLogger())
	r.now = func() time.Time { return *clock }
	return r
}

func TestReconcileSucceededIsIdempotent(t *testing.T) {
	store := newMemStore(processingOrder("o1"))
	pub := &fakePublisher{}
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := newTestReconciler(store, pub, &clock)

	n := Notification{ReferenceID: "o1", Status: domain.OrderStatusSucceeded, Amount: decimal.NewFromInt(110000), PaymentID: "py-1"}

	first, err := r.Reconcile(context.Background(), n)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !first.Changed {
		t.Error("first notification should change the order")
	}
	if first.Order.Status != domain.OrderStatusSucceeded {
		t.Errorf("status = %s, want SUCCEEDED", first.Order.Status)
	}
	if first.Order.PaidAt == nil || !first.Order.PaidAt.Equal(clock) {
		t.Errorf("paid_at = %v, want %v", first.Order.PaidAt, clock)
	}

	clock = clock.Add(time.Hour)
	second, err := r.Reconcile(context.Background(), n)
	if err != nil {
		t.Fatalf("replayed Reconcile() error = %v", err)
	}
	if second.Changed {
		t.Error("replayed notification should not change the order")
	}
	if !second.Order.PaidAt.Equal(*first.Order.PaidAt) {
		t.Errorf("paid_at moved from %v to %v", first.Order.PaidAt, second.Order.PaidAt)
	}

	if len(pub.events) != 1 {
		t.Fatalf("published events = %d, want 1", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Status != domain.OrderStatusSucceeded || ev.ExternalTransactionID != "ext-1" || ev.PaymentID != "py-1" {
		t.Errorf("event = %+v", ev)
	}
}

func TestReconcileFailed(t *testing.T) {
	store := newMemStore(processingOrder("o1"))
	pub := &fakePublisher{}
	clock := time.Now()
	r := newTestReconciler(store, pub, &clock)

	res, err := r.Reconcile(context.Background(), Notification{ReferenceID: "o1", Status: domain.OrderStatusFailed})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if res.Order.Status != domain.OrderStatusFailed {
		t.Errorf("status = %s, want FAILED", res.Order.Status)
	}
	if res.Order.PaidAt != nil {
		t.Errorf("paid_at = %v, want nil", res.Order.PaidAt)
	}

	late, err := r.Reconcile(context.Background(), Notification{ReferenceID: "o1", Status: domain.OrderStatusSucceeded})
	if err != nil {
		t.Fatalf("late Reconcile() error = %v", err)
	}
	if late.Changed || late.Order.Status != domain.OrderStatusFailed {
		t.Errorf("late success changed a failed order: %+v", late.Order)
	}
	if len(pub.events) != 1 {
		t.Errorf("published events = %d, want 1", len(pub.events))
	}
}

func TestReconcileRejects(t *testing.T) {
	tests := []struct {
		name    string
		n       Notification
		wantErr func(error) bool
	}{
		{
			name:    "unknown order",
			n:       Notification{ReferenceID: "missing", Status: domain.OrderStatusSucceeded},
			wantErr: func(err error) bool { return errors.Is(err, domain.ErrNotFound) },
		},
		{
			name:    "unsupported status",
			n:       Notification{ReferenceID: "o1", Status: "EXPIRED"},
			wantErr: isValidation,
		},
		{
			name:    "amount mismatch",
			n:       Notification{ReferenceID: "o1", Status: domain.OrderStatusSucceeded, Amount: decimal.NewFromInt(1)},
			wantErr: isValidation,
		},
		{
			name:    "missing reference",
			n:       Notification{Status: domain.OrderStatusSucceeded},
			wantErr: isValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(processingOrder("o1"))
			pub := &fakePublisher{}
			clock := time.Now()
			r := newTestReconciler(store, pub, &clock)

			_, err := r.Reconcile(context.Background(), tt.n)
			if !tt.wantErr(err) {
				t.Fatalf("error = %v", err)
			}

			o, _ := store.GetByID(context.Background(), "o1")
			if o.Status != domain.OrderStatusProcessing || o.PaidAt != nil {
				t.Errorf("order mutated: %+v", o)
			}
			if len(pub.events) != 0 {
				t.Errorf("published events = %d, want 0", len(pub.events))
			}
		})
	}
}

func TestReconcileConcurrentReplays(t *testing.T) {
	store := newMemStore(processingOrder("o1"))
	pub := &fakePublisher{}
	clock := time.Now()
	r := newTestReconciler(store, pub, &clock)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Reconcile(context.Background(), Notification{ReferenceID: "o1", Status: domain.OrderStatusSucceeded})
		}()
	}
	wg.Wait()

	if len(pub.events) != 1 {
		t.Errorf("published events = %d, want 1", len(pub.events))
	}
}

func isValidation(err error) bool {
	var verr *domain.ValidationError
	return errors.As(err, &verr)
}
