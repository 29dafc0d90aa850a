package orders

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/shopdash/internal/domain"
	"github.com/joao-fontenele/shopdash/internal/payment"
)

type memRepository struct {
	mu        sync.Mutex
	orders    map[string]*domain.Order
	seq       int
	createErr error
}

func newMemRepository() *memRepository {
	return &memRepository{orders: map[string]*domain.Order{}}
}

func (r *memRepository) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.seq++
	order.ID = fmt.Sprintf("order-%d", r.seq)
	stored := *order
	r.orders[order.ID] = &stored
	return nil
}

func (r *memRepository) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *o
	return &out, nil
}

func (r *memRepository) List(_ context.Context) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Order, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (r *memRepository) AttachPaymentReference(_ context.Context, id, externalTransactionID, paymentMethodID string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if o.Status.Terminal() {
		return nil, domain.ErrOrderFinalized
	}
	o.ExternalTransactionID = &externalTransactionID
	o.PaymentMethod = &paymentMethodID
	o.Status = domain.OrderStatusProcessing
	out := *o
	return &out, nil
}

func (r *memRepository) setStatus(id string, status domain.OrderStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[id].Status = status
}

type fakeCatalog struct {
	products map[string]domain.Product
	err      error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{products: map[string]domain.Product{
		"p1": {ID: "p1", Name: "Kopi Susu", Price: decimal.NewFromInt(50000)},
		"p2": {ID: "p2", Name: "Croissant", Price: decimal.RequireFromString("12500.50")},
	}}
}

func (c *fakeCatalog) FindByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type gatewayCall struct {
	amount      decimal.Decimal
	referenceID string
}

type fakeGateway struct {
	calls []gatewayCall
	err   error
}

func (g *fakeGateway) CreateQRPayment(_ context.Context, amount decimal.Decimal, referenceID string) (*payment.QRPayment, error) {
	g.calls = append(g.calls, gatewayCall{amount: amount, referenceID: referenceID})
	if g.err != nil {
		return nil, g.err
	}
	return &payment.QRPayment{
		ID:              fmt.Sprintf("ext-%d", len(g.calls)),
		PaymentMethodID: "qris",
		QRString:        "00020101021226",
	}, nil
}

type publishedEvent struct {
	topic     string
	key       string
	eventType string
	event     any
}

type fakePublisher struct {
	events []publishedEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, topic, key, eventType string, event any) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{topic: topic, key: key, eventType: eventType, event: event})
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
