package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/shopdash/internal/domain"
	"github.com/joao-fontenele/shopdash/internal/payment"
	"github.com/joao-fontenele/shopdash/internal/pricing"
)

var tracer = otel.Tracer("shopdash/orders")

const EventTypeOrderCreated = "order.created"

type CatalogReader interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

type Repository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context) ([]domain.Order, error)
	AttachPaymentReference(ctx context.Context, id, externalTransactionID, paymentMethodID string) (*domain.Order, error)
}

type PaymentGateway interface {
	CreateQRPayment(ctx context.Context, amount decimal.Decimal, referenceID string) (*payment.QRPayment, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, topic, key, eventType string, event any) error
}

// CreateOrderResult is what the storefront needs after checkout.
type CreateOrderResult struct {
	Order  *domain.Order `json:"order"`
	QRCode string        `json:"qr_code,omitempty"`
}

type Service struct {
	repo      Repository
	catalog   CatalogReader
	gateway   PaymentGateway
	publisher EventPublisher
	topic     string
	pricer    *pricing.Engine
	metrics   *serviceMetrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires the order flow. publisher may be nil, in which case no
// events are emitted.
func NewService(repo Repository, catalog CatalogReader, gateway PaymentGateway, publisher EventPublisher, createdTopic string, logger *slog.Logger) (*Service, error) {
	m, err := newServiceMetrics()
	if err != nil {
		return nil, fmt.Errorf("create order metrics: %w", err)
	}

	return &Service{
		repo:      repo,
		catalog:   catalog,
		gateway:   gateway,
		publisher: publisher,
		topic:     createdTopic,
		pricer:    pricing.NewEngine(),
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// CreateOrder prices lines against the current catalog, stores the order
// and requests a QR payment for it. When the gateway fails the stored
// order is still returned, in PENDING, alongside the gateway error so the
// caller can retry the payment.
func (s *Service) CreateOrder(ctx context.Context, lines []pricing.Line) (*CreateOrderResult, error) {
	ctx, span := tracer.Start(ctx, "orders.create")
	defer span.End()

	if err := pricing.Validate(lines); err != nil {
		return nil, err
	}

	products, err := s.catalog.FindByIDs(ctx, pricing.ProductIDs(lines))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("resolve products: %w", err)
	}

	quote, err := s.pricer.Price(lines, products)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order := &domain.Order{
		Items:      quote.Items,
		Subtotal:   quote.Subtotal,
		Tax:        quote.Tax,
		GrandTotal: quote.GrandTotal,
		Status:     domain.OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Create(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("create order: %w", err)
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	s.metrics.ordersCreated.Add(ctx, 1)
	s.metrics.grandTotal.Record(ctx, order.GrandTotal.InexactFloat64())
	s.logger.InfoContext(ctx, "order created", "order_id", order.ID, "grand_total", order.GrandTotal.String())

	s.publishCreated(ctx, order)

	paid, qr, err := s.requestPayment(ctx, order)
	if err != nil {
		return &CreateOrderResult{Order: order}, err
	}

	return &CreateOrderResult{Order: paid, QRCode: qr}, nil
}

// RequestPayment issues a fresh QR payment for an order that has not
// reached a terminal status.
func (s *Service) RequestPayment(ctx context.Context, id string) (*CreateOrderResult, error) {
	ctx, span := tracer.Start(ctx, "orders.request_payment")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id))

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status.Terminal() {
		return nil, domain.ErrOrderFinalized
	}

	paid, qr, err := s.requestPayment(ctx, order)
	if err != nil {
		return &CreateOrderResult{Order: order}, err
	}

	return &CreateOrderResult{Order: paid, QRCode: qr}, nil
}

func (s *Service) requestPayment(ctx context.Context, order *domain.Order) (*domain.Order, string, error) {
	qr, err := s.gateway.CreateQRPayment(ctx, order.GrandTotal, order.ID)
	if err != nil {
		s.metrics.paymentsRequested.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		s.logger.ErrorContext(ctx, "failed to request qr payment", "error", err, "order_id", order.ID)
		return nil, "", err
	}
	s.metrics.paymentsRequested.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))

	updated, err := s.repo.AttachPaymentReference(ctx, order.ID, qr.ID, qr.PaymentMethodID)
	if err != nil {
		if !errors.Is(err, domain.ErrOrderFinalized) {
			err = fmt.Errorf("attach payment reference: %w", err)
		}
		return nil, "", err
	}

	s.logger.InfoContext(ctx, "qr payment requested", "order_id", order.ID, "external_transaction_id", qr.ID)
	return updated, qr.QRString, nil
}

func (s *Service) publishCreated(ctx context.Context, order *domain.Order) {
	if s.publisher == nil {
		return
	}

	event := domain.OrderCreatedEvent{
		OrderID:    order.ID,
		Items:      order.Items,
		GrandTotal: order.GrandTotal,
		Timestamp:  order.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, s.topic, order.ID, EventTypeOrderCreated, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order created event", "error", err, "order_id", order.ID)
	}
}

func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.repo.List(ctx)
}
