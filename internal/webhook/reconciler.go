// Package webhook applies payment gateway notifications to orders.
package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/joao-fontenele/shopdash/internal/domain"
)

var tracer = otel.Tracer("shopdash/webhook")

const EventTypeOrderStatusChanged = "order.status_changed"

// Notification is the part of a gateway callback that drives reconciliation.
// ReferenceID is the order id sent when the payment was requested.
type Notification struct {
	ReferenceID string
	Status      domain.OrderStatus
	Amount      decimal.Decimal
	PaymentID   string
}

type OrderStore interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, *domain.Order, error)
	MarkFailed(ctx context.Context, id string) (bool, *domain.Order, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, topic, key, eventType string, event any) error
}

// Result reports the order after reconciliation and whether this
// notification was the one that moved it.
type Result struct {
	Order   *domain.Order
	Changed bool
}

type Reconciler struct {
	store     OrderStore
	publisher EventPublisher
	topic     string
	logger    *slog.Logger
	now       func() time.Time
}

// NewReconciler returns a Reconciler. publisher may be nil.
func NewReconciler(store OrderStore, publisher EventPublisher, statusTopic string, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		publisher: publisher,
		topic:     statusTopic,
		logger:    logger,
		now:       time.Now,
	}
}

// Reconcile moves the referenced order to the notified terminal status.
// Replays and late notifications for an order that is already terminal
// leave it untouched and emit nothing.
func (r *Reconciler) Reconcile(ctx context.Context, n Notification) (*Result, error) {
	ctx, span := tracer.Start(ctx, "webhook.reconcile")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", n.ReferenceID),
		attribute.String("payment.status", string(n.Status)),
	)

	if n.ReferenceID == "" {
		return nil, domain.NewValidationError("data.reference_id", "is required")
	}
	if n.Status != domain.OrderStatusSucceeded && n.Status != domain.OrderStatusFailed {
		return nil, domain.NewValidationError("data.status", "unsupported status "+string(n.Status))
	}

	order, err := r.store.GetByID(ctx, n.ReferenceID)
	if err != nil {
		return nil, err
	}

	if n.Status == domain.OrderStatusSucceeded && !n.Amount.IsZero() && !n.Amount.Equal(order.GrandTotal) {
		r.logger.WarnContext(ctx, "payment amount does not match order",
			"order_id", order.ID, "amount", n.Amount.String(), "grand_total", order.GrandTotal.String())
		return nil, domain.NewValidationError("data.amount", "does not match order grand total")
	}

	var changed bool
	switch n.Status {
	case domain.OrderStatusSucceeded:
		changed, order, err = r.store.MarkPaid(ctx, n.ReferenceID, r.now().UTC())
	default:
		changed, order, err = r.store.MarkFailed(ctx, n.ReferenceID)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("order.changed", changed))

	if !changed {
		if order.Status != n.Status {
			r.logger.WarnContext(ctx, "ignoring notification for finalized order",
				"order_id", order.ID, "status", order.Status, "notified_status", n.Status)
		} else {
			r.logger.InfoContext(ctx, "duplicate payment notification", "order_id", order.ID, "status", order.Status)
		}
		return &Result{Order: order}, nil
	}

	r.logger.InfoContext(ctx, "order status changed", "order_id", order.ID, "status", order.Status)
	r.publishStatusChanged(ctx, order, n.PaymentID)

	return &Result{Order: order, Changed: true}, nil
}

func (r *Reconciler) publishStatusChanged(ctx context.Context, order *domain.Order, paymentID string) {
	if r.publisher == nil {
		return
	}

	event := domain.OrderStatusChangedEvent{
		OrderID:    order.ID,
		Status:     order.Status,
		GrandTotal: order.GrandTotal,
		PaymentID:  paymentID,
		PaidAt:     order.PaidAt,
		Timestamp:  r.now().UTC(),
	}
	if order.ExternalTransactionID != nil {
		event.ExternalTransactionID = *order.ExternalTransactionID
	}

	if err := r.publisher.Publish(ctx, r.topic, order.ID, EventTypeOrderStatusChanged, event); err != nil {
		r.logger.ErrorContext(ctx, "failed to publish order status changed event", "error", err, "order_id", order.ID)
	}
}
