package orders

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type serviceMetrics struct {
	ordersCreated     metric.Int64Counter
	paymentsRequested metric.Int64Counter
	grandTotal        metric.Float64Histogram
}

func newServiceMetrics() (*serviceMetrics, error) {
	meter := otel.Meter("shopdash/orders")

	ordersCreated, err := meter.Int64Counter("shop.orders.created",
		metric.WithDescription("Orders persisted"))
	if err != nil {
		return nil, err
	}

	paymentsRequested, err := meter.Int64Counter("shop.payments.requested",
		metric.WithDescription("QR payment requests sent to the gateway, by outcome"))
	if err != nil {
		return nil, err
	}

	grandTotal, err := meter.Float64Histogram("shop.orders.grand_total",
		metric.WithDescription("Grand total of created orders"))
	if err != nil {
		return nil, err
	}

	return &serviceMetrics{
		ordersCreated:     ordersCreated,
		paymentsRequested: paymentsRequested,
		grandTotal:        grandTotal,
	}, nil
}
