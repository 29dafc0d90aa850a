package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderCreatedEvent struct {
	OrderID    string          `json:"order_id"`
	Items      []OrderItem     `json:"items"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	Timestamp  time.Time       `json:"timestamp"`
}

type OrderStatusChangedEvent struct {
	OrderID               string          `json:"order_id"`
	Status                OrderStatus     `json:"status"`
	GrandTotal            decimal.Decimal `json:"grand_total"`
	ExternalTransactionID string          `json:"external_transaction_id,omitempty"`
	PaymentID             string          `json:"payment_id,omitempty"`
	PaidAt                *time.Time      `json:"paid_at,omitempty"`
	Timestamp             time.Time       `json:"timestamp"`
}
