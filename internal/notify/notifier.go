// Package notify turns order status events into payment notifications.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/shopdash/internal/domain"
	"github.com/joao-fontenele/shopdash/internal/messaging"
	"github.com/joao-fontenele/shopdash/internal/webhook"
)

// Email is the request accepted by the email service's /send endpoint.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type PaymentNotifier struct {
	emailServiceURL string
	recipient       string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewPaymentNotifier(emailServiceURL, recipient string, client *http.Client, logger *slog.Logger) *PaymentNotifier {
	return &PaymentNotifier{
		emailServiceURL: strings.TrimRight(emailServiceURL, "/"),
		recipient:       recipient,
		httpClient:      client,
		logger:          logger,
	}
}

// Handle sends one email per terminal status change. Other event types
// on the topic are skipped.
func (n *PaymentNotifier) Handle(ctx context.Context, msg messaging.Message) error {
	if msg.EventType != "" && msg.EventType != webhook.EventTypeOrderStatusChanged {
		n.logger.DebugContext(ctx, "skipping event", "event_type", msg.EventType, "key", msg.Key)
		return nil
	}

	var event domain.OrderStatusChangedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("unmarshal order status changed event: %w", err)
	}

	if !event.Status.Terminal() {
		n.logger.DebugContext(ctx, "skipping non-terminal status", "order_id", event.OrderID, "status", event.Status)
		return nil
	}

	n.logger.InfoContext(ctx, "processing order status changed event", "order_id", event.OrderID, "status", event.Status)

	if err := n.sendEmail(ctx, n.compose(event)); err != nil {
		n.logger.ErrorContext(ctx, "failed to send payment email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send payment email: %w", err)
	}

	n.logger.InfoContext(ctx, "payment notification sent", "order_id", event.OrderID)
	return nil
}

func (n *PaymentNotifier) compose(event domain.OrderStatusChangedEvent) Email {
	if event.Status == domain.OrderStatusSucceeded {
		body := fmt.Sprintf("Order %s was paid: %s.", event.OrderID, event.GrandTotal.StringFixed(2))
		if event.PaidAt != nil {
			body = fmt.Sprintf("Order %s was paid at %s: %s.", event.OrderID, event.PaidAt.Format("2006-01-02 15:04:05 MST"), event.GrandTotal.StringFixed(2))
		}
		return Email{
			To:      n.recipient,
			Subject: "Payment received: " + event.OrderID,
			Body:    body,
		}
	}

	return Email{
		To:      n.recipient,
		Subject: "Payment failed: " + event.OrderID,
		Body:    fmt.Sprintf("Payment for order %s failed. The order total was %s.", event.OrderID, event.GrandTotal.StringFixed(2)),
	}
}

func (n *PaymentNotifier) sendEmail(ctx context.Context, email Email) error {
	data, err := json.Marshal(email)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
