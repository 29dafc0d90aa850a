package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/shopdash/internal/domain"
	"github.com/joao-fontenele/shopdash/internal/messaging"
	"github.com/joao-fontenele/shopdash/internal/webhook"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func statusMessage(t *testing.T, status domain.OrderStatus) messaging.Message {
	t.Helper()
	paidAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	data, err := json.Marshal(domain.OrderStatusChangedEvent{
		OrderID:    "o1",
		Status:     status,
		GrandTotal: decimal.NewFromInt(110000),
		PaidAt:     &paidAt,
	})
	if err != nil {
		t.Fatal(err)
	}
	return messaging.Message{Key: "o1", EventType: webhook.EventTypeOrderStatusChanged, Value: data}
}

func TestPaymentNotifierHandle(t *testing.T) {
	tests := []struct {
		name        string
		msg         func(t *testing.T) messaging.Message
		wantSent    bool
		wantSubject string
	}{
		{
			name:        "succeeded",
			msg:         func(t *testing.T) messaging.Message { return statusMessage(t, domain.OrderStatusSucceeded) },
			wantSent:    true,
			wantSubject: "Payment received: o1",
		},
		{
			name:        "failed",
			msg:         func(t *testing.T) messaging.Message { return statusMessage(t, domain.OrderStatusFailed) },
			wantSent:    true,
			wantSubject: "Payment failed: o1",
		},
		{
			name: "non-terminal",
			msg:  func(t *testing.T) messaging.Message { return statusMessage(t, domain.OrderStatusProcessing) },
		},
		{
			name: "other event type",
			msg: func(t *testing.T) messaging.Message {
				m := statusMessage(t, domain.OrderStatusSucceeded)
				m.EventType = "order.created"
				return m
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []Email
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/send" {
					t.Errorf("path = %s, want /send", r.URL.Path)
				}
				var e Email
				if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
					t.Errorf("decode email: %v", err)
				}
				got = append(got, e)
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			n := NewPaymentNotifier(srv.URL+"/", "ops@example.com", srv.Client(), discardLogger())
			if err := n.Handle(context.Background(), tt.msg(t)); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if !tt.wantSent {
				if len(got) != 0 {
					t.Errorf("emails sent = %d, want 0", len(got))
				}
				return
			}
			if len(got) != 1 {
				t.Fatalf("emails sent = %d, want 1", len(got))
			}
			if got[0].To != "ops@example.com" || got[0].Subject != tt.wantSubject {
				t.Errorf("email = %+v", got[0])
			}
			if !strings.Contains(got[0].Body, "110000.00") {
				t.Errorf("body = %q, want grand total", got[0].Body)
			}
		})
	}
}

func TestPaymentNotifierEmailServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := NewPaymentNotifier(srv.URL, "ops@example.com", srv.Client(), discardLogger())
	if err := n.Handle(context.Background(), statusMessage(t, domain.OrderStatusSucceeded)); err == nil {
		t.Fatal("expected error when the email service fails")
	}
}

func TestPaymentNotifierMalformedEvent(t *testing.T) {
	n := NewPaymentNotifier("http://unused", "ops@example.com", http.DefaultClient, discardLogger())
	msg := messaging.Message{EventType: webhook.EventTypeOrderStatusChanged, Value: []byte("{")}
	if err := n.Handle(context.Background(), msg); err == nil {
		t.Fatal("expected error for malformed event")
	}
}

func TestSinkHandler(t *testing.T) {
	h := NewSinkHandler(discardLogger())

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "valid", body: `{"to":"ops@example.com","subject":"hi","body":"there"}`, wantStatus: http.StatusOK},
		{name: "bad recipient", body: `{"to":"nobody","subject":"hi"}`, wantStatus: http.StatusBadRequest},
		{name: "malformed", body: `{`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.HandleSend(rec, httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(tt.body)))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
