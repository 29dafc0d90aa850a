package orders

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joao-fontenele/shopdash/internal/domain"
)

func newTestMux(t *testing.T) (*http.ServeMux, serviceDeps) {
	t.Helper()
	svc, deps := newTestService(t)
	h := NewHandler(svc, discardLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", h.HandleCreate)
	mux.HandleFunc("GET /orders", h.HandleList)
	mux.HandleFunc("GET /orders/{id}", h.HandleGet)
	mux.HandleFunc("POST /orders/{id}/payment", h.HandleRequestPayment)
	return mux, deps
}

func TestHandleCreate(t *testing.T) {
	mux, _ := newTestMux(t)

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"items":[{"product_id":"p1","quantity":2}]}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var body struct {
		Order struct {
			ID         string `json:"id"`
			Status     string `json:"status"`
			GrandTotal string `json:"grand_total"`
		} `json:"order"`
		QRCode string `json:"qr_code"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Order.GrandTotal != "110000" {
		t.Errorf("grand_total = %q, want 110000", body.Order.GrandTotal)
	}
	if body.Order.Status != string(domain.OrderStatusProcessing) {
		t.Errorf("status = %q, want PROCESSING", body.Order.Status)
	}
	if body.QRCode == "" {
		t.Error("expected qr_code in response")
	}

	get := httptest.NewRecorder()
	mux.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/orders/"+body.Order.ID, nil))
	if get.Code != http.StatusOK {
		t.Errorf("GET status = %d, want %d", get.Code, http.StatusOK)
	}
}

func TestHandleCreateErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		gatewayErr error
		wantStatus int
		wantKey    string
	}{
		{name: "malformed body", body: `{`, wantStatus: http.StatusBadRequest, wantKey: "error"},
		{name: "unknown product", body: `{"items":[{"product_id":"ghost","quantity":1}]}`, wantStatus: http.StatusBadRequest, wantKey: "fields"},
		{
			name:       "gateway failure",
			body:       `{"items":[{"product_id":"p1","quantity":1}]}`,
			gatewayErr: &domain.PaymentGatewayError{StatusCode: 500, Code: "SERVER_ERROR"},
			wantStatus: http.StatusBadGateway,
			wantKey:    "order_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, deps := newTestMux(t)
			deps.gateway.err = tt.gatewayErr

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(tt.body)))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			var body map[string]any
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if _, ok := body[tt.wantKey]; !ok {
				t.Errorf("response %v missing %q", body, tt.wantKey)
			}
		})
	}
}

func TestHandleGetNotFound(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleRequestPaymentConflict(t *testing.T) {
	mux, deps := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"items":[{"product_id":"p1","quantity":1}]}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	deps.repo.setStatus("order-1", domain.OrderStatusFailed)

	retry := httptest.NewRecorder()
	mux.ServeHTTP(retry, httptest.NewRequest(http.MethodPost, "/orders/order-1/payment", nil))
	if retry.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", retry.Code, http.StatusConflict)
	}
}

func TestHandleList(t *testing.T) {
	mux, _ := newTestMux(t)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"items":[{"product_id":"p2","quantity":1}]}`)))
		if rec.Code != http.StatusCreated {
			t.Fatalf("create status = %d", rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var orders []domain.Order
	if err := json.NewDecoder(rec.Body).Decode(&orders); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(orders) != 2 {
		t.Errorf("orders = %d, want 2", len(orders))
	}
}
