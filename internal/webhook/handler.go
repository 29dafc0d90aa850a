package webhook

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/shopdash/internal/domain"
)

const callbackTokenHeader = "x-callback-token"

type notificationBody struct {
	Event string `json:"event"`
	Data  struct {
		ID               string          `json:"id"`
		Amount           decimal.Decimal `json:"amount"`
		PaymentRequestID string          `json:"payment_request_id"`
		ReferenceID      string          `json:"reference_id"`
		Status           string          `json:"status"`
	} `json:"data"`
}

type Handler struct {
	reconciler *Reconciler
	token      string
	received   metric.Int64Counter
	logger     *slog.Logger
}

// NewHandler serves gateway callbacks. When token is non-empty every
// callback must carry it in the x-callback-token header.
func NewHandler(reconciler *Reconciler, token string, logger *slog.Logger) (*Handler, error) {
	received, err := otel.Meter("shopdash/webhook").Int64Counter("shop.webhooks.received",
		metric.WithDescription("Payment gateway callbacks, by outcome"))
	if err != nil {
		return nil, err
	}

	return &Handler{
		reconciler: reconciler,
		token:      token,
		received:   received,
		logger:     logger,
	}, nil
}

func (h *Handler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.reply(w, r, http.StatusBadRequest, "rejected", map[string]string{"error": "Method not allowed"})
		return
	}

	if h.token != "" {
		got := r.Header.Get(callbackTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			h.logger.WarnContext(r.Context(), "rejected callback with invalid token")
			h.reply(w, r, http.StatusUnauthorized, "unauthorized", map[string]string{"error": "invalid callback token"})
			return
		}
	}

	var body notificationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.reply(w, r, http.StatusBadRequest, "rejected", map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.reconciler.Reconcile(r.Context(), Notification{
		ReferenceID: body.Data.ReferenceID,
		Status:      domain.OrderStatus(body.Data.Status),
		Amount:      body.Data.Amount,
		PaymentID:   body.Data.ID,
	})

	var verr *domain.ValidationError
	switch {
	case err == nil:
		outcome := "duplicate"
		if result.Changed {
			outcome = "applied"
		}
		h.reply(w, r, http.StatusOK, outcome, map[string]string{"status": "ok"})
	case errors.As(err, &verr):
		h.reply(w, r, http.StatusBadRequest, "rejected", map[string]any{"error": "validation failed", "fields": verr.Fields})
	case errors.Is(err, domain.ErrNotFound):
		h.reply(w, r, http.StatusNotFound, "not_found", map[string]string{"error": "Order not found"})
	default:
		h.logger.ErrorContext(r.Context(), "failed to reconcile payment notification",
			"error", err, "order_id", body.Data.ReferenceID, "event", body.Event)
		h.reply(w, r, http.StatusInternalServerError, "error", map[string]string{"error": "internal server error"})
	}
}

func (h *Handler) reply(w http.ResponseWriter, r *http.Request, status int, outcome string, data any) {
	h.received.Add(r.Context(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
