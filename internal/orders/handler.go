package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/shopdash/internal/domain"
	"github.com/joao-fontenele/shopdash/internal/pricing"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

type createOrderRequest struct {
	Items []pricing.Line `json:"items"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.CreateOrder(r.Context(), req.Items)
	if err != nil {
		h.writeOrderError(w, r, result, err, "failed to create order")
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) HandleRequestPayment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	result, err := h.service.RequestPayment(r.Context(), id)
	if err != nil {
		h.writeOrderError(w, r, result, err, "failed to request payment")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.writeOrderError(w, r, nil, err, "failed to get order")
		return
	}

	h.logger.InfoContext(r.Context(), "order retrieved", "order_id", order.ID)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context())
	if err != nil {
		h.writeOrderError(w, r, nil, err, "failed to list orders")
		return
	}

	h.logger.InfoContext(r.Context(), "orders listed", "count", len(orders))
	h.writeJSON(w, http.StatusOK, orders)
}

type gatewayFailureResponse struct {
	Error    string `json:"error"`
	OrderID  string `json:"order_id"`
	RetryURL string `json:"retry_url"`
}

func (h *Handler) writeOrderError(w http.ResponseWriter, r *http.Request, result *CreateOrderResult, err error, logMsg string) {
	var (
		verr *domain.ValidationError
		gerr *domain.PaymentGatewayError
	)
	switch {
	case errors.As(err, &verr):
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": verr.Fields})
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, domain.ErrOrderFinalized):
		h.writeError(w, http.StatusConflict, "order already finalized")
	case errors.As(err, &gerr) && result != nil && result.Order != nil:
		h.writeJSON(w, http.StatusBadGateway, gatewayFailureResponse{
			Error:    "payment gateway unavailable",
			OrderID:  result.Order.ID,
			RetryURL: "/orders/" + result.Order.ID + "/payment",
		})
	case errors.As(err, &gerr):
		h.writeError(w, http.StatusBadGateway, "payment gateway unavailable")
	default:
		h.logger.ErrorContext(r.Context(), logMsg, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
