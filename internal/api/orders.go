package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/order-saga/internal/domain/order"
	"github.com/example/order-saga/internal/events"
)

type OrderHandlers struct {
	manager *order.Manager
	logger  *zap.Logger
}

func NewOrderHandlers(manager *order.Manager, logger *zap.Logger) *OrderHandlers {
	return &OrderHandlers{manager: manager, logger: logger}
}

func (h *OrderHandlers) Register(r chi.Router, operator func(http.Handler) http.Handler) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Get("/", h.ListOrders)
		r.Get("/{orderID}", h.GetOrder)
		r.With(operator).Put("/{orderID}/status", h.UpdateStatus)
	})
}

type createOrderRequest struct {
	CustomerID string            `json:"customer_id"`
	Items      []events.LineItem `json:"items"`
}

func (h *OrderHandlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	o, err := h.manager.Create(r.Context(), req.CustomerID, req.Items)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

func (h *OrderHandlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.manager.List(r.Context())
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"orders": orders,
		"total":  len(orders),
	})
}

func (h *OrderHandlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.manager.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *OrderHandlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status order.Status `json:"status"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	o, err := h.manager.UpdateStatus(r.Context(), chi.URLParam(r, "orderID"), req.Status)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}
