package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/order-saga/internal/notification"
)

type NotificationHandlers struct {
	dispatcher *notification.Dispatcher
	logger     *zap.Logger
}

func NewNotificationHandlers(dispatcher *notification.Dispatcher, logger *zap.Logger) *NotificationHandlers {
	return &NotificationHandlers{dispatcher: dispatcher, logger: logger}
}

func (h *NotificationHandlers) Register(r chi.Router, operator func(http.Handler) http.Handler) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.ListNotifications)
		r.With(operator).Post("/", h.SendNotification)
		r.Get("/customer/{customerID}", h.CustomerNotifications)
	})
}

func (h *NotificationHandlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	all := h.dispatcher.List()
	respondJSON(w, http.StatusOK, map[string]any{
		"notifications": all,
		"total":         len(all),
	})
}

type sendNotificationRequest struct {
	Recipient   string         `json:"recipient"`
	Message     string         `json:"message"`
	Type        string         `json:"type"`
	RelatedData map[string]any `json:"related_data"`
}

func (h *NotificationHandlers) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req sendNotificationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	n, err := h.dispatcher.Create(r.Context(), req.Recipient, req.Message, req.Type, req.RelatedData)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, n)
}

func (h *NotificationHandlers) CustomerNotifications(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	found := h.dispatcher.ListByRecipient(customerID)
	respondJSON(w, http.StatusOK, map[string]any{
		"customer_id":   customerID,
		"notifications": found,
		"total":         len(found),
	})
}
