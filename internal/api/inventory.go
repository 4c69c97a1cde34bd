package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/order-saga/internal/domain/inventory"
	"github.com/example/order-saga/internal/events"
	"github.com/example/order-saga/internal/saga"
)

type InventoryHandlers struct {
	ledger       *inventory.Ledger
	orchestrator *saga.Orchestrator
	logger       *zap.Logger
}

func NewInventoryHandlers(ledger *inventory.Ledger, orchestrator *saga.Orchestrator, logger *zap.Logger) *InventoryHandlers {
	return &InventoryHandlers{
		ledger:       ledger,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

func (h *InventoryHandlers) Register(r chi.Router, operator func(http.Handler) http.Handler) {
	r.Route("/inventory", func(r chi.Router) {
		r.With(operator).Post("/", h.AddInventory)
		r.Get("/", h.ListInventory)
		r.Get("/{productID}", h.GetInventory)
		r.With(operator).Delete("/{productID}", h.RemoveInventory)
		r.Post("/{productID}/reserve", h.Reserve)
	})
}

type addInventoryRequest struct {
	ProductID *string          `json:"product_id"`
	Quantity  *int             `json:"quantity"`
	Name      string           `json:"name"`
	Price     *decimal.Decimal `json:"price"`
}

func (h *InventoryHandlers) AddInventory(w http.ResponseWriter, r *http.Request) {
	var req addInventoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	switch {
	case req.ProductID == nil:
		respondError(w, http.StatusBadRequest, "Missing required field: product_id")
		return
	case req.Quantity == nil:
		respondError(w, http.StatusBadRequest, "Missing required field: quantity")
		return
	}

	rec, err := h.ledger.Add(r.Context(), *req.ProductID, *req.Quantity, inventory.Metadata{
		Name:      req.Name,
		UnitPrice: req.Price,
	})
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

func (h *InventoryHandlers) ListInventory(w http.ResponseWriter, r *http.Request) {
	records, err := h.ledger.List(r.Context())
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"inventory": records,
		"total":     len(records),
	})
}

func (h *InventoryHandlers) GetInventory(w http.ResponseWriter, r *http.Request) {
	rec, err := h.ledger.Get(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "Product not found")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (h *InventoryHandlers) RemoveInventory(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Remove(r.Context(), chi.URLParam(r, "productID")); err != nil {
		respondErr(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reserveRequest struct {
	Quantity int    `json:"quantity"`
	OrderID  string `json:"order_id"`
}

func (h *InventoryHandlers) Reserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.orchestrator.ReserveItem(r.Context(), req.OrderID, chi.URLParam(r, "productID"), req.Quantity)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	switch {
	case res.Status == events.ItemReservationFailed:
		respondError(w, http.StatusInternalServerError, "Failed to reserve inventory")
	case !res.Found:
		respondError(w, http.StatusNotFound, "Product not found")
	case res.Status == events.ItemInsufficient:
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":     "Insufficient inventory",
			"available": res.AvailableQuantity,
		})
	default:
		respondJSON(w, http.StatusOK, map[string]any{
			"message":             "Inventory reserved successfully",
			"reservation":         res.Reservation,
			"remaining_inventory": res.RemainingQuantity,
		})
	}
}
