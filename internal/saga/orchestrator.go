package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/order-saga/internal/apperr"
	"github.com/example/order-saga/internal/domain/inventory"
	"github.com/example/order-saga/internal/events"
	"github.com/example/order-saga/internal/observability"
)

var (
	ErrMissingOrder = apperr.Validation("Order ID is required")

	// ErrReservationMismatch is returned when an order line is reserved again
	// with a quantity other than the one already held.
	ErrReservationMismatch = apperr.Conflict("Reservation already exists with a different quantity")
)

var tracer = otel.Tracer("github.com/example/order-saga/internal/saga")

// ItemResult is the outcome of reserving one order line. Found is false when
// the product has no stock record; Reservation is set when stock is held.
type ItemResult struct {
	events.ItemOutcome
	Found       bool
	Reservation *inventory.Reservation
}

// Orchestrator reacts to order_created by reserving stock for every line and
// publishing a single inventory_processed outcome.
type Orchestrator struct {
	ledger       *inventory.Ledger
	reservations *inventory.Reservations
	publisher    events.Publisher
	metrics      *observability.Metrics
	logger       *zap.Logger
	now          func() time.Time
}

func NewOrchestrator(
	ledger *inventory.Ledger,
	reservations *inventory.Reservations,
	publisher events.Publisher,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		ledger:       ledger,
		reservations: reservations,
		publisher:    publisher,
		metrics:      metrics,
		logger:       logger.Named("orchestrator"),
		now:          time.Now,
	}
}

// Bindings declares the topics this orchestrator consumes.
func (o *Orchestrator) Bindings() []events.Binding {
	return []events.Binding{{
		Subscription: events.Subscription{
			PubSubName: events.PubSubName,
			Topic:      events.TopicOrderEvents,
			Route:      events.RouteOrderEvent,
		},
		Handler: o.HandleOrderEvent,
	}}
}

// HandleOrderEvent processes one order-events message. Only order_created is
// acted on. A returned error asks the bus to redeliver.
func (o *Orchestrator) HandleOrderEvent(ctx context.Context, msg events.Message) error {
	if msg.Type != events.TypeOrderCreated {
		o.logger.Debug("ignoring order event", zap.String("event_type", msg.Type))
		return nil
	}

	var ev events.OrderCreated
	if err := msg.Into(&ev); err != nil {
		return err
	}
	items, err := coalesce(ev)
	if err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "saga.ReserveOrder", trace.WithAttributes(
		attribute.String("order_id", ev.OrderID),
		attribute.Int("items", len(items)),
	))
	defer span.End()

	outcome := events.InventoryProcessed{
		EventType:        events.TypeInventoryProcessed,
		OrderID:          ev.OrderID,
		CustomerID:       ev.CustomerID,
		InventoryStatus:  make([]events.ItemOutcome, 0, len(items)),
		AllItemsReserved: true,
	}
	for _, item := range items {
		res, err := o.ReserveItem(ctx, ev.OrderID, item.ProductID, item.Quantity)
		if apperr.IsConflict(err) {
			// Redelivery cannot resolve this; fail the line instead.
			o.logger.Warn("order line conflicts with recorded reservation",
				zap.String("order_id", ev.OrderID),
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity))
			res = ItemResult{ItemOutcome: events.ItemOutcome{
				ProductID: item.ProductID,
				Status:    events.ItemReservationFailed,
			}}
			err = nil
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("reserve %s for order %s: %w", item.ProductID, ev.OrderID, err)
		}
		outcome.InventoryStatus = append(outcome.InventoryStatus, res.ItemOutcome)
		if res.Status != events.ItemReserved {
			outcome.AllItemsReserved = false
		}
	}
	span.SetAttributes(attribute.Bool("all_items_reserved", outcome.AllItemsReserved))

	if err := o.publisher.Publish(ctx, events.TopicInventoryEvents, ev.OrderID, outcome); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to publish inventory outcome for order %s: %w", ev.OrderID, err)
	}

	o.logger.Info("inventory processed",
		zap.String("order_id", ev.OrderID),
		zap.Bool("all_items_reserved", outcome.AllItemsReserved))
	return nil
}

// ReserveItem holds qty units of productID for orderID and writes the audit
// record. A line that was already reserved for the order with the same
// quantity is reported as reserved again without touching the ledger; a
// different quantity fails with ErrReservationMismatch.
func (o *Orchestrator) ReserveItem(ctx context.Context, orderID, productID string, qty int) (ItemResult, error) {
	switch {
	case qty <= 0:
		return ItemResult{}, inventory.ErrInvalidQuantity
	case orderID == "":
		return ItemResult{}, ErrMissingOrder
	case productID == "":
		return ItemResult{}, inventory.ErrInvalidProduct
	}

	existing, err := o.reservations.Get(ctx, orderID, productID)
	if err != nil {
		return ItemResult{}, err
	}
	if existing != nil {
		return o.alreadyReserved(ctx, existing, qty)
	}

	res, err := o.ledger.TryReserve(ctx, productID, qty)
	if err != nil {
		return ItemResult{}, err
	}
	o.metrics.ReservationOutcome(string(res.Outcome))

	switch res.Outcome {
	case inventory.NotFound:
		return ItemResult{ItemOutcome: events.ItemOutcome{
			ProductID: productID,
			Status:    events.ItemInsufficient,
		}}, nil
	case inventory.Insufficient:
		return ItemResult{Found: true, ItemOutcome: events.ItemOutcome{
			ProductID:         productID,
			Status:            events.ItemInsufficient,
			AvailableQuantity: res.Quantity,
		}}, nil
	}

	reservation := inventory.Reservation{
		OrderID:    orderID,
		ProductID:  productID,
		Quantity:   qty,
		ReservedAt: o.now().UTC(),
	}
	err = o.reservations.Create(ctx, reservation)
	switch {
	case errors.Is(err, inventory.ErrReservationExists):
		// A concurrent delivery of the same order won; give back our units.
		if _, err := o.ledger.Add(ctx, productID, qty, inventory.Metadata{}); err != nil {
			return ItemResult{}, fmt.Errorf("failed to release duplicate reservation: %w", err)
		}
		existing, err := o.reservations.Get(ctx, orderID, productID)
		if err != nil {
			return ItemResult{}, err
		}
		if existing == nil {
			return ItemResult{}, fmt.Errorf("reservation %s/%s disappeared", orderID, productID)
		}
		return o.alreadyReserved(ctx, existing, qty)
	case err != nil:
		o.logger.Error("stock decremented without reservation record",
			zap.String("order_id", orderID),
			zap.String("product_id", productID),
			zap.Int("quantity", qty),
			zap.Error(err))
		o.metrics.ReservationOutcome(string(events.ItemReservationFailed))
		return ItemResult{Found: true, ItemOutcome: events.ItemOutcome{
			ProductID: productID,
			Status:    events.ItemReservationFailed,
		}}, nil
	}

	o.logger.Info("inventory reserved",
		zap.String("order_id", orderID),
		zap.String("product_id", productID),
		zap.Int("quantity", qty),
		zap.Int("remaining", res.Quantity))
	return ItemResult{
		Found:       true,
		Reservation: &reservation,
		ItemOutcome: events.ItemOutcome{
			ProductID:         productID,
			Status:            events.ItemReserved,
			ReservedQuantity:  qty,
			RemainingQuantity: res.Quantity,
		},
	}, nil
}

func (o *Orchestrator) alreadyReserved(ctx context.Context, r *inventory.Reservation, qty int) (ItemResult, error) {
	if r.Quantity != qty {
		o.logger.Warn("reservation quantity mismatch",
			zap.String("order_id", r.OrderID),
			zap.String("product_id", r.ProductID),
			zap.Int("reserved", r.Quantity),
			zap.Int("requested", qty))
		return ItemResult{}, ErrReservationMismatch
	}
	rec, err := o.ledger.Get(ctx, r.ProductID)
	if err != nil {
		return ItemResult{}, err
	}
	remaining := 0
	if rec != nil {
		remaining = rec.Quantity
	}
	o.logger.Info("reservation already recorded",
		zap.String("order_id", r.OrderID),
		zap.String("product_id", r.ProductID))
	return ItemResult{
		Found:       true,
		Reservation: r,
		ItemOutcome: events.ItemOutcome{
			ProductID:         r.ProductID,
			Status:            events.ItemReserved,
			ReservedQuantity:  r.Quantity,
			RemainingQuantity: remaining,
		},
	}, nil
}

type line struct {
	ProductID string
	Quantity  int
}

// coalesce validates an order_created record and merges repeated product
// lines, keeping first-seen order.
func coalesce(ev events.OrderCreated) ([]line, error) {
	if ev.OrderID == "" {
		return nil, fmt.Errorf("%w: missing order_id", events.ErrMalformed)
	}

	var lines []line
	pos := make(map[string]int, len(ev.Items))
	for i, item := range ev.Items {
		if item.ProductID == "" || item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: invalid item %d", events.ErrMalformed, i)
		}
		if j, ok := pos[item.ProductID]; ok {
			lines[j].Quantity += item.Quantity
			continue
		}
		pos[item.ProductID] = len(lines)
		lines = append(lines, line{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines, nil
}
