package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/order-saga/internal/apperr"
	"github.com/example/order-saga/internal/events"
	"github.com/example/order-saga/internal/infrastructure/store"
	"github.com/example/order-saga/internal/observability"
)

// UnknownRecipient addresses notifications for events without a customer id.
const UnknownRecipient = "unknown_customer"

const statusSent = "sent"

type Notification struct {
	ID          int64          `json:"id"`
	Recipient   string         `json:"recipient"`
	Message     string         `json:"message"`
	Type        string         `json:"type"`
	RelatedData map[string]any `json:"related_data"`
	SentAt      time.Time      `json:"sent_at"`
	Status      string         `json:"status"`
}

// Dispatcher turns order and inventory events into customer notifications.
// It never writes back to order or inventory state.
type Dispatcher struct {
	mu            sync.Mutex
	notifications []Notification
	seq           Sequence

	store   store.StateStore
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewDispatcher(s store.StateStore, seq Sequence, metrics *observability.Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		seq:     seq,
		store:   s,
		metrics: metrics,
		logger:  logger.Named("dispatcher"),
		now:     time.Now,
	}
}

// Bindings declares the topics the dispatcher consumes.
func (d *Dispatcher) Bindings() []events.Binding {
	return []events.Binding{
		{
			Subscription: events.Subscription{
				PubSubName: events.PubSubName,
				Topic:      events.TopicOrderEvents,
				Route:      events.RouteOrderEvent,
			},
			Handler: d.HandleOrderEvent,
		},
		{
			Subscription: events.Subscription{
				PubSubName: events.PubSubName,
				Topic:      events.TopicInventoryEvents,
				Route:      events.RouteInventoryEvent,
			},
			Handler: d.HandleInventoryEvent,
		},
	}
}

func (d *Dispatcher) HandleOrderEvent(ctx context.Context, msg events.Message) error {
	switch msg.Type {
	case events.TypeOrderCreated:
		var ev events.OrderCreated
		if err := msg.Into(&ev); err != nil {
			return err
		}
		_, err := d.Create(ctx, recipient(ev.CustomerID), orderCreatedMessage(ev), TypeOrderConfirmation, map[string]any{
			"order_id":     ev.OrderID,
			"total_amount": ev.TotalAmount,
		})
		return err

	case events.TypeOrderStatusUpdated:
		var ev events.OrderStatusUpdated
		if err := msg.Into(&ev); err != nil {
			return err
		}
		_, err := d.Create(ctx, recipient(ev.CustomerID), statusUpdatedMessage(ev), TypeOrderUpdate, map[string]any{
			"order_id": ev.OrderID,
			"status":   ev.Status,
		})
		return err
	}

	d.logger.Debug("ignoring order event", zap.String("event_type", msg.Type))
	return nil
}

func (d *Dispatcher) HandleInventoryEvent(ctx context.Context, msg events.Message) error {
	if msg.Type != events.TypeInventoryProcessed {
		d.logger.Debug("ignoring inventory event", zap.String("event_type", msg.Type))
		return nil
	}

	var ev events.InventoryProcessed
	if err := msg.Into(&ev); err != nil {
		return err
	}
	typ, message := inventoryMessage(ev)
	_, err := d.Create(ctx, recipient(ev.CustomerID), message, typ, map[string]any{
		"order_id":         ev.OrderID,
		"inventory_status": ev.InventoryStatus,
	})
	return err
}

// Create records a notification under the next sequence id. Persisting it to
// the state store is best effort.
func (d *Dispatcher) Create(ctx context.Context, recipient, message, typ string, related map[string]any) (*Notification, error) {
	switch {
	case recipient == "":
		return nil, apperr.Validation("Missing required field: recipient")
	case message == "":
		return nil, apperr.Validation("Missing required field: message")
	case typ == "":
		return nil, apperr.Validation("Missing required field: type")
	}
	if related == nil {
		related = map[string]any{}
	}

	d.mu.Lock()
	id, err := d.seq.Next(ctx)
	if err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("failed to allocate notification id: %w", err)
	}
	n := Notification{
		ID:          id,
		Recipient:   recipient,
		Message:     message,
		Type:        typ,
		RelatedData: related,
		SentAt:      d.now().UTC(),
		Status:      statusSent,
	}
	d.notifications = append(d.notifications, n)
	d.mu.Unlock()

	if err := d.store.Put(ctx, store.NotificationKey(id), n); err != nil {
		d.logger.Error("failed to save notification", zap.Int64("id", id), zap.Error(err))
	}
	d.metrics.NotificationCreated(typ)

	d.logger.Info("notification sent",
		zap.Int64("id", id),
		zap.String("recipient", recipient),
		zap.String("type", typ),
		zap.String("message", message))
	return &n, nil
}

// List returns every notification in creation order.
func (d *Dispatcher) List() []Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Notification, len(d.notifications))
	copy(out, d.notifications)
	return out
}

func (d *Dispatcher) ListByRecipient(recipient string) []Notification {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := []Notification{}
	for _, n := range d.notifications {
		if n.Recipient == recipient {
			out = append(out, n)
		}
	}
	return out
}

func recipient(customerID string) string {
	if customerID == "" {
		return UnknownRecipient
	}
	return customerID
}
