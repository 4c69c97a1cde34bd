package events

import (
	"context"

	"github.com/shopspring/decimal"
)

// Topics
const (
	TopicOrderEvents     = "order-events"
	TopicInventoryEvents = "inventory-events"
)

// PubSubName is the pub/sub component every subscription is declared against.
const PubSubName = "redis-pubsub"

// Ingress routes the sidecar delivers subscribed events to.
const (
	RouteOrderEvent     = "/handle-order-event"
	RouteInventoryEvent = "/handle-inventory-event"
)

// Event types carried in the event_type field.
const (
	TypeOrderCreated       = "order_created"
	TypeOrderStatusUpdated = "order_status_updated"
	TypeInventoryProcessed = "inventory_processed"
)

// ItemStatus is the per-line outcome of a reservation attempt.
type ItemStatus string

const (
	ItemReserved          ItemStatus = "reserved"
	ItemInsufficient      ItemStatus = "insufficient"
	ItemReservationFailed ItemStatus = "reservation_failed"
)

// Event is anything that can be published on the bus.
type Event interface {
	Type() string
}

// Publisher is the publish side of the event bus. Delivery is at-least-once
// and unordered; Publish returning nil only means the bus accepted the event.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event Event) error
}

type LineItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderCreated struct {
	EventType   string          `json:"event_type"`
	OrderID     string          `json:"order_id"`
	CustomerID  string          `json:"customer_id"`
	Items       []LineItem      `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

func (OrderCreated) Type() string { return TypeOrderCreated }

type OrderStatusUpdated struct {
	EventType  string `json:"event_type"`
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	Status     string `json:"status"`
}

func (OrderStatusUpdated) Type() string { return TypeOrderStatusUpdated }

// ItemOutcome reports what happened to one product of an order.
// ReservedQuantity and RemainingQuantity are set for reserved items,
// AvailableQuantity for insufficient ones.
type ItemOutcome struct {
	ProductID         string     `json:"product_id"`
	Status            ItemStatus `json:"status"`
	ReservedQuantity  int        `json:"reserved_quantity"`
	RemainingQuantity int        `json:"remaining_quantity"`
	AvailableQuantity int        `json:"available_quantity"`
}

type InventoryProcessed struct {
	EventType        string        `json:"event_type"`
	OrderID          string        `json:"order_id"`
	CustomerID       string        `json:"customer_id"`
	InventoryStatus  []ItemOutcome `json:"inventory_status"`
	AllItemsReserved bool          `json:"all_items_reserved"`
}

func (InventoryProcessed) Type() string { return TypeInventoryProcessed }
