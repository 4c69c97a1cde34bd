package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/order-saga/internal/apperr"
	"github.com/example/order-saga/internal/events"
	"github.com/example/order-saga/internal/infrastructure/store"
)

// IndexName is the index that lists every order id.
const IndexName = "orders"

// IndexAttempts bounds the index update made by every Create. All order
// creation funnels through the one index record, so it gets a larger budget
// than per-key writes.
const IndexAttempts = 4 * store.DefaultMaxAttempts

type Status string

// Known statuses. UpdateStatus accepts any non-empty value.
const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

var (
	ErrOrderNotFound   = apperr.NotFound("Order not found")
	ErrMissingCustomer = apperr.Validation("Missing required field: customer_id")
	ErrEmptyOrder      = apperr.Validation("Order must have at least one item")
	ErrStatusRequired  = apperr.Validation("Status is required")
)

type Order struct {
	OrderID     string            `json:"order_id"`
	CustomerID  string            `json:"customer_id"`
	Items       []events.LineItem `json:"items"`
	Status      Status            `json:"status"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Manager owns order records and announces their lifecycle on order-events.
type Manager struct {
	store     store.StateStore
	index     *store.Index
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

func NewManager(s store.StateStore, publisher events.Publisher, logger *zap.Logger) *Manager {
	return &Manager{
		store:     s,
		index:     store.NewIndex(s, IndexName, store.WithMaxAttempts(IndexAttempts)),
		publisher: publisher,
		logger:    logger.Named("orders"),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// Create validates and persists a pending order, then publishes order_created.
// A publish failure is logged; the order stays persisted.
func (m *Manager) Create(ctx context.Context, customerID string, items []events.LineItem) (*Order, error) {
	if customerID == "" {
		return nil, ErrMissingCustomer
	}
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	total := decimal.Zero
	for i, item := range items {
		if err := validateItem(i, item); err != nil {
			return nil, err
		}
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	now := m.now().UTC()
	o := &Order{
		OrderID:     m.newID(),
		CustomerID:  customerID,
		Items:       items,
		Status:      StatusPending,
		TotalAmount: total,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := m.index.Add(ctx, o.OrderID); err != nil {
		return nil, err
	}
	if _, err := m.store.CompareAndSwap(ctx, store.OrderKey(o.OrderID), o, 0); err != nil {
		return nil, fmt.Errorf("failed to save order: %w", err)
	}

	event := events.OrderCreated{
		EventType:   events.TypeOrderCreated,
		OrderID:     o.OrderID,
		CustomerID:  o.CustomerID,
		Items:       o.Items,
		TotalAmount: o.TotalAmount,
	}
	m.publish(ctx, o.OrderID, event)

	m.logger.Info("order created",
		zap.String("order_id", o.OrderID),
		zap.String("customer_id", o.CustomerID),
		zap.String("total_amount", o.TotalAmount.StringFixed(2)))
	return o, nil
}

func (m *Manager) Get(ctx context.Context, orderID string) (*Order, error) {
	o, _, err := m.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// UpdateStatus overwrites the status of an existing order and publishes
// order_status_updated. The value is not checked against a state machine.
func (m *Manager) UpdateStatus(ctx context.Context, orderID string, status Status) (*Order, error) {
	if status == "" {
		return nil, ErrStatusRequired
	}

	key := store.OrderKey(orderID)
	for attempt := 0; attempt < store.DefaultMaxAttempts; attempt++ {
		o, version, err := m.load(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o == nil {
			return nil, ErrOrderNotFound
		}

		o.Status = status
		o.UpdatedAt = m.now().UTC()

		_, err = m.store.CompareAndSwap(ctx, key, o, version)
		if errors.Is(err, store.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update order: %w", err)
		}

		m.publish(ctx, orderID, events.OrderStatusUpdated{
			EventType:  events.TypeOrderStatusUpdated,
			OrderID:    orderID,
			CustomerID: o.CustomerID,
			Status:     string(status),
		})
		m.logger.Info("order status updated",
			zap.String("order_id", orderID),
			zap.String("status", string(status)))
		return o, nil
	}
	return nil, fmt.Errorf("update order %s: %w", orderID, store.ErrContention)
}

// List returns every order, ordered by id.
func (m *Manager) List(ctx context.Context) ([]Order, error) {
	ids, err := m.index.Members(ctx)
	if err != nil {
		return nil, err
	}
	orders := make([]Order, 0, len(ids))
	for _, id := range ids {
		o, _, err := m.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if o != nil {
			orders = append(orders, *o)
		}
	}
	return orders, nil
}

func (m *Manager) publish(ctx context.Context, orderID string, event events.Event) {
	if err := m.publisher.Publish(ctx, events.TopicOrderEvents, orderID, event); err != nil {
		m.logger.Error("failed to publish event",
			zap.String("order_id", orderID),
			zap.String("event_type", event.Type()),
			zap.Error(err))
	}
}

func (m *Manager) load(ctx context.Context, orderID string) (*Order, int64, error) {
	item, err := m.store.Get(ctx, store.OrderKey(orderID))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read order %s: %w", orderID, err)
	}
	if item == nil {
		return nil, 0, nil
	}
	var o Order
	if err := item.Decode(&o); err != nil {
		return nil, 0, fmt.Errorf("failed to decode order %s: %w", orderID, err)
	}
	return &o, item.Version, nil
}

func validateItem(i int, item events.LineItem) error {
	switch {
	case item.ProductID == "":
		return apperr.Validation(fmt.Sprintf("item %d: product_id is required", i))
	case item.Quantity <= 0:
		return apperr.Validation(fmt.Sprintf("item %d: quantity must be positive", i))
	case item.Price.IsNegative():
		return apperr.Validation(fmt.Sprintf("item %d: price must not be negative", i))
	}
	return nil
}
