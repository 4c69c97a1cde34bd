package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/order-saga/internal/infrastructure/store"
)

// ErrReservationExists is returned when an audit record for the same order
// and product was already written.
var ErrReservationExists = errors.New("reservation already recorded")

// Reservation is the audit record of one ledger decrement made for an order.
type Reservation struct {
	OrderID    string    `json:"order_id"`
	ProductID  string    `json:"product_id"`
	Quantity   int       `json:"quantity"`
	ReservedAt time.Time `json:"reserved_at"`
}

type Reservations struct {
	store store.StateStore
}

func NewReservations(s store.StateStore) *Reservations {
	return &Reservations{store: s}
}

// Create writes r once; a second write for the same order and product fails
// with ErrReservationExists.
func (r *Reservations) Create(ctx context.Context, res Reservation) error {
	key := store.ReservationKey(res.OrderID, res.ProductID)
	_, err := r.store.CompareAndSwap(ctx, key, res, 0)
	if errors.Is(err, store.ErrVersionConflict) {
		return ErrReservationExists
	}
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// Get returns the reservation for orderID and productID, or nil.
func (r *Reservations) Get(ctx context.Context, orderID, productID string) (*Reservation, error) {
	key := store.ReservationKey(orderID, productID)
	item, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if item == nil {
		return nil, nil
	}
	var res Reservation
	if err := item.Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return &res, nil
}
