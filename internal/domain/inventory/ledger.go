package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/order-saga/internal/apperr"
	"github.com/example/order-saga/internal/infrastructure/store"
)

// IndexName is the index that lists every product with a stock record.
const IndexName = "inventory"

var (
	ErrInvalidQuantity = apperr.Validation("Invalid quantity")
	ErrInvalidProduct  = apperr.Validation("Product ID is required")
)

var tracer = otel.Tracer("github.com/example/order-saga/internal/domain/inventory")

// StockRecord is the available quantity of one product.
type StockRecord struct {
	ProductID   string          `json:"product_id"`
	Quantity    int             `json:"quantity"`
	Name        string          `json:"name"`
	UnitPrice   decimal.Decimal `json:"price"`
	LastUpdated time.Time       `json:"last_updated"`
}

// Metadata carries the descriptive fields supplied with a stock addition.
// Zero values keep what the record already has.
type Metadata struct {
	Name      string
	UnitPrice *decimal.Decimal
}

type ReserveOutcome string

const (
	Reserved     ReserveOutcome = "reserved"
	Insufficient ReserveOutcome = "insufficient"
	NotFound     ReserveOutcome = "not_found"
)

// ReserveResult is the business answer of TryReserve. Quantity is the
// remaining stock for Reserved and the available stock for Insufficient.
type ReserveResult struct {
	Outcome  ReserveOutcome
	Quantity int
}

type Ledger struct {
	store       store.StateStore
	index       *store.Index
	logger      *zap.Logger
	maxAttempts int
	now         func() time.Time
}

func NewLedger(s store.StateStore, logger *zap.Logger, maxAttempts int) *Ledger {
	if maxAttempts <= 0 {
		maxAttempts = store.DefaultMaxAttempts
	}
	return &Ledger{
		store:       s,
		index:       store.NewIndex(s, IndexName),
		logger:      logger.Named("ledger"),
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Get returns the stock record for productID, or nil when there is none.
func (l *Ledger) Get(ctx context.Context, productID string) (*StockRecord, error) {
	rec, _, err := l.load(ctx, productID)
	return rec, err
}

// Add creates the record or increments its quantity by delta.
func (l *Ledger) Add(ctx context.Context, productID string, delta int, meta Metadata) (*StockRecord, error) {
	if productID == "" {
		return nil, ErrInvalidProduct
	}
	if delta <= 0 {
		return nil, ErrInvalidQuantity
	}

	// Index first: a dangling member is skipped by List, a missing one hides stock.
	if err := l.index.Add(ctx, productID); err != nil {
		return nil, err
	}

	key := store.InventoryKey(productID)
	for attempt := 0; attempt < l.maxAttempts; attempt++ {
		rec, version, err := l.load(ctx, productID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			rec = &StockRecord{
				ProductID: productID,
				Name:      "Product " + productID,
				UnitPrice: decimal.Zero,
			}
		}
		rec.Quantity += delta
		if meta.Name != "" {
			rec.Name = meta.Name
		}
		if meta.UnitPrice != nil {
			rec.UnitPrice = *meta.UnitPrice
		}
		rec.LastUpdated = l.now().UTC()

		_, err = l.store.CompareAndSwap(ctx, key, rec, version)
		if err == nil {
			l.logger.Info("inventory updated",
				zap.String("product_id", productID),
				zap.Int("quantity", rec.Quantity))
			return rec, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return nil, fmt.Errorf("failed to save inventory %s: %w", productID, err)
		}
	}
	return nil, fmt.Errorf("add stock %s: %w", productID, store.ErrContention)
}

// TryReserve decrements the stock of productID by qty if enough is available.
// Insufficient stock and unknown products are outcomes, not errors.
func (l *Ledger) TryReserve(ctx context.Context, productID string, qty int) (ReserveResult, error) {
	if productID == "" {
		return ReserveResult{}, ErrInvalidProduct
	}
	if qty <= 0 {
		return ReserveResult{}, ErrInvalidQuantity
	}

	ctx, span := tracer.Start(ctx, "inventory.TryReserve", trace.WithAttributes(
		attribute.String("product_id", productID),
		attribute.Int("quantity", qty),
	))
	defer span.End()

	result, err := l.reserve(ctx, productID, qty)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	span.SetAttributes(attribute.String("outcome", string(result.Outcome)))
	return result, nil
}

func (l *Ledger) reserve(ctx context.Context, productID string, qty int) (ReserveResult, error) {
	key := store.InventoryKey(productID)
	for attempt := 0; attempt < l.maxAttempts; attempt++ {
		rec, version, err := l.load(ctx, productID)
		if err != nil {
			return ReserveResult{}, err
		}
		if rec == nil {
			return ReserveResult{Outcome: NotFound}, nil
		}
		if rec.Quantity < qty {
			return ReserveResult{Outcome: Insufficient, Quantity: rec.Quantity}, nil
		}

		rec.Quantity -= qty
		rec.LastUpdated = l.now().UTC()

		_, err = l.store.CompareAndSwap(ctx, key, rec, version)
		if err == nil {
			return ReserveResult{Outcome: Reserved, Quantity: rec.Quantity}, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return ReserveResult{}, fmt.Errorf("failed to save inventory %s: %w", productID, err)
		}
		l.logger.Debug("concurrent update, re-reading stock",
			zap.String("product_id", productID),
			zap.Int("attempt", attempt+1))
	}
	return ReserveResult{}, fmt.Errorf("reserve %s: %w", productID, store.ErrContention)
}

// List returns every indexed stock record ordered by product id.
func (l *Ledger) List(ctx context.Context) ([]StockRecord, error) {
	ids, err := l.index.Members(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]StockRecord, 0, len(ids))
	for _, id := range ids {
		rec, _, err := l.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		records = append(records, *rec)
	}
	return records, nil
}

// Remove deletes the stock record and its index entry. Removing an unknown
// product succeeds.
func (l *Ledger) Remove(ctx context.Context, productID string) error {
	if productID == "" {
		return ErrInvalidProduct
	}
	if err := l.store.Delete(ctx, store.InventoryKey(productID)); err != nil {
		return fmt.Errorf("failed to delete inventory %s: %w", productID, err)
	}
	if err := l.index.Remove(ctx, productID); err != nil {
		return err
	}
	l.logger.Info("inventory removed", zap.String("product_id", productID))
	return nil
}

func (l *Ledger) load(ctx context.Context, productID string) (*StockRecord, int64, error) {
	item, err := l.store.Get(ctx, store.InventoryKey(productID))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read inventory %s: %w", productID, err)
	}
	if item == nil {
		return nil, 0, nil
	}
	var rec StockRecord
	if err := item.Decode(&rec); err != nil {
		return nil, 0, fmt.Errorf("failed to decode inventory %s: %w", productID, err)
	}
	return &rec, item.Version, nil
}
