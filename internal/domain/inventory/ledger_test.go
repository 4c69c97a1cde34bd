package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/order-saga/internal/apperr"
	"github.com/example/order-saga/internal/infrastructure/store"
	"github.com/example/order-saga/internal/infrastructure/store/mocks"
)

var fixedTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestLedger() (*Ledger, *mocks.MockStateStore) {
	s := mocks.NewMockStateStore()
	l := NewLedger(s, zap.NewNop(), 8)
	l.now = func() time.Time { return fixedTime }
	return l, s
}

// ============================================
// Add Tests
// ============================================

func TestLedger_Add_CreatesWithDefaults(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	rec, err := l.Add(ctx, "A", 10, Metadata{})

	require.NoError(t, err)
	assert.Equal(t, "A", rec.ProductID)
	assert.Equal(t, 10, rec.Quantity)
	assert.Equal(t, "Product A", rec.Name)
	assert.True(t, rec.UnitPrice.IsZero())
	assert.Equal(t, fixedTime, rec.LastUpdated)
}

func TestLedger_Add_Increments(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()
	price := decimal.RequireFromString("12.50")

	_, err := l.Add(ctx, "A", 10, Metadata{Name: "Widget", UnitPrice: &price})
	require.NoError(t, err)
	rec, err := l.Add(ctx, "A", 5, Metadata{})
	require.NoError(t, err)

	assert.Equal(t, 15, rec.Quantity)
	assert.Equal(t, "Widget", rec.Name)
	assert.True(t, price.Equal(rec.UnitPrice))
}

func TestLedger_Add_InvalidInput(t *testing.T) {
	tests := []struct {
		name      string
		productID string
		delta     int
		want      error
	}{
		{"zero delta", "A", 0, ErrInvalidQuantity},
		{"negative delta", "A", -3, ErrInvalidQuantity},
		{"missing product", "", 3, ErrInvalidProduct},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, s := newTestLedger()

			_, err := l.Add(context.Background(), tt.productID, tt.delta, Metadata{})

			assert.ErrorIs(t, err, tt.want)
			assert.True(t, apperr.IsValidation(err))
			assert.Empty(t, s.CASCalls)
		})
	}
}

func TestLedger_Add_RegistersInIndex(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	_, err := l.Add(ctx, "B", 1, Metadata{})
	require.NoError(t, err)
	_, err = l.Add(ctx, "A", 1, Metadata{})
	require.NoError(t, err)

	records, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "A", records[0].ProductID)
	assert.Equal(t, "B", records[1].ProductID)
}

// ============================================
// TryReserve Tests
// ============================================

func TestLedger_TryReserve_RoundTrip(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	_, err := l.Add(ctx, "A", 10, Metadata{})
	require.NoError(t, err)

	res, err := l.TryReserve(ctx, "A", 3)
	require.NoError(t, err)
	assert.Equal(t, ReserveResult{Outcome: Reserved, Quantity: 7}, res)

	res, err = l.TryReserve(ctx, "A", 8)
	require.NoError(t, err)
	assert.Equal(t, ReserveResult{Outcome: Insufficient, Quantity: 7}, res)

	rec, err := l.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 7, rec.Quantity)
}

func TestLedger_TryReserve_ExactQuantity(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()
	_, err := l.Add(ctx, "A", 4, Metadata{})
	require.NoError(t, err)

	res, err := l.TryReserve(ctx, "A", 4)

	require.NoError(t, err)
	assert.Equal(t, ReserveResult{Outcome: Reserved, Quantity: 0}, res)
}

func TestLedger_TryReserve_NotFound(t *testing.T) {
	l, s := newTestLedger()

	res, err := l.TryReserve(context.Background(), "missing", 1)

	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Outcome)
	assert.Empty(t, s.CASCalls)
}

func TestLedger_TryReserve_InvalidQuantity(t *testing.T) {
	l, s := newTestLedger()
	s.SetData(store.InventoryKey("A"), StockRecord{ProductID: "A", Quantity: 10})

	for _, qty := range []int{0, -1} {
		_, err := l.TryReserve(context.Background(), "A", qty)
		assert.ErrorIs(t, err, ErrInvalidQuantity)
	}
	assert.Empty(t, s.GetCalls)
}

func TestLedger_TryReserve_RetriesOnConflict(t *testing.T) {
	l, s := newTestLedger()
	ctx := context.Background()
	s.SetData(store.InventoryKey("A"), StockRecord{ProductID: "A", Quantity: 10})

	raced := false
	s.CASCallback = func(_ context.Context, key string, _ int64) {
		if !raced {
			raced = true
			s.SetData(key, StockRecord{ProductID: "A", Quantity: 4})
		}
	}

	res, err := l.TryReserve(ctx, "A", 3)

	require.NoError(t, err)
	assert.Equal(t, ReserveResult{Outcome: Reserved, Quantity: 1}, res)
	assert.Len(t, s.CASCalls, 2)
}

func TestLedger_TryReserve_ConflictThenInsufficient(t *testing.T) {
	l, s := newTestLedger()
	s.SetData(store.InventoryKey("A"), StockRecord{ProductID: "A", Quantity: 5})

	s.CASCallback = func(_ context.Context, key string, _ int64) {
		s.CASCallback = nil
		s.SetData(key, StockRecord{ProductID: "A", Quantity: 2})
	}

	res, err := l.TryReserve(context.Background(), "A", 3)

	require.NoError(t, err)
	assert.Equal(t, ReserveResult{Outcome: Insufficient, Quantity: 2}, res)
}

func TestLedger_TryReserve_ContentionExhausted(t *testing.T) {
	l, s := newTestLedger()
	s.SetData(store.InventoryKey("A"), StockRecord{ProductID: "A", Quantity: 100})
	s.CASCallback = func(_ context.Context, key string, _ int64) {
		s.SetData(key, StockRecord{ProductID: "A", Quantity: 100})
	}

	_, err := l.TryReserve(context.Background(), "A", 1)

	assert.ErrorIs(t, err, store.ErrContention)
	assert.False(t, apperr.IsValidation(err))
	assert.Len(t, s.CASCalls, 8)
}

func TestLedger_TryReserve_StoreFailure(t *testing.T) {
	l, s := newTestLedger()
	s.ReadErr = func(string) error { return errors.New("connection refused") }

	_, err := l.TryReserve(context.Background(), "A", 1)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestLedger_TryReserve_WriteFailure(t *testing.T) {
	l, s := newTestLedger()
	s.SetData(store.InventoryKey("A"), StockRecord{ProductID: "A", Quantity: 5})
	s.WriteErr = func(string) error { return errors.New("disk full") }

	_, err := l.TryReserve(context.Background(), "A", 1)

	assert.Error(t, err)
	item, _ := s.GetData(store.InventoryKey("A"))
	var rec StockRecord
	require.NoError(t, item.Decode(&rec))
	assert.Equal(t, 5, rec.Quantity)
}

func TestLedger_TryReserve_ConcurrentNeverOversells(t *testing.T) {
	l := NewLedger(store.NewMemoryStore(), zap.NewNop(), 64)
	ctx := context.Background()
	_, err := l.Add(ctx, "A", 10, Metadata{})
	require.NoError(t, err)

	const workers = 25
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved int
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.TryReserve(ctx, "A", 1)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch res.Outcome {
			case Reserved:
				reserved++
			case Insufficient:
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, reserved)
	assert.Equal(t, workers-10, rejected)

	rec, err := l.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Quantity)
}

// ============================================
// Get / List / Remove Tests
// ============================================

func TestLedger_Get_Missing(t *testing.T) {
	l, s := newTestLedger()

	rec, err := l.Get(context.Background(), "nope")

	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Empty(t, s.PutCalls)
	assert.Empty(t, s.CASCalls)
}

func TestLedger_List_SkipsDanglingMembers(t *testing.T) {
	l, s := newTestLedger()
	ctx := context.Background()
	_, err := l.Add(ctx, "A", 1, Metadata{})
	require.NoError(t, err)
	require.NoError(t, store.NewIndex(s, IndexName).Add(ctx, "ghost"))

	records, err := l.List(ctx)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "A", records[0].ProductID)
}

func TestLedger_Remove(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()
	_, err := l.Add(ctx, "A", 3, Metadata{})
	require.NoError(t, err)

	require.NoError(t, l.Remove(ctx, "A"))

	rec, err := l.Get(ctx, "A")
	require.NoError(t, err)
	assert.Nil(t, rec)
	records, err := l.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	assert.NoError(t, l.Remove(ctx, "A"))
}

// ============================================
// Reservations Tests
// ============================================

func TestReservations_CreateOnce(t *testing.T) {
	s := mocks.NewMockStateStore()
	r := NewReservations(s)
	ctx := context.Background()
	res := Reservation{OrderID: "o1", ProductID: "A", Quantity: 2, ReservedAt: fixedTime}

	require.NoError(t, r.Create(ctx, res))
	err := r.Create(ctx, Reservation{OrderID: "o1", ProductID: "A", Quantity: 9})
	assert.ErrorIs(t, err, ErrReservationExists)

	got, err := r.Get(ctx, "o1", "A")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Quantity)
	assert.Equal(t, int64(0), s.CASCalls[0].ExpectedVersion)
}

func TestReservations_GetMissing(t *testing.T) {
	r := NewReservations(mocks.NewMockStateStore())

	got, err := r.Get(context.Background(), "o1", "A")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReservations_WriteFailure(t *testing.T) {
	s := mocks.NewMockStateStore()
	s.WriteErr = func(string) error { return errors.New("timeout") }

	err := NewReservations(s).Create(context.Background(), Reservation{OrderID: "o1", ProductID: "A", Quantity: 1})

	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrReservationExists)
}
