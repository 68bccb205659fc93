package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"spotpark-client/internal/backend"
	"spotpark-client/internal/model"
	"spotpark-client/internal/snapshot"
)

// mockBackend simulates the settlement-facing backend surface, including a
// wallet that remembers charges across calls.
type mockBackend struct {
	mu sync.Mutex

	completeResp *backend.CompleteResponse
	completeErr  error
	walletErr    error
	bookings     []backend.Booking
	listErr      error
	chargeErr    error

	balance float64
	charges []float64

	// once charged (by backend or fallback), later completions report the
	// deduction instead of charging again
	settledCost *float64
}

func (m *mockBackend) Complete(ctx context.Context, bookingID int64) (*backend.CompleteResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return nil, m.completeErr
	}
	if m.settledCost != nil {
		return &backend.CompleteResponse{
			Deduction: &backend.Deduction{TotalCost: *m.settledCost, AmountDeducted: *m.settledCost, Success: true},
		}, nil
	}
	return m.completeResp, nil
}

func (m *mockBackend) GetWallet(ctx context.Context) (*backend.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.walletErr != nil {
		return nil, m.walletErr
	}
	return &backend.Wallet{Balance: m.balance}, nil
}

func (m *mockBackend) ListBookings(ctx context.Context) ([]backend.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.bookings, nil
}

func (m *mockBackend) ChargeWallet(ctx context.Context, amount float64, bookingID int64, note string) (*backend.ChargeResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chargeErr != nil {
		return nil, m.chargeErr
	}
	m.charges = append(m.charges, amount)
	m.balance -= amount
	m.settledCost = &amount
	return &backend.ChargeResponse{Balance: m.balance, Success: true}, nil
}

// mockBookings records terminal callbacks.
type mockBookings struct {
	completed []int64
	costs     []float64
}

func (m *mockBookings) MarkCompleted(bookingID int64, completedAt time.Time, totalCost float64) {
	m.completed = append(m.completed, bookingID)
	m.costs = append(m.costs, totalCost)
}

func newTestStore(t *testing.T) snapshot.Store {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.ReceiptSnapshot{}))
	return snapshot.NewGormStore(db)
}

func int64Ptr(v int64) *int64 { return &v }

const rate = 1.0 / 30.0

func TestSettle_BackendDeductionAccepted(t *testing.T) {
	be := &mockBackend{
		balance: 100,
		completeResp: &backend.CompleteResponse{
			Deduction:      &backend.Deduction{TotalCost: 4.17, AmountDeducted: 4.17, Success: true},
			ElapsedSeconds: int64Ptr(125),
		},
	}
	store := newTestStore(t)
	bookings := &mockBookings{}
	e := New(be, store, bookings, rate)

	result, err := e.Settle(context.Background(), 9, nil)
	require.NoError(t, err)

	assert.Equal(t, 4.17, result.TotalCost)
	assert.Equal(t, 4.17, result.AmountDeducted)
	assert.Equal(t, int64(125), result.DurationSeconds)
	assert.False(t, result.FallbackCharged)
	assert.Empty(t, be.charges, "no manual charge when the backend deducted")
	assert.Equal(t, []int64{9}, bookings.completed)

	record, err := store.Get(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, 4.17, record.TotalCost)
	assert.Equal(t, int64(125), record.DurationSeconds)
}

func TestSettle_FallbackChargeWhenNothingDeducted(t *testing.T) {
	// Scenario: 125s elapsed, no backend deduction -> manual charge of 4.17.
	be := &mockBackend{balance: 100, completeResp: &backend.CompleteResponse{}}
	store := newTestStore(t)
	e := New(be, store, nil, rate)

	result, err := e.Settle(context.Background(), 9, int64Ptr(125))
	require.NoError(t, err)

	assert.True(t, result.FallbackCharged)
	assert.Equal(t, 4.17, result.TotalCost)
	assert.Equal(t, []float64{4.17}, be.charges)
	assert.InDelta(t, 95.83, result.WalletBalance, 1e-9)

	record, err := store.Get(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, 4.17, record.TotalCost)
	assert.Equal(t, int64(125), record.DurationSeconds)
}

func TestSettle_IdempotentAcrossRetries(t *testing.T) {
	// The second settle sees the first charge as a positive deduction and
	// must not double-charge.
	be := &mockBackend{balance: 100, completeResp: &backend.CompleteResponse{}}
	store := newTestStore(t)
	e := New(be, store, nil, rate)

	first, err := e.Settle(context.Background(), 9, int64Ptr(125))
	require.NoError(t, err)
	require.True(t, first.FallbackCharged)

	second, err := e.Settle(context.Background(), 9, int64Ptr(125))
	require.NoError(t, err)
	assert.False(t, second.FallbackCharged)
	assert.Equal(t, 4.17, second.TotalCost)
	assert.Len(t, be.charges, 1, "wallet must be charged exactly once")

	record, err := store.Get(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, 4.17, record.TotalCost, "receipt pinned by the first settlement")
}

func TestSettle_DurationPriority(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	completedAt := t0.Add(200 * time.Second)

	t.Run("caller capture wins", func(t *testing.T) {
		be := &mockBackend{
			completeResp: &backend.CompleteResponse{ElapsedSeconds: int64Ptr(300)},
		}
		e := New(be, newTestStore(t), nil, rate)

		result, err := e.Settle(context.Background(), 9, int64Ptr(125))
		require.NoError(t, err)
		assert.Equal(t, int64(125), result.DurationSeconds)
	})

	t.Run("completion response next", func(t *testing.T) {
		be := &mockBackend{
			completeResp: &backend.CompleteResponse{ElapsedSeconds: int64Ptr(300)},
			bookings: []backend.Booking{
				{ID: 9, TimerStartedAt: &t0, CompletedAt: &completedAt},
			},
		}
		e := New(be, newTestStore(t), nil, rate)

		result, err := e.Settle(context.Background(), 9, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(300), result.DurationSeconds)
	})

	t.Run("booking record timestamps last", func(t *testing.T) {
		be := &mockBackend{
			completeResp: &backend.CompleteResponse{},
			bookings: []backend.Booking{
				{ID: 9, TimerStartedAt: &t0, CompletedAt: &completedAt},
			},
		}
		e := New(be, newTestStore(t), nil, rate)

		result, err := e.Settle(context.Background(), 9, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(200), result.DurationSeconds)
	})
}

func TestSettle_TotalCostFromBookingRecord(t *testing.T) {
	cost := 6.50
	be := &mockBackend{
		completeErr: errors.New("complete endpoint down"),
		balance:     50,
		bookings: []backend.Booking{
			{ID: 9, TotalCost: &cost},
		},
	}
	e := New(be, newTestStore(t), nil, rate)

	result, err := e.Settle(context.Background(), 9, int64Ptr(125))
	require.NoError(t, err)
	assert.Equal(t, 6.50, result.TotalCost)
	assert.False(t, result.FallbackCharged, "a recorded total means the backend already charged")
	assert.Empty(t, be.charges)
}

func TestSettle_AllReadsFailIsTerminal(t *testing.T) {
	be := &mockBackend{
		completeErr: errors.New("down"),
		walletErr:   errors.New("down"),
		listErr:     errors.New("down"),
	}
	e := New(be, newTestStore(t), nil, rate)

	_, err := e.Settle(context.Background(), 9, int64Ptr(125))
	assert.ErrorIs(t, err, ErrSettlementUnavailable)
}

func TestSettle_FallbackChargeFailureSurfaces(t *testing.T) {
	be := &mockBackend{
		completeResp: &backend.CompleteResponse{},
		chargeErr:    errors.New("wallet service down"),
	}
	e := New(be, newTestStore(t), nil, rate)

	_, err := e.Settle(context.Background(), 9, int64Ptr(125))
	require.Error(t, err, "a failed charge is a money problem and must not be swallowed")
}
