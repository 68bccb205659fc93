// Package settlement finalizes a parking session: it asks the backend to
// complete and charge, verifies the wallet was actually debited, and falls
// back to an explicit manual charge when it was not. The accepted risk is
// at-least-once charging on the fallback path, never a silently missing or
// silently wrong receipt.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"spotpark-client/internal/backend"
	"spotpark-client/internal/billing"
	"spotpark-client/internal/snapshot"
)

// ErrSettlementUnavailable is returned when completion, wallet and booking
// reads all fail; a partially correct receipt is never surfaced.
var ErrSettlementUnavailable = errors.New("settlement: backend unavailable, no consistent receipt")

// Backend is the slice of the REST client the settlement engine needs.
type Backend interface {
	Complete(ctx context.Context, bookingID int64) (*backend.CompleteResponse, error)
	GetWallet(ctx context.Context) (*backend.Wallet, error)
	ListBookings(ctx context.Context) ([]backend.Booking, error)
	ChargeWallet(ctx context.Context, amount float64, bookingID int64, note string) (*backend.ChargeResponse, error)
}

// Bookings receives the terminal transition once a settlement concludes.
// The lifecycle engine implements it.
type Bookings interface {
	MarkCompleted(bookingID int64, completedAt time.Time, totalCost float64)
}

// Settlement is the outcome of one booking termination.
type Settlement struct {
	BookingID       int64   `json:"bookingId"`
	TotalCost       float64 `json:"totalCost"`
	AmountDeducted  float64 `json:"amountDeducted"`
	DurationSeconds int64   `json:"durationSeconds"`
	WalletBalance   float64 `json:"walletBalance"`
	FallbackCharged bool    `json:"fallbackCharged"`
	Success         bool    `json:"success"`
}

// Engine settles bookings against the backend.
type Engine struct {
	backend       Backend
	store         snapshot.Store
	bookings      Bookings
	ratePerSecond float64
	now           func() time.Time
}

// New creates a settlement engine. bookings may be nil when no lifecycle
// engine needs the terminal callback.
func New(be Backend, store snapshot.Store, bookings Bookings, ratePerSecond float64) *Engine {
	return &Engine{
		backend:       be,
		store:         store,
		bookings:      bookings,
		ratePerSecond: ratePerSecond,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Settle finalizes a booking. capturedElapsed, when non-nil, is the elapsed
// time frozen at departure and takes priority over every recomputation.
func (e *Engine) Settle(ctx context.Context, bookingID int64, capturedElapsed *int64) (*Settlement, error) {
	// Step 1: ask the backend to complete and charge. A failure here does
	// not abort: the wallet and booking reads below may still produce a
	// consistent receipt.
	completion, completeErr := e.backend.Complete(ctx, bookingID)
	if completeErr != nil {
		log.Printf("Complete call for booking %d failed: %v", bookingID, completeErr)
	}

	// Step 2: wallet balance as the post-condition check.
	wallet, walletErr := e.backend.GetWallet(ctx)
	if walletErr != nil {
		log.Printf("Wallet fetch during settlement of booking %d failed: %v", bookingID, walletErr)
	}

	// Step 3: authoritative booking record, in case the backend set a total
	// there without returning a deduction.
	record, recordErr := e.fetchBooking(ctx, bookingID)
	if recordErr != nil {
		log.Printf("Booking fetch during settlement of booking %d failed: %v", bookingID, recordErr)
	}

	if completeErr != nil && walletErr != nil && recordErr != nil {
		return nil, fmt.Errorf("%w: booking %d", ErrSettlementUnavailable, bookingID)
	}

	now := e.now()
	duration := e.resolveDuration(capturedElapsed, completion, record, now)

	result := &Settlement{
		BookingID:       bookingID,
		DurationSeconds: duration,
		Success:         true,
	}
	if wallet != nil {
		result.WalletBalance = wallet.Balance
	}

	// Step 4: did anyone actually charge? Check the completion response
	// first, then the booking record.
	switch {
	case completion != nil && completion.Deduction != nil && completion.Deduction.AmountDeducted > 0:
		result.AmountDeducted = completion.Deduction.AmountDeducted
		result.TotalCost = completion.Deduction.TotalCost
		if result.TotalCost == 0 {
			result.TotalCost = completion.Deduction.AmountDeducted
		}
	case completion != nil && completion.TotalCost != nil && *completion.TotalCost > 0:
		result.TotalCost = *completion.TotalCost
		result.AmountDeducted = *completion.TotalCost
	case record != nil && record.TotalCost != nil && *record.TotalCost > 0:
		result.TotalCost = *record.TotalCost
		result.AmountDeducted = *record.TotalCost
	default:
		// Nobody charged. Compute the cost ourselves with the same
		// calculator the live display uses, then charge explicitly.
		cost := billing.Cost(duration, e.ratePerSecond)
		note := fmt.Sprintf("parking session %d (%s)", bookingID, billing.Clock(duration))
		charge, err := e.backend.ChargeWallet(ctx, cost, bookingID, note)
		if err != nil {
			return nil, fmt.Errorf("fallback charge for booking %d failed: %w", bookingID, err)
		}
		result.TotalCost = cost
		result.AmountDeducted = cost
		result.FallbackCharged = true
		result.WalletBalance = charge.Balance
	}

	// Step 5: pin the receipt locally regardless of which path produced the
	// number.
	if err := e.store.Save(ctx, bookingID, result.TotalCost, duration, now); err != nil {
		log.Printf("Failed to persist receipt snapshot for booking %d: %v", bookingID, err)
	}

	if e.bookings != nil {
		e.bookings.MarkCompleted(bookingID, now, result.TotalCost)
	}
	return result, nil
}

// resolveDuration picks elapsed seconds from the most trusted source
// available: caller capture, completion response, booking record timestamps.
func (e *Engine) resolveDuration(captured *int64, completion *backend.CompleteResponse, record *backend.Booking, now time.Time) int64 {
	if captured != nil {
		return *captured
	}
	if completion != nil && completion.ElapsedSeconds != nil {
		return *completion.ElapsedSeconds
	}
	if record != nil && record.TimerStartedAt != nil {
		end := now
		if record.CompletedAt != nil {
			end = *record.CompletedAt
		}
		return billing.Elapsed(*record.TimerStartedAt, end)
	}
	return 0
}

func (e *Engine) fetchBooking(ctx context.Context, bookingID int64) (*backend.Booking, error) {
	bookings, err := e.backend.ListBookings(ctx)
	if err != nil {
		return nil, err
	}
	for i := range bookings {
		if bookings[i].ID == bookingID {
			return &bookings[i], nil
		}
	}
	return nil, fmt.Errorf("booking %d not in authoritative list", bookingID)
}
