// Package engine owns the client-side booking lifecycle: it consumes
// occupancy snapshots, decides grace-period, start and departure transitions,
// and issues each transition's backend side effect at most once through the
// guard ledger. Every decision is a function of (current state, snapshot,
// now), so the whole state machine is testable without a timer or network.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"spotpark-client/config"
	"spotpark-client/internal/backend"
	"spotpark-client/internal/billing"
	"spotpark-client/internal/guard"
	"spotpark-client/internal/occupancy"
)

// ErrNotCancellable is returned when a user cancels after parking was
// confirmed; only pre-park bookings may be cancelled by hand.
var ErrNotCancellable = errors.New("engine: booking cannot be cancelled after parking was confirmed")

// ErrUnknownBooking is returned for booking ids the engine does not track.
var ErrUnknownBooking = errors.New("engine: unknown booking")

// Backend is the slice of the REST client the engine needs.
type Backend interface {
	ListBookings(ctx context.Context) ([]backend.Booking, error)
	CreateBooking(ctx context.Context, spotNumber, vehicleLabel string) (*backend.Booking, error)
	ConfirmParked(ctx context.Context, bookingID int64) (*backend.ConfirmParkedResponse, error)
	Cancel(ctx context.Context, bookingID int64) error
}

// DepartureNotifier receives the one-time departure prompt side effect.
type DepartureNotifier interface {
	NotifyDeparture(bookingID int64, spotNumber string, elapsedSeconds int64)
}

// Engine is the booking lifecycle state machine. All booking mutations run
// under one mutex; backend calls happen outside it and never roll a local
// transition back.
type Engine struct {
	mu       sync.Mutex
	bookings map[int64]*Booking

	cfg      *config.BookingConfig
	backend  Backend
	guard    *guard.Ledger
	notifier DepartureNotifier
}

// New creates an engine with an empty booking set and a fresh guard ledger.
func New(cfg *config.BookingConfig, be Backend, notifier DepartureNotifier) *Engine {
	return &Engine{
		bookings: make(map[int64]*Booking),
		cfg:      cfg,
		backend:  be,
		guard:    guard.NewLedger(),
		notifier: notifier,
	}
}

// Apply evaluates one occupancy snapshot against every tracked booking.
// An offline snapshot carries no information: no transition is attempted.
func (e *Engine) Apply(snap occupancy.SnapshotSet, now time.Time) {
	if snap.Offline {
		return
	}

	type sideEffect func()
	var effects []sideEffect

	e.mu.Lock()
	for _, b := range e.bookings {
		if b.Terminal() {
			continue
		}

		switch b.Status {
		case backend.StatusReserved:
			if eff := e.evalReserved(b, snap, now); eff != nil {
				effects = append(effects, eff)
			}
		case backend.StatusActive:
			if eff := e.evalActive(b, snap, now); eff != nil {
				effects = append(effects, eff)
			}
		}
	}
	e.mu.Unlock()

	// Backend calls and prompts run outside the lock; the guard already
	// marked them issued, so a slow call cannot be doubled by the next tick.
	for _, eff := range effects {
		go eff()
	}
}

// evalReserved handles the grace window. The occupancy check deliberately
// precedes the expiry check: a car observed in the spot on the expiry tick
// starts the timer instead of cancelling.
func (e *Engine) evalReserved(b *Booking, snap occupancy.SnapshotSet, now time.Time) func() {
	spot, known := snap.Lookup(b.SpotNumber)
	if !known {
		// The feed did not report this spot; no inference either way.
		return nil
	}

	if !spot.IsAvailable {
		if b.TimerStartedAt == nil {
			started := now
			b.TimerStartedAt = &started
			b.Status = backend.StatusActive
			b.Confirmation = ConfirmationLocal
			b.touch(now)
		}
		if e.guard.TryIssue(b.ID, guard.ActionStart) {
			id := b.ID
			return func() { e.issueStart(id) }
		}
		return nil
	}

	if b.GracePeriodStartedAt != nil && now.Sub(*b.GracePeriodStartedAt) >= e.cfg.GracePeriod {
		b.Status = backend.StatusCancelled
		b.Confirmation = ConfirmationLocal
		b.touch(now)
		if e.guard.TryIssue(b.ID, guard.ActionCancel) {
			id := b.ID
			return func() { e.issueCancel(id) }
		}
	}
	return nil
}

// evalActive handles departure detection and the optional timer resume when
// the car re-enters before settlement.
func (e *Engine) evalActive(b *Booking, snap occupancy.SnapshotSet, now time.Time) func() {
	spot, known := snap.Lookup(b.SpotNumber)
	if !known || b.TimerStartedAt == nil {
		return nil
	}

	if spot.IsAvailable {
		if b.FrozenElapsed == nil {
			captured := billing.Elapsed(*b.TimerStartedAt, now)
			departed := now
			b.FrozenElapsed = &captured
			b.DepartedAt = &departed
			b.touch(now)
		}
		if e.guard.TryIssue(b.ID, guard.ActionDeparture) {
			b.DeparturePrompt = true
			b.touch(now)
			if e.notifier != nil {
				id, spotNumber, elapsed := b.ID, b.SpotNumber, *b.FrozenElapsed
				return func() { e.notifier.NotifyDeparture(id, spotNumber, elapsed) }
			}
		}
		return nil
	}

	// Spot occupied again. The session was never stopped server-side; with
	// resume enabled the display simply picks the running timer back up.
	if b.FrozenElapsed != nil && e.cfg.ResumeEnabled() {
		b.FrozenElapsed = nil
		b.DepartedAt = nil
		b.DeparturePrompt = false
		b.touch(now)
	}
	return nil
}

// issueStart performs the one-time confirm-parked call. A failure is logged,
// not rolled back: the local transition stands and the periodic refresh is
// the reconciliation point.
func (e *Engine) issueStart(bookingID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := e.backend.ConfirmParked(ctx, bookingID)
	if err != nil {
		log.Printf("Error confirming parked for booking %d: %v", bookingID, err)
		return
	}
	if resp.Status == backend.StatusCancelled {
		// Grace period already expired server-side; the backend's terminal
		// verdict wins.
		log.Printf("Backend reports grace period expired for booking %d; marking cancelled", bookingID)
		e.mu.Lock()
		if b, ok := e.bookings[bookingID]; ok && !b.Terminal() {
			b.Status = backend.StatusCancelled
			b.Confirmation = ConfirmationConfirmed
			b.touch(time.Now().UTC())
		}
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	if b, ok := e.bookings[bookingID]; ok && b.Status == backend.StatusActive {
		b.Confirmation = ConfirmationConfirmed
	}
	e.mu.Unlock()
}

// issueCancel performs the one-time auto-cancel call after grace expiry.
func (e *Engine) issueCancel(bookingID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.backend.Cancel(ctx, bookingID); err != nil {
		log.Printf("Error cancelling booking %d: %v", bookingID, err)
		return
	}
	e.mu.Lock()
	if b, ok := e.bookings[bookingID]; ok && b.Status == backend.StatusCancelled {
		b.Confirmation = ConfirmationConfirmed
	}
	e.mu.Unlock()
}

// Reserve creates a booking on the backend and starts tracking it locally
// with the grace window open.
func (e *Engine) Reserve(ctx context.Context, spotNumber, vehicleLabel string) (*Booking, error) {
	created, err := e.backend.CreateBooking(ctx, spotNumber, vehicleLabel)
	if err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	now := time.Now().UTC()
	b := fromResource(created, now)
	if b.GracePeriodStartedAt == nil {
		b.GracePeriodStartedAt = &now
	}
	if b.Status == "" {
		b.Status = backend.StatusReserved
	}

	e.mu.Lock()
	e.bookings[b.ID] = b
	e.mu.Unlock()

	view := *b
	return &view, nil
}

// CancelByUser cancels a booking on explicit user request. Allowed only
// while parking has not been confirmed; afterwards the session must run to
// settlement.
func (e *Engine) CancelByUser(ctx context.Context, bookingID int64) error {
	e.mu.Lock()
	b, ok := e.bookings[bookingID]
	if !ok {
		e.mu.Unlock()
		return ErrUnknownBooking
	}
	if b.TimerStartedAt != nil || b.Terminal() {
		e.mu.Unlock()
		return ErrNotCancellable
	}
	b.Status = backend.StatusCancelled
	b.Confirmation = ConfirmationLocal
	b.touch(time.Now().UTC())
	issue := e.guard.TryIssue(bookingID, guard.ActionCancel)
	e.mu.Unlock()

	if !issue {
		return nil
	}
	if err := e.backend.Cancel(ctx, bookingID); err != nil {
		// User-initiated, so the failure is surfaced; the local cancel
		// stands and the refresher reconciles.
		return fmt.Errorf("failed to cancel booking %d: %w", bookingID, err)
	}
	e.mu.Lock()
	if b, ok := e.bookings[bookingID]; ok {
		b.Confirmation = ConfirmationConfirmed
	}
	e.mu.Unlock()
	return nil
}

// MarkCompleted records the settlement outcome as the booking's terminal
// state.
func (e *Engine) MarkCompleted(bookingID int64, completedAt time.Time, totalCost float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.bookings[bookingID]
	if !ok {
		return
	}
	b.Status = backend.StatusCompleted
	b.CompletedAt = &completedAt
	b.TotalCost = &totalCost
	b.Confirmation = ConfirmationConfirmed
	b.DeparturePrompt = false
	b.touch(completedAt)
}

// CapturedElapsed returns the frozen display seconds if departure froze the
// timer; settlement prefers this capture over recomputation.
func (e *Engine) CapturedElapsed(bookingID int64) *int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.bookings[bookingID]
	if !ok || b.FrozenElapsed == nil {
		return nil
	}
	v := *b.FrozenElapsed
	return &v
}

// Booking returns a copy of a tracked booking.
func (e *Engine) Booking(bookingID int64) (Booking, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.bookings[bookingID]
	if !ok {
		return Booking{}, false
	}
	return *b, true
}

// Live projects a booking for display at the given instant. The elapsed
// digits come from the frozen capture when the car has departed, otherwise
// from the running timer.
func (e *Engine) Live(bookingID int64, now time.Time) (LiveView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.bookings[bookingID]
	if !ok {
		return LiveView{}, ErrUnknownBooking
	}
	return e.projectLocked(b, now), nil
}

// List projects every tracked booking for display.
func (e *Engine) List(now time.Time) []LiveView {
	e.mu.Lock()
	defer e.mu.Unlock()

	views := make([]LiveView, 0, len(e.bookings))
	for _, b := range e.bookings {
		views = append(views, e.projectLocked(b, now))
	}
	return views
}

func (e *Engine) projectLocked(b *Booking, now time.Time) LiveView {
	var elapsed int64
	switch {
	case b.FrozenElapsed != nil:
		elapsed = *b.FrozenElapsed
	case b.TimerStartedAt != nil && b.CompletedAt != nil:
		elapsed = billing.Elapsed(*b.TimerStartedAt, *b.CompletedAt)
	case b.TimerStartedAt != nil:
		elapsed = billing.Elapsed(*b.TimerStartedAt, now)
	}

	return LiveView{
		ID:              b.ID,
		Status:          b.Status,
		SpotNumber:      b.SpotNumber,
		VehicleLabel:    b.VehicleLabel,
		ElapsedSeconds:  elapsed,
		Clock:           billing.Clock(elapsed),
		RunningCost:     billing.Cost(elapsed, e.cfg.RatePerSecond),
		Frozen:          b.FrozenElapsed != nil,
		DeparturePrompt: b.DeparturePrompt,
		TotalCost:       b.TotalCost,
	}
}

// Run periodically refetches the authoritative booking list and reconciles
// optimistic local state against it.
func (e *Engine) Run(ctx context.Context) {
	log.Println("Starting booking refresher...")

	e.refreshOnce(ctx)

	timer := time.NewTimer(e.cfg.RefreshInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Booking refresher shutting down.")
			return
		case <-timer.C:
			e.refreshOnce(ctx)
			timer.Reset(e.cfg.RefreshInterval)
		}
	}
}

func (e *Engine) refreshOnce(ctx context.Context) {
	fetchStartedAt := time.Now().UTC()
	bookings, err := e.backend.ListBookings(ctx)
	if err != nil {
		log.Printf("Booking refresh failed: %v", err)
		return
	}
	e.Reconcile(bookings, fetchStartedAt)
}

// Reconcile merges an authoritative booking list fetched at fetchStartedAt.
// A booking mutated locally after the fetch began keeps its local state: a
// stale authoritative read never overwrites a newer optimistic decision.
// Terminal local states are likewise never re-opened.
func (e *Engine) Reconcile(resources []backend.Booking, fetchStartedAt time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range resources {
		res := &resources[i]
		b, ok := e.bookings[res.ID]
		if !ok {
			e.bookings[res.ID] = fromResource(res, fetchStartedAt)
			continue
		}
		if b.mutatedAt.After(fetchStartedAt) {
			continue
		}
		if b.Terminal() && (res.Status == backend.StatusReserved || res.Status == backend.StatusActive) {
			continue
		}

		b.Status = res.Status
		b.Confirmation = ConfirmationConfirmed
		if res.GracePeriodStartedAt != nil {
			b.GracePeriodStartedAt = res.GracePeriodStartedAt
		}
		// timerStartedAt is set at most once; the server value only fills a
		// gap, it never moves an existing start.
		if b.TimerStartedAt == nil && res.TimerStartedAt != nil {
			b.TimerStartedAt = res.TimerStartedAt
		}
		if res.CompletedAt != nil {
			b.CompletedAt = res.CompletedAt
		}
		if res.TotalCost != nil {
			b.TotalCost = res.TotalCost
		}
	}
}

func fromResource(res *backend.Booking, now time.Time) *Booking {
	return &Booking{
		ID:                   res.ID,
		Status:               res.Status,
		SpotNumber:           res.SpotNumber,
		VehicleLabel:         res.VehicleLabel,
		GracePeriodStartedAt: res.GracePeriodStartedAt,
		TimerStartedAt:       res.TimerStartedAt,
		CompletedAt:          res.CompletedAt,
		TotalCost:            res.TotalCost,
		Confirmation:         ConfirmationConfirmed,
	}
}
