package engine

import (
	"time"

	"spotpark-client/internal/backend"
)

// Confirmation tags whether a booking's current status was decided locally
// (optimistic transition awaiting backend confirmation) or matches the last
// authoritative fetch.
type Confirmation string

const (
	ConfirmationLocal     Confirmation = "local"
	ConfirmationConfirmed Confirmation = "confirmed"
)

// Booking is the client-side authoritative view of one reservation.
type Booking struct {
	ID           int64
	Status       backend.BookingStatus
	SpotNumber   string
	VehicleLabel string

	GracePeriodStartedAt *time.Time
	TimerStartedAt       *time.Time
	CompletedAt          *time.Time
	TotalCost            *float64

	Confirmation Confirmation

	// FrozenElapsed holds the displayed timer digits captured at departure.
	// The session itself is still running server-side; only the display is
	// frozen until the user settles or the car re-enters the spot.
	FrozenElapsed   *int64
	DepartedAt      *time.Time
	DeparturePrompt bool

	// mutatedAt rises on every local mutation; authoritative data older than
	// the latest local decision must not overwrite it.
	mutatedAt time.Time
}

// Terminal reports whether the booking reached a final state. A terminal
// booking never re-enters active.
func (b *Booking) Terminal() bool {
	return b.Status == backend.StatusCompleted || b.Status == backend.StatusCancelled
}

func (b *Booking) touch(now time.Time) {
	if now.After(b.mutatedAt) {
		b.mutatedAt = now
	}
}

// LiveView is the render-ready projection of a booking for the UI layer.
type LiveView struct {
	ID              int64                 `json:"id"`
	Status          backend.BookingStatus `json:"status"`
	SpotNumber      string                `json:"spotNumber"`
	VehicleLabel    string                `json:"vehicleLabel"`
	ElapsedSeconds  int64                 `json:"elapsedSeconds"`
	Clock           string                `json:"clock"`
	RunningCost     float64               `json:"runningCost"`
	Frozen          bool                  `json:"frozen"`
	DeparturePrompt bool                  `json:"departurePrompt"`
	TotalCost       *float64              `json:"totalCost"`
}
