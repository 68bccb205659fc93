package backend

import "time"

// BookingStatus is the lifecycle status carried by the backend booking
// resource.
type BookingStatus string

const (
	StatusReserved  BookingStatus = "reserved"
	StatusActive    BookingStatus = "active"
	StatusCompleted BookingStatus = "completed"
	StatusCancelled BookingStatus = "cancelled"
)

// Booking mirrors the backend booking resource.
type Booking struct {
	ID                   int64         `json:"id"`
	Status               BookingStatus `json:"status"`
	SpotNumber           string        `json:"spotNumber"`
	VehicleLabel         string        `json:"vehicleLabel"`
	GracePeriodStartedAt *time.Time    `json:"gracePeriodStartedAt"`
	TimerStartedAt       *time.Time    `json:"timerStartedAt"`
	CompletedAt          *time.Time    `json:"completedAt"`
	TotalCost            *float64      `json:"totalCost"`
}

// Deduction is the charge record an already-settled completion returns.
type Deduction struct {
	TotalCost      float64 `json:"totalCost"`
	AmountDeducted float64 `json:"amountDeducted"`
	Success        bool    `json:"success"`
}

// CompleteResponse is the payload of the complete-booking call.
type CompleteResponse struct {
	Deduction      *Deduction `json:"deduction"`
	TotalCost      *float64   `json:"totalCost"`
	ElapsedSeconds *int64     `json:"elapsedSeconds"`
}

// ConfirmParkedResponse carries the backend's verdict on a confirm-parked
// call. Status "cancelled" signals the grace period already expired
// server-side.
type ConfirmParkedResponse struct {
	Status BookingStatus `json:"status"`
}

// WalletTransaction is a single ledger line in the wallet resource.
type WalletTransaction struct {
	ID        int64     `json:"id"`
	Amount    float64   `json:"amount"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"createdAt"`
}

// Wallet mirrors the backend wallet resource.
type Wallet struct {
	Balance      float64             `json:"balance"`
	Transactions []WalletTransaction `json:"transactions"`
}

// ChargeResponse acknowledges a manual wallet charge.
type ChargeResponse struct {
	Balance float64 `json:"balance"`
	Success bool    `json:"success"`
}
