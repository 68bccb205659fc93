package model

import "time"

// ReceiptSnapshot pins the cost and duration that were actually charged for
// a terminated booking. Historical views read this row instead of
// recomputing, which could drift from the real charge through clock or
// rounding differences.
type ReceiptSnapshot struct {
	BookingID       int64     `gorm:"primaryKey"`
	TotalCost       float64   `gorm:"not null"`
	DurationSeconds int64     `gorm:"not null"`
	SavedAt         time.Time `gorm:"not null"`
}
