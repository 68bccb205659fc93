// Package snapshot is the local durable store of settled receipts, keyed by
// booking id.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"spotpark-client/internal/model"
)

// Store defines the receipt snapshot operations.
type Store interface {
	// Save persists the settled cost and duration for a booking. The write
	// is once-only: a second settlement of the same booking leaves the
	// original receipt untouched so later reads stay stable.
	Save(ctx context.Context, bookingID int64, totalCost float64, durationSeconds int64, savedAt time.Time) error
	// Get returns the stored receipt, or gorm.ErrRecordNotFound.
	Get(ctx context.Context, bookingID int64) (*model.ReceiptSnapshot, error)
	// DB exposes the underlying handle for components that share it.
	DB() *gorm.DB
}

// gormStore implements Store using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed snapshot store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Save(ctx context.Context, bookingID int64, totalCost float64, durationSeconds int64, savedAt time.Time) error {
	record := model.ReceiptSnapshot{
		BookingID:       bookingID,
		TotalCost:       totalCost,
		DurationSeconds: durationSeconds,
		SavedAt:         savedAt,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "booking_id"}},
		DoNothing: true,
	}).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to save receipt snapshot for booking %d: %w", bookingID, err)
	}
	return nil
}

func (s *gormStore) Get(ctx context.Context, bookingID int64) (*model.ReceiptSnapshot, error) {
	var record model.ReceiptSnapshot
	if err := s.db.WithContext(ctx).First(&record, "booking_id = ?", bookingID).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}
