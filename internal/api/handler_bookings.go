package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"spotpark-client/internal/backend"
	"spotpark-client/internal/engine"
	"spotpark-client/internal/settlement"
)

type createBookingRequest struct {
	SpotNumber   string `json:"spotNumber" binding:"required"`
	VehicleLabel string `json:"vehicleLabel" binding:"required"`
}

// CreateBooking handles POST /api/bookings: reserve a spot and open the
// grace window.
func (h *Handler) CreateBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	booking, err := h.engine.Reserve(c.Request.Context(), req.SpotNumber, req.VehicleLabel)
	if err != nil {
		abortBackendError(c, err)
		return
	}

	view, err := h.engine.Live(booking.ID, time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, view)
}

// ListBookings handles GET /api/bookings with live elapsed time and cost.
func (h *Handler) ListBookings(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.List(time.Now().UTC()))
}

// LiveBooking handles GET /api/bookings/:id/live: the running (or frozen)
// timer projection for one booking.
func (h *Handler) LiveBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	view, err := h.engine.Live(id, time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// CancelBooking handles POST /api/bookings/:id/cancel. Cancellation is a
// pre-park operation only.
func (h *Handler) CancelBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	err := h.engine.CancelByUser(c.Request.Context(), id)
	switch {
	case errors.Is(err, engine.ErrUnknownBooking):
		c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
	case errors.Is(err, engine.ErrNotCancellable):
		c.JSON(http.StatusConflict, gin.H{"error": "parking already confirmed; the session must run to settlement"})
	case err != nil:
		abortBackendError(c, err)
	default:
		c.Status(http.StatusNoContent)
	}
}

// SettleBooking handles POST /api/bookings/:id/settle: the explicit step
// that completes the booking and produces the receipt.
func (h *Handler) SettleBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	captured := h.engine.CapturedElapsed(id)
	result, err := h.settler.Settle(c.Request.Context(), id, captured)
	switch {
	case errors.Is(err, settlement.ErrSettlementUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "settlement unavailable; please retry"})
	case err != nil:
		abortBackendError(c, err)
	default:
		c.JSON(http.StatusOK, result)
	}
}

// receiptResponse mirrors the pinned receipt snapshot.
type receiptResponse struct {
	BookingID       int64     `json:"bookingId"`
	TotalCost       float64   `json:"totalCost"`
	DurationSeconds int64     `json:"durationSeconds"`
	SavedAt         time.Time `json:"savedAt"`
}

// GetReceipt handles GET /api/bookings/:id/receipt. It reads the pinned
// local snapshot only: recomputing here could disagree with what was
// actually charged.
func (h *Handler) GetReceipt(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	record, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no settled receipt for this booking"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, receiptResponse{
		BookingID:       record.BookingID,
		TotalCost:       record.TotalCost,
		DurationSeconds: record.DurationSeconds,
		SavedAt:         record.SavedAt,
	})
}

// GetOccupancy handles GET /api/occupancy: the latest snapshot set, or the
// explicit offline marker.
func (h *Handler) GetOccupancy(c *gin.Context) {
	snap := h.latest.Get()
	if snap.Offline {
		c.JSON(http.StatusOK, gin.H{"offline": true, "message": snap.Message})
		return
	}

	spots := make([]gin.H, 0, len(snap.Spots))
	for _, s := range snap.Spots {
		spots = append(spots, gin.H{"spotNumber": s.SpotNumber, "isAvailable": s.IsAvailable})
	}
	c.JSON(http.StatusOK, gin.H{
		"offline": false,
		"takenAt": snap.TakenAt,
		"spots":   spots,
	})
}

func bookingID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
		return 0, false
	}
	return id, true
}

// abortBackendError maps backend failure classes onto HTTP statuses.
func abortBackendError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired; please sign in again"})
	case errors.Is(err, backend.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backend unreachable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
