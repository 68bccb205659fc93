package billing

import (
	"fmt"
	"math"
	"time"
)

// DefaultRatePerSecond is the reference tariff: one currency unit per 30
// seconds of parking.
const DefaultRatePerSecond = 1.0 / 30.0

// Elapsed returns the whole seconds between startedAt and endedAt, clamped
// to zero so clock skew can never produce a negative duration.
func Elapsed(startedAt, endedAt time.Time) int64 {
	secs := int64(endedAt.Sub(startedAt).Seconds())
	if secs < 0 {
		return 0
	}
	return secs
}

// Cost converts elapsed seconds into a monetary amount at the given
// per-second rate, rounded to two decimals. The same function backs both the
// live display and the settlement fallback so the two can never disagree.
func Cost(seconds int64, ratePerSecond float64) float64 {
	return math.Round(float64(seconds)*ratePerSecond*100) / 100
}

// Clock renders elapsed seconds as HH:MM:SS for the on-screen timer.
func Clock(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
