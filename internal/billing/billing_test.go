package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestElapsed(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, int64(0), Elapsed(t0, t0), "identical timestamps must yield zero")
	assert.Equal(t, int64(30), Elapsed(t0, t0.Add(30*time.Second)))
	assert.Equal(t, int64(125), Elapsed(t0, t0.Add(125*time.Second)))
	assert.Equal(t, int64(0), Elapsed(t0, t0.Add(-10*time.Second)), "negative spans must clamp to zero")
}

func TestCost(t *testing.T) {
	testCases := []struct {
		name     string
		seconds  int64
		expected float64
	}{
		{"zero seconds", 0, 0.00},
		{"exactly one unit", 30, 1.00},
		{"two minutes five seconds", 125, 4.17},
		{"one second rounds down", 1, 0.03},
		{"one hour", 3600, 120.00},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, Cost(tc.seconds, DefaultRatePerSecond), 1e-9)
		})
	}
}

func TestClock(t *testing.T) {
	assert.Equal(t, "00:00:00", Clock(0))
	assert.Equal(t, "00:02:05", Clock(125))
	assert.Equal(t, "01:00:59", Clock(3659))
	assert.Equal(t, "00:00:00", Clock(-5))
}
