package occupancy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotpark-client/config"
)

// mockSink records every snapshot delivered by the poller.
type mockSink struct {
	snaps []SnapshotSet
}

func (m *mockSink) Apply(snap SnapshotSet, now time.Time) {
	m.snaps = append(m.snaps, snap)
}

func newFeedServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestPollOnce_NormalizesSpots(t *testing.T) {
	server := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"spots": []map[string]any{
				{"spotNumber": "A-12", "isAvailable": false},
				{"spotNumber": "A-13", "isAvailable": true},
			},
			"totalSpots":     2,
			"availableSpots": 1,
			"occupiedSpots":  1,
		})
	})

	sink := &mockSink{}
	svc := NewService(&config.OccupancyConfig{FeedURL: server.URL}, sink)
	svc.PollOnce(context.Background())

	require.Len(t, sink.snaps, 1)
	snap := sink.snaps[0]
	assert.False(t, snap.Offline)
	assert.Equal(t, 2, snap.Total)

	a12, ok := snap.Lookup("A-12")
	require.True(t, ok)
	assert.False(t, a12.IsAvailable)

	a13, ok := snap.Lookup("A-13")
	require.True(t, ok)
	assert.True(t, a13.IsAvailable)
}

func TestPollOnce_ExplicitOfflineSignal(t *testing.T) {
	server := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"offline": true,
			"message": "sensor gateway maintenance",
		})
	})

	sink := &mockSink{}
	svc := NewService(&config.OccupancyConfig{FeedURL: server.URL}, sink)
	svc.PollOnce(context.Background())

	require.Len(t, sink.snaps, 1)
	assert.True(t, sink.snaps[0].Offline)
	assert.Equal(t, "sensor gateway maintenance", sink.snaps[0].Message)

	_, ok := sink.snaps[0].Lookup("A-12")
	assert.False(t, ok, "offline set must carry no per-spot data")
}

func TestPollOnce_TransportFailureReportsOffline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	sink := &mockSink{}
	svc := NewService(&config.OccupancyConfig{FeedURL: server.URL}, sink)
	svc.PollOnce(context.Background())

	require.Len(t, sink.snaps, 1)
	assert.True(t, sink.snaps[0].Offline, "transport failure must degrade to offline, not stale data")
}

func TestPollOnce_Non200ReportsOffline(t *testing.T) {
	server := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	sink := &mockSink{}
	svc := NewService(&config.OccupancyConfig{FeedURL: server.URL}, sink)
	svc.PollOnce(context.Background())

	require.Len(t, sink.snaps, 1)
	assert.True(t, sink.snaps[0].Offline)
}

func TestRun_DisabledDoesNotPoll(t *testing.T) {
	sink := &mockSink{}
	svc := NewService(&config.OccupancyConfig{Enabled: false, FeedURL: "http://unused"}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Run(ctx)

	assert.Empty(t, sink.snaps)
}
