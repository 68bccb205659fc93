// Package occupancy polls the external sensor feed and normalizes it into
// per-spot snapshots. It is the only component that touches the feed; all
// transition logic downstream is a pure function of snapshot plus wall clock.
package occupancy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"spotpark-client/config"
)

// Sink consumes the snapshot produced by each poll cycle. The booking engine
// implements it.
type Sink interface {
	Apply(snap SnapshotSet, now time.Time)
}

// Service owns the poll loop against the sensor feed.
type Service struct {
	cfg    *config.OccupancyConfig
	client *http.Client
	sink   Sink
}

// NewService creates a poller that delivers snapshots to the given sink.
func NewService(cfg *config.OccupancyConfig, sink Sink) *Service {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Printf("Warning: Invalid proxy URL %q: %v. Poller will not use a proxy.", cfg.HTTPProxy, err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &Service{
		cfg:  cfg,
		sink: sink,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
	}
}

// Run starts the polling loop. The timer is reset only after a cycle
// finishes, so a slow upstream can never stack overlapping polls.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		log.Println("Occupancy poller is disabled. Not starting.")
		return
	}
	log.Println("Starting occupancy poller...")

	s.PollOnce(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Occupancy poller shutting down.")
			return
		case <-timer.C:
			s.PollOnce(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

// PollOnce performs a single poll cycle and hands the result to the sink.
// Every failure degrades to an explicit Offline set; stale per-spot data is
// never emitted.
func (s *Service) PollOnce(ctx context.Context) {
	now := time.Now().UTC()

	snap, err := s.fetchSnapshot(ctx, now)
	if err != nil {
		log.Printf("Occupancy poll failed: %v. Reporting feed offline.", err)
		snap = SnapshotSet{Offline: true, Message: err.Error(), TakenAt: now}
	}
	if snap.Offline {
		log.Printf("Occupancy feed offline: %s", snap.Message)
	}

	s.sink.Apply(snap, now)
}

// fetchSnapshot reads and normalizes the feed payload.
func (s *Service) fetchSnapshot(ctx context.Context, now time.Time) (SnapshotSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.FeedURL, nil)
	if err != nil {
		return SnapshotSet{}, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range s.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return SnapshotSet{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SnapshotSet{}, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SnapshotSet{}, fmt.Errorf("failed to read response body: %w", err)
	}

	var feed feedResponse
	if err := json.Unmarshal(body, &feed); err != nil {
		return SnapshotSet{}, fmt.Errorf("failed to unmarshal feed response: %w", err)
	}

	if feed.Offline {
		return SnapshotSet{Offline: true, Message: feed.Message, TakenAt: now}, nil
	}

	spots := make(map[string]Snapshot, len(feed.Spots))
	for _, item := range feed.Spots {
		spots[item.SpotNumber] = Snapshot{
			SpotNumber:  item.SpotNumber,
			IsAvailable: item.IsAvailable,
			TakenAt:     now,
		}
	}
	return SnapshotSet{TakenAt: now, Spots: spots, Total: feed.TotalSpots}, nil
}
