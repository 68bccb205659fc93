package occupancy

import "time"

// feedResponse models the sensor feed payload: either an explicit offline
// signal or a full spot listing.
type feedResponse struct {
	Offline        bool       `json:"offline"`
	Message        string     `json:"message"`
	Spots          []feedSpot `json:"spots"`
	TotalSpots     int        `json:"totalSpots"`
	AvailableSpots int        `json:"availableSpots"`
	OccupiedSpots  int        `json:"occupiedSpots"`
}

// feedSpot is one sensor reading inside the feed payload.
type feedSpot struct {
	SpotNumber  string `json:"spotNumber"`
	IsAvailable bool   `json:"isAvailable"`
}

// Snapshot is a point-in-time occupancy reading for a single spot.
type Snapshot struct {
	SpotNumber  string
	IsAvailable bool
	TakenAt     time.Time
}

// SnapshotSet is the result of one poll cycle. When Offline is true the feed
// could not be read (or declared itself down): the set carries no per-spot
// data and consumers must treat the cycle as "no information" rather than
// inferring vacancy or occupancy.
type SnapshotSet struct {
	Offline bool
	Message string
	TakenAt time.Time
	Spots   map[string]Snapshot
	Total   int
}

// Lookup returns the snapshot for a spot and whether the feed reported it.
func (s SnapshotSet) Lookup(spotNumber string) (Snapshot, bool) {
	if s.Offline {
		return Snapshot{}, false
	}
	snap, ok := s.Spots[spotNumber]
	return snap, ok
}
