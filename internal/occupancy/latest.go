package occupancy

import (
	"sync"
	"time"
)

// Latest retains the most recent snapshot set for read-side consumers (the
// local API). It implements Sink.
type Latest struct {
	mu   sync.RWMutex
	snap SnapshotSet
	seen bool
}

// NewLatest creates an empty holder; Get reports offline until the first
// poll lands.
func NewLatest() *Latest {
	return &Latest{}
}

// Apply stores the snapshot.
func (l *Latest) Apply(snap SnapshotSet, now time.Time) {
	l.mu.Lock()
	l.snap = snap
	l.seen = true
	l.mu.Unlock()
}

// Get returns the last snapshot set delivered by the poller.
func (l *Latest) Get() SnapshotSet {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.seen {
		return SnapshotSet{Offline: true, Message: "no poll completed yet"}
	}
	return l.snap
}

// Fanout delivers each snapshot to every sink in order.
type Fanout []Sink

// Apply implements Sink.
func (f Fanout) Apply(snap SnapshotSet, now time.Time) {
	for _, sink := range f {
		sink.Apply(snap, now)
	}
}
