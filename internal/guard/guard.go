// Package guard implements the per-booking idempotency ledger that keeps
// repeated poll-tick evaluation from firing a transition's side effect more
// than once.
package guard

import "sync"

// Action identifies a transition side effect that must fire at most once per
// booking.
type Action string

const (
	ActionStart     Action = "start"
	ActionCancel    Action = "cancel"
	ActionDeparture Action = "departure"
)

type key struct {
	bookingID int64
	action    Action
}

// Ledger records which (booking, action) side effects have already been
// issued. Entries live for the in-memory session only: after a restart the
// authoritative booking state is re-fetched from the backend instead of
// replaying guard history.
type Ledger struct {
	mu     sync.Mutex
	issued map[key]bool
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{issued: make(map[key]bool)}
}

// TryIssue returns true exactly once per (bookingID, action) pair; every
// subsequent call returns false. The caller performs the side effect only on
// a true return, which makes it safe to evaluate the same transition
// condition on every tick.
func (l *Ledger) TryIssue(bookingID int64, action Action) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{bookingID: bookingID, action: action}
	if l.issued[k] {
		return false
	}
	l.issued[k] = true
	return true
}

// Issued reports whether the side effect has already fired, without
// consuming it.
func (l *Ledger) Issued(bookingID int64, action Action) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.issued[key{bookingID: bookingID, action: action}]
}

// Reset clears all entries for a booking id. Used by tests and when a
// booking id is recycled locally; a genuinely new booking gets a fresh key
// space from its new id.
func (l *Ledger) Reset(bookingID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k := range l.issued {
		if k.bookingID == bookingID {
			delete(l.issued, k)
		}
	}
}
