package guard

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLedger_TryIssueExactlyOnce(t *testing.T) {
	l := NewLedger()

	assert.True(t, l.TryIssue(1, ActionStart), "first TryIssue must succeed")
	for i := 0; i < 50; i++ {
		assert.False(t, l.TryIssue(1, ActionStart), "repeat TryIssue must fail")
	}
}

func TestLedger_KeysAreIndependent(t *testing.T) {
	l := NewLedger()

	assert.True(t, l.TryIssue(1, ActionStart))
	assert.True(t, l.TryIssue(1, ActionDeparture), "different action, same booking")
	assert.True(t, l.TryIssue(2, ActionStart), "different booking, same action")
	assert.False(t, l.TryIssue(1, ActionStart))
	assert.False(t, l.TryIssue(2, ActionStart))
}

func TestLedger_Issued(t *testing.T) {
	l := NewLedger()

	assert.False(t, l.Issued(7, ActionCancel))
	l.TryIssue(7, ActionCancel)
	assert.True(t, l.Issued(7, ActionCancel))
	assert.False(t, l.Issued(7, ActionStart))
}

func TestLedger_Reset(t *testing.T) {
	l := NewLedger()

	l.TryIssue(3, ActionStart)
	l.TryIssue(3, ActionDeparture)
	l.TryIssue(4, ActionStart)

	l.Reset(3)

	assert.True(t, l.TryIssue(3, ActionStart), "reset booking gets a fresh key space")
	assert.False(t, l.TryIssue(4, ActionStart), "other bookings are untouched")
}

func TestLedger_ConcurrentTryIssue(t *testing.T) {
	l := NewLedger()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryIssue(42, ActionDeparture) {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins, "exactly one goroutine may win the issue")
}
