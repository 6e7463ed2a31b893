package verification

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLedgerReserveStopsAtBudget(t *testing.T) {
	l := NewLedger(1.0)

	// 0.3 per call: the fourth reservation crosses the ceiling and is
	// the last one allowed.
	var wg sync.WaitGroup
	granted := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			granted <- l.Reserve(0.3)
		}()
	}
	wg.Wait()
	close(granted)

	ok := 0
	for g := range granted {
		if g {
			ok++
		}
	}
	assert.Equal(t, 4, ok, "exactly one reservation may cross the ceiling")
	assert.InDelta(t, 1.2, l.Spent(), 1e-9)
	assert.False(t, l.Reserve(0.3), "further reservations must be refused")
}

func TestLedgerRelease(t *testing.T) {
	l := NewLedger(1.0)
	assert.True(t, l.Reserve(0.5))
	l.Release(0.5)
	assert.InDelta(t, 0, l.Spent(), 1e-9)
	assert.InDelta(t, 1.0, l.Remaining(), 1e-9)
}

func TestLedgerZeroBudgetDisablesPaidCalls(t *testing.T) {
	l := NewLedger(0)
	assert.False(t, l.Reserve(0.01))
}

func TestLedgerPeriodRollover(t *testing.T) {
	l := NewLedger(1.0)
	clock := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	l.period = "2026-08"

	assert.True(t, l.Reserve(0.9))
	assert.False(t, l.Reserve(0.9))

	clock = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, l.Reserve(0.9), "new billing period resets spend")
	assert.InDelta(t, 0.9, l.Spent(), 1e-9)
}
