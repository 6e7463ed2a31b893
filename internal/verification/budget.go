package verification

import (
	"sync"
	"sync/atomic"
	"time"
)

// costUnit converts monetary units to integer micro-units so the spend
// counter can be updated with compare-and-swap.
const costUnit = 1e6

// Ledger tracks cumulative verification spend per billing period and
// gates paid calls against the monthly budget. Reservations are
// compare-and-swap updates; the ledger allows at most one reservation to
// cross the ceiling, after which every further paid call is refused.
type Ledger struct {
	budget int64 // micro-units, 0 disables paid methods entirely
	spent  atomic.Int64

	mu     sync.Mutex
	period string // current billing period, e.g. "2026-08"
	now    func() time.Time
}

// NewLedger creates a Ledger with the given monthly budget.
func NewLedger(monthlyBudget float64) *Ledger {
	l := &Ledger{
		budget: int64(monthlyBudget * costUnit),
		now:    time.Now,
	}
	l.period = l.now().UTC().Format("2006-01")
	return l
}

// Reserve records cost against the current period. It returns false when
// spend has already reached the budget, in which case the caller must
// downgrade to a free method. A reservation made while still under the
// ceiling succeeds even if it crosses it; that is the single permitted
// overage.
func (l *Ledger) Reserve(cost float64) bool {
	if l.budget <= 0 {
		return false
	}
	l.rollover()

	add := int64(cost * costUnit)
	for {
		cur := l.spent.Load()
		if cur >= l.budget {
			return false
		}
		if l.spent.CompareAndSwap(cur, cur+add) {
			return true
		}
	}
}

// Release refunds a reservation whose paid call never happened.
func (l *Ledger) Release(cost float64) {
	l.spent.Add(-int64(cost * costUnit))
}

// Spent returns the cumulative spend in the current period.
func (l *Ledger) Spent() float64 {
	l.rollover()
	return float64(l.spent.Load()) / costUnit
}

// Remaining returns how much budget is left this period.
func (l *Ledger) Remaining() float64 {
	l.rollover()
	rem := l.budget - l.spent.Load()
	if rem < 0 {
		rem = 0
	}
	return float64(rem) / costUnit
}

// rollover resets the counter when the billing period changes.
func (l *Ledger) rollover() {
	current := l.now().UTC().Format("2006-01")
	l.mu.Lock()
	if l.period != current {
		l.period = current
		l.spent.Store(0)
	}
	l.mu.Unlock()
}
