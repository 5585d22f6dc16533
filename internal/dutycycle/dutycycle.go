package dutycycle

import (
	"sync"
	"time"
)

// Guard enforces a maximum-fraction-of-time-on-air rule over a rolling
// regulatory window. The window is reset wholesale at expiry rather than
// continuously decayed, which keeps the accounting trivially cheap but can
// admit up to twice the budget across a reset boundary.
type Guard struct {
	mu          sync.Mutex
	windowDur   time.Duration
	capacity    time.Duration
	windowStart time.Time
	used        time.Duration
}

// New creates a guard permitting budgetPct percent of airtime per window.
func New(window time.Duration, budgetPct float64) *Guard {
	return &Guard{
		windowDur: window,
		capacity:  time.Duration(float64(window) * budgetPct / 100),
	}
}

// CanTransmit reports whether a transmission of the given airtime fits the
// remaining window budget. The accumulated-equals-capacity boundary admits.
func (g *Guard) CanTransmit(airtime time.Duration, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.maybeReset(now)
	return g.used+airtime <= g.capacity
}

// RecordTransmission adds the actual on-air time of a completed
// transmission. Must be called exactly once per successful send, after a
// preceding CanTransmit check.
func (g *Guard) RecordTransmission(airtime time.Duration, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.maybeReset(now)
	g.used += airtime
}

// Used reports the airtime accumulated in the current window.
func (g *Guard) Used() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.used
}

// Capacity reports the per-window airtime budget.
func (g *Guard) Capacity() time.Duration {
	return g.capacity
}

// WindowRemaining reports how long until the current window resets.
func (g *Guard) WindowRemaining(now time.Time) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.windowStart.IsZero() {
		return g.windowDur
	}
	rem := g.windowDur - now.Sub(g.windowStart)
	if rem < 0 {
		return 0
	}
	return rem
}

// maybeReset opens a fresh window when the current one has expired.
// Caller holds the lock.
func (g *Guard) maybeReset(now time.Time) {
	if g.windowStart.IsZero() || now.Sub(g.windowStart) >= g.windowDur {
		g.windowStart = now
		g.used = 0
	}
}
