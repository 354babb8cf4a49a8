package state

import (
	"sync"
	"time"
)

// SystemClock reads wall-clock time
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ManualClock is a settable clock for tests and simulations
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock frozen at t
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now returns the clock's current time
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Host serializes external entry points against the shared engine state.
// Every Execute call runs alone and either commits entirely or leaves no trace.
type Host struct {
	mu      sync.Mutex
	journal *Journal
	clock   interface{ Now() time.Time }
}

// NewHost creates a host around a journal and clock
func NewHost(journal *Journal, clock interface{ Now() time.Time }) *Host {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Host{journal: journal, clock: clock}
}

// Journal returns the journal every stateful component records into
func (h *Host) Journal() *Journal {
	return h.journal
}

// Now returns the host clock's time
func (h *Host) Now() time.Time {
	return h.clock.Now()
}

// Execute runs fn as one indivisible operation
func (h *Host) Execute(fn func() error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.journal.Atomic(fn)
}
