// Package clock implements the Lamport logical clock discipline from
// spec.md §3: every emitted message increments the clock first; every
// received timestamped message merges as max(clock, t)+1 before any
// side effect keyed to it runs; the clock never decreases.
package clock

import (
	"github.com/chris-alexander-pop/lamport-broker/pkg/concurrency"
)

// LamportClock is a monotonically non-decreasing logical counter,
// safe for concurrent use. It is one of the four structures spec.md §5
// requires a dedicated lock for.
type LamportClock struct {
	mu    *concurrency.SmartMutex
	value uint64
}

// New creates a clock starting at 0.
func New() *LamportClock {
	return &LamportClock{
		mu: concurrency.NewSmartMutex(concurrency.MutexConfig{Name: "lamport-clock"}),
	}
}

// Tick increments the clock and returns the new value. Used before
// emitting any protocol message.
func (c *LamportClock) Tick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value++
	return c.value
}

// Merge applies the receive rule for a message carrying timestamp t:
// value = max(value, t) + 1. Returns the new value.
func (c *LamportClock) Merge(t uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t > c.value {
		c.value = t
	}
	c.value++
	return c.value
}

// Value returns the current clock value without mutating it.
func (c *LamportClock) Value() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
