// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"sync"
	"time"
)

// epoch is the default start of a FakeClock.
var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type (
	// FakeClock is a manually advanced clock. It satisfies the Clock
	// interfaces of the pipeline and trigger packages.
	FakeClock struct {
		mu      sync.Mutex
		now     time.Time
		step    time.Duration
		waiters []fakeWaiter
	}

	fakeWaiter struct {
		at time.Time
		ch chan time.Time
	}
)

// NewFakeClock returns a clock reading start, or a fixed reference time
// when start is zero.
func NewFakeClock(start time.Time) *FakeClock {
	if start.IsZero() {
		start = epoch
	}
	return &FakeClock{now: start}
}

// AutoAdvance makes every call to Now move the clock forward by d after
// reading it, so consecutive timestamps differ.
func (c *FakeClock) AutoAdvance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = d
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	if c.step > 0 {
		c.advanceLocked(c.step)
	}
	return now
}

// Since returns the fake time elapsed since t.
func (c *FakeClock) Since(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Sub(t)
}

// After returns a channel receiving the fake time once the clock has been
// advanced by at least d. Non-positive durations fire immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, fakeWaiter{at: c.now.Add(d), ch: ch})
	return ch
}

// Advance moves the clock forward by d, firing due After channels.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceLocked(d)
}

// Waiters returns the number of pending After channels.
func (c *FakeClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func (c *FakeClock) advanceLocked(d time.Duration) {
	c.now = c.now.Add(d)
	pending := c.waiters[:0]
	for _, w := range c.waiters {
		if c.now.Before(w.at) {
			pending = append(pending, w)
			continue
		}
		w.ch <- c.now
	}
	c.waiters = pending
}
