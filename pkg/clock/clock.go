// Package clock provides an injectable time source so that timer-driven
// behavior (watchdogs, grant confirmation, tone measurement) can be driven
// by a virtual clock in tests.
//
// Production code uses Real(). Tests use Fake(start) and call Advance to
// fire timers deterministically; AfterFunc callbacks run synchronously in
// the goroutine that calls Advance, in deadline order.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock abstracts the subset of the time package used by the terminal.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f after d elapses. The returned Timer can cancel
	// a pending call.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable pending call.
type Timer interface {
	// Stop prevents the call. It reports whether the call was pending.
	Stop() bool
}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// FakeClock is a deterministic Clock. Time only moves when Advance is
// called. It is safe for concurrent use, but callbacks must not call
// Advance.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	seq     uint64
	waiters []*fakeTimer
}

type fakeTimer struct {
	clock    *FakeClock
	deadline time.Time
	seq      uint64
	f        func()
	stopped  bool
	fired    bool
}

// Fake returns a FakeClock set to start.
func Fake(start time.Time) *FakeClock {
	return &FakeClock{current: start}
}

// Now returns the current virtual time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc registers f to run once the clock has advanced by d. A
// non-positive d fires on the next Advance, including Advance(0), never
// synchronously, so callers may hold their own locks while scheduling.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d < 0 {
		d = 0
	}
	c.seq++
	t := &fakeTimer{clock: c, deadline: c.current.Add(d), seq: c.seq, f: f}
	c.waiters = append(c.waiters, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward by d, firing every timer whose
// deadline is reached. Timers scheduled by callbacks during the advance
// fire too if their deadline falls inside the window. While firing, Now
// reports each timer's own deadline so that callbacks observe the time
// at which they were due.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()

	for {
		next := c.popNext(target)
		if next == nil {
			break
		}
		next.f()
	}

	c.mu.Lock()
	c.current = target
	c.mu.Unlock()
}

// popNext removes and returns the earliest due timer, moving the clock
// to its deadline, or nil when none is due.
func (c *FakeClock) popNext(target time.Time) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.waiters[:0]
	for _, t := range c.waiters {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	c.waiters = live

	sort.Slice(c.waiters, func(i, j int) bool {
		a, b := c.waiters[i], c.waiters[j]
		if a.deadline.Equal(b.deadline) {
			return a.seq < b.seq
		}
		return a.deadline.Before(b.deadline)
	})

	if len(c.waiters) == 0 || c.waiters[0].deadline.After(target) {
		return nil
	}

	t := c.waiters[0]
	c.waiters = c.waiters[1:]
	t.fired = true
	if t.deadline.After(c.current) {
		c.current = t.deadline
	}
	return t
}

// Pending returns the number of timers that have not fired or been
// stopped.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.waiters {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}
