package sim

import "sync/atomic"

// Clock is a manually advanced clock for tests.
type Clock struct {
	now atomic.Int64
}

// NewClock starts a clock at the given unix-millisecond time.
func NewClock(now int64) *Clock {
	c := &Clock{}
	c.now.Store(now)
	return c
}

func (c *Clock) Now() int64 { return c.now.Load() }

// Advance moves the clock forward by delta milliseconds.
func (c *Clock) Advance(delta int64) { c.now.Add(delta) }

// Set jumps the clock to the given time.
func (c *Clock) Set(now int64) { c.now.Store(now) }
