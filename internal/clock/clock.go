package clock

import (
	"sync"
	"time"
)

// Clock is a single countdown. Correctness rests on the elapsed-time
// subtraction in flush, not on how often anyone polls it.
type Clock struct {
	mu        sync.Mutex
	remaining time.Duration
	running   bool
	lastTick  time.Time
	expired   bool
}

func New(budget time.Duration) *Clock {
	return &Clock{remaining: budget}
}

func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running || c.expired {
		return
	}
	c.running = true
	c.lastTick = time.Now()
}

func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.flush(time.Now())
	c.running = false
}

// Remaining returns time left, accounting for the running segment.
func (c *Clock) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.flush(time.Now())
	}
	return c.remaining
}

func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Poll updates the running countdown and reports whether the flag fell
// on this call. The expiry signal fires at most once per Clock.
func (c *Clock) Poll(now time.Time) (timedOut bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return false
	}
	c.flush(now)
	if c.remaining > 0 {
		return false
	}
	c.running = false
	if c.expired {
		return false
	}
	c.expired = true
	return true
}

// flush subtracts elapsed wall time since lastTick, floored at zero.
// Caller holds mu.
func (c *Clock) flush(now time.Time) {
	elapsed := now.Sub(c.lastTick)
	if elapsed < 0 {
		elapsed = 0
	}
	c.remaining -= elapsed
	if c.remaining < 0 {
		c.remaining = 0
	}
	c.lastTick = now
}
