package service

import (
	"sync"
	"time"
)

// Clock supplies the current time as Unix seconds.
type Clock interface {
	Now() int64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() int64

func (f ClockFunc) Now() int64 { return f() }

// SystemClock reads the wall clock but never returns a value smaller than one
// it already returned, so day numbers cannot step backwards.
type SystemClock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewSystemClock returns a SystemClock over time.Now.
func NewSystemClock() *SystemClock {
	return &SystemClock{now: time.Now}
}

func (c *SystemClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now().Unix()
	if now < c.last {
		return c.last
	}
	c.last = now
	return now
}
