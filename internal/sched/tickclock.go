// internal/sched/tickclock.go

package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// TickClock paces simulation frames and counts the ticks it emitted.
type TickClock struct {
	Ch    chan int64 // receives the tick number
	count atomic.Int64
	stop  chan struct{}
	once  sync.Once
}

// NewTickClock creates a stopped clock.
func NewTickClock(buffer int) *TickClock {
	return &TickClock{
		Ch:   make(chan int64, buffer),
		stop: make(chan struct{}),
	}
}

// Start begins emitting ticks at the given interval until Stop is called or
// ctx is done. Ch is closed when the clock stops.
func (c *TickClock) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		defer close(c.Ch)
		for {
			select {
			case <-ticker.C:
				n := c.count.Add(1)
				select {
				case c.Ch <- n:
				default:
					// consumer is behind; the frame is dropped but still counted
				}
			case <-c.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop signals the clock to stop emitting ticks. It is safe to call twice.
func (c *TickClock) Stop() {
	c.once.Do(func() { close(c.stop) })
}

// Count returns the current tick count atomically.
func (c *TickClock) Count() int64 {
	return c.count.Load()
}
