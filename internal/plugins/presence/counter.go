// Package presence tracks the authenticated websocket connections and
// broadcasts a join or leave event to every connection when the set changes.
package presence

import "sync/atomic"

// Counter is a non-negative connection count safe for concurrent use.
// The zero value is ready to use.
type Counter struct {
	n atomic.Int64
}

// Increment adds one and returns the new count.
func (c *Counter) Increment() int64 {
	return c.n.Add(1)
}

// Decrement subtracts one and returns the new count. The count never goes
// below zero, whatever the order or number of calls.
func (c *Counter) Decrement() int64 {
	for {
		cur := c.n.Load()
		if cur <= 0 {
			return 0
		}
		if c.n.CompareAndSwap(cur, cur-1) {
			return cur - 1
		}
	}
}

// Current returns the count.
func (c *Counter) Current() int64 {
	return c.n.Load()
}
