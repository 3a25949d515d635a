package host

import "sync"

// Clock is the logical block height of a running node. It only moves
// forward, either by the advance RPC or by an auto-advance ticker.
type Clock struct {
	mu     sync.Mutex
	height uint64
}

// NewClock starts a clock at the given height.
func NewClock(start uint64) *Clock {
	return &Clock{height: start}
}

// Height returns the current block height.
func (c *Clock) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// Advance moves the clock forward by n blocks and returns the new height.
func (c *Clock) Advance(n uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height += n
	return c.height
}

// set is used when restoring persisted state at startup.
func (c *Clock) set(height uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height = height
}
