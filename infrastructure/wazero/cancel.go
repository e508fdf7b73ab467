package wazero

import (
	"context"
	"sync"
)

// cancelState tracks the cancel function of the in-flight call. Cancel may be
// called from any goroutine, before, during, or after a call.
type cancelState struct {
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
}

func (c *cancelState) begin(cancel context.CancelFunc) {
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
}

func (c *cancelState) end() {
	c.mu.Lock()
	c.cancel = nil
	c.mu.Unlock()
}

func (c *cancelState) close() {
	c.mu.Lock()
	c.closed = true
	c.cancel = nil
	c.mu.Unlock()
}

// Cancel signals the in-flight call and reports whether there was one.
func (c *cancelState) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.cancel == nil {
		return false
	}
	c.cancel()
	return true
}
