package link

import "context"

// Credit is a bounded counting semaphore gating outbound frames.
// The counter starts at the bound and stays in [0, bound]: the outbound
// pipeline takes one credit per frame sent, the inbound pipeline returns
// one per frame decoded.
type Credit struct {
	slots chan struct{}
}

// NewCredit creates a Credit with size slots, all available.
func NewCredit(size int) *Credit {
	c := &Credit{slots: make(chan struct{}, size)}
	for i := 0; i < size; i++ {
		c.slots <- struct{}{}
	}
	return c
}

// Acquire takes one credit, blocking until one is available.
func (c *Credit) Acquire(ctx context.Context) error {
	select {
	case <-c.slots:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns one credit. Releases beyond the bound are dropped.
func (c *Credit) Release() {
	select {
	case c.slots <- struct{}{}:
	default:
	}
}

// Available returns the number of credits currently available.
func (c *Credit) Available() int {
	return len(c.slots)
}
