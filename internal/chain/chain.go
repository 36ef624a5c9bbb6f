// Package chain supplies the monotonic block height the registry stamps
// onto claims. Block production itself belongs to the host; here a ticker
// stands in for it.
package chain

import (
	"context"
	"sync/atomic"
	"time"

	"authright.org/internal/obs"
)

// Counter is a monotonic block height.
type Counter struct {
	height atomic.Uint64
}

// NewCounter starts the counter at height.
func NewCounter(height uint64) *Counter {
	c := &Counter{}
	c.height.Store(height)
	return c
}

// BlockNumber returns the current height.
func (c *Counter) BlockNumber() uint64 {
	return c.height.Load()
}

// Advance moves to the next block and returns its height.
func (c *Counter) Advance() uint64 {
	h := c.height.Add(1)
	obs.SetBlockHeight(h)
	return h
}

// Run advances the counter every interval until ctx ends. onBlock, when
// set, is called with each new height (e.g. to persist the chain head).
func (c *Counter) Run(ctx context.Context, interval time.Duration, onBlock func(context.Context, uint64)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h := c.Advance()
			if onBlock != nil {
				onBlock(ctx, h)
			}
		}
	}
}
