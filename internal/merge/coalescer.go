package merge

import (
	"context"
	"sync"
)

// Request is one merge dispatch request.
type Request struct {
	Reason string
	Force  bool
}

// PassRunner executes one merge pass given the winning request.
type PassRunner interface {
	RunPass(ctx context.Context, req Request) PassResult
}

// Coalescer guarantees at most one merge pass in flight and at most one
// pending request queued behind it; concurrent requests while a pass is
// running collapse into a single next-run, with Force winning any
// collision (spec.md §4.12).
type Coalescer struct {
	runner PassRunner

	mu      sync.Mutex
	running bool
	pending *Request
}

// NewCoalescer constructs a Coalescer around the given pass runner.
func NewCoalescer(runner PassRunner) *Coalescer {
	return &Coalescer{runner: runner}
}

// RequestMerge enqueues a request. If a pass is currently running, it
// collapses into the single pending slot (merging Force by OR).
func (c *Coalescer) RequestMerge(reason string, force bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		c.pending = &Request{Reason: reason, Force: force}
		return
	}
	if force {
		c.pending.Force = true
		c.pending.Reason = reason
	}
}

// Dispatch runs the pending request, if any, waiting for any in-flight
// pass to finish first is not needed here: Dispatch itself IS the
// runner invocation, so callers must not call Dispatch concurrently
// from more than one driving loop. If no request is pending, returns
// NoPendingRequest without invoking the runner.
func (c *Coalescer) Dispatch(ctx context.Context) PassResult {
	c.mu.Lock()
	if c.running || c.pending == nil {
		req := c.pending
		c.mu.Unlock()
		if req == nil {
			return PassResult{Outcome: DispatchNoPendingRequest}
		}
		return PassResult{Outcome: DispatchNoPendingRequest}
	}
	req := *c.pending
	c.pending = nil
	c.running = true
	c.mu.Unlock()

	result := c.runner.RunPass(ctx, req)

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	return result
}

// HasPending reports whether a request is currently queued.
func (c *Coalescer) HasPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}
