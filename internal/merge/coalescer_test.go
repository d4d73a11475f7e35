package merge

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	calls int32
	delay chan struct{}
}

func (r *countingRunner) RunPass(ctx context.Context, req Request) PassResult {
	atomic.AddInt32(&r.calls, 1)
	if r.delay != nil {
		<-r.delay
	}
	return PassResult{Outcome: DispatchSuccess}
}

func TestDispatchWithNoPendingRequestIsNoPendingRequest(t *testing.T) {
	c := NewCoalescer(&countingRunner{})
	result := c.Dispatch(context.Background())
	require.Equal(t, DispatchNoPendingRequest, result.Outcome)
}

func TestDispatchRunsPendingRequest(t *testing.T) {
	runner := &countingRunner{}
	c := NewCoalescer(runner)
	c.RequestMerge("startup", false)

	result := c.Dispatch(context.Background())
	require.Equal(t, DispatchSuccess, result.Outcome)
	require.EqualValues(t, 1, atomic.LoadInt32(&runner.calls))
	require.False(t, c.HasPending())
}

func TestConcurrentRequestsCollapseToOnePending(t *testing.T) {
	c := NewCoalescer(&countingRunner{})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RequestMerge("chapter-implied-new:A/B", false)
		}()
	}
	wg.Wait()
	require.True(t, c.HasPending())
}

func TestForceWinsUnderCollision(t *testing.T) {
	c := NewCoalescer(&countingRunner{})
	c.RequestMerge("startup", false)
	c.RequestMerge("override-force:Title", true)

	require.True(t, c.pending.Force)
	require.Equal(t, "override-force:Title", c.pending.Reason)
}
