package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/cjmanca/ssmergerd/internal/merge"
	"github.com/cjmanca/ssmergerd/internal/rename"
	"github.com/cjmanca/ssmergerd/internal/watch"
	"github.com/stretchr/testify/require"
)

type fakeWatcher struct {
	result watch.PollResult
}

func (f *fakeWatcher) Poll(watchRoots []string, timeout time.Duration, cancel <-chan struct{}) watch.PollResult {
	return f.result
}

type fakeRenameProcessor struct{ calls int }

func (f *fakeRenameProcessor) ProcessOnce(now time.Time) rename.PassCounters {
	f.calls++
	return rename.PassCounters{}
}

type fakeEnqueuer struct{ paths []string }

func (f *fakeEnqueuer) EnqueueChapterPath(path string, now time.Time) {
	f.paths = append(f.paths, path)
}

type fakeCoalescer struct {
	requests []merge.Request
	pending  bool
}

func (f *fakeCoalescer) RequestMerge(reason string, force bool) {
	f.requests = append(f.requests, merge.Request{Reason: reason, Force: force})
	f.pending = true
}
func (f *fakeCoalescer) HasPending() bool { return f.pending }
func (f *fakeCoalescer) Dispatch(ctx context.Context) merge.PassResult {
	if !f.pending {
		return merge.PassResult{Outcome: merge.DispatchNoPendingRequest}
	}
	f.pending = false
	return merge.PassResult{Outcome: merge.DispatchSuccess}
}

type fakeWarner struct{ warnings []string }

func (f *fakeWarner) Warn(msg string) { f.warnings = append(f.warnings, msg) }

func noopListDirs(dir string) ([]string, error) { return nil, nil }

func TestFirstTickDispatchesStartupRequest(t *testing.T) {
	coalescer := &fakeCoalescer{}
	p := NewPipeline("/ssm/sources", map[string]bool{}, &fakeWatcher{}, &fakeRenameProcessor{}, &fakeEnqueuer{}, coalescer, &fakeWarner{}, noopListDirs)

	p.Tick(context.Background(), time.Now(), nil, time.Second, nil)
	require.Len(t, coalescer.requests, 1)
	require.Equal(t, "startup", coalescer.requests[0].Reason)
}

func TestChapterEventEnqueuesRenameAndRequestsMerge(t *testing.T) {
	coalescer := &fakeCoalescer{}
	enqueuer := &fakeEnqueuer{}
	watcher := &fakeWatcher{result: watch.PollResult{
		Events: []watch.EventRecord{{Path: "/ssm/sources/SourceA/MangaA/Chapter001", EventMaskFlags: []string{"CREATE", "ISDIR"}}},
	}}
	p := NewPipeline("/ssm/sources", map[string]bool{}, watcher, &fakeRenameProcessor{}, enqueuer, coalescer, &fakeWarner{}, noopListDirs)
	p.firstTick = false // isolate depth-3 classification from the startup dispatch

	p.Tick(context.Background(), time.Now(), nil, time.Second, nil)
	require.Len(t, enqueuer.paths, 1)
	require.Contains(t, coalescer.requests[len(coalescer.requests)-1].Reason, "chapter-implied-new:SourceA/MangaA")
}

func TestExcludedSourceEventIsIgnored(t *testing.T) {
	coalescer := &fakeCoalescer{}
	enqueuer := &fakeEnqueuer{}
	watcher := &fakeWatcher{result: watch.PollResult{
		Events: []watch.EventRecord{{Path: "/ssm/sources/Excluded/MangaA/Chapter001", EventMaskFlags: []string{"ISDIR"}}},
	}}
	p := NewPipeline("/ssm/sources", map[string]bool{"excluded": true}, watcher, &fakeRenameProcessor{}, enqueuer, coalescer, &fakeWarner{}, noopListDirs)
	p.firstTick = false

	p.Tick(context.Background(), time.Now(), nil, time.Second, nil)
	require.Empty(t, enqueuer.paths)
}

func TestDepth1EventRequestsNewSource(t *testing.T) {
	coalescer := &fakeCoalescer{}
	watcher := &fakeWatcher{result: watch.PollResult{
		Events: []watch.EventRecord{{Path: "/ssm/sources/SourceA", EventMaskFlags: []string{"CREATE", "ISDIR"}}},
	}}
	p := NewPipeline("/ssm/sources", map[string]bool{}, watcher, &fakeRenameProcessor{}, &fakeEnqueuer{}, coalescer, &fakeWarner{}, noopListDirs)
	p.firstTick = false

	p.Tick(context.Background(), time.Now(), nil, time.Second, nil)
	require.Equal(t, "new-source:SourceA", coalescer.requests[len(coalescer.requests)-1].Reason)
}

func TestCancellationShortCircuitsTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	coalescer := &fakeCoalescer{}
	p := NewPipeline("/ssm/sources", map[string]bool{}, &fakeWatcher{}, &fakeRenameProcessor{}, &fakeEnqueuer{}, coalescer, &fakeWarner{}, noopListDirs)
	p.firstTick = false

	result := p.Tick(ctx, time.Now(), nil, time.Second, nil)
	require.Equal(t, merge.DispatchNoPendingRequest, result.Outcome)
}
