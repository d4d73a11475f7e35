package watch

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseLineRejectsMalformed(t *testing.T) {
	_, ok := parseLine("no-pipe-here")
	require.False(t, ok)

	_, ok = parseLine("|CREATE")
	require.False(t, ok)

	rec, ok := parseLine("/library/Foo/bar.cbz|CLOSE_WRITE,CLOSE")
	require.True(t, ok)
	require.Equal(t, "/library/Foo/bar.cbz", rec.Path)
	require.Equal(t, []string{"CLOSE_WRITE", "CLOSE"}, rec.EventMaskFlags)
}

func TestInotifyArgsForRecursiveVsShallow(t *testing.T) {
	require.Equal(t, []string{"-m", "/library"}, inotifyArgsFor(sessionKey{root: "/library"}))
	require.Equal(t, []string{"-m", "-r", "/library"}, inotifyArgsFor(sessionKey{root: "/library", recursive: true}))
}

func TestPollToolNotFoundWhenBinaryMissing(t *testing.T) {
	r := NewPersistentReader(StartupFull, time.Millisecond, 4)
	root := t.TempDir()

	// No "inotifywait" binary exists in the sandboxed test environment's
	// PATH, so session start must fail with a not-found classification
	// rather than silently producing no events.
	result := r.Poll([]string{root}, time.Second, nil)
	require.Equal(t, ToolNotFound, result.Outcome)
	require.NotEmpty(t, result.Warnings)
}

func TestPollIgnoresNonExistentRoots(t *testing.T) {
	r := NewPersistentReader(StartupFull, time.Millisecond, 4)
	result := r.Poll([]string{"/does/not/exist"}, time.Second, nil)
	require.Empty(t, result.Events)
}

func TestPollRestartGatePreventsImmediateRetry(t *testing.T) {
	r := NewPersistentReader(StartupFull, time.Hour, 4)
	root := t.TempDir()

	first := r.Poll([]string{root}, time.Second, nil)
	require.Equal(t, ToolNotFound, first.Outcome)

	// Second poll within the restart delay must not attempt another
	// start (and therefore must not add a second identical warning).
	second := r.Poll([]string{root}, time.Second, nil)
	require.Empty(t, second.Warnings)
}

func TestCloseDisposesWithoutPanicWhenNoSessions(t *testing.T) {
	r := NewPersistentReader(StartupProgressive, time.Second, 2)
	r.Close()
}

func TestAppendEventBoundedDropsOldestPastCap(t *testing.T) {
	var events []EventRecord
	dropped := 0
	for i := 0; i < maxEventsPerPoll; i++ {
		events = appendEventBounded(events, EventRecord{Path: strconv.Itoa(i)}, &dropped)
	}
	require.Len(t, events, maxEventsPerPoll)
	require.Equal(t, 0, dropped)
	require.Equal(t, "0", events[0].Path)

	events = appendEventBounded(events, EventRecord{Path: "overflow"}, &dropped)
	require.Len(t, events, maxEventsPerPoll)
	require.Equal(t, 1, dropped)
	require.Equal(t, "1", events[0].Path, "oldest entry must be evicted, not the newest arrival")
	require.Equal(t, "overflow", events[len(events)-1].Path)
}

func TestAppendWarningBoundedDropsOldestPastCap(t *testing.T) {
	var warnings []string
	dropped := 0
	for i := 0; i < maxWarningsPerPoll; i++ {
		warnings = appendWarningBounded(warnings, strconv.Itoa(i), &dropped)
	}
	require.Len(t, warnings, maxWarningsPerPoll)
	require.Equal(t, 0, dropped)
	require.Equal(t, "0", warnings[0])

	warnings = appendWarningBounded(warnings, "overflow", &dropped)
	require.Len(t, warnings, maxWarningsPerPoll)
	require.Equal(t, 1, dropped)
	require.Equal(t, "1", warnings[0], "oldest warning must be evicted, not the newest arrival")
	require.Equal(t, "overflow", warnings[len(warnings)-1])
}
