package rename

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testWarner struct {
	warnings []string
	debugs   []string
}

func (w *testWarner) Warn(msg string)  { w.warnings = append(w.warnings, msg) }
func (w *testWarner) Debug(msg string) { w.debugs = append(w.debugs, msg) }

func mkChapter(t *testing.T, root, source, manga, chapter string) string {
	t.Helper()
	dir := filepath.Join(root, source, manga, chapter)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return dir
}

func TestProcessOnceRenamesDirtyName(t *testing.T) {
	root := t.TempDir()
	dirty := mkChapter(t, root, "SourceA", "MangaA", "Chapter 001 :: bad")
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(dirty, past, past))

	p := NewProcessor(DefaultFileSystem(), DefaultSanitizer{}, &testWarner{}, root, time.Millisecond, time.Millisecond, time.Hour)
	p.LoadQueue([]QueueEntry{{Path: dirty, AllowAt: past}})

	counters := p.ProcessOnce(time.Now())
	require.Equal(t, 1, counters.Processed)
	require.Equal(t, 1, counters.Renamed)
	require.Equal(t, 0, counters.Remaining)

	entries, err := os.ReadDir(filepath.Join(root, "SourceA", "MangaA"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "Chapter 001 bad", entries[0].Name())
}

func TestProcessOnceDefersWhenNotQuiet(t *testing.T) {
	root := t.TempDir()
	dirty := mkChapter(t, root, "SourceA", "MangaA", "Chapter 001 ::")

	p := NewProcessor(DefaultFileSystem(), DefaultSanitizer{}, &testWarner{}, root, time.Millisecond, time.Hour, time.Hour)
	p.LoadQueue([]QueueEntry{{Path: dirty, AllowAt: time.Now().Add(-time.Minute)}})

	counters := p.ProcessOnce(time.Now())
	require.Equal(t, 1, counters.DeferredNotQuiet)
	require.Equal(t, 1, counters.Remaining)
}

func TestProcessOnceDropsMissingPastRescanWindow(t *testing.T) {
	root := t.TempDir()
	missing := filepath.Join(root, "SourceA", "MangaA", "GoneChapter")
	warner := &testWarner{}

	p := NewProcessor(DefaultFileSystem(), DefaultSanitizer{}, warner, root, time.Millisecond, time.Millisecond, time.Millisecond)
	p.LoadQueue([]QueueEntry{{Path: missing, AllowAt: time.Now().Add(-time.Hour)}})

	counters := p.ProcessOnce(time.Now())
	require.Equal(t, 1, counters.DroppedMissing)
	require.NotEmpty(t, warner.debugs)
}

func TestProcessOnceUnchangedNameIsDropped(t *testing.T) {
	root := t.TempDir()
	dir := mkChapter(t, root, "SourceA", "MangaA", "Chapter 001")
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(dir, past, past))

	p := NewProcessor(DefaultFileSystem(), DefaultSanitizer{}, &testWarner{}, root, time.Millisecond, time.Millisecond, time.Hour)
	p.LoadQueue([]QueueEntry{{Path: dir, AllowAt: past}})

	counters := p.ProcessOnce(time.Now())
	require.Equal(t, 1, counters.Unchanged)
	require.Equal(t, 0, counters.Remaining)
}

func TestProcessOnceCollisionUsesAltSuffix(t *testing.T) {
	root := t.TempDir()
	dirty := mkChapter(t, root, "SourceA", "MangaA", "Chapter 001 ::")
	mkChapter(t, root, "SourceA", "MangaA", "Chapter 001") // existing clean destination
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(dirty, past, past))

	p := NewProcessor(DefaultFileSystem(), DefaultSanitizer{}, &testWarner{}, root, time.Millisecond, time.Millisecond, time.Hour)
	p.LoadQueue([]QueueEntry{{Path: dirty, AllowAt: past}})

	counters := p.ProcessOnce(time.Now())
	require.Equal(t, 1, counters.Renamed)

	_, err := os.Stat(filepath.Join(root, "SourceA", "MangaA", "Chapter 001_alt-a"))
	require.NoError(t, err)
}

func TestEnqueueChapterPathIsIdempotent(t *testing.T) {
	root := t.TempDir()
	p := NewProcessor(DefaultFileSystem(), DefaultSanitizer{}, &testWarner{}, root, time.Second, time.Second, time.Second)
	p.EnqueueChapterPath("/ssm/sources/A/B/C", time.Now())
	p.EnqueueChapterPath("/ssm/sources/A/B/C", time.Now())
	require.Len(t, p.Snapshot(), 1)
}

func TestRescanAndEnqueueFindsSanitizableChapters(t *testing.T) {
	root := t.TempDir()
	mkChapter(t, root, "SourceA", "MangaA", "Chapter 001 ::")
	mkChapter(t, root, "SourceA", "MangaA", "Chapter 002")

	p := NewProcessor(DefaultFileSystem(), DefaultSanitizer{}, &testWarner{}, root, time.Second, time.Second, time.Second)
	require.NoError(t, p.RescanAndEnqueue(time.Now()))
	require.Len(t, p.Snapshot(), 1)
}
