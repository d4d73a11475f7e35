package rename

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadQueueFileRoundTrips(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "state", "rename_queue.yml")

	want := []QueueEntry{
		{Path: "/ssm/sources/A/B/Chapter 001", AllowAt: time.Now().Add(time.Hour).Truncate(time.Second).UTC()},
		{Path: "/ssm/sources/A/B/Chapter 002", AllowAt: time.Now().Add(2 * time.Hour).Truncate(time.Second).UTC()},
	}

	require.NoError(t, SaveQueueFile(path, want))

	got, err := LoadQueueFile(path)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLoadQueueFileMissingReturnsEmpty(t *testing.T) {
	root := t.TempDir()
	entries, err := LoadQueueFile(filepath.Join(root, "nope.yml"))
	require.NoError(t, err)
	require.Nil(t, entries)
}

func TestSaveQueueFileCreatesParentDirectory(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "nested", "dir", "rename_queue.yml")

	require.NoError(t, SaveQueueFile(path, []QueueEntry{{Path: "/x", AllowAt: time.Now().UTC()}}))

	_, err := LoadQueueFile(path)
	require.NoError(t, err)
}
