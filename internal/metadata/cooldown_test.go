package metadata

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCooldownStoreSetAndGetRoundTrips(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cooldown.db")
	store, err := OpenCooldownStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	notBefore, err := store.NotBefore("onepiece")
	require.NoError(t, err)
	require.True(t, notBefore.IsZero())

	want := time.Now().Add(24 * time.Hour).Truncate(time.Second).UTC()
	require.NoError(t, store.SetCooldown("onepiece", want))

	got, err := store.NotBefore("onepiece")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestCooldownStoreSetCooldownOverwritesPriorValue(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cooldown.db")
	store, err := OpenCooldownStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	first := time.Now().Add(time.Hour).Truncate(time.Second).UTC()
	second := time.Now().Add(48 * time.Hour).Truncate(time.Second).UTC()

	require.NoError(t, store.SetCooldown("title-key", first))
	require.NoError(t, store.SetCooldown("title-key", second))

	got, err := store.NotBefore("title-key")
	require.NoError(t, err)
	require.Equal(t, second, got)
}

func TestOpenCooldownStorePersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cooldown.db")
	store, err := OpenCooldownStore(dbPath)
	require.NoError(t, err)
	want := time.Now().Add(time.Hour).Truncate(time.Second).UTC()
	require.NoError(t, store.SetCooldown("k", want))
	require.NoError(t, store.Close())

	reopened, err := OpenCooldownStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.NotBefore("k")
	require.NoError(t, err)
	require.Equal(t, want, got)
}
