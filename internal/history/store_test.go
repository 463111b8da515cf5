package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{
		Path:     filepath.Join(t.TempDir(), "history.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreRecordLifecycle(t *testing.T) {
	store := openTestStore(t)

	rec, err := store.RecordStart("entry_1_1", "http://example.com/stream", "Example FM")
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)
	assert.Nil(t, rec.EndedAt)

	require.NoError(t, store.RecordTitle("entry_1_1", "Artist - Song"))
	require.NoError(t, store.RecordFinish("entry_1_1", 123.5, "eof"))

	records, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Artist - Song", records[0].StreamTitle)
	assert.Equal(t, "eof", records[0].StopReason)
	assert.InDelta(t, 123.5, records[0].PlayedSeconds, 0.001)
	assert.NotNil(t, records[0].EndedAt)
}

func TestStoreFinishWithoutOpenSession(t *testing.T) {
	store := openTestStore(t)
	assert.ErrorIs(t, store.RecordFinish("entry_9_9", 1, "userAction"), ErrRecordNotFound)
	assert.ErrorIs(t, store.RecordTitle("entry_9_9", "x"), ErrRecordNotFound)
}

func TestStoreRecentOrderAndLimit(t *testing.T) {
	store := openTestStore(t)

	for i, url := range []string{"http://a", "http://b", "http://c"} {
		rec := &PlaybackRecord{
			EntryID:   url,
			URL:       url,
			StartedAt: time.Now().UTC().Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.db.Create(rec).Error)
	}

	records, err := store.Recent(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "http://c", records[0].URL)
	assert.Equal(t, "http://b", records[1].URL)
}

func TestStoreSearch(t *testing.T) {
	store := openTestStore(t)

	_, err := store.RecordStart("e1", "http://somafm.com/groovesalad", "Groove Salad")
	require.NoError(t, err)
	_, err = store.RecordStart("e2", "http://example.com/rock", "Rock FM")
	require.NoError(t, err)
	require.NoError(t, store.RecordTitle("e2", "Led Zeppelin - Kashmir"))

	records, err := store.Search("groove", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "e1", records[0].EntryID)

	records, err = store.Search("kashmir", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "e2", records[0].EntryID)
}

func TestStorePrune(t *testing.T) {
	store := openTestStore(t)

	old := &PlaybackRecord{EntryID: "old", URL: "http://old", StartedAt: time.Now().UTC().Add(-48 * time.Hour)}
	require.NoError(t, store.db.Create(old).Error)
	_, err := store.RecordStart("new", "http://new", "")
	require.NoError(t, err)

	deleted, err := store.Prune(time.Now().UTC().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	records, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "new", records[0].EntryID)
}
