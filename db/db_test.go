package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamotakugot/fish-feeder-controller/internal/model"
)

func openTestDB(t *testing.T) *CalibrationStore {
	t.Helper()
	conn, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewCalibrationStore(conn)
}

func TestCalibrationStoreRoundTrip(t *testing.T) {
	store := openTestDB(t)

	want := model.Calibration{ScaleFactor: 1250.75, Offset: 8123}
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// A second save replaces the single row rather than adding one.
	want.ScaleFactor = 999.5
	require.NoError(t, store.Save(want))
	got, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCalibrationStoreEmptyDatabase(t *testing.T) {
	store := openTestDB(t)
	_, err := store.Load()
	assert.Error(t, err, "no calibration row yet")
}

func TestFeedEventLifecycle(t *testing.T) {
	conn, err := Open(":memory:")
	require.NoError(t, err)
	defer conn.Close()

	started := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	id, err := InsertFeedEvent(conn, started, 100)
	require.NoError(t, err)
	require.NotZero(t, id)

	events, err := RecentFeedEvents(conn, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "in_progress", events[0].Status)
	assert.Equal(t, 100.0, events[0].AmountGrams)
	assert.Nil(t, events[0].EndedAt)

	ended := started.Add(20 * time.Second)
	require.NoError(t, CloseFeedEvent(conn, id, ended, "completed"))

	events, err = RecentFeedEvents(conn, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "completed", events[0].Status)
	require.NotNil(t, events[0].EndedAt)
	assert.True(t, events[0].EndedAt.Equal(ended))
}

func TestRecentFeedEventsOrderAndLimit(t *testing.T) {
	conn, err := Open(":memory:")
	require.NoError(t, err)
	defer conn.Close()

	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := InsertFeedEvent(conn, base.Add(time.Duration(i)*time.Hour), float64(10*i))
		require.NoError(t, err)
	}

	events, err := RecentFeedEvents(conn, 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, 40.0, events[0].AmountGrams, "newest first")
	assert.Equal(t, 20.0, events[2].AmountGrams)
}

func TestSchemaIdempotent(t *testing.T) {
	conn, err := Open(":memory:")
	require.NoError(t, err)
	defer conn.Close()

	// Re-applying the embedded schema on an initialized database must not
	// fail; Open does this on every boot.
	_, err = conn.Exec(schema)
	assert.NoError(t, err)
}
