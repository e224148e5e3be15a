package timestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.skia.org/infra/go/now"
	"go.skia.org/timestore/go/colstore/mem_colstore"
)

func TestInsertLatest_VerifyTimestampSuppressesStaleWrites(t *testing.T) {
	ctx := context.Background()
	store := New(mem_colstore.New(), nil)

	newer := time.Date(2012, 1, 1, 12, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Minute)
	require.NoError(t, store.InsertLatest(ctx, &DataPoint{
		SourceID: "sensor1", Name: "temp", Timestamp: newer, Value: []byte("21"),
	}, true))

	// A stale write with verification on is dropped.
	require.NoError(t, store.InsertLatest(ctx, &DataPoint{
		SourceID: "sensor1", Name: "temp", Timestamp: older, Value: []byte("19"),
	}, true))
	value, ok, err := store.LoadLatestValue(ctx, "sensor1", "temp")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("21"), value)

	// The same stale write without verification overwrites.
	require.NoError(t, store.InsertLatest(ctx, &DataPoint{
		SourceID: "sensor1", Name: "temp", Timestamp: older, Value: []byte("19"),
	}, false))
	value, _, err = store.LoadLatestValue(ctx, "sensor1", "temp")
	require.NoError(t, err)
	require.Equal(t, []byte("19"), value)
}

func TestInsertLatest_DifferentNamesDoNotInterfere(t *testing.T) {
	ctx := context.Background()
	store := New(mem_colstore.New(), nil)

	ts := time.Date(2012, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertLatest(ctx, &DataPoint{
		SourceID: "sensor1", Name: "temp", Timestamp: ts, Value: []byte("21"),
	}, true))
	require.NoError(t, store.InsertLatest(ctx, &DataPoint{
		SourceID: "sensor1", Name: "humidity", Timestamp: ts.Add(-time.Hour), Value: []byte("40"),
	}, true))

	row, err := store.LoadLatest(ctx, "sensor1")
	require.NoError(t, err)
	require.Equal(t, []byte("21"), row["temp"])
	require.Equal(t, []byte("40"), row["humidity"])
	require.Contains(t, row, "temp-ts")
	require.Contains(t, row, "humidity-ts")
}

func TestInsertLatestValues_StampsWallClock(t *testing.T) {
	ts := time.Date(2020, 5, 1, 10, 0, 0, 0, time.UTC)
	ctx := now.TimeTravelingContext(context.Background(), ts)
	store := New(mem_colstore.New(), nil)

	require.NoError(t, store.InsertLatestValues(ctx, "sensor2", map[string][]byte{
		"temp":     []byte("18"),
		"humidity": []byte("55"),
	}))

	row, err := store.LoadLatest(ctx, "sensor2")
	require.NoError(t, err)
	require.Equal(t, []byte("1588327200000"), row["temp-ts"])
	require.Equal(t, []byte("1588327200000"), row["humidity-ts"])

	// A later InsertLatest with a pre-wall-clock datum is suppressed.
	require.NoError(t, store.InsertLatest(ctx, &DataPoint{
		SourceID: "sensor2", Name: "temp", Timestamp: ts.Add(-time.Second), Value: []byte("17"),
	}, true))
	value, _, err := store.LoadLatestValue(ctx, "sensor2", "temp")
	require.NoError(t, err)
	require.Equal(t, []byte("18"), value)
}

func TestMultiLoadLatest(t *testing.T) {
	ctx := context.Background()
	store := New(mem_colstore.New(), nil)

	ts := time.Date(2012, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertLatest(ctx, &DataPoint{
		SourceID: "a", Name: "temp", Timestamp: ts, Value: []byte("1"),
	}, false))
	require.NoError(t, store.InsertLatest(ctx, &DataPoint{
		SourceID: "b", Name: "temp", Timestamp: ts, Value: []byte("2"),
	}, false))

	rows, err := store.MultiLoadLatest(ctx, []string{"a", "b", "missing"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, []byte("1"), rows["a"]["temp"])
	require.Equal(t, []byte("2"), rows["b"]["temp"])
}

func TestRemoveLatest(t *testing.T) {
	ctx := context.Background()
	store := New(mem_colstore.New(), nil)

	ts := time.Date(2012, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertLatest(ctx, &DataPoint{
		SourceID: "a", Name: "temp", Timestamp: ts, Value: []byte("1"),
	}, false))
	require.NoError(t, store.RemoveLatest(ctx, "a"))

	row, err := store.LoadLatest(ctx, "a")
	require.NoError(t, err)
	require.Empty(t, row)

	_, ok, err := store.LoadLatestValue(ctx, "a", "temp")
	require.NoError(t, err)
	require.False(t, ok)
}
