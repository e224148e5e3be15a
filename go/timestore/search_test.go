package timestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.skia.org/timestore/go/colstore/mem_colstore"
)

func insertText(t *testing.T, store *Store, sourceID, dataName string, ts time.Time, text string) {
	t.Helper()
	require.NoError(t, store.InsertIndexableBlob(context.Background(), &DataPoint{
		SourceID:  sourceID,
		Name:      dataName,
		Timestamp: ts,
		Value:     []byte(text),
	}, 0))
}

func TestGetBlobsByFreeText(t *testing.T) {
	ctx := context.Background()
	store := New(mem_colstore.New(), nil)

	ts := time.Date(1982, 3, 1, 6, 6, 6, 0, time.UTC)
	text := "Woe to you o örth ánd sea."
	insertText(t, store, "unittest1", "evil_text", ts, text)

	// Any normalized n-gram of the text resolves to the same single blob.
	for _, search := range []string{"woe", "sea.", "örth ánd sea", "Woe to you o örth"} {
		got, err := store.GetBlobsByFreeText(ctx, "unittest1", "evil_text", search, time.Time{}, time.Time{})
		require.NoError(t, err, "search %q", search)
		require.Len(t, got, 1, "search %q", search)
		require.Equal(t, ts, got[0].Timestamp)
		require.Equal(t, []byte(text), got[0].Value)
	}

	// Unindexed text and the wrong data name are clean misses.
	got, err := store.GetBlobsByFreeText(ctx, "unittest1", "evil_text", "volvo", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Empty(t, got)
	got, err = store.GetBlobsByFreeText(ctx, "unittest1", "good_text", "woe", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestGetBlobsByFreeText_ResultsAscendRegardlessOfWriteOrder(t *testing.T) {
	ctx := context.Background()
	store := New(mem_colstore.New(), nil)

	t1 := time.Date(1982, 3, 1, 6, 6, 6, 0, time.UTC)
	t2 := t1.Add(time.Second)
	t3 := t2.Add(time.Second)

	// Written out of order, plus one record that does not match.
	insertText(t, store, "unittest2", "sightings", t3, "the beast rose third")
	insertText(t, store, "unittest2", "sightings", t1, "the beast rose first")
	insertText(t, store, "unittest2", "sightings", t2, "the beast rose second")
	insertText(t, store, "unittest2", "sightings", t3.Add(time.Second), "nothing here")

	got, err := store.GetBlobsByFreeText(ctx, "unittest2", "sightings", "beast", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, []time.Time{t1, t2, t3},
		[]time.Time{got[0].Timestamp, got[1].Timestamp, got[2].Timestamp})
	require.Equal(t, []byte("the beast rose first"), got[0].Value)
	require.Equal(t, []byte("the beast rose third"), got[2].Value)
}

func TestGetBlobsByFreeText_DateRangeBoundsAreInclusive(t *testing.T) {
	ctx := context.Background()
	store := New(mem_colstore.New(), nil)

	t1 := time.Date(1982, 3, 1, 6, 7, 0, 0, time.UTC)
	t2 := t1.Add(5 * time.Second)
	t3 := t1.Add(10 * time.Second)
	for _, ts := range []time.Time{t1, t2, t3} {
		insertText(t, store, "unittest3", "events", ts, "recurring marker")
	}

	got, err := store.GetBlobsByFreeText(ctx, "unittest3", "events", "marker",
		t1.Add(time.Second), t3.Add(-time.Second))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, t2, got[0].Timestamp)

	got, err = store.GetBlobsByFreeText(ctx, "unittest3", "events", "marker", t1, t3)
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestGetBlobsMultiData(t *testing.T) {
	ctx := context.Background()
	store := New(mem_colstore.New(), nil)

	t1 := time.Date(1982, 3, 1, 6, 6, 6, 0, time.UTC)
	insertText(t, store, "unittest4", "alpha", t1, "shared token one")
	insertText(t, store, "unittest4", "beta", t1.Add(time.Second), "shared token two")
	insertText(t, store, "unittest4", "gamma", t1.Add(2*time.Second), "unrelated")

	got, err := store.GetBlobsMultiData(ctx, "unittest4",
		[]string{"alpha", "beta", "gamma"}, "shared", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, []byte("shared token one"), got[0].Value)
	require.Equal(t, []byte("shared token two"), got[1].Value)

	got, err = store.GetBlobsMultiData(ctx, "unittest4",
		[]string{"alpha", "beta"}, "volvo", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestGetBlobRowsByFreeText(t *testing.T) {
	ctx := context.Background()
	store := New(mem_colstore.New(), nil)

	ts := time.Date(1982, 3, 1, 6, 6, 6, 0, time.UTC)
	insertText(t, store, "unittest5", "raw", ts, "raw row payload")

	dp := &DataPoint{SourceID: "unittest5", Name: "raw", Timestamp: ts}
	rows, err := store.GetBlobRowsByFreeText(ctx, "unittest5", "raw", "payload", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	cols := rows[dp.BlobRowKey()]
	require.Len(t, cols, 1)
	require.Equal(t, []byte("raw row payload"), cols[0].Value)
}

func TestInsertIndexableBlob_IndexTextOverridesValue(t *testing.T) {
	ctx := context.Background()
	store := New(mem_colstore.New(), nil)

	ts := time.Date(1982, 3, 1, 6, 6, 6, 0, time.UTC)
	require.NoError(t, store.InsertIndexableBlob(ctx, &DataPoint{
		SourceID:  "unittest6",
		Name:      "binary",
		Timestamp: ts,
		Value:     []byte{0x01, 0x02, 0x03},
		IndexText: "searchable label",
	}, 0))

	got, err := store.GetBlobsByFreeText(ctx, "unittest6", "binary", "label", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, got[0].Value)
}
