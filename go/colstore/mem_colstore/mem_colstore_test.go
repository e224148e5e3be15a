package mem_colstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.skia.org/infra/go/now"
	"go.skia.org/timestore/go/colstore"
)

const testCF = "TestData"

func TestGet_MissingRowIsNotFound(t *testing.T) {
	ctx := context.Background()
	m := New()

	_, err := m.Get(ctx, testCF, "nope", "", "", 0, false)
	require.True(t, colstore.IsNotFound(err))

	// An existing row with nothing in the slice is empty, not an error.
	require.NoError(t, m.Insert(ctx, testCF, "row", map[string][]byte{"m": []byte("1")}, 0))
	cols, err := m.Get(ctx, testCF, "row", "x", "z", 0, false)
	require.NoError(t, err)
	require.Empty(t, cols)
}

func TestGet_SliceBoundsAreInclusive(t *testing.T) {
	ctx := context.Background()
	m := New()
	require.NoError(t, m.Insert(ctx, testCF, "row", map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
		"c": []byte("3"),
		"d": []byte("4"),
	}, 0))

	cols, err := m.Get(ctx, testCF, "row", "b", "c", 0, false)
	require.NoError(t, err)
	require.Equal(t, []colstore.Column{
		{Name: "b", Value: []byte("2")},
		{Name: "c", Value: []byte("3")},
	}, cols)

	// Empty bounds are unbounded; limit truncates; reversed flips.
	cols, err = m.Get(ctx, testCF, "row", "", "", 2, false)
	require.NoError(t, err)
	require.Equal(t, "a", cols[0].Name)
	require.Equal(t, "b", cols[1].Name)

	cols, err = m.Get(ctx, testCF, "row", "", "", 2, true)
	require.NoError(t, err)
	require.Equal(t, "d", cols[0].Name)
	require.Equal(t, "c", cols[1].Name)
}

func TestMultiGet_OmitsMissingRows(t *testing.T) {
	ctx := context.Background()
	m := New()
	require.NoError(t, m.BatchInsert(ctx, testCF, map[string]map[string][]byte{
		"r1": {"a": []byte("1")},
		"r2": {"b": []byte("2")},
	}, 0))

	rows, err := m.MultiGet(ctx, testCF, []string{"r1", "gone", "r2"}, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, []byte("1"), rows["r1"][0].Value)
	require.Equal(t, []byte("2"), rows["r2"][0].Value)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	m := New()
	require.NoError(t, m.Insert(ctx, testCF, "row", map[string][]byte{"a": []byte("1")}, 0))
	require.NoError(t, m.Remove(ctx, testCF, "row"))
	_, err := m.Get(ctx, testCF, "row", "", "", 0, false)
	require.True(t, colstore.IsNotFound(err))
}

func TestTTL_ExpiresColumns(t *testing.T) {
	start := time.Date(2020, 5, 1, 10, 0, 0, 0, time.UTC)
	ctx := now.TimeTravelingContext(context.Background(), start)
	m := New()
	require.NoError(t, m.Insert(ctx, testCF, "row", map[string][]byte{"a": []byte("1")}, time.Hour))
	require.Equal(t, time.Hour, m.LastTTL(testCF))

	cols, err := m.Get(ctx, testCF, "row", "", "", 0, false)
	require.NoError(t, err)
	require.Len(t, cols, 1)

	ctx.SetTime(start.Add(2 * time.Hour))
	cols, err = m.Get(ctx, testCF, "row", "", "", 0, false)
	require.NoError(t, err)
	require.Empty(t, cols)
}
