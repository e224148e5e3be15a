package timestore

import (
	"context"
	"strconv"

	"go.skia.org/infra/go/now"
	"go.skia.org/infra/go/skerr"
	"go.skia.org/timestore/go/colstore"
	"go.skia.org/timestore/go/timestore/timekey"
)

// The latest-snapshot column family keeps one row per source holding the
// most recent value of each data name, plus a companion "-ts" column with
// the write time in unix milliseconds. It is an auxiliary family: sources
// that never call the Latest operations never get a row.

// latestCols renders the column pair for one (name, value) at millis.
func latestCols(dataName string, value []byte, millis int64) map[string][]byte {
	return map[string][]byte{
		dataName:            value,
		dataName + tsSuffix: []byte(strconv.FormatInt(millis, 10)),
	}
}

// InsertLatest records dp as the latest value of its data name. With
// verifyTimestamp set the write is suppressed when the stored snapshot is
// at least as new; a missing row, a missing "-ts" column or an unparseable
// stored timestamp all count as "no previous" and let the write proceed.
func (s *Store) InsertLatest(ctx context.Context, dp *DataPoint, verifyTimestamp bool) error {
	millis := timekey.UnixMillis(dp.UTC())
	if verifyTimestamp {
		prev, err := s.LoadLatest(ctx, dp.SourceID)
		if err != nil {
			return err
		}
		if stored, ok := prev[dp.Name+tsSuffix]; ok {
			if storedMillis, err := strconv.ParseInt(string(stored), 10, 64); err == nil && storedMillis >= millis {
				return nil
			}
		}
	}
	return s.backend.Insert(ctx, CFLatest, dp.SourceID, latestCols(dp.Name, dp.Value, millis), 0)
}

// InsertLatestValues force-writes a set of latest values for one source,
// all stamped with the current wall-clock UTC time.
func (s *Store) InsertLatestValues(ctx context.Context, sourceID string, values map[string][]byte) error {
	millis := timekey.UnixMillis(now.Now(ctx).UTC())
	cols := make(map[string][]byte, 2*len(values))
	for dataName, value := range values {
		for k, v := range latestCols(dataName, value, millis) {
			cols[k] = v
		}
	}
	return s.backend.Insert(ctx, CFLatest, sourceID, cols, 0)
}

// LoadLatest returns the full latest-snapshot row of a source, including
// the "-ts" companion columns. A source with no snapshot yields an empty
// map.
func (s *Store) LoadLatest(ctx context.Context, sourceID string) (map[string][]byte, error) {
	cols, err := s.backend.Get(ctx, CFLatest, sourceID, "", "", 0, false)
	if colstore.IsNotFound(err) {
		return map[string][]byte{}, nil
	} else if err != nil {
		return nil, skerr.Wrapf(err, "reading latest snapshot of %s", sourceID)
	}
	ret := make(map[string][]byte, len(cols))
	for _, col := range cols {
		ret[col.Name] = col.Value
	}
	return ret, nil
}

// LoadLatestValue returns the latest value of a single data name, or ok ==
// false when the source never stored one.
func (s *Store) LoadLatestValue(ctx context.Context, sourceID, dataName string) ([]byte, bool, error) {
	row, err := s.LoadLatest(ctx, sourceID)
	if err != nil {
		return nil, false, err
	}
	value, ok := row[dataName]
	return value, ok, nil
}

// MultiLoadLatest returns the latest-snapshot rows of several sources.
// Sources without a snapshot are absent from the result.
func (s *Store) MultiLoadLatest(ctx context.Context, sourceIDs []string) (map[string]map[string][]byte, error) {
	rows, err := s.backend.MultiGet(ctx, CFLatest, sourceIDs, 0)
	if err != nil {
		return nil, skerr.Wrapf(err, "multi-reading latest snapshots")
	}
	ret := make(map[string]map[string][]byte, len(rows))
	for sourceID, cols := range rows {
		m := make(map[string][]byte, len(cols))
		for _, col := range cols {
			m[col.Name] = col.Value
		}
		ret[sourceID] = m
	}
	return ret, nil
}

// RemoveLatest deletes the latest-snapshot row of a source.
func (s *Store) RemoveLatest(ctx context.Context, sourceID string) error {
	return s.backend.Remove(ctx, CFLatest, sourceID)
}
