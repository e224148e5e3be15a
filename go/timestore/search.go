package timestore

import (
	"context"
	"time"

	"go.skia.org/infra/go/skerr"
	"go.skia.org/infra/go/sklog"
	"go.skia.org/timestore/go/colstore"
	"go.skia.org/timestore/go/timestore/indexer"
	"go.skia.org/timestore/go/timestore/timekey"
)

// IndexRow resolves a free-text search string to the matching index row and
// returns its columns inside [from, to], ascending in time. Zero from/to
// leave that side unbounded. A search string that was never indexed yields
// an empty result.
func (s *Store) IndexRow(ctx context.Context, sourceID, dataName, freeText string, from, to time.Time, limit int) ([]IndexRef, error) {
	if limit <= 0 {
		limit = MaxIndexColumns
	}
	rowKey := timekey.IndexRowKey(sourceID, dataName, indexer.Normalize(freeText))
	colStart := ""
	if !from.IsZero() {
		colStart = timekey.TimeColName(from)
	}
	colFinish := ""
	if !to.IsZero() {
		colFinish = timekey.TimeColName(to)
	}
	cols, err := s.backend.Get(ctx, CFIndex, rowKey, colStart, colFinish, limit, false)
	if colstore.IsNotFound(err) {
		// Not found in the index is a normal miss. Not found in the blob
		// CF later would be a real inconsistency.
		return nil, nil
	} else if err != nil {
		return nil, skerr.Wrapf(err, "reading index row %s", rowKey)
	}
	ret := make([]IndexRef, 0, len(cols))
	for _, col := range cols {
		ts, err := timekey.ParseTimeColName(col.Name)
		if err != nil {
			sklog.Errorf("Skipping malformed index column %q in row %s: %s", col.Name, rowKey, err)
			continue
		}
		ret = append(ret, IndexRef{Timestamp: ts, BlobRowKey: string(col.Value)})
	}
	return ret, nil
}

// GetBlobsByFreeText returns the blobs of (sourceID, dataName) whose
// indexed text contains freeText, written inside [from, to]. Each result is
// the first column of the matched blob row; the order follows the index
// scan and is therefore ascending in time.
func (s *Store) GetBlobsByFreeText(ctx context.Context, sourceID, dataName, freeText string, from, to time.Time) ([]TimedValue, error) {
	refs, err := s.IndexRow(ctx, sourceID, dataName, freeText, from, to, MaxIndexColumns)
	if err != nil {
		return nil, err
	}
	return s.blobsByRefs(ctx, refs)
}

// GetBlobRowsByFreeText is GetBlobsByFreeText returning the raw mapping of
// blob row key to all of that row's columns instead of first-column tuples.
func (s *Store) GetBlobRowsByFreeText(ctx context.Context, sourceID, dataName, freeText string, from, to time.Time) (map[string][]colstore.Column, error) {
	refs, err := s.IndexRow(ctx, sourceID, dataName, freeText, from, to, MaxIndexColumns)
	if err != nil {
		return nil, err
	}
	return s.backend.MultiGet(ctx, CFBlob, dedupKeys(refs), MaxBlobColumns)
}

// GetBlobsMultiData searches the same free text across several data names
// of one source, optionally bounded by [from, to]. Results concatenate in
// per-data-name order, each slice ascending in time.
func (s *Store) GetBlobsMultiData(ctx context.Context, sourceID string, dataNames []string, freeText string, from, to time.Time) ([]TimedValue, error) {
	var refs []IndexRef
	for _, dataName := range dataNames {
		r, err := s.IndexRow(ctx, sourceID, dataName, freeText, from, to, MaxIndexColumns)
		if err != nil {
			return nil, err
		}
		refs = append(refs, r...)
	}
	return s.blobsByRefs(ctx, refs)
}

// blobsByRefs multi-gets the referenced blob rows and emits the first
// column of each as a (timestamp, value) tuple, preserving ref order.
func (s *Store) blobsByRefs(ctx context.Context, refs []IndexRef) ([]TimedValue, error) {
	keys := dedupKeys(refs)
	if len(keys) == 0 {
		return []TimedValue{}, nil
	}
	rows, err := s.backend.MultiGet(ctx, CFBlob, keys, MaxBlobColumns)
	if err != nil {
		return nil, skerr.Wrapf(err, "multi-reading %d blob rows", len(keys))
	}
	ret := make([]TimedValue, 0, len(keys))
	for _, key := range keys {
		cols := rows[key]
		if len(cols) == 0 {
			continue
		}
		ts, err := timekey.ParseTimeColName(cols[0].Name)
		if err != nil {
			sklog.Errorf("Skipping malformed blob column %q in row %s: %s", cols[0].Name, key, err)
			continue
		}
		ret = append(ret, TimedValue{Timestamp: ts, Value: cols[0].Value})
	}
	return ret, nil
}

// dedupKeys extracts the distinct blob row keys of refs, preserving first
// occurrence order.
func dedupKeys(refs []IndexRef) []string {
	seen := make(map[string]bool, len(refs))
	keys := make([]string, 0, len(refs))
	for _, ref := range refs {
		if !seen[ref.BlobRowKey] {
			seen[ref.BlobRowKey] = true
			keys = append(keys, ref.BlobRowKey)
		}
	}
	return keys
}
