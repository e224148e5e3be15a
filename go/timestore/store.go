// Package timestore implements a time-series storage and retrieval engine
// on top of a generic wide-column store.
//
// Writes fan out over three coordinated column families: hourly time-series
// shards for windowed reads, a blob store for full payloads, and an
// inverted index that maps word substrings back to blob rows for free-text
// search. Reads stitch hourly shards back together with exact sub-hour
// bounds. The engine itself is stateless apart from counters and the
// backend handle; each operation performs its backend calls synchronously
// and returns.
package timestore

import (
	"context"
	"time"

	"go.skia.org/infra/go/metrics2"
	"go.skia.org/timestore/go/colstore"
	"go.skia.org/timestore/go/shardcache"
	"go.skia.org/timestore/go/timestore/indexer"
	"go.skia.org/timestore/go/timestore/timekey"
)

const (
	// Column-family names. These are part of the storage schema; renaming
	// them is a schema break.
	CFHourly = "HourlyTimestampedData"
	CFBlob   = "BlobData"
	CFIndex  = "BlobDataIndex"
	CFLatest = "LatestData"

	// Default read caps. A capped read returns a truncated prefix; callers
	// must not assume exhaustion.
	MaxTimeSeriesColumns = 1000
	MaxIndexColumns      = 100
	MaxBlobColumns       = 100

	// DefaultIndexDepth is the maximum number of adjacent words joined
	// into one index substring.
	DefaultIndexDepth = 5

	// DefaultShardCacheTTL bounds how long a historical shard may be
	// served from the cache.
	DefaultShardCacheTTL = 8 * time.Hour

	// tsSuffix is appended to the data name for the column that carries
	// the write time of a latest-snapshot value.
	tsSuffix = "-ts"
)

// ColumnFamilies returns the names of all column families the engine
// writes, for use by backend schema bootstrap helpers.
func ColumnFamilies() []string {
	return []string{CFHourly, CFBlob, CFIndex, CFLatest}
}

// Config holds the tunables of a Store. The zero value is usable.
type Config struct {
	// IndexDepth is the n-gram depth of the string indexer. Defaults to
	// DefaultIndexDepth.
	IndexDepth int

	// DisableJitter turns off the sub-microsecond randomization of
	// time-series column names. Keep jitter on in production to avoid
	// same-microsecond overwrites; disabling is useful for deterministic
	// tests.
	DisableJitter bool

	// ShardCache, when set, is consulted for historical hourly shards
	// during range reads. The current UTC hour is never cached.
	ShardCache shardcache.Cache

	// ShardCacheTTL overrides DefaultShardCacheTTL.
	ShardCacheTTL time.Duration
}

// Store is the storage engine. It is safe for concurrent use to the extent
// its Backend is.
type Store struct {
	backend       colstore.Backend
	indexDepth    int
	disableJitter bool
	shardCache    shardcache.Cache
	shardCacheTTL time.Duration

	cacheHits metrics2.Counter
	rangeGets metrics2.Counter
}

// New returns a Store on top of the given backend. A nil config selects all
// defaults.
func New(backend colstore.Backend, cfg *Config) *Store {
	if cfg == nil {
		cfg = &Config{}
	}
	indexDepth := cfg.IndexDepth
	if indexDepth <= 0 {
		indexDepth = DefaultIndexDepth
	}
	cacheTTL := cfg.ShardCacheTTL
	if cacheTTL <= 0 {
		cacheTTL = DefaultShardCacheTTL
	}
	return &Store{
		backend:       backend,
		indexDepth:    indexDepth,
		disableJitter: cfg.DisableJitter,
		shardCache:    cfg.ShardCache,
		shardCacheTTL: cacheTTL,
		cacheHits:     metrics2.GetCounter("timestore_shard_cache_hits", nil),
		rangeGets:     metrics2.GetCounter("timestore_range_gets", nil),
	}
}

// highResColumn returns the column name for a write at t, honoring the
// jitter setting.
func (s *Store) highResColumn(t time.Time) int64 {
	return timekey.HighResColumn(t, s.disableJitter)
}

// InsertTimestamped writes one sample into its hourly shard.
func (s *Store) InsertTimestamped(ctx context.Context, dp *DataPoint, ttl time.Duration) error {
	cols := map[string][]byte{
		timekey.HourlyColName(s.highResColumn(dp.UTC())): dp.Value,
	}
	return s.backend.Insert(ctx, CFHourly, dp.HourlyRowKey(), cols, ttl)
}

// BatchInsertTimestamped writes samples into their hourly shards with a
// single backend call. Samples that land on the same jittered column name
// collide on the backend; the engine does not deduplicate.
func (s *Store) BatchInsertTimestamped(ctx context.Context, dps []*DataPoint, ttl time.Duration) error {
	rows := map[string]map[string][]byte{}
	for _, dp := range dps {
		rowKey := dp.HourlyRowKey()
		cols, ok := rows[rowKey]
		if !ok {
			cols = map[string][]byte{}
			rows[rowKey] = cols
		}
		cols[timekey.HourlyColName(s.highResColumn(dp.UTC()))] = dp.Value
	}
	return s.backend.BatchInsert(ctx, CFHourly, rows, ttl)
}

// InsertBlob stores the datum's payload as a blob entry and returns the
// blob row key.
func (s *Store) InsertBlob(ctx context.Context, dp *DataPoint, ttl time.Duration) (string, error) {
	rowKey := dp.BlobRowKey()
	cols := map[string][]byte{
		timekey.TimeColName(dp.UTC()): dp.Value,
	}
	if err := s.backend.Insert(ctx, CFBlob, rowKey, cols, ttl); err != nil {
		return "", err
	}
	return rowKey, nil
}

// batchInsertBlobs stores the payloads of all given datums with one backend
// call.
func (s *Store) batchInsertBlobs(ctx context.Context, dps []*DataPoint, ttl time.Duration) error {
	rows := map[string]map[string][]byte{}
	for _, dp := range dps {
		rowKey := dp.BlobRowKey()
		cols, ok := rows[rowKey]
		if !ok {
			cols = map[string][]byte{}
			rows[rowKey] = cols
		}
		cols[timekey.TimeColName(dp.UTC())] = dp.Value
	}
	return s.backend.BatchInsert(ctx, CFBlob, rows, ttl)
}

// BatchInsertIndexes appends the given entries to their index rows with one
// backend call. Columns for entries sharing an index row are merged.
func (s *Store) BatchInsertIndexes(ctx context.Context, entries []*IndexEntry, ttl time.Duration) error {
	rows := map[string]map[string][]byte{}
	for _, e := range entries {
		rowKey := e.RowKey()
		cols, ok := rows[rowKey]
		if !ok {
			cols = map[string][]byte{}
			rows[rowKey] = cols
		}
		cols[timekey.TimeColName(e.Timestamp.UTC())] = []byte(e.BlobRowKey)
	}
	return s.backend.BatchInsert(ctx, CFIndex, rows, ttl)
}

// indexEntries derives the index entries for a datum pointing at the given
// blob row. IndexText takes precedence over the payload.
func (s *Store) indexEntries(dp *DataPoint, blobRowKey string) []*IndexEntry {
	text := dp.IndexText
	if text == "" {
		text = string(dp.Value)
	}
	substrings := indexer.Substrings(indexer.Normalize(text), s.indexDepth)
	ret := make([]*IndexEntry, 0, len(substrings))
	for substring := range substrings {
		ret = append(ret, &IndexEntry{
			SourceID:   dp.SourceID,
			Name:       dp.Name,
			Substring:  substring,
			Timestamp:  dp.UTC(),
			BlobRowKey: blobRowKey,
		})
	}
	return ret
}

// InsertIndexableBlob stores the datum in the time-series shard, as a blob,
// and under every index substring derived from it. All writes carry the
// same TTL so the index is never left pointing at longer-lived blobs than
// it outlives itself. The fan-out is best-effort sequential; a partial
// failure can leave the time series written without blob or index, and
// callers that need all-or-nothing must retry.
func (s *Store) InsertIndexableBlob(ctx context.Context, dp *DataPoint, ttl time.Duration) error {
	if err := s.InsertTimestamped(ctx, dp, ttl); err != nil {
		return err
	}
	blobRowKey, err := s.InsertBlob(ctx, dp, ttl)
	if err != nil {
		return err
	}
	return s.BatchInsertIndexes(ctx, s.indexEntries(dp, blobRowKey), ttl)
}

// BatchInsertIndexableBlobs is the batched form of InsertIndexableBlob: one
// backend call per column family, aggregating all inputs. Nil entries are
// filtered out; if nothing remains the call is a no-op with no backend
// traffic.
func (s *Store) BatchInsertIndexableBlobs(ctx context.Context, dps []*DataPoint, ttl time.Duration) error {
	filtered := make([]*DataPoint, 0, len(dps))
	for _, dp := range dps {
		if dp != nil {
			filtered = append(filtered, dp)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if err := s.BatchInsertTimestamped(ctx, filtered, ttl); err != nil {
		return err
	}
	if err := s.batchInsertBlobs(ctx, filtered, ttl); err != nil {
		return err
	}
	var entries []*IndexEntry
	for _, dp := range filtered {
		entries = append(entries, s.indexEntries(dp, dp.BlobRowKey())...)
	}
	return s.BatchInsertIndexes(ctx, entries, ttl)
}
