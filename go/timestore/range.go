package timestore

import (
	"bytes"
	"context"
	"encoding/gob"
	"time"

	"go.skia.org/infra/go/now"
	"go.skia.org/infra/go/skerr"
	"go.skia.org/infra/go/sklog"
	"go.skia.org/timestore/go/colstore"
	"go.skia.org/timestore/go/timestore/timekey"
)

// shardRef identifies one hourly shard touched by a range read. The hour is
// carried alongside the row key so it never has to be reparsed out of the
// key suffix.
type shardRef struct {
	rowKey    string
	hourStart time.Time
}

// GetRange returns all samples of (sourceID, dataName) inside
// [from, to], ascending in time, capped at maxCount (default
// MaxTimeSeriesColumns). A result of exactly maxCount samples may be a
// truncated prefix of the full range; callers must not assume exhaustion.
func (s *Store) GetRange(ctx context.Context, sourceID, dataName string, from, to time.Time, maxCount int) ([]TimedValue, error) {
	s.rangeGets.Inc(1)
	if maxCount <= 0 {
		maxCount = MaxTimeSeriesColumns
	}
	from = from.UTC()
	to = to.UTC()

	// Enumerate the inclusive hourly sequence covering [from, to]. An
	// inverted range enumerates nothing and returns empty.
	var hours []time.Time
	for curr, last := timekey.FloorToHour(from), timekey.FloorToHour(to); !curr.After(last); curr = curr.Add(time.Hour) {
		hours = append(hours, curr)
	}
	if len(hours) == 0 {
		return []TimedValue{}, nil
	}

	shards := make([]shardRef, len(hours))
	for i, h := range hours {
		shards[i] = shardRef{
			rowKey:    timekey.HourlyRowKey(sourceID, dataName, h),
			hourStart: h,
		}
	}

	var ret []TimedValue
	if len(hours) == 1 {
		cols, err := s.loadShardSlice(ctx, shards[0], from, to, maxCount)
		if err != nil {
			return nil, err
		}
		return appendShard(ret, shards[0], cols), nil
	}

	// Multiple shards: the first and last are partial, everything in
	// between is read whole. The budget is decremented by each shard's
	// yield so the total never exceeds maxCount.
	budget := maxCount
	for i, shard := range shards {
		if budget <= 0 {
			break
		}
		var cols []colstore.Column
		var err error
		switch {
		case i == 0:
			cols, err = s.loadShardSlice(ctx, shard, from, hours[1].Add(-time.Microsecond), budget)
		case i < len(shards)-1:
			cols, err = s.loadFullShard(ctx, shard, budget)
		default:
			cols, err = s.loadShardSlice(ctx, shard, hours[len(hours)-1], to.Add(time.Microsecond), budget)
		}
		if err != nil {
			return nil, err
		}
		budget -= len(cols)
		ret = appendShard(ret, shard, cols)
	}
	return ret, nil
}

// loadShardSlice reads the columns of one shard between two instants. The
// bounds are encoded with exact (unjittered) high-res columns so the slice
// matches the caller's interval deterministically. A missing row is an
// empty shard, not an error.
func (s *Store) loadShardSlice(ctx context.Context, shard shardRef, from, to time.Time, limit int) ([]colstore.Column, error) {
	colStart := timekey.HourlyColName(timekey.HighResColumn(from, true))
	colFinish := timekey.HourlyColName(timekey.HighResColumn(to, true))
	cols, err := s.backend.Get(ctx, CFHourly, shard.rowKey, colStart, colFinish, limit, false)
	if colstore.IsNotFound(err) {
		return nil, nil
	} else if err != nil {
		return nil, skerr.Wrapf(err, "reading shard %s", shard.rowKey)
	}
	return cols, nil
}

// loadFullShard reads an entire shard, going through the shard cache when
// one is configured and the shard's hour has completely passed. Shards for
// the current hour are still growing and are never cached.
func (s *Store) loadFullShard(ctx context.Context, shard shardRef, limit int) ([]colstore.Column, error) {
	cacheable := s.shardCache != nil && shard.hourStart.Before(timekey.FloorToHour(now.Now(ctx)))
	if cacheable {
		if enc, ok := s.shardCache.Get(ctx, shard.rowKey); ok {
			cols, err := decodeShard(enc)
			if err == nil {
				s.cacheHits.Inc(1)
				if limit > 0 && len(cols) > limit {
					cols = cols[:limit]
				}
				return cols, nil
			}
			sklog.Warningf("Discarding undecodable cached shard %s: %s", shard.rowKey, err)
		}
	}
	cols, err := s.backend.Get(ctx, CFHourly, shard.rowKey, "", "", limit, false)
	if colstore.IsNotFound(err) {
		return nil, nil
	} else if err != nil {
		return nil, skerr.Wrapf(err, "reading shard %s", shard.rowKey)
	}
	// Only cache shards we know to be complete, i.e. reads the limit did
	// not clip.
	if cacheable && (limit <= 0 || len(cols) < limit) {
		if enc, err := encodeShard(cols); err == nil {
			s.shardCache.Set(ctx, shard.rowKey, enc, s.shardCacheTTL)
		} else {
			sklog.Warningf("Failed to encode shard %s for caching: %s", shard.rowKey, err)
		}
	}
	return cols, nil
}

// appendShard converts a shard's columns back into timestamped values and
// appends them to dst in the shard's natural ascending order.
func appendShard(dst []TimedValue, shard shardRef, cols []colstore.Column) []TimedValue {
	for _, col := range cols {
		highres, err := timekey.ParseHourlyColName(col.Name)
		if err != nil {
			sklog.Errorf("Skipping malformed column %q in shard %s: %s", col.Name, shard.rowKey, err)
			continue
		}
		dst = append(dst, TimedValue{
			Timestamp: timekey.Reconstruct(shard.hourStart, highres),
			Value:     col.Value,
		})
	}
	return dst
}

func encodeShard(cols []colstore.Column) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cols); err != nil {
		return nil, skerr.Wrapf(err, "gob-encoding shard")
	}
	return buf.Bytes(), nil
}

func decodeShard(enc []byte) ([]colstore.Column, error) {
	var cols []colstore.Column
	if err := gob.NewDecoder(bytes.NewReader(enc)).Decode(&cols); err != nil {
		return nil, skerr.Wrapf(err, "gob-decoding shard")
	}
	return cols, nil
}
