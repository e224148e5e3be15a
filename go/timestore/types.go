package timestore

import (
	"time"

	"go.skia.org/timestore/go/timestore/timekey"
)

// DataPoint is a single timestamped datum emitted by a source. Values are
// opaque byte payloads; when a datum is indexed the payload (or IndexText,
// if set) is treated as UTF-8 text. DataPoints are immutable once handed to
// the Store.
type DataPoint struct {
	SourceID  string
	Name      string
	Timestamp time.Time
	Value     []byte

	// IndexText, when non-empty, is indexed instead of Value. Useful when
	// Value carries a rendered record but only part of it should be
	// searchable.
	IndexText string
}

// UTC returns the datum's timestamp in UTC. Timestamps without an explicit
// zone are expected to already be UTC.
func (p *DataPoint) UTC() time.Time {
	return p.Timestamp.UTC()
}

// HourlyRowKey returns the key of the time-series shard this datum lands in.
func (p *DataPoint) HourlyRowKey() string {
	return timekey.HourlyRowKey(p.SourceID, p.Name, p.Timestamp)
}

// BlobRowKey returns the key of the blob entry for this datum.
func (p *DataPoint) BlobRowKey() string {
	return timekey.BlobRowKey(p.SourceID, p.Name, p.Timestamp)
}

// IndexEntry is one inverted-index cell: it maps a normalized substring back
// to the blob row that contained it at a given time.
type IndexEntry struct {
	SourceID   string
	Name       string
	Substring  string
	Timestamp  time.Time
	BlobRowKey string
}

// RowKey returns the index row this entry is appended to.
func (e *IndexEntry) RowKey() string {
	return timekey.IndexRowKey(e.SourceID, e.Name, e.Substring)
}

// TimedValue is a (timestamp, payload) pair returned by range reads and
// free-text searches.
type TimedValue struct {
	Timestamp time.Time
	Value     []byte
}

// IndexRef is one resolved index column: the time a blob was written and
// the key of the blob row holding it.
type IndexRef struct {
	Timestamp  time.Time
	BlobRowKey string
}
