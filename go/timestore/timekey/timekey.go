// Package timekey converts timestamps into the row keys and column names
// used by the timestore column families.
//
// Time-series shards hold at most one hour of samples. Within a shard the
// column name is the number of picoseconds since the start of the shard's
// hour, optionally perturbed by a sub-microsecond jitter on write so that
// two samples taken in the same microsecond do not overwrite each other.
// The jitter lies strictly below microsecond precision and is rounded away
// when the column name is turned back into a timestamp.
package timekey

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

const (
	// HourLayout is the fixed-width UTC hour stamp that terminates hourly
	// row keys. Changing it is a schema break.
	HourLayout = "2006010215"

	// picosPerMicro is the factor between the stored picosecond column
	// names and the microsecond precision of time.Time values we accept.
	picosPerMicro = int64(1000000)

	// maxJitter is the exclusive upper bound of the randomization added to
	// high-res column names. 60*60*1e12 + 1e6 < 2^63, so the jittered
	// value always fits a signed 64-bit integer.
	maxJitter = int64(1000000)
)

// FloorToHour returns t in UTC with minutes, seconds and sub-second
// components zeroed.
func FloorToHour(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
}

// PicosSinceHour returns the number of picoseconds between t and the start
// of t's hour, at microsecond accuracy.
func PicosSinceHour(t time.Time) int64 {
	t = t.UTC()
	micros := int64(t.Minute()*60+t.Second())*1000000 + int64(t.Nanosecond()/1000)
	return micros * picosPerMicro
}

// HighResColumn returns the 64-bit column name for a sample taken at t.
// With exact set the value is the plain picosecond offset; this is what
// reads use so that slice bounds match the caller's interval exactly.
// Otherwise a jitter in [1, 1e6] is added to keep colliding same-microsecond
// writes apart.
func HighResColumn(t time.Time, exact bool) int64 {
	if exact {
		return PicosSinceHour(t)
	}
	return PicosSinceHour(t) + rand.Int63n(maxJitter) + 1
}

// Reconstruct returns the timestamp encoded by a high-res column name
// relative to the shard's hour. Integer division rounds any write jitter
// away, so the result is accurate to the microsecond.
func Reconstruct(hourStart time.Time, highres int64) time.Time {
	return hourStart.Add(time.Duration(highres/picosPerMicro) * time.Microsecond)
}

// HourlyColName encodes a high-res column value as a fixed-width decimal
// string so that bytewise column order equals numeric order. The largest
// possible value (just under 3.6e15) fits in 16 digits.
func HourlyColName(v int64) string {
	return fmt.Sprintf("%016d", v)
}

// ParseHourlyColName reverses HourlyColName.
func ParseHourlyColName(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// TimeColName encodes an absolute UTC timestamp as microseconds since the
// Unix epoch, fixed-width, for the column families whose comparator is a
// timestamp (blob, index, and the latest-snapshot "-ts" columns). 16 digits
// cover timestamps beyond the year 2200.
func TimeColName(t time.Time) string {
	return fmt.Sprintf("%016d", t.UTC().UnixMicro())
}

// ParseTimeColName reverses TimeColName. The result is in UTC.
func ParseTimeColName(s string) (time.Time, error) {
	micros, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(micros).UTC(), nil
}

// UnixMillis returns t as integer milliseconds since the Unix epoch.
func UnixMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// HourlyRowKey returns the row key of the shard holding samples for
// (sourceID, dataName) during t's UTC hour. Hyphens inside sourceID are
// unambiguous because the hour stamp suffix is fixed-width and terminal.
func HourlyRowKey(sourceID, dataName string, t time.Time) string {
	return join(sourceID, dataName, t.UTC().Format(HourLayout))
}

// BlobRowKey returns the row key of the blob entry for a datum taken at t.
func BlobRowKey(sourceID, dataName string, t time.Time) string {
	return join(sourceID, dataName, strconv.FormatInt(UnixMillis(t), 10))
}

// IndexRowKey returns the row key of the inverted-index row for a
// normalized substring.
func IndexRowKey(sourceID, dataName, substring string) string {
	return join(sourceID, dataName, substring)
}

func join(parts ...string) string {
	return strings.Join(parts, "-")
}
