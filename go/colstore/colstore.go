// Package colstore defines the narrow boundary between the timestore engine
// and a wide-column store: rows keyed by strings, columns sorted bytewise,
// values stored as opaque blobs.
//
// The engine encodes all comparator types (64-bit integers, timestamps) as
// fixed-width decimal strings, so a Backend only ever deals with string
// column names under lexicographic order.
package colstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the requested row does not exist. It
// is distinct from I/O errors and is never wrapped by a Backend; callers
// test for it with errors.Is. A row that exists but has no columns inside
// the requested slice is not an error and yields an empty result.
var ErrNotFound = errors.New("colstore: row not found")

// IsNotFound returns true if err signals a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Column is a single (name, value) cell of a row.
type Column struct {
	Name  string
	Value []byte
}

// Backend abstracts the wide-column store underneath the engine.
//
// Column slices are inclusive on both ends; the empty string means
// unbounded on that side. A limit <= 0 means no limit. A ttl of zero means
// the write never expires; a non-zero ttl applies uniformly to every column
// written by the call.
type Backend interface {
	// Insert writes the given columns into a single row.
	Insert(ctx context.Context, cf, rowKey string, cols map[string][]byte, ttl time.Duration) error

	// BatchInsert writes columns into multiple rows in one shot.
	BatchInsert(ctx context.Context, cf string, rows map[string]map[string][]byte, ttl time.Duration) error

	// Get returns the columns of rowKey inside [colStart, colFinish] in
	// ascending name order, or descending if reversed is set. Returns
	// ErrNotFound if the row does not exist.
	Get(ctx context.Context, cf, rowKey, colStart, colFinish string, limit int, reversed bool) ([]Column, error)

	// MultiGet returns up to limit columns for each of the given rows.
	// Missing rows are simply absent from the result.
	MultiGet(ctx context.Context, cf string, rowKeys []string, limit int) (map[string][]Column, error)

	// Remove deletes an entire row.
	Remove(ctx context.Context, cf, rowKey string) error
}
