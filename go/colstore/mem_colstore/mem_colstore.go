// Package mem_colstore implements the colstore.Backend interface in memory.
// It is intended for tests and local development; column order is computed
// on read rather than maintained.
package mem_colstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.skia.org/infra/go/now"
	"go.skia.org/timestore/go/colstore"
)

type cell struct {
	value   []byte
	expires time.Time // zero means never
}

// MemColumnStore implements the colstore.Backend interface in memory.
type MemColumnStore struct {
	mtx  sync.RWMutex
	rows map[string]map[string]map[string]cell // cf -> rowKey -> colName -> cell

	// Test introspection.
	lastTTL    map[string]time.Duration
	writeCalls map[string]int
}

// New returns an empty in-memory colstore.Backend implementation.
func New() *MemColumnStore {
	return &MemColumnStore{
		rows:       map[string]map[string]map[string]cell{},
		lastTTL:    map[string]time.Duration{},
		writeCalls: map[string]int{},
	}
}

// See documentation for colstore.Backend interface.
func (m *MemColumnStore) Insert(ctx context.Context, cf, rowKey string, cols map[string][]byte, ttl time.Duration) error {
	return m.BatchInsert(ctx, cf, map[string]map[string][]byte{rowKey: cols}, ttl)
}

// See documentation for colstore.Backend interface.
func (m *MemColumnStore) BatchInsert(ctx context.Context, cf string, rows map[string]map[string][]byte, ttl time.Duration) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	var expires time.Time
	if ttl > 0 {
		expires = now.Now(ctx).Add(ttl)
	}
	cfRows, ok := m.rows[cf]
	if !ok {
		cfRows = map[string]map[string]cell{}
		m.rows[cf] = cfRows
	}
	for rowKey, cols := range rows {
		row, ok := cfRows[rowKey]
		if !ok {
			row = map[string]cell{}
			cfRows[rowKey] = row
		}
		for name, value := range cols {
			row[name] = cell{value: value, expires: expires}
		}
	}
	m.lastTTL[cf] = ttl
	m.writeCalls[cf]++
	return nil
}

// See documentation for colstore.Backend interface.
func (m *MemColumnStore) Get(ctx context.Context, cf, rowKey, colStart, colFinish string, limit int, reversed bool) ([]colstore.Column, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	row, ok := m.rows[cf][rowKey]
	if !ok {
		return nil, colstore.ErrNotFound
	}
	return sliceRow(ctx, row, colStart, colFinish, limit, reversed), nil
}

// See documentation for colstore.Backend interface.
func (m *MemColumnStore) MultiGet(ctx context.Context, cf string, rowKeys []string, limit int) (map[string][]colstore.Column, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	ret := make(map[string][]colstore.Column, len(rowKeys))
	for _, rowKey := range rowKeys {
		row, ok := m.rows[cf][rowKey]
		if !ok {
			continue
		}
		ret[rowKey] = sliceRow(ctx, row, "", "", limit, false)
	}
	return ret, nil
}

// See documentation for colstore.Backend interface.
func (m *MemColumnStore) Remove(ctx context.Context, cf, rowKey string) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	delete(m.rows[cf], rowKey)
	return nil
}

// sliceRow returns the live columns of row inside the inclusive
// [colStart, colFinish] range. Caller must hold at least a read lock.
func sliceRow(ctx context.Context, row map[string]cell, colStart, colFinish string, limit int, reversed bool) []colstore.Column {
	ts := now.Now(ctx)
	names := make([]string, 0, len(row))
	for name, c := range row {
		if !c.expires.IsZero() && c.expires.Before(ts) {
			continue
		}
		if colStart != "" && name < colStart {
			continue
		}
		if colFinish != "" && name > colFinish {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if reversed {
		for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
			names[i], names[j] = names[j], names[i]
		}
	}
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	ret := make([]colstore.Column, 0, len(names))
	for _, name := range names {
		ret = append(ret, colstore.Column{Name: name, Value: row[name].value})
	}
	return ret
}

// LastTTL returns the TTL passed to the most recent write against the given
// column family. Test helper.
func (m *MemColumnStore) LastTTL(cf string) time.Duration {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return m.lastTTL[cf]
}

// WriteCalls returns the number of Insert/BatchInsert calls made against
// the given column family. Test helper.
func (m *MemColumnStore) WriteCalls(cf string) int {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return m.writeCalls[cf]
}

var _ colstore.Backend = (*MemColumnStore)(nil)
