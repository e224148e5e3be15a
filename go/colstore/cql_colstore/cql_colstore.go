// Package cql_colstore implements the colstore.Backend interface on
// Cassandra via CQL. Each column family maps to one table of the form
//
//	CREATE TABLE "<cf>" (key text, col text, value blob,
//	    PRIMARY KEY (key, col)) WITH CLUSTERING ORDER BY (col ASC);
//
// so that a column slice becomes a clustering-column range query and
// per-write TTLs map directly onto USING TTL.
package cql_colstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.skia.org/infra/go/skerr"
	"go.skia.org/infra/go/sklog"
	"go.skia.org/timestore/go/colstore"
	"golang.org/x/sync/errgroup"
)

// CQLConfig describes the cluster and keyspace the store lives in.
type CQLConfig struct {
	Hosts    []string
	Keyspace string

	// Consistency for all reads and writes. Defaults to LocalQuorum.
	Consistency gocql.Consistency

	// Timeout per query. Zero keeps the driver default.
	Timeout time.Duration
}

// CQLColumnStore implements the colstore.Backend interface on a Cassandra
// session.
type CQLColumnStore struct {
	session *gocql.Session
}

// New connects to the configured cluster and returns a ready store.
func New(cfg *CQLConfig) (*CQLColumnStore, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = cfg.Consistency
	if cluster.Consistency == 0 {
		cluster.Consistency = gocql.LocalQuorum
	}
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	}
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, skerr.Wrapf(err, "connecting to %s/%s", strings.Join(cfg.Hosts, ","), cfg.Keyspace)
	}
	return &CQLColumnStore{session: session}, nil
}

// FromSession wraps an existing session, e.g. one shared with other stores.
func FromSession(session *gocql.Session) *CQLColumnStore {
	return &CQLColumnStore{session: session}
}

// Close tears down the underlying session.
func (s *CQLColumnStore) Close() {
	s.session.Close()
}

// InitSchema creates the tables for the given column families if they do
// not exist yet. The keyspace itself must already exist.
func (s *CQLColumnStore) InitSchema(ctx context.Context, colFamilies []string) error {
	for _, cf := range colFamilies {
		stmt := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (key text, col text, value blob, PRIMARY KEY (key, col)) WITH CLUSTERING ORDER BY (col ASC)`,
			quote(cf))
		if err := s.session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return skerr.Wrapf(err, "creating table for column family %s", cf)
		}
		sklog.Infof("Ensured table for column family %s", cf)
	}
	return nil
}

// quote returns cf as a quoted CQL identifier, preserving its case.
func quote(cf string) string {
	return `"` + cf + `"`
}

// ttlSeconds converts a TTL to the integer bound into USING TTL; zero means
// no expiry in CQL as well.
func ttlSeconds(ttl time.Duration) int {
	return int(ttl / time.Second)
}

// See documentation for colstore.Backend interface.
func (s *CQLColumnStore) Insert(ctx context.Context, cf, rowKey string, cols map[string][]byte, ttl time.Duration) error {
	return s.BatchInsert(ctx, cf, map[string]map[string][]byte{rowKey: cols}, ttl)
}

// See documentation for colstore.Backend interface.
func (s *CQLColumnStore) BatchInsert(ctx context.Context, cf string, rows map[string]map[string][]byte, ttl time.Duration) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (key, col, value) VALUES (?, ?, ?) USING TTL ?`, quote(cf))
	batch := s.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	n := 0
	for rowKey, cols := range rows {
		for name, value := range cols {
			batch.Query(stmt, rowKey, name, value, ttlSeconds(ttl))
			n++
		}
	}
	if n == 0 {
		return nil
	}
	if n == 1 {
		// Skip the batch machinery for the common single-column insert.
		e := batch.Entries[0]
		if err := s.session.Query(e.Stmt, e.Args...).WithContext(ctx).Exec(); err != nil {
			return skerr.Wrapf(err, "inserting into %s", cf)
		}
		return nil
	}
	if err := s.session.ExecuteBatch(batch); err != nil {
		return skerr.Wrapf(err, "batch-inserting %d columns into %s", n, cf)
	}
	return nil
}

// See documentation for colstore.Backend interface.
func (s *CQLColumnStore) Get(ctx context.Context, cf, rowKey, colStart, colFinish string, limit int, reversed bool) ([]colstore.Column, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT col, value FROM %s WHERE key = ?`, quote(cf))
	args := []interface{}{rowKey}
	if colStart != "" {
		sb.WriteString(` AND col >= ?`)
		args = append(args, colStart)
	}
	if colFinish != "" {
		sb.WriteString(` AND col <= ?`)
		args = append(args, colFinish)
	}
	if reversed {
		sb.WriteString(` ORDER BY col DESC`)
	}
	if limit > 0 {
		fmt.Fprintf(&sb, ` LIMIT %d`, limit)
	}

	iter := s.session.Query(sb.String(), args...).WithContext(ctx).Iter()
	var ret []colstore.Column
	var name string
	var value []byte
	for iter.Scan(&name, &value) {
		ret = append(ret, colstore.Column{Name: name, Value: append([]byte{}, value...)})
	}
	if err := iter.Close(); err != nil {
		return nil, skerr.Wrapf(err, "reading %s row %s", cf, rowKey)
	}
	if len(ret) == 0 {
		// Distinguish an empty slice of an existing row from a missing
		// row with a cheap existence probe.
		exists, err := s.rowExists(ctx, cf, rowKey)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, colstore.ErrNotFound
		}
	}
	return ret, nil
}

func (s *CQLColumnStore) rowExists(ctx context.Context, cf, rowKey string) (bool, error) {
	stmt := fmt.Sprintf(`SELECT col FROM %s WHERE key = ? LIMIT 1`, quote(cf))
	var name string
	err := s.session.Query(stmt, rowKey).WithContext(ctx).Scan(&name)
	if err == gocql.ErrNotFound {
		return false, nil
	} else if err != nil {
		return false, skerr.Wrapf(err, "probing %s row %s", cf, rowKey)
	}
	return true, nil
}

// See documentation for colstore.Backend interface. Cassandra cannot cap
// columns per key inside a single IN query, so the keys are read in
// parallel instead.
func (s *CQLColumnStore) MultiGet(ctx context.Context, cf string, rowKeys []string, limit int) (map[string][]colstore.Column, error) {
	var mtx sync.Mutex
	ret := make(map[string][]colstore.Column, len(rowKeys))
	var egroup errgroup.Group
	for _, rowKey := range rowKeys {
		rowKey := rowKey
		egroup.Go(func() error {
			cols, err := s.Get(ctx, cf, rowKey, "", "", limit, false)
			if colstore.IsNotFound(err) {
				return nil
			} else if err != nil {
				return err
			}
			mtx.Lock()
			defer mtx.Unlock()
			ret[rowKey] = cols
			return nil
		})
	}
	if err := egroup.Wait(); err != nil {
		return nil, skerr.Wrapf(err, "multi-reading %d rows from %s", len(rowKeys), cf)
	}
	return ret, nil
}

// See documentation for colstore.Backend interface.
func (s *CQLColumnStore) Remove(ctx context.Context, cf, rowKey string) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, quote(cf))
	if err := s.session.Query(stmt, rowKey).WithContext(ctx).Exec(); err != nil {
		return skerr.Wrapf(err, "removing %s row %s", cf, rowKey)
	}
	return nil
}

var _ colstore.Backend = (*CQLColumnStore)(nil)
