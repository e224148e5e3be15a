// Package bt_colstore implements the colstore.Backend interface on
// BigTable. The store occupies one table; each engine column family is a
// BigTable column family and column names are qualifiers, so bytewise
// qualifier order gives the comparator semantics the engine expects.
//
// BigTable has no per-write TTL. Instead every family carries a MaxAge GC
// policy equal to the configured ceiling, and a write with a shorter TTL
// backdates its cell timestamp by (maxCellAge - ttl) so the policy expires
// it on schedule. Garbage collection is lazy, so reads filter out cells
// older than now - maxCellAge to keep expired data from surfacing.
package bt_colstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/bigtable"
	multierror "github.com/hashicorp/go-multierror"
	"go.skia.org/infra/go/now"
	"go.skia.org/infra/go/skerr"
	"go.skia.org/infra/go/util"
	"go.skia.org/timestore/go/colstore"
	"golang.org/x/sync/errgroup"
)

const (
	// writeBatchSize is the number of row mutations per ApplyBulk call,
	// conservative against the 100k-mutation request limit.
	writeBatchSize = 1000

	// readBatchSize caps the row list of a single ReadRows call.
	readBatchSize = 5000

	// DefaultMaxCellAge is the GC ceiling when the config leaves it unset.
	// Writes without a TTL live this long; writes with one expire sooner.
	DefaultMaxCellAge = 365 * 24 * time.Hour
)

// BTConfig describes where the store's table lives.
type BTConfig struct {
	ProjectID  string
	InstanceID string
	TableID    string

	// MaxCellAge is the age-based GC policy applied to every column
	// family. TTLs longer than this are clamped to it. Defaults to
	// DefaultMaxCellAge.
	MaxCellAge time.Duration
}

func (c *BTConfig) maxCellAge() time.Duration {
	if c.MaxCellAge > 0 {
		return c.MaxCellAge
	}
	return DefaultMaxCellAge
}

// BigTableColumnStore implements the colstore.Backend interface on a
// BigTable table.
type BigTableColumnStore struct {
	table      *bigtable.Table
	maxCellAge time.Duration
}

// New returns a store reading and writing the configured table. The table
// and its column families must already exist; see InitBigtable.
func New(ctx context.Context, config *BTConfig) (*BigTableColumnStore, error) {
	client, err := bigtable.NewClient(ctx, config.ProjectID, config.InstanceID)
	if err != nil {
		return nil, skerr.Wrapf(err, "creating bigtable client (project: %s; instance: %s)", config.ProjectID, config.InstanceID)
	}
	return &BigTableColumnStore{
		table:      client.Open(config.TableID),
		maxCellAge: config.maxCellAge(),
	}, nil
}

// cellTimestamp returns the timestamp to stamp on written cells so the GC
// policy expires them after ttl.
func (b *BigTableColumnStore) cellTimestamp(ctx context.Context, ttl time.Duration) bigtable.Timestamp {
	ts := now.Now(ctx)
	if ttl > 0 && ttl < b.maxCellAge {
		ts = ts.Add(ttl - b.maxCellAge)
	}
	return bigtable.Time(ts)
}

// mutationFor assembles the mutation writing cols into one row.
func (b *BigTableColumnStore) mutationFor(cf string, cols map[string][]byte, ts bigtable.Timestamp) *bigtable.Mutation {
	mut := bigtable.NewMutation()
	for name, value := range cols {
		mut.Set(cf, name, ts, value)
	}
	return mut
}

// See documentation for colstore.Backend interface.
func (b *BigTableColumnStore) Insert(ctx context.Context, cf, rowKey string, cols map[string][]byte, ttl time.Duration) error {
	mut := b.mutationFor(cf, cols, b.cellTimestamp(ctx, ttl))
	if err := b.table.Apply(ctx, rowKey, mut); err != nil {
		return skerr.Wrapf(err, "writing row %s", rowKey)
	}
	return nil
}

// See documentation for colstore.Backend interface.
func (b *BigTableColumnStore) BatchInsert(ctx context.Context, cf string, rows map[string]map[string][]byte, ttl time.Duration) error {
	ts := b.cellTimestamp(ctx, ttl)
	rowKeys := make([]string, 0, len(rows))
	muts := make([]*bigtable.Mutation, 0, len(rows))
	for rowKey, cols := range rows {
		rowKeys = append(rowKeys, rowKey)
		muts = append(muts, b.mutationFor(cf, cols, ts))
	}

	var egroup errgroup.Group
	err := util.ChunkIter(len(rowKeys), writeBatchSize, func(start, end int) error {
		egroup.Go(func() error {
			errs, err := b.table.ApplyBulk(ctx, rowKeys[start:end], muts[start:end])
			if err != nil {
				return skerr.Wrapf(err, "writing batch")
			}
			var combined *multierror.Error
			for _, err := range errs {
				combined = multierror.Append(combined, err)
			}
			if combined != nil {
				return skerr.Wrapf(combined.ErrorOrNil(), "writing some rows of batch")
			}
			return nil
		})
		return nil
	})
	if err != nil {
		return skerr.Wrap(err)
	}
	return egroup.Wait()
}

// readFilters builds the filter chain for a column slice at read time.
func (b *BigTableColumnStore) readFilters(ctx context.Context, cf, colStart, colFinish string, limit int) []bigtable.Filter {
	filters := []bigtable.Filter{
		bigtable.FamilyFilter(cf),
		bigtable.LatestNFilter(1),
		// Hide cells the GC policy has expired but not yet collected.
		bigtable.TimestampRangeFilter(now.Now(ctx).Add(-b.maxCellAge), time.Time{}),
	}
	if colStart != "" || colFinish != "" {
		// ColumnRangeFilter's end is exclusive; the engine's colFinish is
		// inclusive. A trailing NUL is the smallest possible extension.
		end := colFinish
		if end != "" {
			end += "\x00"
		}
		filters = append(filters, bigtable.ColumnRangeFilter(cf, colStart, end))
	}
	if limit > 0 {
		filters = append(filters, bigtable.CellsPerRowLimitFilter(limit))
	}
	return filters
}

// extractColumns pulls the (qualifier, value) pairs of one family out of a
// read row, sorted ascending by qualifier.
func extractColumns(row bigtable.Row, cf string) []colstore.Column {
	items := row[cf]
	prefix := cf + ":"
	ret := make([]colstore.Column, 0, len(items))
	for _, item := range items {
		ret = append(ret, colstore.Column{
			Name:  strings.TrimPrefix(item.Column, prefix),
			Value: item.Value,
		})
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name < ret[j].Name })
	return ret
}

// See documentation for colstore.Backend interface. Reversed reads fetch
// the full slice and flip it client-side; BigTable itself only scans
// forward.
func (b *BigTableColumnStore) Get(ctx context.Context, cf, rowKey, colStart, colFinish string, limit int, reversed bool) ([]colstore.Column, error) {
	scanLimit := limit
	if reversed {
		// The limit must keep the *latest* columns, so it cannot be pushed
		// into the scan.
		scanLimit = 0
	}
	row, err := b.table.ReadRow(ctx, rowKey, bigtable.RowFilter(chain(b.readFilters(ctx, cf, colStart, colFinish, scanLimit))))
	if err != nil {
		return nil, skerr.Wrapf(err, "reading row %s", rowKey)
	}
	cols := extractColumns(row, cf)
	if len(cols) == 0 {
		exists, err := b.rowExists(ctx, cf, rowKey)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, colstore.ErrNotFound
		}
	}
	if reversed {
		for i, j := 0, len(cols)-1; i < j; i, j = i+1, j-1 {
			cols[i], cols[j] = cols[j], cols[i]
		}
	}
	if limit > 0 && len(cols) > limit {
		cols = cols[:limit]
	}
	return cols, nil
}

func (b *BigTableColumnStore) rowExists(ctx context.Context, cf, rowKey string) (bool, error) {
	row, err := b.table.ReadRow(ctx, rowKey, bigtable.RowFilter(chain(b.readFilters(ctx, cf, "", "", 1))))
	if err != nil {
		return false, skerr.Wrapf(err, "probing row %s", rowKey)
	}
	return len(row[cf]) > 0, nil
}

// See documentation for colstore.Backend interface.
func (b *BigTableColumnStore) MultiGet(ctx context.Context, cf string, rowKeys []string, limit int) (map[string][]colstore.Column, error) {
	filters := b.readFilters(ctx, cf, "", "", limit)
	var mtx sync.Mutex
	ret := make(map[string][]colstore.Column, len(rowKeys))
	var egroup errgroup.Group
	err := util.ChunkIter(len(rowKeys), readBatchSize, func(start, end int) error {
		batch := bigtable.RowList(rowKeys[start:end])
		egroup.Go(func() error {
			err := b.table.ReadRows(ctx, batch, func(row bigtable.Row) bool {
				cols := extractColumns(row, cf)
				if len(cols) == 0 {
					return true
				}
				mtx.Lock()
				defer mtx.Unlock()
				ret[row.Key()] = cols
				return true
			}, bigtable.RowFilter(chain(filters)))
			if err != nil {
				return skerr.Wrapf(err, "reading row batch")
			}
			return nil
		})
		return nil
	})
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	if err := egroup.Wait(); err != nil {
		return nil, err
	}
	return ret, nil
}

// See documentation for colstore.Backend interface. Only the cells of the
// given family are deleted; the engine's families share one table.
func (b *BigTableColumnStore) Remove(ctx context.Context, cf, rowKey string) error {
	mut := bigtable.NewMutation()
	mut.DeleteCellsInFamily(cf)
	if err := b.table.Apply(ctx, rowKey, mut); err != nil {
		return skerr.Wrapf(err, "removing row %s", rowKey)
	}
	return nil
}

// chain collapses a filter list into a single filter.
func chain(filters []bigtable.Filter) bigtable.Filter {
	if len(filters) == 1 {
		return filters[0]
	}
	return bigtable.ChainFilters(filters...)
}

var _ colstore.Backend = (*BigTableColumnStore)(nil)
