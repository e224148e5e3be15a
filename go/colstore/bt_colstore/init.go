package bt_colstore

import (
	"context"

	"cloud.google.com/go/bigtable"
	"go.skia.org/infra/go/skerr"
	"go.skia.org/infra/go/sklog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// InitBigtable creates the store's table and the given column families if
// they don't exist already, and installs the MaxAge GC policy that backs
// per-write TTLs.
func InitBigtable(ctx context.Context, config *BTConfig, colFamilies []string) error {
	adminClient, err := bigtable.NewAdminClient(ctx, config.ProjectID, config.InstanceID)
	if err != nil {
		return skerr.Wrapf(err, "creating admin client")
	}
	defer func() {
		if err := adminClient.Close(); err != nil {
			sklog.Errorf("Failed to close admin client: %s", err)
		}
	}()

	// Create the table. Ignore error if it already existed.
	err, code := ErrToCode(adminClient.CreateTable(ctx, config.TableID))
	if err != nil && code != codes.AlreadyExists {
		return skerr.Wrapf(err, "creating table %s", config.TableID)
	}
	sklog.Infof("Ensured table: %s", config.TableID)

	for _, cf := range colFamilies {
		err, code = ErrToCode(adminClient.CreateColumnFamily(ctx, config.TableID, cf))
		if err != nil && code != codes.AlreadyExists {
			return skerr.Wrapf(err, "creating column family %s in table %s", cf, config.TableID)
		}
		if err := adminClient.SetGCPolicy(ctx, config.TableID, cf, bigtable.MaxAgePolicy(config.maxCellAge())); err != nil {
			return skerr.Wrapf(err, "setting GC policy on %s in table %s", cf, config.TableID)
		}
	}
	return nil
}

// DeleteTable deletes the store's table, tolerating a table that is already
// gone. Intended for tests and teardown tooling.
func DeleteTable(ctx context.Context, config *BTConfig) error {
	adminClient, err := bigtable.NewAdminClient(ctx, config.ProjectID, config.InstanceID)
	if err != nil {
		return skerr.Wrapf(err, "creating admin client")
	}
	defer func() {
		if err := adminClient.Close(); err != nil {
			sklog.Errorf("Failed to close admin client: %s", err)
		}
	}()
	err, code := ErrToCode(adminClient.DeleteTable(ctx, config.TableID))
	if err != nil && code != codes.NotFound {
		return skerr.Wrapf(err, "deleting table %s", config.TableID)
	}
	return nil
}

// ErrToCode returns the error that is passed and a gRPC code extracted from
// the error. If the error did not originate in gRPC the returned code is
// codes.Unknown.
func ErrToCode(err error) (error, codes.Code) {
	st, _ := status.FromError(err)
	return err, st.Code()
}
