package db

import (
	"context"
	"io"
	"testing"

	"github.com/infinivision/recdb/record"
	"github.com/infinivision/recdb/store"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InMemory = true
	cfg.LogWriter = io.Discard
	return cfg
}

func plainOptions() store.Options {
	return store.Options{CappedMaxSize: -1, CappedMaxDocs: -1}
}

func TestCreateAndUseStores(t *testing.T) {
	d, err := Open(testConfig())
	require.NoError(t, err)
	defer d.Close()
	ctx := context.Background()

	users, err := d.CreateRecordStore("app.users", "", plainOptions())
	require.NoError(t, err)
	items, err := d.CreateRecordStore("app.items", "", plainOptions())
	require.NoError(t, err)

	tx := d.Begin(ctx)
	uid, err := users.Insert(tx, []byte("alice"))
	require.NoError(t, err)
	iid, err := items.Insert(tx, []byte("widget"))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	// distinct prefixes keep the collections disjoint
	tx = d.Begin(ctx)
	defer tx.Rollback()
	require.Equal(t, int64(1), users.NumRecords(tx))
	require.Equal(t, int64(1), items.NumRecords(tx))
	v, err := users.Find(tx, uid)
	require.NoError(t, err)
	require.Equal(t, []byte("alice"), v)
	v, err = items.Find(tx, iid)
	require.NoError(t, err)
	require.Equal(t, []byte("widget"), v)
}

func TestCreateRecordStoreIdempotent(t *testing.T) {
	d, err := Open(testConfig())
	require.NoError(t, err)
	defer d.Close()

	a, err := d.CreateRecordStore("app.users", "u-1", plainOptions())
	require.NoError(t, err)
	b, err := d.CreateRecordStore("app.users", "u-1", plainOptions())
	require.NoError(t, err)
	require.Same(t, a, b)

	got, ok := d.GetRecordStore("app.users")
	require.True(t, ok)
	require.Same(t, a, got)
}

func TestOplogThroughFacade(t *testing.T) {
	d, err := Open(testConfig())
	require.NoError(t, err)
	defer d.Close()
	ctx := context.Background()

	oplog, err := d.CreateRecordStore("local.oplog.rs", "oplog-1", store.Options{
		Capped:        true,
		CappedMaxSize: 1 << 20,
		CappedMaxDocs: -1,
	})
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		tx := d.Begin(ctx)
		_, err := oplog.OplogInsert(tx, record.ID(i), []byte("op"))
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
	}

	tx := d.Begin(ctx)
	defer tx.Rollback()
	require.NoError(t, oplog.WaitForAllEarlierOplogWritesToBeVisible(tx))
	at, err := oplog.OplogStartHack(tx, 2)
	require.NoError(t, err)
	require.Equal(t, record.ID(2), at)
}

func TestDropRecordStore(t *testing.T) {
	d, err := Open(testConfig())
	require.NoError(t, err)
	defer d.Close()
	ctx := context.Background()

	s, err := d.CreateRecordStore("app.users", "u-1", plainOptions())
	require.NoError(t, err)
	tx := d.Begin(ctx)
	_, err = s.Insert(tx, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.NoError(t, d.DropRecordStore(ctx, "app.users"))
	_, ok := d.GetRecordStore("app.users")
	require.False(t, ok)
}
