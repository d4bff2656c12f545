package store

import (
	"context"
	"testing"
	"time"

	"github.com/infinivision/recdb/errmsg"
	"github.com/infinivision/recdb/record"
	"github.com/stretchr/testify/require"
)

const oplogNS = "local.oplog.rs"

func oplogOptions(prefix string, maxSize int64) Options {
	return Options{Prefix: []byte(prefix), Capped: true, CappedMaxSize: maxSize, CappedMaxDocs: -1}
}

func (ev *testEnv) mustOplog(t *testing.T, maxSize int64) *Store {
	t.Helper()
	return ev.mustStore(t, oplogNS, "oplog-1", oplogOptions("P", maxSize))
}

func oplogInsertCommitted(t *testing.T, ev *testEnv, s *Store, id record.ID, payload []byte) {
	t.Helper()
	tx := ev.reg.Begin(context.Background())
	got, err := s.OplogInsert(tx, id, payload)
	require.NoError(t, err)
	require.Equal(t, id, got)
	require.NoError(t, tx.Commit())
}

// scanPrefix reads ids straight off the engine, ignoring visibility.
func scanPrefix(t *testing.T, ev *testEnv, prefix []byte) []record.ID {
	t.Helper()
	itr := ev.e.NewIterator(prefix, record.NextPrefix(prefix))
	defer itr.Close()
	var ids []record.ID
	for itr.SeekToFirst(); itr.Valid(); itr.Next() {
		ids = append(ids, record.DecodeID(itr.Key()))
	}
	require.NoError(t, itr.Status())
	return ids
}

func TestOplogTrackerShadowsOplog(t *testing.T) {
	ev := newTestEnv(t)
	s := ev.mustOplog(t, 1<<20)
	defer s.Close()

	payloads := map[record.ID][]byte{1: []byte("a"), 2: []byte("bb"), 3: []byte("ccc")}
	for _, id := range []record.ID{1, 2, 3} {
		oplogInsertCommitted(t, ev, s, id, payloads[id])
	}

	require.Equal(t, []record.ID{1, 2, 3}, scanPrefix(t, ev, s.prefix))
	require.Equal(t, []record.ID{1, 2, 3}, scanPrefix(t, ev, s.tracker.prefix))

	tx := ev.reg.Begin(context.Background())
	defer tx.Rollback()
	itr := s.tracker.newIterator(tx)
	defer itr.Close()
	for itr.SeekToFirst(); itr.Valid(); itr.Next() {
		id := record.DecodeID(itr.Key())
		require.Equal(t, len(payloads[id]), s.tracker.decodeSize(itr.Value()))
	}
}

func TestOplogEvictionUsesTracker(t *testing.T) {
	ev := newTestEnv(t)
	s := ev.mustOplog(t, 10)
	defer s.Close()

	for i := 1; i <= 10; i++ {
		oplogInsertCommitted(t, ev, s, record.ID(i), []byte("x"))
	}
	// the oplog deleter checks against committed totals only, so the
	// overflowing insert itself does not trigger a pass
	oplogInsertCommitted(t, ev, s, 11, []byte("ccc"))
	require.Equal(t, []record.ID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, scanPrefix(t, ev, s.prefix))

	oplogInsertCommitted(t, ev, s, 12, []byte("y"))

	want := []record.ID{5, 6, 7, 8, 9, 10, 11, 12}
	require.Equal(t, want, scanPrefix(t, ev, s.prefix))
	require.Equal(t, want, scanPrefix(t, ev, s.tracker.prefix))

	tx := ev.reg.Begin(context.Background())
	defer tx.Rollback()
	require.Equal(t, int64(10), s.DataSize(tx))
	require.Equal(t, int64(8), s.NumRecords(tx))
}

func TestOplogVisibilityProtocol(t *testing.T) {
	ev := newTestEnv(t)
	g := &gate{ch: make(chan struct{})}
	s, err := New(oplogNS, "oplog-1", ev.e, ev.reg, g, ev.schd, ev.log, oplogOptions("P", 1<<20))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	txA := ev.reg.Begin(ctx)
	_, err = s.OplogInsert(txA, 100, []byte("a"))
	require.NoError(t, err)

	txB := ev.reg.Begin(ctx)
	_, err = s.OplogInsert(txB, 101, []byte("b"))
	require.NoError(t, err)
	require.NoError(t, txB.Commit())

	// both stay invisible: 100 is still uncommitted and pins the ceiling
	require.Empty(t, collectIDs(t, ev, s))

	require.NoError(t, txA.Commit())

	// A's erasure waits on the journal; readers are still blind
	require.Empty(t, collectIDs(t, ev, s))

	waited := make(chan error, 1)
	go func() {
		reader := ev.reg.Begin(ctx)
		defer reader.Rollback()
		waited <- s.WaitForAllEarlierOplogWritesToBeVisible(reader)
	}()
	select {
	case <-waited:
		t.Fatal("visibility wait returned before durability")
	case <-time.After(20 * time.Millisecond):
	}

	close(g.ch)
	select {
	case err := <-waited:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("visibility wait never unblocked")
	}
	require.Equal(t, []record.ID{100, 101}, collectIDs(t, ev, s))
}

func TestOplogForwardCursorRefusesPinnedSnapshot(t *testing.T) {
	ev := newTestEnv(t)
	s := ev.mustOplog(t, 1<<20)
	defer s.Close()
	ctx := context.Background()

	oplogInsertCommitted(t, ev, s, 1, []byte("a"))

	tx := ev.reg.Begin(ctx)
	defer tx.Rollback()
	_, err := s.Find(tx, 1) // pins a snapshot
	require.NoError(t, err)
	_, err = s.NewCursor(tx, true)
	require.Equal(t, errmsg.WriteConflict, err)

	// an exclusive holder knows no one else writes
	extx := ev.reg.BeginExclusive(ctx)
	defer extx.Rollback()
	_, err = s.Find(extx, 1)
	require.NoError(t, err)
	c, err := s.NewCursor(extx, true)
	require.NoError(t, err)
	c.Close()
}

func TestOplogStartHack(t *testing.T) {
	ev := newTestEnv(t)
	s := ev.mustOplog(t, 1<<20)
	defer s.Close()
	ctx := context.Background()

	for _, id := range []record.ID{2, 4, 6} {
		oplogInsertCommitted(t, ev, s, id, []byte("x"))
	}

	tx := ev.reg.Begin(ctx)
	defer tx.Rollback()

	at, err := s.OplogStartHack(tx, 4)
	require.NoError(t, err)
	require.Equal(t, record.ID(4), at)

	at, err = s.OplogStartHack(tx, 5)
	require.NoError(t, err)
	require.Equal(t, record.ID(4), at)

	at, err = s.OplogStartHack(tx, 100)
	require.NoError(t, err)
	require.Equal(t, record.ID(6), at)

	at, err = s.OplogStartHack(tx, 1)
	require.NoError(t, err)
	require.True(t, at.IsNull())
}

func TestCappedTruncateAfter(t *testing.T) {
	ev := newTestEnv(t)
	s := ev.mustOplog(t, 1<<20)
	defer s.Close()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		oplogInsertCommitted(t, ev, s, record.ID(i), []byte("x"))
	}

	tx := ev.reg.Begin(ctx)
	require.Equal(t, errmsg.NotExclusive, s.CappedTruncateAfter(tx, 3, false))
	require.NoError(t, tx.Rollback())

	extx := ev.reg.BeginExclusive(ctx)
	require.NoError(t, s.CappedTruncateAfter(extx, 3, false))
	require.NoError(t, extx.Commit())

	require.Equal(t, []record.ID{1, 2, 3}, scanPrefix(t, ev, s.prefix))
	require.Equal(t, []record.ID{1, 2, 3}, scanPrefix(t, ev, s.tracker.prefix))

	// the frontier rewound, so id 4 is insertable again
	oplogInsertCommitted(t, ev, s, 4, []byte("x"))
	require.Equal(t, []record.ID{1, 2, 3, 4}, collectIDs(t, ev, s))
}

func TestCappedTruncateAfterInclusive(t *testing.T) {
	ev := newTestEnv(t)
	s := ev.mustOplog(t, 1<<20)
	defer s.Close()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		oplogInsertCommitted(t, ev, s, record.ID(i), []byte("x"))
	}

	extx := ev.reg.BeginExclusive(ctx)
	require.NoError(t, s.CappedTruncateAfter(extx, 3, true))
	require.NoError(t, extx.Commit())

	require.Equal(t, []record.ID{1, 2}, scanPrefix(t, ev, s.prefix))
}

func TestOplogInsertValidation(t *testing.T) {
	ev := newTestEnv(t)
	s := ev.mustOplog(t, 1<<20)
	defer s.Close()
	plain := ev.mustStore(t, "test.plain", "plain-1", plainOptions("R"))
	defer plain.Close()
	ctx := context.Background()

	tx := ev.reg.Begin(ctx)
	defer tx.Rollback()
	_, err := s.Insert(tx, []byte("x"))
	require.Equal(t, errmsg.BadValue, err)
	_, err = s.OplogInsert(tx, 0, []byte("x"))
	require.Equal(t, errmsg.BadValue, err)
	_, err = plain.OplogInsert(tx, 1, []byte("x"))
	require.Equal(t, errmsg.OplogOnly, err)
	require.Equal(t, errmsg.OplogOnly, plain.WaitForAllEarlierOplogWritesToBeVisible(tx))
}
