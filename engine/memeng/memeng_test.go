package memeng

import (
	"testing"

	"github.com/infinivision/recdb/errmsg"
	"github.com/stretchr/testify/require"
)

func TestApplyAndGet(t *testing.T) {
	e := New()
	b := e.NewBatch()
	b.Put([]byte("a"), []byte("1"))
	b.Put([]byte("b"), []byte("2"))
	b.Delete([]byte("c"))
	require.Equal(t, 3, b.Len())
	seq, err := e.Apply(b)
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq)

	v, err := e.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)
	_, err = e.Get([]byte("c"))
	require.Equal(t, errmsg.NotFound, err)
}

func TestSnapshotIsolation(t *testing.T) {
	e := New()
	b := e.NewBatch()
	b.Put([]byte("k"), []byte("old"))
	_, err := e.Apply(b)
	require.NoError(t, err)

	snap := e.NewSnapshot()
	seq := snap.Seq()

	b = e.NewBatch()
	b.Put([]byte("k"), []byte("new"))
	b.Put([]byte("k2"), []byte("x"))
	newSeq, err := e.Apply(b)
	require.NoError(t, err)
	require.Greater(t, newSeq, seq)

	v, err := snap.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("old"), v)
	_, err = snap.Get([]byte("k2"))
	require.Equal(t, errmsg.NotFound, err)
	require.NoError(t, snap.Close())
}

func fill(t *testing.T, e *memEngine, keys ...string) {
	t.Helper()
	b := e.NewBatch()
	for _, k := range keys {
		b.Put([]byte(k), []byte("v"+k))
	}
	_, err := e.Apply(b)
	require.NoError(t, err)
}

func TestIteratorForward(t *testing.T) {
	e := New()
	fill(t, e, "p1", "p2", "p3", "q1")

	itr := e.NewIterator([]byte("p"), []byte("q"))
	defer itr.Close()

	var got []string
	for itr.SeekToFirst(); itr.Valid(); itr.Next() {
		got = append(got, string(itr.Key()))
	}
	require.NoError(t, itr.Status())
	require.Equal(t, []string{"p1", "p2", "p3"}, got)
}

func TestIteratorBackward(t *testing.T) {
	e := New()
	fill(t, e, "p1", "p2", "p3", "q1")

	itr := e.NewIterator([]byte("p"), []byte("q"))
	defer itr.Close()

	var got []string
	for itr.SeekToLast(); itr.Valid(); itr.Prev() {
		got = append(got, string(itr.Key()))
	}
	require.Equal(t, []string{"p3", "p2", "p1"}, got)
}

func TestIteratorSeek(t *testing.T) {
	e := New()
	fill(t, e, "p1", "p3", "p5")

	itr := e.NewIterator([]byte("p"), []byte("q"))
	defer itr.Close()

	itr.Seek([]byte("p2"))
	require.True(t, itr.Valid())
	require.Equal(t, "p3", string(itr.Key()))
	require.Equal(t, "vp3", string(itr.Value()))

	itr.Seek([]byte("p6"))
	require.False(t, itr.Valid())
}

func TestIteratorSnapshotStable(t *testing.T) {
	e := New()
	fill(t, e, "p1", "p2")
	snap := e.NewSnapshot()
	itr := snap.NewIterator([]byte("p"), []byte("q"))
	defer itr.Close()

	b := e.NewBatch()
	b.Delete([]byte("p1"))
	b.Put([]byte("p9"), []byte("x"))
	_, err := e.Apply(b)
	require.NoError(t, err)

	var got []string
	for itr.SeekToFirst(); itr.Valid(); itr.Next() {
		got = append(got, string(itr.Key()))
	}
	require.Equal(t, []string{"p1", "p2"}, got)
}
