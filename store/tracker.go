package store

import (
	"sync/atomic"

	"github.com/infinivision/recdb/engine"
	"github.com/infinivision/recdb/record"
	"github.com/infinivision/recdb/txn"
)

// oplogKeyTracker shadows the oplog under the next prefix, mapping each id
// to its payload length. Eviction scans walk this index in id order without
// paying to read oplog payloads. No locking of its own: it writes exactly
// the same ids as the oplog, which already owns the relevant keys.
type oplogKeyTracker struct {
	prefix  []byte
	deleted atomic.Int64 // deletions since the last scheduled compaction
}

func newOplogKeyTracker(prefix []byte) *oplogKeyTracker {
	return &oplogKeyTracker{prefix: prefix}
}

func (t *oplogKeyTracker) insertKey(tx *txn.Txn, id record.ID, size int) {
	tx.Put(record.EncodeKey(t.prefix, id), record.EncodeTrackerValue(size))
}

func (t *oplogKeyTracker) deleteKey(tx *txn.Txn, id record.ID) {
	tx.Delete(record.EncodeKey(t.prefix, id))
	t.deleted.Add(1)
}

func (t *oplogKeyTracker) newIterator(tx *txn.Txn) engine.Iterator {
	return tx.NewIterator(t.prefix, record.NextPrefix(t.prefix))
}

func (t *oplogKeyTracker) decodeSize(v []byte) int {
	return record.DecodeTrackerValue(v)
}

func (t *oplogKeyTracker) deletedSinceCompaction() int64 {
	return t.deleted.Load()
}

func (t *oplogKeyTracker) resetDeletedSinceCompaction() {
	t.deleted.Store(0)
}
