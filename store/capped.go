package store

import (
	"time"

	"github.com/infinivision/recdb/constant"
	"github.com/infinivision/recdb/engine"
	"github.com/infinivision/recdb/record"
	"github.com/infinivision/recdb/txn"
)

func (s *Store) tryLockDeleter() bool {
	select {
	case s.deleterCh <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Store) lockDeleterTimeout(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case s.deleterCh <- struct{}{}:
		return true
	case <-t.C:
		return false
	}
}

func (s *Store) unlockDeleter() {
	<-s.deleterCh
}

func (s *Store) cappedAndNeedDelete(dataSizeDelta, numRecordsDelta int64) bool {
	if !s.isCapped {
		return false
	}
	if s.cnt.dataSize.Load()+dataSizeDelta > s.cappedMaxSize.Load() {
		return true
	}
	if s.cappedMaxDocs != -1 && s.cnt.numRecords.Load()+numRecordsDelta > s.cappedMaxDocs {
		return true
	}
	return false
}

// cappedDeleteAsNeeded enforces the size and document caps after an insert
// of justInserted. At most one deleter runs per collection. With a document
// cap every writer waits for the deleter mutex and runs the pass itself;
// otherwise the others either return immediately or wait a bounded time as
// back-pressure.
func (s *Store) cappedDeleteAsNeeded(tx *txn.Txn, justInserted record.ID) int64 {
	if !s.isCapped {
		return 0
	}

	var dataSizeDelta, numRecordsDelta int64
	if !s.isOplog {
		dataSizeDelta = tx.Delta(s.cnt.dataSizeKey)
		numRecordsDelta = tx.Delta(s.cnt.numRecordsKey)
	}
	if !s.cappedAndNeedDelete(dataSizeDelta, numRecordsDelta) {
		return 0
	}

	if s.cappedMaxDocs != -1 {
		// the document cap has to be exact, so every writer checks
		s.deleterCh <- struct{}{}
	} else if s.hasBackground {
		if s.cnt.dataSize.Load()-s.cappedMaxSize.Load() < s.cappedSlack.Load() {
			return 0
		}
		// back-pressure only: synchronize on the deleter without deleting
		if s.tryLockDeleter() || s.lockDeleterTimeout(constant.CappedDeleterTimeout) {
			s.unlockDeleter()
		}
		return 0
	} else {
		if !s.tryLockDeleter() {
			// someone else is deleting old records; apply back-pressure
			// only if we are too far behind
			if s.cnt.dataSize.Load()-s.cappedMaxSize.Load() < s.cappedSlack.Load() {
				return 0
			}
			if !s.lockDeleterTimeout(constant.CappedDeleterTimeout) {
				return 0
			}
			// we already waited once, so let the other deleter keep the
			// job unless we are significantly over the limit
			if s.cnt.dataSize.Load()-s.cappedMaxSize.Load() < 2*s.cappedSlack.Load() {
				s.unlockDeleter()
				return 0
			}
		}
	}

	defer s.unlockDeleter()
	return s.cappedDeleteAsNeededLocked(tx, justInserted)
}

// cappedDeleteAsNeededLocked walks the oldest records forward and deletes
// them inside a private sub-transaction that can settle independently of
// the caller's. The overshoot is computed against the caller's deltas so
// the record just inserted already counts.
func (s *Store) cappedDeleteAsNeededLocked(tx *txn.Txn, justInserted record.ID) int64 {
	sub := s.reg.Begin(tx.Context())
	defer sub.Rollback()

	dataSize := s.cnt.dataSize.Load() + tx.Delta(s.cnt.dataSizeKey)
	numRecords := s.cnt.numRecords.Load() + tx.Delta(s.cnt.numRecordsKey)

	var sizeOverCap, docsOverCap int64
	if limit := s.cappedMaxSize.Load(); dataSize > limit {
		sizeOverCap = dataSize - limit
	}
	if s.cappedMaxDocs != -1 && numRecords > s.cappedMaxDocs {
		docsOverCap = numRecords - s.cappedMaxDocs
	}

	var itr engine.Iterator
	if s.isOplog {
		// the tracker holds the same ids with tiny values, so the scan
		// never reads oplog payloads
		itr = s.tracker.newIterator(sub)
		itr.Seek(record.EncodeKey(s.tracker.prefix, record.ID(s.oldestKeyHint.Load())))
	} else {
		itr = sub.NewIterator(s.prefix, record.NextPrefix(s.prefix))
		itr.Seek(record.EncodeKey(s.prefix, record.ID(s.oldestKeyHint.Load())))
	}

	var docsRemoved, sizeSaved int64
	for (sizeSaved < sizeOverCap || docsRemoved < docsOverCap) &&
		docsRemoved < constant.MaxCappedDeletesPerPass && itr.Valid() {
		id := record.DecodeID(itr.Key())

		// an older record is still uncommitted; wait for it to settle
		// before deleting anything at or beyond it
		if s.vis.IsCappedHidden(id) {
			break
		}
		// never delete the record that triggered this pass or newer
		if id >= justInserted {
			break
		}
		if s.shuttingDown.Load() {
			break
		}

		key := record.EncodeKey(s.prefix, id)
		if !sub.RegisterWrite(key) {
			s.log.Errorf("conflict truncating capped, total docs removed %d\n", docsRemoved)
			break
		}

		docsRemoved++
		var old []byte
		if s.isOplog {
			// the callback only needs payloads to clean up indexes, and
			// the oplog has none
			sizeSaved += int64(s.tracker.decodeSize(itr.Value()))
		} else {
			old = append([]byte(nil), itr.Value()...)
			sizeSaved += int64(len(old))
		}

		s.cbMu.Lock()
		if s.cb != nil {
			if err := s.cb.AboutToDeleteCapped(sub, id, old); err != nil {
				s.cbMu.Unlock()
				itr.Close()
				s.log.Errorf("capped delete callback failed: %v\n", err)
				return 0
			}
		}
		s.cbMu.Unlock()

		sub.Delete(key)
		if s.isOplog {
			s.tracker.deleteKey(sub, id)
		}
		itr.Next()
	}

	if !itr.Valid() && itr.Status() != nil {
		s.log.Errorf("iterator failure when trying to delete capped, ignoring: %v\n", itr.Status())
	}

	// the iterator must not outlive the sub-transaction's snapshot, so
	// read the first surviving id and release it before committing
	oldestAlive := record.NullID
	if itr.Valid() {
		oldestAlive = record.DecodeID(itr.Key())
	}
	itr.Close()

	if docsRemoved > 0 {
		s.cnt.changeNumRecords(sub, -docsRemoved)
		s.cnt.increaseDataSize(sub, -sizeSaved)
		if err := sub.Commit(); err != nil {
			s.log.Errorf("capped delete commit failed, ignoring: %v\n", err)
			return 0
		}
		s.cappedDeletes.Add(int(docsRemoved))
	}

	if !oldestAlive.IsNull() {
		// only move the hint past records that are both alive and
		// visible; a hidden older record must be revisited next pass
		if !s.vis.IsCappedHidden(oldestAlive) {
			s.oldestKeyHint.Store(int64(oldestAlive))
		}
	}

	if s.isOplog {
		s.maybeScheduleOplogCompaction()
	}
	return docsRemoved
}

// maybeScheduleOplogCompaction runs under the deleter mutex.
func (s *Store) maybeScheduleOplogCompaction() {
	if time.Since(s.lastCompaction) < constant.OplogCompactEvery &&
		s.tracker.deletedSinceCompaction() < constant.OplogCompactEveryDeleted {
		return
	}
	hint := record.ID(s.oldestKeyHint.Load())
	s.schd.Schedule(record.EncodeKey(s.prefix, record.NullID),
		record.EncodeKey(s.prefix, hint))
	s.schd.Schedule(record.EncodeKey(s.tracker.prefix, record.NullID),
		record.EncodeKey(s.tracker.prefix, hint))
	s.lastCompaction = time.Now()
	s.tracker.resetDeletedSinceCompaction()
	s.compactions.Inc()
}
