package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/infinivision/recdb/constant"
	"github.com/infinivision/recdb/durable"
	"github.com/infinivision/recdb/engine"
	"github.com/infinivision/recdb/errmsg"
	"github.com/infinivision/recdb/record"
	"github.com/infinivision/recdb/scheduler"
	"github.com/infinivision/recdb/txn"
	"github.com/infinivision/recdb/visibility"
	"github.com/nnsgmsone/damrey/logger"
)

// IsOplogNamespace reports whether ns names the replication operation log.
func IsOplogNamespace(ns string) bool {
	return strings.HasPrefix(ns, "local.oplog.")
}

func cappedSlackFromSize(size int64) int64 {
	if s := size / 10; s < constant.CappedSlackMax {
		return s
	}
	return constant.CappedSlackMax
}

func New(ns, ident string, e engine.Engine, reg *txn.Registry, dur durable.Manager,
	schd scheduler.Scheduler, log logger.Log, opts Options) (*Store, error) {
	isOplog := IsOplogNamespace(ns)
	if opts.Capped {
		if opts.CappedMaxSize <= 0 || (opts.CappedMaxDocs != -1 && opts.CappedMaxDocs <= 0) {
			return nil, errmsg.BadValue
		}
	} else {
		if isOplog || opts.CappedMaxSize != -1 || opts.CappedMaxDocs != -1 {
			return nil, errmsg.BadValue
		}
	}
	if isOplog && opts.CappedMaxDocs != -1 {
		return nil, errmsg.BadValue
	}

	s := &Store{
		ns:            ns,
		ident:         ident,
		e:             e,
		reg:           reg,
		dur:           dur,
		schd:          schd,
		log:           log,
		prefix:        append([]byte(nil), opts.Prefix...),
		isCapped:      opts.Capped,
		isOplog:       isOplog,
		cappedMaxDocs: opts.CappedMaxDocs,
		cb:            opts.CappedCallback,
		cnt:           newCounterCache(ident),
		deleterCh:     make(chan struct{}, 1),
		hasBackground: opts.BackgroundDeleter && isOplog,
		inserts:       metrics.GetOrCreateCounter(fmt.Sprintf(`recdb_inserts_total{ns=%q}`, ns)),
		deletes:       metrics.GetOrCreateCounter(fmt.Sprintf(`recdb_deletes_total{ns=%q}`, ns)),
		cappedDeletes: metrics.GetOrCreateCounter(fmt.Sprintf(`recdb_capped_deletes_total{ns=%q}`, ns)),
		compactions:   metrics.GetOrCreateCounter(fmt.Sprintf(`recdb_oplog_compactions_total{ns=%q}`, ns)),
	}
	s.cappedMaxSize.Store(opts.CappedMaxSize)
	s.cappedSlack.Store(cappedSlackFromSize(opts.CappedMaxSize))
	s.lastCompaction = time.Now()
	if isOplog {
		s.tracker = newOplogKeyTracker(record.NextPrefix(s.prefix))
	}
	if s.isCapped || isOplog {
		s.vis = visibility.New(isOplog, dur, log, s.notifyCappedWaiters)
	}

	itr := e.NewIterator(s.prefix, record.NextPrefix(s.prefix))
	itr.SeekToLast()
	if itr.Valid() {
		last := record.DecodeID(itr.Key())
		if s.vis != nil {
			s.vis.UpdateHighestSeen(last)
		}
		s.nextIDNum.Store(int64(last) + 1)
	} else {
		// start at 1 so live ids stay above the null id
		s.nextIDNum.Store(1)
	}
	itr.Close()

	s.cnt.loadFromStore(e)

	if s.hasBackground {
		s.bgCh = make(chan struct{})
		go s.backgroundDeleterLoop()
	}
	return s, nil
}

// Close joins the background goroutines. In-flight transactions must have
// settled before Close is called.
func (s *Store) Close() {
	s.deleterCh <- struct{}{}
	s.shuttingDown.Store(true)
	<-s.deleterCh
	if s.bgCh != nil {
		s.bgCh <- struct{}{}
		<-s.bgCh
	}
	if s.vis != nil {
		s.vis.Close()
	}
}

func (s *Store) nextID() record.ID {
	return record.ID(s.nextIDNum.Add(1) - 1)
}

// Insert stores data under a freshly allocated id. No write registration is
// needed: nothing else can reach the key before this transaction commits.
func (s *Store) Insert(tx *txn.Txn, data []byte) (record.ID, error) {
	if s.isOplog {
		return record.NullID, errmsg.BadValue
	}
	if s.isCapped && int64(len(data)) > s.cappedMaxSize.Load() {
		return record.NullID, errmsg.BadValue
	}
	var id record.ID
	if s.isCapped {
		id = s.vis.AllocateAndAddUncommitted(tx, s.nextID)
	} else {
		id = s.nextID()
	}
	tx.Put(record.EncodeKey(s.prefix, id), data)
	s.cnt.changeNumRecords(tx, 1)
	s.cnt.increaseDataSize(tx, int64(len(data)))
	s.cappedDeleteAsNeeded(tx, id)
	s.inserts.Inc()
	return id, nil
}

// OplogInsert stores an oplog entry under its caller-supplied id. Oplog ids
// are timestamps and must be supplied in increasing order.
func (s *Store) OplogInsert(tx *txn.Txn, id record.ID, data []byte) (record.ID, error) {
	if !s.isOplog {
		return record.NullID, errmsg.OplogOnly
	}
	if id <= record.NullID {
		return record.NullID, errmsg.BadValue
	}
	if int64(len(data)) > s.cappedMaxSize.Load() {
		return record.NullID, errmsg.BadValue
	}
	s.vis.AddUncommitted(tx, id)
	tx.Put(record.EncodeKey(s.prefix, id), data)
	s.tracker.insertKey(tx, id, len(data))
	s.cnt.changeNumRecords(tx, 1)
	s.cnt.increaseDataSize(tx, int64(len(data)))
	s.cappedDeleteAsNeeded(tx, id)
	s.inserts.Inc()
	return id, nil
}

func (s *Store) Delete(tx *txn.Txn, id record.ID) error {
	key := record.EncodeKey(s.prefix, id)
	if !tx.RegisterWrite(key) {
		return errmsg.WriteConflict
	}
	old, err := tx.Get(key)
	if err != nil {
		return err
	}
	tx.Delete(key)
	if s.isOplog {
		s.tracker.deleteKey(tx, id)
	}
	s.cnt.changeNumRecords(tx, -1)
	s.cnt.increaseDataSize(tx, -int64(len(old)))
	s.deletes.Inc()
	return nil
}

// Update replaces the payload of an existing record. In-place updates with
// damages are not supported.
func (s *Store) Update(tx *txn.Txn, id record.ID, data []byte) error {
	key := record.EncodeKey(s.prefix, id)
	if !tx.RegisterWrite(key) {
		return errmsg.WriteConflict
	}
	old, err := tx.Get(key)
	if err != nil {
		return err
	}
	tx.Put(key, data)
	if s.isOplog {
		s.tracker.insertKey(tx, id, len(data))
	}
	s.cnt.increaseDataSize(tx, int64(len(data))-int64(len(old)))
	s.cappedDeleteAsNeeded(tx, id)
	return nil
}

func (s *Store) UpdateWithDamages(tx *txn.Txn, id record.ID, damages [][]byte) error {
	return errmsg.Unsupported
}

func (s *Store) Find(tx *txn.Txn, id record.ID) ([]byte, error) {
	return tx.Get(record.EncodeKey(s.prefix, id))
}

// Truncate removes every record through Delete so counters, the oplog
// tracker and conflict registration all apply uniformly. Visibility is
// ignored: hidden records go too.
func (s *Store) Truncate(tx *txn.Txn) error {
	itr := tx.NewIterator(s.prefix, record.NextPrefix(s.prefix))
	defer itr.Close()
	for itr.SeekToFirst(); itr.Valid(); itr.Next() {
		if err := s.Delete(tx, record.DecodeID(itr.Key())); err != nil {
			return err
		}
	}
	return itr.Status()
}

// CappedTruncateAfter removes every record after end (including end when
// inclusive) and rewinds the visible frontier to the last kept id. The
// caller must hold the collection exclusively.
func (s *Store) CappedTruncateAfter(tx *txn.Txn, end record.ID, inclusive bool) error {
	if !tx.IsExclusive() {
		return errmsg.NotExclusive
	}
	lastKept := end
	if inclusive {
		rc, err := s.NewCursor(tx, false)
		if err != nil {
			return err
		}
		if rec := rc.SeekExact(end); rec == nil {
			rc.Close()
			return errmsg.NotFound
		}
		if prev := rc.Next(); prev != nil {
			lastKept = prev.ID
		} else {
			lastKept = record.MinID
		}
		rc.Close()
	}

	c, err := s.NewCursor(tx, true)
	if err != nil {
		return err
	}
	defer c.Close()

	removed := 0
	s.cbMu.Lock()
	for rec := c.SeekExact(end); rec != nil; rec = c.Next() {
		if end < rec.ID || (inclusive && end == rec.ID) {
			if s.cb != nil {
				if err := s.cb.AboutToDeleteCapped(tx, rec.ID, rec.Data); err != nil {
					s.cbMu.Unlock()
					return err
				}
			}
			if err := s.Delete(tx, rec.ID); err != nil {
				s.cbMu.Unlock()
				return err
			}
			removed++
		}
	}
	s.cbMu.Unlock()

	if removed > 0 && s.vis != nil {
		// forget that we have ever seen a higher id
		s.vis.SetHighestSeen(lastKept)
	}
	return nil
}

// Compact runs a range compaction over the whole collection prefix.
func (s *Store) Compact() error {
	return s.e.CompactRange(record.EncodeKey(s.prefix, record.NullID),
		record.EncodeKey(s.prefix, record.MaxID))
}

func (s *Store) NumRecords(tx *txn.Txn) int64 {
	return s.cnt.numRecordsFor(tx)
}

func (s *Store) DataSize(tx *txn.Txn) int64 {
	return s.cnt.dataSizeFor(tx)
}

// StorageSize rounds down to 256-byte granularity with a 256-byte floor so
// the figure stays stable across equivalent stores.
func (s *Store) StorageSize() int64 {
	v := s.cnt.dataSize.Load() &^ (constant.StorageSizeGranularity - 1)
	if v < constant.StorageSizeGranularity {
		return constant.StorageSizeGranularity
	}
	return v
}

func (s *Store) Stats(tx *txn.Txn) Stats {
	return Stats{
		Capped:        s.isCapped,
		Oplog:         s.isOplog,
		CappedMaxSize: s.cappedMaxSize.Load(),
		CappedMaxDocs: s.cappedMaxDocs,
		NumRecords:    s.NumRecords(tx),
		DataSize:      s.DataSize(tx),
		StorageSize:   s.StorageSize(),
	}
}

// OplogStartHack returns the id of the entry closest to start without going
// past it, or the null id when no entry is at or before start. Replication
// cursors use it to position at a timestamp cheaply; only the tracker's
// keys are touched.
func (s *Store) OplogStartHack(tx *txn.Txn, start record.ID) (record.ID, error) {
	if !s.isOplog {
		return record.NullID, errmsg.OplogOnly
	}
	itr := s.tracker.newIterator(tx)
	defer itr.Close()
	itr.Seek(record.EncodeKey(s.tracker.prefix, start))
	if !itr.Valid() {
		if err := itr.Status(); err != nil {
			return record.NullID, err
		}
		itr.SeekToLast()
		if !itr.Valid() {
			return record.NullID, itr.Status()
		}
		// start is past everything else
		return record.DecodeID(itr.Key()), nil
	}
	if found := record.DecodeID(itr.Key()); found == start {
		return found, nil
	}
	itr.Prev()
	if !itr.Valid() {
		return record.NullID, itr.Status()
	}
	return record.DecodeID(itr.Key()), nil
}

func (s *Store) WaitForAllEarlierOplogWritesToBeVisible(tx *txn.Txn) error {
	if !s.isOplog {
		return errmsg.OplogOnly
	}
	return s.vis.WaitForAllEarlierWritesVisible(tx)
}

func (s *Store) UpdateCappedSize(size int64) {
	if s.cappedMaxSize.Load() == size {
		return
	}
	s.cappedMaxSize.Store(size)
	s.cappedSlack.Store(cappedSlackFromSize(size))
}

// UpdateStatsAfterRepair overwrites both counters in memory and on disk.
func (s *Store) UpdateStatsAfterRepair(tx *txn.Txn, numRecords, dataSize int64) error {
	tx.ResetDeltas()
	s.cnt.numRecords.Store(numRecords)
	s.cnt.dataSize.Store(dataSize)
	b := s.e.NewBatch()
	b.Put([]byte(s.cnt.numRecordsKey), record.EncodeCounter(numRecords))
	b.Put([]byte(s.cnt.dataSizeKey), record.EncodeCounter(dataSize))
	_, err := s.e.Apply(b)
	b.Close()
	return err
}

func (s *Store) SetCappedCallback(cb CappedCallback) {
	s.cbMu.Lock()
	s.cb = cb
	s.cbMu.Unlock()
}

func (s *Store) notifyCappedWaiters() {
	s.cbMu.Lock()
	if s.cb != nil {
		s.cb.NotifyCappedWaitersIfNeeded()
	}
	s.cbMu.Unlock()
}

func (s *Store) backgroundDeleterLoop() {
	ticker := time.NewTicker(constant.OplogDeleterCycle)
	defer ticker.Stop()
	for {
		select {
		case <-s.bgCh:
			s.bgCh <- struct{}{}
			return
		case <-ticker.C:
			if s.shuttingDown.Load() || !s.cappedAndNeedDelete(0, 0) {
				continue
			}
			tx := s.reg.Begin(context.Background())
			s.deleterCh <- struct{}{}
			s.cappedDeleteAsNeededLocked(tx, record.MaxID)
			<-s.deleterCh
			tx.Rollback()
		}
	}
}
