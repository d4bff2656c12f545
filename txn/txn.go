package txn

import (
	"context"
	"sync/atomic"

	"github.com/infinivision/recdb/engine"
	"github.com/infinivision/recdb/errmsg"
	"github.com/infinivision/recdb/record"
	"github.com/puzpuzpuz/xsync/v3"
)

func NewRegistry(e engine.Engine) *Registry {
	return &Registry{
		e:       e,
		owners:  xsync.NewMapOf[string, uint64](),
		commits: xsync.NewMapOf[string, uint64](),
	}
}

func (r *Registry) Begin(ctx context.Context) *Txn {
	return &Txn{
		id:     r.ids.Add(1),
		r:      r,
		ctx:    ctx,
		wmp:    make(map[string][]byte),
		deltas: make(map[string]*delta),
	}
}

func (r *Registry) BeginExclusive(ctx context.Context) *Txn {
	tx := r.Begin(ctx)
	tx.exclusive = true
	return tx
}

func (tx *Txn) Context() context.Context {
	return tx.ctx
}

func (tx *Txn) Registry() *Registry {
	return tx.r
}

func (tx *Txn) IsExclusive() bool {
	return tx.exclusive
}

func (tx *Txn) HasSnapshot() bool {
	return tx.snap != nil
}

// Snapshot pins the transaction's read view on first use.
func (tx *Txn) Snapshot() engine.Snapshot {
	if tx.snap == nil {
		tx.snap = tx.r.e.NewSnapshot()
	}
	return tx.snap
}

func (tx *Txn) Interrupted() error {
	select {
	case <-tx.ctx.Done():
		return tx.ctx.Err()
	default:
		return nil
	}
}

// RegisterWrite declares intent to modify key. It fails when another live
// transaction already owns the key, or when the key was committed after
// this transaction's snapshot was taken. Ownership is held until commit or
// rollback.
func (tx *Txn) RegisterWrite(key []byte) bool {
	s := string(key)
	owner, loaded := tx.r.owners.LoadOrStore(s, tx.id)
	if loaded && owner != tx.id {
		return false
	}
	if !loaded {
		tx.writes = append(tx.writes, s)
	}
	if seq, ok := tx.r.commits.Load(s); ok && seq > tx.Snapshot().Seq() {
		return false
	}
	return true
}

func (tx *Txn) Put(key, value []byte) {
	tx.wmp[string(key)] = value
}

func (tx *Txn) Delete(key []byte) {
	tx.wmp[string(key)] = nil
}

// Get reads through the write cache first so a transaction observes its own
// pending writes, then falls back to the snapshot.
func (tx *Txn) Get(key []byte) ([]byte, error) {
	if v, ok := tx.wmp[string(key)]; ok {
		if v == nil {
			return nil, errmsg.NotFound
		}
		return v, nil
	}
	return tx.Snapshot().Get(key)
}

func (tx *Txn) NewIterator(lo, hi []byte) engine.Iterator {
	return tx.Snapshot().NewIterator(lo, hi)
}

// IncrementCounter accumulates a delta against the persisted counter key
// and its in-memory atomic. The delta is applied at commit, in the same
// batch as the payload mutations, and discarded on rollback.
func (tx *Txn) IncrementCounter(key string, counter *atomic.Int64, amount int64) {
	d, ok := tx.deltas[key]
	if !ok {
		d = &delta{counter: counter}
		tx.deltas[key] = d
	}
	d.amount += amount
}

func (tx *Txn) Delta(key string) int64 {
	if d, ok := tx.deltas[key]; ok {
		return d.amount
	}
	return 0
}

func (tx *Txn) ResetDeltas() {
	tx.deltas = make(map[string]*delta)
}

// RegisterChange records a pair of hooks run after the transaction settles:
// onCommit after a successful engine apply, onRollback otherwise.
func (tx *Txn) RegisterChange(onCommit, onRollback func()) {
	tx.changes = append(tx.changes, change{commit: onCommit, rollback: onRollback})
}

func (tx *Txn) Commit() error {
	if tx.done {
		return errmsg.TxnFinished
	}
	tx.done = true
	if len(tx.wmp) > 0 || len(tx.deltas) > 0 {
		b := tx.r.e.NewBatch()
		for k, v := range tx.wmp {
			if v == nil {
				b.Delete([]byte(k))
			} else {
				b.Put([]byte(k), v)
			}
		}
		for k, d := range tx.deltas {
			b.Put([]byte(k), record.EncodeCounter(d.counter.Add(d.amount)))
		}
		seq, err := tx.r.e.Apply(b)
		b.Close()
		if err != nil {
			for _, d := range tx.deltas {
				d.counter.Add(-d.amount)
			}
			tx.finish(false)
			return err
		}
		for k := range tx.wmp {
			tx.r.commits.Store(k, seq)
		}
	}
	tx.finish(true)
	return nil
}

// Rollback is a no-op on a settled transaction, so it can be deferred
// unconditionally.
func (tx *Txn) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.finish(false)
	return nil
}

func (tx *Txn) finish(committed bool) {
	if committed {
		for _, c := range tx.changes {
			c.commit()
		}
	} else {
		for i := len(tx.changes) - 1; i >= 0; i-- {
			tx.changes[i].rollback()
		}
	}
	for _, k := range tx.writes {
		tx.r.owners.Delete(k)
	}
	if tx.snap != nil {
		tx.snap.Close()
		tx.snap = nil
	}
	tx.changes = nil
}
