package memeng

import (
	"github.com/google/btree"
	"github.com/infinivision/recdb/engine"
	"github.com/infinivision/recdb/errmsg"
)

func New() *memEngine {
	return &memEngine{
		t: btree.NewG[item](32, less),
	}
}

func (e *memEngine) Get(key []byte) ([]byte, error) {
	e.Lock()
	it, ok := e.t.Get(item{k: key})
	e.Unlock()
	if !ok {
		return nil, errmsg.NotFound
	}
	return append([]byte(nil), it.v...), nil
}

func (e *memEngine) NewBatch() engine.Batch {
	return &batch{}
}

func (e *memEngine) Apply(b engine.Batch) (uint64, error) {
	wb := b.(*batch)
	e.Lock()
	defer e.Unlock()
	for _, o := range wb.ops {
		if o.del {
			e.t.Delete(item{k: o.k})
		} else {
			e.t.ReplaceOrInsert(item{k: o.k, v: o.v})
		}
	}
	return e.seq.Add(1), nil
}

func (e *memEngine) NewSnapshot() engine.Snapshot {
	e.Lock()
	defer e.Unlock()
	return &snapshot{t: e.t.Clone(), seq: e.seq.Load()}
}

func (e *memEngine) NewIterator(lo, hi []byte) engine.Iterator {
	e.Lock()
	defer e.Unlock()
	return &iterator{t: e.t.Clone(), lo: lo, hi: hi}
}

func (e *memEngine) CompactRange(lo, hi []byte) error {
	return nil
}

func (e *memEngine) Sync() error {
	return nil
}

func (e *memEngine) Close() error {
	return nil
}

func (s *snapshot) Seq() uint64 {
	return s.seq
}

func (s *snapshot) Get(key []byte) ([]byte, error) {
	it, ok := s.t.Get(item{k: key})
	if !ok {
		return nil, errmsg.NotFound
	}
	return append([]byte(nil), it.v...), nil
}

func (s *snapshot) NewIterator(lo, hi []byte) engine.Iterator {
	return &iterator{t: s.t, lo: lo, hi: hi}
}

func (s *snapshot) Close() error {
	return nil
}

func (b *batch) Put(key, value []byte) {
	b.ops = append(b.ops, op{k: key, v: value})
}

func (b *batch) Delete(key []byte) {
	b.ops = append(b.ops, op{k: key, del: true})
}

func (b *batch) Len() int {
	return len(b.ops)
}

func (b *batch) Close() error {
	b.ops = nil
	return nil
}

var _ engine.Snapshot = (*snapshot)(nil)
