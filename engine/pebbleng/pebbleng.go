package pebbleng

import (
	"github.com/cockroachdb/pebble"
	"github.com/infinivision/recdb/engine"
	"github.com/infinivision/recdb/errmsg"
	"golang.org/x/sys/unix"
)

func Open(dir string) (*pebbleEngine, error) {
	if err := enlargelimit(); err != nil {
		return nil, err
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &pebbleEngine{db: db}, nil
}

func (e *pebbleEngine) Get(key []byte) ([]byte, error) {
	v, closer, err := e.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, errmsg.NotFound
	}
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), v...)
	closer.Close()
	return out, nil
}

func (e *pebbleEngine) NewBatch() engine.Batch {
	return &batch{b: e.db.NewBatch()}
}

func (e *pebbleEngine) Apply(b engine.Batch) (uint64, error) {
	wb := b.(*batch)
	if err := e.db.Apply(wb.b, pebble.NoSync); err != nil {
		return 0, err
	}
	return e.seq.Add(1), nil
}

func (e *pebbleEngine) NewSnapshot() engine.Snapshot {
	return &snapshot{s: e.db.NewSnapshot(), seq: e.seq.Load()}
}

func (e *pebbleEngine) NewIterator(lo, hi []byte) engine.Iterator {
	return &iterator{itr: e.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})}
}

func (e *pebbleEngine) CompactRange(lo, hi []byte) error {
	return e.db.Compact(lo, hi, true)
}

func (e *pebbleEngine) Sync() error {
	return e.db.Flush()
}

func (e *pebbleEngine) Close() error {
	return e.db.Close()
}

func (s *snapshot) Seq() uint64 {
	return s.seq
}

func (s *snapshot) Get(key []byte) ([]byte, error) {
	v, closer, err := s.s.Get(key)
	if err == pebble.ErrNotFound {
		return nil, errmsg.NotFound
	}
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), v...)
	closer.Close()
	return out, nil
}

func (s *snapshot) NewIterator(lo, hi []byte) engine.Iterator {
	return &iterator{itr: s.s.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})}
}

func (s *snapshot) Close() error {
	return s.s.Close()
}

func (b *batch) Put(key, value []byte) {
	b.b.Set(key, value, nil)
}

func (b *batch) Delete(key []byte) {
	b.b.Delete(key, nil)
}

func (b *batch) Len() int {
	return int(b.b.Count())
}

func (b *batch) Close() error {
	return b.b.Close()
}

func enlargelimit() error {
	var rlimit unix.Rlimit

	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlimit); err != nil {
		return err
	}
	rlimit.Cur = rlimit.Max
	return unix.Setrlimit(unix.RLIMIT_NOFILE, &rlimit)
}
