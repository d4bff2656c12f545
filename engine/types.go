package engine

// Engine is the ordered key-value substrate the record store runs on. Keys
// and values are opaque byte strings ordered by bytewise comparison. Apply
// installs a batch atomically and returns the engine sequence number after
// the batch; snapshots report the sequence number they were taken at so
// readers can detect that their view changed.
type Engine interface {
	Get(key []byte) ([]byte, error)
	NewBatch() Batch
	Apply(b Batch) (uint64, error)
	NewSnapshot() Snapshot
	NewIterator(lo, hi []byte) Iterator
	CompactRange(lo, hi []byte) error
	Sync() error
	Close() error
}

type Snapshot interface {
	Seq() uint64
	Get(key []byte) ([]byte, error)
	NewIterator(lo, hi []byte) Iterator
	Close() error
}

type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	Len() int
	Close() error
}

// Iterator walks a half-open key range [lo, hi). Seek positions at the first
// key >= target within the range. Key and Value stay valid until the next
// positioning call; callers that retain them must copy.
type Iterator interface {
	SeekToFirst()
	SeekToLast()
	Seek(key []byte)
	Next()
	Prev()
	Valid() bool
	Key() []byte
	Value() []byte
	Status() error
	Close() error
}
