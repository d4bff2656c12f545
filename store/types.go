package store

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/infinivision/recdb/durable"
	"github.com/infinivision/recdb/engine"
	"github.com/infinivision/recdb/record"
	"github.com/infinivision/recdb/scheduler"
	"github.com/infinivision/recdb/txn"
	"github.com/infinivision/recdb/visibility"
	"github.com/nnsgmsone/damrey/logger"
)

// CappedCallback is invoked right before each capped eviction, and whenever
// the visible frontier of a capped collection advances.
type CappedCallback interface {
	AboutToDeleteCapped(tx *txn.Txn, id record.ID, data []byte) error
	NotifyCappedWaitersIfNeeded()
}

type Options struct {
	Prefix            []byte
	Capped            bool
	CappedMaxSize     int64
	CappedMaxDocs     int64
	CappedCallback    CappedCallback
	BackgroundDeleter bool
}

type Stats struct {
	Capped        bool
	Oplog         bool
	CappedMaxSize int64
	CappedMaxDocs int64
	NumRecords    int64
	DataSize      int64
	StorageSize   int64
}

// Store maps one ordered record collection onto a prefixed key range of the
// engine. All record payloads are opaque.
type Store struct {
	ns    string
	ident string
	e     engine.Engine
	reg   *txn.Registry
	dur   durable.Manager
	schd  scheduler.Scheduler
	log   logger.Log

	prefix        []byte
	isCapped      bool
	isOplog       bool
	cappedMaxSize atomic.Int64
	cappedSlack   atomic.Int64
	cappedMaxDocs int64

	cbMu sync.Mutex
	cb   CappedCallback

	tracker *oplogKeyTracker
	vis     *visibility.Manager
	cnt     *counterCache

	nextIDNum atomic.Int64

	// deleterCh is a timed mutex: at most one capped deleter runs per
	// collection, and waiters bound their wait.
	deleterCh      chan struct{}
	oldestKeyHint  atomic.Int64
	lastCompaction time.Time // guarded by deleterCh
	hasBackground  bool
	bgCh           chan struct{}
	shuttingDown   atomic.Bool

	inserts       *metrics.Counter
	deletes       *metrics.Counter
	cappedDeletes *metrics.Counter
	compactions   *metrics.Counter
}
