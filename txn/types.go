package txn

import (
	"context"
	"sync/atomic"

	"github.com/infinivision/recdb/engine"
	"github.com/puzpuzpuz/xsync/v3"
)

// Registry hands out transactions over one engine and carries the state
// shared between them: which keys live transactions intend to write, and
// the engine sequence at which each key was last committed.
type Registry struct {
	e       engine.Engine
	ids     atomic.Uint64
	owners  *xsync.MapOf[string, uint64]
	commits *xsync.MapOf[string, uint64]
}

// Txn is the per-operation transactional context: a lazy engine snapshot, a
// write cache staged into one atomic batch at commit, per-txn counter
// deltas, commit/rollback hooks and a context used for interruption. A Txn
// is single-threaded.
type Txn struct {
	id        uint64
	r         *Registry
	ctx       context.Context
	exclusive bool
	done      bool
	snap      engine.Snapshot
	wmp       map[string][]byte // nil value marks a delete
	deltas    map[string]*delta
	writes    []string
	changes   []change
}

type delta struct {
	counter *atomic.Int64
	amount  int64
}

type change struct {
	commit   func()
	rollback func()
}
