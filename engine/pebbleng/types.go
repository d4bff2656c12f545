package pebbleng

import (
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/infinivision/recdb/engine"
)

type pebbleEngine struct {
	db  *pebble.DB
	seq atomic.Uint64
}

type snapshot struct {
	s   *pebble.Snapshot
	seq uint64
}

type batch struct {
	b *pebble.Batch
}

type iterator struct {
	itr *pebble.Iterator
}

var _ engine.Engine = (*pebbleEngine)(nil)
var _ engine.Snapshot = (*snapshot)(nil)
