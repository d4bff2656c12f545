package memeng

import (
	"bytes"
	"sync"
	"sync/atomic"

	"github.com/google/btree"
	"github.com/infinivision/recdb/engine"
)

type item struct {
	k []byte
	v []byte
}

func less(a, b item) bool {
	return bytes.Compare(a.k, b.k) < 0
}

type memEngine struct {
	sync.Mutex
	t   *btree.BTreeG[item]
	seq atomic.Uint64
}

type snapshot struct {
	t   *btree.BTreeG[item]
	seq uint64
}

type batch struct {
	ops []op
}

type op struct {
	k   []byte
	v   []byte
	del bool
}

type iterator struct {
	t     *btree.BTreeG[item]
	lo    []byte
	hi    []byte // exclusive; nil means unbounded
	cur   item
	valid bool
}

var _ engine.Engine = (*memEngine)(nil)
