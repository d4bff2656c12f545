package store

import (
	"bytes"

	"github.com/infinivision/recdb/engine"
	"github.com/infinivision/recdb/errmsg"
	"github.com/infinivision/recdb/record"
	"github.com/infinivision/recdb/txn"
	"github.com/infinivision/recdb/visibility"
)

// Cursor walks one collection under the transaction's snapshot. Forward
// cursors over capped collections filter out capped-hidden records; forward
// oplog cursors additionally pin a read ceiling at construction so they
// never observe holes in the id sequence.
type Cursor struct {
	s       *Store
	tx      *txn.Txn
	vis     *visibility.Manager
	forward bool
	capped  bool

	readUntil       record.ID // oplog forward ceiling; null otherwise
	itr             engine.Iterator
	seq             uint64
	lastLoc         record.ID
	eof             bool
	skipNextAdvance bool
	needFirstSeek   bool
}

// NewCursor builds a cursor over the collection. A forward oplog cursor
// whose transaction already pinned a snapshot without holding the
// collection exclusively is refused with a write conflict: its snapshot's
// relation to the visibility ceiling is unknowable.
func (s *Store) NewCursor(tx *txn.Txn, forward bool) (*Cursor, error) {
	var start, readUntil record.ID
	if s.isOplog {
		if forward {
			if tx.HasSnapshot() && !tx.IsExclusive() {
				return nil, errmsg.WriteConflict
			}
			readUntil = s.vis.OplogReadTill()
			start = record.ID(s.oldestKeyHint.Load())
		} else {
			start = s.vis.OplogReadTill()
		}
	}
	c := &Cursor{
		s:             s,
		tx:            tx,
		vis:           s.vis,
		forward:       forward,
		capped:        s.isCapped,
		readUntil:     readUntil,
		needFirstSeek: true,
		seq:           tx.Snapshot().Seq(),
	}
	if !start.IsNull() && !readUntil.IsNull() {
		// oplog fast path: land on the first candidate directly instead
		// of seeking from the beginning
		c.needFirstSeek = false
		c.lastLoc = start
		c.iterator()
		c.skipNextAdvance = true
		c.eof = false
	}
	return c, nil
}

func (c *Cursor) iterator() engine.Iterator {
	if c.itr != nil {
		return c.itr
	}
	c.itr = c.tx.NewIterator(c.s.prefix, record.NextPrefix(c.s.prefix))
	if !c.needFirstSeek {
		c.positionIterator()
	}
	return c.itr
}

// positionIterator re-seeks to lastLoc. Requires !eof.
func (c *Cursor) positionIterator() {
	c.skipNextAdvance = false
	target := record.EncodeKey(c.s.prefix, c.lastLoc)
	if !c.itr.Valid() || !bytes.Equal(c.itr.Key(), target) {
		c.itr.Seek(target)
		if !c.itr.Valid() && c.itr.Status() != nil {
			c.s.log.Fatalf("cursor seek failed: %v\n", c.itr.Status())
		}
	}
	if c.forward {
		// if we landed after lastLoc, the new position is returned by
		// the next call to Next
		c.skipNextAdvance = !c.itr.Valid() || c.lastLoc != record.DecodeID(c.itr.Key())
	} else {
		// Seek lands at or after the key, reverse cursors need at or
		// before
		if !c.itr.Valid() {
			c.itr.SeekToLast()
			if !c.itr.Valid() && c.itr.Status() != nil {
				c.s.log.Fatalf("cursor seek failed: %v\n", c.itr.Status())
			}
			c.skipNextAdvance = true
		} else if c.lastLoc != record.DecodeID(c.itr.Key()) {
			// landed after; step back to the record before lastLoc,
			// which leaves the iterator invalid when there is none
			c.skipNextAdvance = true
			c.itr.Prev()
		}
	}
	// lastLoc missing means it was deleted behind us; that only kills a
	// capped cursor
	c.eof = !c.itr.Valid() || (c.capped && c.lastLoc != record.DecodeID(c.itr.Key()))
}

func (c *Cursor) Next() *record.Record {
	if c.eof {
		return nil
	}
	itr := c.iterator()
	if !c.skipNextAdvance {
		if c.needFirstSeek {
			c.needFirstSeek = false
			if c.forward {
				itr.SeekToFirst()
			} else {
				itr.SeekToLast()
			}
		} else {
			if c.forward {
				itr.Next()
			} else {
				itr.Prev()
			}
		}
	}
	c.skipNextAdvance = false
	return c.curr()
}

// SeekExact positions on id with a point read, bypassing the iterator.
func (c *Cursor) SeekExact(id record.ID) *record.Record {
	c.needFirstSeek = false
	c.skipNextAdvance = false
	if c.itr != nil {
		c.itr.Close()
		c.itr = nil
	}
	v, err := c.tx.Get(record.EncodeKey(c.s.prefix, id))
	if err == errmsg.NotFound {
		c.eof = true
		return nil
	}
	if err != nil {
		c.s.log.Fatalf("cursor point read failed: %v\n", err)
	}
	c.eof = false
	c.lastLoc = id
	return &record.Record{ID: id, Data: v}
}

func (c *Cursor) Save() {}

// SaveUnpositioned makes the cursor report EOF on its next use.
func (c *Cursor) SaveUnpositioned() {
	c.eof = true
}

// Restore re-establishes the position after a yield, rebuilding the
// iterator when the snapshot moved underneath us. It reports false when the
// cursor died: a capped collection deleted lastLoc behind our back.
func (c *Cursor) Restore() bool {
	if c.itr == nil || c.seq != c.tx.Snapshot().Seq() {
		if c.itr != nil {
			c.itr.Close()
		}
		c.itr = c.tx.NewIterator(c.s.prefix, record.NextPrefix(c.s.prefix))
		c.seq = c.tx.Snapshot().Seq()
	}
	c.skipNextAdvance = false
	if c.eof || c.needFirstSeek {
		return true
	}
	c.positionIterator()
	if c.vis != nil && c.eof {
		return false
	}
	return true
}

// Detach releases the transaction between yields; Attach hands the cursor
// its next one. The iterator comes back in Restore.
func (c *Cursor) Detach() {
	c.tx = nil
	if c.itr != nil {
		c.itr.Close()
		c.itr = nil
	}
}

func (c *Cursor) Attach(tx *txn.Txn) {
	c.tx = tx
}

func (c *Cursor) Close() {
	if c.itr != nil {
		c.itr.Close()
		c.itr = nil
	}
}

func (c *Cursor) curr() *record.Record {
	if !c.itr.Valid() {
		if err := c.itr.Status(); err != nil {
			c.s.log.Fatalf("cursor iteration failed: %v\n", err)
		}
		c.eof = true
		return nil
	}
	c.eof = false
	c.lastLoc = record.DecodeID(c.itr.Key())

	if c.vis != nil && c.forward {
		if c.readUntil.IsNull() {
			// the normal capped case
			if c.vis.IsCappedHidden(c.lastLoc) {
				c.eof = true
				return nil
			}
		} else {
			// the oplog case: never read past the ceiling pinned at
			// construction
			if c.lastLoc > c.readUntil ||
				(c.lastLoc == c.readUntil && c.vis.IsCappedHidden(c.lastLoc)) {
				c.eof = true
				return nil
			}
		}
	}
	return &record.Record{ID: c.lastLoc, Data: append([]byte(nil), c.itr.Value()...)}
}
