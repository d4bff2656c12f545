package db

import (
	"context"
	"encoding/binary"
	"os"

	"github.com/google/uuid"
	"github.com/infinivision/recdb/constant"
	"github.com/infinivision/recdb/durable"
	"github.com/infinivision/recdb/engine"
	"github.com/infinivision/recdb/engine/memeng"
	"github.com/infinivision/recdb/engine/pebbleng"
	"github.com/infinivision/recdb/errmsg"
	"github.com/infinivision/recdb/record"
	"github.com/infinivision/recdb/scheduler"
	"github.com/infinivision/recdb/store"
	"github.com/infinivision/recdb/txn"
	"github.com/nnsgmsone/damrey/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

func DefaultConfig() Config {
	return Config{
		DirName:   "rec.db",
		LogWriter: os.Stderr,
	}
}

func Open(cfg Config) (*db, error) {
	log := logger.New(cfg.LogWriter, "recdb")
	var e engine.Engine
	if cfg.InMemory {
		e = memeng.New()
	} else {
		pe, err := pebbleng.Open(cfg.DirName)
		if err != nil {
			return nil, err
		}
		e = pe
	}
	schd := scheduler.New(e, log)
	go schd.Run()
	return &db{
		e:      e,
		reg:    txn.NewRegistry(e),
		dur:    durable.New(e),
		schd:   schd,
		log:    log,
		cfg:    cfg,
		stores: xsync.NewMapOf[string, *store.Store](),
	}, nil
}

func (d *db) Close() error {
	d.stores.Range(func(ns string, s *store.Store) bool {
		s.Close()
		d.stores.Delete(ns)
		return true
	})
	d.schd.Stop()
	return d.e.Close()
}

func (d *db) Begin(ctx context.Context) *txn.Txn {
	return d.reg.Begin(ctx)
}

func (d *db) BeginExclusive(ctx context.Context) *txn.Txn {
	return d.reg.BeginExclusive(ctx)
}

// CreateRecordStore opens the collection named ns, allocating a prefix for
// it on first use. Reopening an existing namespace hands back the open
// store.
func (d *db) CreateRecordStore(ns, ident string, opts store.Options) (*store.Store, error) {
	if s, ok := d.stores.Load(ns); ok {
		return s, nil
	}
	if ident == "" {
		ident = uuid.NewString()
	}
	prefix, err := d.prefixFor(ident, store.IsOplogNamespace(ns))
	if err != nil {
		return nil, err
	}
	opts.Prefix = prefix
	opts.BackgroundDeleter = d.cfg.OplogBackgroundDeleter
	s, err := store.New(ns, ident, d.e, d.reg, d.dur, d.schd, d.log, opts)
	if err != nil {
		return nil, err
	}
	if prev, loaded := d.stores.LoadOrStore(ns, s); loaded {
		s.Close()
		return prev, nil
	}
	return s, nil
}

func (d *db) GetRecordStore(ns string) (*store.Store, bool) {
	return d.stores.Load(ns)
}

// DropRecordStore truncates the collection and forgets it. The prefix is
// not recycled.
func (d *db) DropRecordStore(ctx context.Context, ns string) error {
	s, ok := d.stores.Load(ns)
	if !ok {
		return errmsg.NotFound
	}
	tx := d.reg.Begin(ctx)
	defer tx.Rollback()
	if err := s.Truncate(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.Close()
	d.stores.Delete(ns)
	return nil
}

// prefixFor loads the ident's persisted prefix or allocates the next one.
// An oplog reserves two consecutive prefixes: its own and the immediate
// successor for the key tracker.
func (d *db) prefixFor(ident string, isOplog bool) ([]byte, error) {
	d.Lock()
	defer d.Unlock()
	identKey := []byte(constant.MetadataPrefix + "prefix-" + ident)
	if v, err := d.e.Get(identKey); err == nil {
		return v, nil
	} else if err != errmsg.NotFound {
		return nil, err
	}
	next := int64(1)
	nextKey := []byte(constant.MetadataPrefix + "nextprefix")
	if v, err := d.e.Get(nextKey); err == nil {
		next = record.DecodeCounter(v)
	} else if err != errmsg.NotFound {
		return nil, err
	}
	if isOplog && next&0xff == 0xff {
		// the tracker takes NextPrefix(prefix), which is the following
		// four-byte prefix only when the last byte can be incremented
		next++
	}
	prefix := make([]byte, 4)
	binary.BigEndian.PutUint32(prefix, uint32(next))
	reserve := int64(1)
	if isOplog {
		reserve = 2
	}
	b := d.e.NewBatch()
	b.Put(identKey, prefix)
	b.Put(nextKey, record.EncodeCounter(next+reserve))
	if _, err := d.e.Apply(b); err != nil {
		b.Close()
		return nil, err
	}
	b.Close()
	return prefix, nil
}
