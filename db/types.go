package db

import (
	"io"
	"sync"

	"github.com/infinivision/recdb/durable"
	"github.com/infinivision/recdb/engine"
	"github.com/infinivision/recdb/scheduler"
	"github.com/infinivision/recdb/store"
	"github.com/infinivision/recdb/txn"
	"github.com/nnsgmsone/damrey/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

type Config struct {
	DirName   string
	LogWriter io.Writer
	// InMemory backs the database with the btree engine instead of
	// pebble; nothing survives Close.
	InMemory bool
	// OplogBackgroundDeleter moves oplog eviction to a dedicated
	// goroutine; writers only apply back-pressure.
	OplogBackgroundDeleter bool
}

type db struct {
	sync.Mutex // guards prefix allocation
	e          engine.Engine
	reg        *txn.Registry
	dur        durable.Manager
	schd       scheduler.Scheduler
	log        logger.Log
	cfg        Config
	stores     *xsync.MapOf[string, *store.Store]
}
