package store

import (
	"sync/atomic"

	"github.com/infinivision/recdb/constant"
	"github.com/infinivision/recdb/engine"
	"github.com/infinivision/recdb/record"
	"github.com/infinivision/recdb/txn"
)

// counterCache keeps the collection's record count and byte size as
// atomics. The authoritative value for a transaction is the atomic plus the
// transaction's own pending delta, so writers read their own writes; the
// persisted keys are refreshed inside every committing batch.
type counterCache struct {
	numRecords    atomic.Int64
	dataSize      atomic.Int64
	numRecordsKey string
	dataSizeKey   string
}

func newCounterCache(ident string) *counterCache {
	return &counterCache{
		numRecordsKey: constant.MetadataPrefix + "numrecords-" + ident,
		dataSizeKey:   constant.MetadataPrefix + "datasize-" + ident,
	}
}

func (c *counterCache) loadFromStore(e engine.Engine) {
	c.numRecords.Store(loadCounter(e, c.numRecordsKey))
	c.dataSize.Store(loadCounter(e, c.dataSizeKey))
}

func loadCounter(e engine.Engine, key string) int64 {
	v, err := e.Get([]byte(key))
	if err != nil {
		return 0
	}
	if n := record.DecodeCounter(v); n > 0 {
		return n
	}
	return 0
}

func (c *counterCache) numRecordsFor(tx *txn.Txn) int64 {
	return c.numRecords.Load() + tx.Delta(c.numRecordsKey)
}

func (c *counterCache) dataSizeFor(tx *txn.Txn) int64 {
	return c.dataSize.Load() + tx.Delta(c.dataSizeKey)
}

func (c *counterCache) changeNumRecords(tx *txn.Txn, amount int64) {
	tx.IncrementCounter(c.numRecordsKey, &c.numRecords, amount)
}

func (c *counterCache) increaseDataSize(tx *txn.Txn, amount int64) {
	tx.IncrementCounter(c.dataSizeKey, &c.dataSize, amount)
}
