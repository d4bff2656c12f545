package visibility

import (
	"container/list"
	"sync"

	"github.com/infinivision/recdb/record"
	"github.com/nnsgmsone/damrey/logger"
)

// Manager tracks record ids that were allocated into pending transactions
// and are therefore still hidden from readers. The list is ordered by
// construction: ids are only ever appended, and appends are strictly
// increasing. Elements are removed on rollback and on commit; a committed
// oplog id with later ids already seen is removed only once the journal
// goroutine has established durability order.
type Manager struct {
	mu           sync.Mutex
	uncommitted  *list.List // of record.ID, ascending
	highestSeen  record.ID
	waiting      []*list.Element // committed oplog ids awaiting durability
	journalCh    chan struct{}
	visibleCh    chan struct{} // closed and replaced on every broadcast
	shuttingDown bool
	stopped      chan struct{}
	isOplog      bool
	log          logger.Log
	notify       func() // capped-waiter notification, runs outside mu
}
