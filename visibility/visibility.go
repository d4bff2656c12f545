package visibility

import (
	"container/list"

	"github.com/infinivision/recdb/durable"
	"github.com/infinivision/recdb/record"
	"github.com/infinivision/recdb/txn"
	"github.com/nnsgmsone/damrey/logger"
)

func New(isOplog bool, dur durable.Manager, log logger.Log, notify func()) *Manager {
	m := &Manager{
		uncommitted: list.New(),
		highestSeen: record.MinID,
		journalCh:   make(chan struct{}, 1),
		visibleCh:   make(chan struct{}),
		stopped:     make(chan struct{}),
		isOplog:     isOplog,
		log:         log,
		notify:      notify,
	}
	if isOplog {
		go m.journalLoop(dur)
	}
	return m
}

// Close stops the journal goroutine and waits for it to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	m.shuttingDown = true
	m.mu.Unlock()
	if m.isOplog {
		m.signalJournal()
		<-m.stopped
	}
}

// AddUncommitted hides id until tx settles. Ids must arrive in increasing
// order; an out-of-order id means the caller broke the oplog insert
// contract.
func (m *Manager) AddUncommitted(tx *txn.Txn, id record.ID) {
	m.mu.Lock()
	m.addLocked(tx, id)
	m.mu.Unlock()
}

// AllocateAndAddUncommitted runs nextID under the manager's lock so that
// allocation order equals insertion order into the uncommitted list.
func (m *Manager) AllocateAndAddUncommitted(tx *txn.Txn, nextID func() record.ID) record.ID {
	m.mu.Lock()
	id := nextID()
	m.addLocked(tx, id)
	m.mu.Unlock()
	return id
}

func (m *Manager) addLocked(tx *txn.Txn, id record.ID) {
	if back := m.uncommitted.Back(); back != nil && back.Value.(record.ID) >= id {
		m.log.Fatalf("out of order uncommitted record id %d\n", id)
	}
	e := m.uncommitted.PushBack(id)
	tx.RegisterChange(
		func() { m.dealtWith(e, true) },
		func() { m.dealtWith(e, false) },
	)
	m.highestSeen = id
}

func (m *Manager) IsCappedHidden(id record.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	front := m.uncommitted.Front()
	return front != nil && front.Value.(record.ID) <= id
}

// LowestHidden returns the smallest uncommitted id, or the null id when
// nothing is hidden.
func (m *Manager) LowestHidden() record.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if front := m.uncommitted.Front(); front != nil {
		return front.Value.(record.ID)
	}
	return record.NullID
}

// OplogReadTill is the ceiling a forward oplog reader pins at snapshot
// time: the lowest uncommitted id while writes are in flight, otherwise the
// highest id ever seen.
func (m *Manager) OplogReadTill() record.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if front := m.uncommitted.Front(); front != nil {
		return front.Value.(record.ID)
	}
	return m.highestSeen
}

func (m *Manager) UpdateHighestSeen(id record.ID) {
	m.mu.Lock()
	if id > m.highestSeen {
		m.highestSeen = id
	}
	m.mu.Unlock()
}

// SetHighestSeen rewinds the frontier after a capped truncate. The caller
// must hold the collection exclusively.
func (m *Manager) SetHighestSeen(id record.ID) {
	m.mu.Lock()
	m.highestSeen = id
	m.mu.Unlock()
}

// WaitForAllEarlierWritesVisible blocks until every id at or below the
// current frontier has become visible. Interruptible through the
// transaction's context.
func (m *Manager) WaitForAllEarlierWritesVisible(tx *txn.Txn) error {
	m.mu.Lock()
	waitingFor := m.highestSeen
	for {
		front := m.uncommitted.Front()
		if front == nil || front.Value.(record.ID) > waitingFor {
			m.mu.Unlock()
			return nil
		}
		ch := m.visibleCh
		m.mu.Unlock()
		select {
		case <-ch:
		case <-tx.Context().Done():
			return tx.Context().Err()
		}
		m.mu.Lock()
	}
}

// dealtWith settles one uncommitted id. Rolled-back ids disappear at once.
// A committed oplog id with later inserts pending is handed to the journal
// goroutine so it only becomes visible once durability order is
// established; with no later inserts, durability follows commit order and
// the fast path erases immediately.
func (m *Manager) dealtWith(e *list.Element, didCommit bool) {
	m.mu.Lock()
	if didCommit && m.isOplog && e.Value.(record.ID) != m.highestSeen {
		wasEmpty := len(m.waiting) == 0
		m.waiting = append(m.waiting, e)
		m.mu.Unlock()
		if wasEmpty {
			m.signalJournal()
		}
		return
	}
	m.uncommitted.Remove(e)
	m.broadcastVisible()
	m.mu.Unlock()
	if !didCommit {
		m.notify()
	}
}

func (m *Manager) journalLoop(dur durable.Manager) {
	for {
		m.mu.Lock()
		for !m.shuttingDown && len(m.waiting) == 0 {
			m.mu.Unlock()
			<-m.journalCh
			m.mu.Lock()
		}
		if m.shuttingDown {
			m.mu.Unlock()
			close(m.stopped)
			return
		}
		batch := m.waiting
		m.waiting = nil
		m.mu.Unlock()

		// Failure here is fatal: leaving these ids in the uncommitted
		// list would stall oplog readers forever.
		if err := dur.WaitUntilDurable(false); err != nil {
			m.log.Fatalf("oplog journal durability wait failed: %v\n", err)
		}

		m.mu.Lock()
		for _, e := range batch {
			m.uncommitted.Remove(e)
		}
		m.broadcastVisible()
		m.mu.Unlock()

		m.notify()
	}
}

func (m *Manager) signalJournal() {
	select {
	case m.journalCh <- struct{}{}:
	default:
	}
}

func (m *Manager) broadcastVisible() {
	close(m.visibleCh)
	m.visibleCh = make(chan struct{})
}
