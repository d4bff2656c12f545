package durable

import (
	"sync"

	"github.com/infinivision/recdb/engine"
)

// Manager serializes durability waits. WaitUntilDurable blocks until every
// write committed before the call is on stable storage.
type Manager interface {
	WaitUntilDurable(forceFlush bool) error
}

type manager struct {
	sync.Mutex
	e engine.Engine
}
