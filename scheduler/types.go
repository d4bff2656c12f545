package scheduler

import (
	"github.com/infinivision/recdb/engine"
	"github.com/nnsgmsone/damrey/logger"
)

// Scheduler runs range compactions in the background. Schedule never
// blocks the caller; requests past the queue's capacity are dropped.
type Scheduler interface {
	Run()
	Stop()
	Schedule(lo, hi []byte)
}

type request struct {
	lo []byte
	hi []byte
}

type scheduler struct {
	e   engine.Engine
	log logger.Log
	ch  chan struct{}
	mch chan *request
}
