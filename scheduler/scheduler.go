package scheduler

import (
	"github.com/infinivision/recdb/engine"
	"github.com/nnsgmsone/damrey/logger"
)

func New(e engine.Engine, log logger.Log) *scheduler {
	return &scheduler{
		e:   e,
		log: log,
		ch:  make(chan struct{}),
		mch: make(chan *request, 1024),
	}
}

func (s *scheduler) Run() {
	for {
		select {
		case <-s.ch:
			s.ch <- struct{}{}
			return
		case r := <-s.mch:
			if err := s.e.CompactRange(r.lo, r.hi); err != nil {
				s.log.Errorf("compaction of range failed: %v\n", err)
			}
		}
	}
}

func (s *scheduler) Stop() {
	s.ch <- struct{}{}
	<-s.ch
}

func (s *scheduler) Schedule(lo, hi []byte) {
	select {
	case s.mch <- &request{lo: lo, hi: hi}:
	default:
	}
}
