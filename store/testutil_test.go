package store

import (
	"io"
	"testing"

	"github.com/infinivision/recdb/durable"
	"github.com/infinivision/recdb/engine"
	"github.com/infinivision/recdb/engine/memeng"
	"github.com/infinivision/recdb/scheduler"
	"github.com/infinivision/recdb/txn"
	"github.com/nnsgmsone/damrey/logger"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	e    engine.Engine
	reg  *txn.Registry
	dur  durable.Manager
	schd scheduler.Scheduler
	log  logger.Log
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := memeng.New()
	log := logger.New(io.Discard, "test")
	schd := scheduler.New(e, log)
	go schd.Run()
	t.Cleanup(schd.Stop)
	return &testEnv{
		e:    e,
		reg:  txn.NewRegistry(e),
		dur:  durable.New(e),
		schd: schd,
		log:  log,
	}
}

func (ev *testEnv) mustStore(t *testing.T, ns, ident string, opts Options) *Store {
	t.Helper()
	s, err := New(ns, ident, ev.e, ev.reg, ev.dur, ev.schd, ev.log, opts)
	require.NoError(t, err)
	return s
}

func plainOptions(prefix string) Options {
	return Options{Prefix: []byte(prefix), CappedMaxSize: -1, CappedMaxDocs: -1}
}

func cappedOptions(prefix string, maxSize, maxDocs int64) Options {
	return Options{Prefix: []byte(prefix), Capped: true, CappedMaxSize: maxSize, CappedMaxDocs: maxDocs}
}

// gate is a durability manager tests open by hand.
type gate struct {
	ch chan struct{}
}

func (g *gate) WaitUntilDurable(forceFlush bool) error {
	<-g.ch
	return nil
}

func openGate() *gate {
	g := &gate{ch: make(chan struct{})}
	close(g.ch)
	return g
}
