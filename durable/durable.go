package durable

import "github.com/infinivision/recdb/engine"

func New(e engine.Engine) *manager {
	return &manager{e: e}
}

func (m *manager) WaitUntilDurable(forceFlush bool) error {
	m.Lock()
	defer m.Unlock()
	return m.e.Sync()
}
