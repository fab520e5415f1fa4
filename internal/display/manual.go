package display

import (
	"context"
	"sync"
)

// ManualSource holds a state that is set from outside, e.g. by the HTTP
// API. It reports ErrNoState until the first Set.
type ManualSource struct {
	mu       sync.RWMutex
	external bool
	known    bool
	onSet    func()
}

// NewManualSource returns a source with no state yet.
func NewManualSource() *ManualSource {
	return &ManualSource{}
}

// OnSet registers fn to run after every Set. Typically Watcher.Trigger.
func (m *ManualSource) OnSet(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSet = fn
}

// Set records the current display state.
func (m *ManualSource) Set(external bool) {
	m.mu.Lock()
	m.external = external
	m.known = true
	fn := m.onSet
	m.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// HasExternalDisplay implements Source.
func (m *ManualSource) HasExternalDisplay(context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.known {
		return false, ErrNoState
	}
	return m.external, nil
}
