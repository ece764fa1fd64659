package connectivity

import (
	"context"
	"sync"
)

// Manual is a Source whose state is set by the application, for example from an admin
// endpoint or a test.
type Manual struct {
	mu        sync.Mutex
	connected bool
	subs      listeners
}

func NewManual(initial bool) *Manual {
	return &Manual{connected: initial}
}

func (m *Manual) Fetch(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected, nil
}

func (m *Manual) Subscribe(fn func(connected bool)) func() {
	return m.subs.add(fn)
}

// Set updates the state and notifies subscribers if it changed. It reports whether it did.
func (m *Manual) Set(connected bool) bool {
	m.mu.Lock()
	changed := m.connected != connected
	m.connected = connected
	m.mu.Unlock()

	if changed {
		m.subs.notify(connected)
	}
	return changed
}
