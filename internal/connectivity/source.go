// Package connectivity reports whether the chat backend is reachable and notifies
// subscribers when that changes.
package connectivity

import (
	"context"
	"slices"
	"sync"
)

// Source is a subscription-based network status provider.
type Source interface {
	// Fetch returns the current state once.
	Fetch(ctx context.Context) (bool, error)
	// Subscribe registers fn for state changes and returns a function that removes it.
	Subscribe(fn func(connected bool)) (unsubscribe func())
}

// listeners is a set of change callbacks safe for concurrent use.
type listeners struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(bool)
}

func (l *listeners) add(fn func(bool)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(bool))
	}
	id := l.nextID
	l.nextID++
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

// notify calls every listener outside the lock, in registration order.
func (l *listeners) notify(connected bool) {
	l.mu.Lock()
	ids := make([]int, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(bool), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, l.fns[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(connected)
	}
}

func (l *listeners) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}

