// Package storage holds the non-SQLite backends for the queue snapshot and dead letters.
package storage

import (
	"context"
	"slices"
	"sync"
	"time"

	"msgrelay/internal/models"
)

// Memory keeps everything in process memory. It is used by tests and by the "memory" driver.
type Memory struct {
	mu          sync.RWMutex
	items       map[string]string
	deadLetters []models.DeadLetter
	writes      int
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]string)}
}

func (m *Memory) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *Memory) SetItem(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	m.writes++
	return nil
}

// Writes returns how many SetItem calls succeeded.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *Memory) SaveDeadLetter(ctx context.Context, dl models.DeadLetter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadLetters = append(m.deadLetters, dl)
	return nil
}

// ListDeadLetters returns up to limit dead letters, newest first.
func (m *Memory) ListDeadLetters(ctx context.Context, limit int) ([]models.DeadLetter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := slices.Clone(m.deadLetters)
	m.mu.RUnlock()

	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) PurgeDeadLetters(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.deadLetters[:0]
	var purged int64
	for _, dl := range m.deadLetters {
		if dl.FailedAt.Before(before) {
			purged++
			continue
		}
		kept = append(kept, dl)
	}
	m.deadLetters = kept
	return purged, nil
}

func (m *Memory) Close() error {
	return nil
}
