package queue

import (
	"context"
	"encoding/json"
	"time"

	"msgrelay/internal/models"

	"github.com/sirupsen/logrus"
)

// Store is an asynchronous key-value store holding the serialized queue under one key.
type Store interface {
	GetItem(ctx context.Context, key string) (value string, found bool, err error)
	SetItem(ctx context.Context, key, value string) error
}

// DeadLetterStore keeps messages that left the queue undelivered.
type DeadLetterStore interface {
	SaveDeadLetter(ctx context.Context, dl models.DeadLetter) error
	ListDeadLetters(ctx context.Context, limit int) ([]models.DeadLetter, error)
	PurgeDeadLetters(ctx context.Context, before time.Time) (int64, error)
}

func encodeQueue(msgs []models.QueuedMessage) (string, error) {
	if msgs == nil {
		msgs = []models.QueuedMessage{}
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// loadQueue reads the persisted snapshot. A missing, unreadable or corrupt record yields an
// empty queue.
func loadQueue(ctx context.Context, store Store, key string, maxRetries int, logger *logrus.Logger) []models.QueuedMessage {
	raw, found, err := store.GetItem(ctx, key)
	if err != nil {
		logger.WithError(err).WithField(LogFieldStorageKey, key).Warn("Failed to read persisted queue, starting empty")
		return nil
	}
	if !found || raw == "" {
		return nil
	}

	var msgs []models.QueuedMessage
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		logger.WithError(err).WithField(LogFieldStorageKey, key).Warn("Persisted queue is corrupt, starting empty")
		return nil
	}

	out := msgs[:0]
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		if m.MaxRetries <= 0 {
			m.MaxRetries = maxRetries
		}
		out = append(out, m)
	}
	return out
}
