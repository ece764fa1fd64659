package storage

import (
	"context"
	"testing"
	"time"

	"msgrelay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetSetItem(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, ok, err := m.GetItem(ctx, "queue")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.SetItem(ctx, "queue", "[]"))
	require.NoError(t, m.SetItem(ctx, "queue", `[{"id":"a"}]`))

	v, ok, err := m.GetItem(ctx, "queue")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"id":"a"}]`, v)
	assert.Equal(t, 2, m.Writes())
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMemory()
	assert.ErrorIs(t, m.SetItem(ctx, "k", "v"), context.Canceled)
	_, _, err := m.GetItem(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemory_DeadLetters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now()

	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, m.SaveDeadLetter(ctx, models.DeadLetter{
			Message:  models.QueuedMessage{ID: id},
			Reason:   models.DeadLetterRetriesExhausted,
			FailedAt: now.Add(time.Duration(i-2) * time.Hour),
		}))
	}

	list, err := m.ListDeadLetters(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].Message.ID)
	assert.Equal(t, "mid", list[1].Message.ID)

	purged, err := m.PurgeDeadLetters(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	list, err = m.ListDeadLetters(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].Message.ID)
}
