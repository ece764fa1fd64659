package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"msgrelay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "msgrelay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	_, err = New("../../escape.db")
	assert.Error(t, err)
}

func TestItems(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, found, err := db.GetItem(ctx, "offline_message_queue")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, db.SetItem(ctx, "offline_message_queue", `[{"id":"a"}]`))
	require.NoError(t, db.SetItem(ctx, "offline_message_queue", `[]`))
	require.NoError(t, db.SetItem(ctx, "other", `x`))

	value, found, err := db.GetItem(ctx, "offline_message_queue")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[]`, value)

	assert.NoError(t, db.HealthCheck(ctx))
}

func TestItems_EncryptedAtRest(t *testing.T) {
	t.Setenv(EnvEnableEncryption, "true")
	t.Setenv(EnvEncryptionSecret, "0123456789abcdef0123456789abcdef")

	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SetItem(ctx, "queue", `[{"content":"secret"}]`))

	var raw string
	require.NoError(t, db.db.QueryRowContext(ctx, SelectItemQuery, "queue").Scan(&raw))
	assert.NotContains(t, raw, "secret")

	value, found, err := db.GetItem(ctx, "queue")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[{"content":"secret"}]`, value)
}

func TestNew_EncryptionWithoutSecretFails(t *testing.T) {
	t.Setenv(EnvEnableEncryption, "true")
	t.Setenv(EnvEncryptionSecret, "")

	_, err := New(filepath.Join(t.TempDir(), "msgrelay.db"))
	assert.Error(t, err)
}

func TestDeadLetters(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, db.SaveDeadLetter(ctx, models.DeadLetter{
			Message: models.QueuedMessage{
				ID:             id,
				ConversationID: "conv-1",
				Content:        "hello " + id,
				Type:           models.MessageTypeText,
				Timestamp:      now.Add(-time.Hour),
				RetryCount:     5,
				MaxRetries:     5,
			},
			Reason:    models.DeadLetterRetriesExhausted,
			LastError: "backend unavailable",
			FailedAt:  now.Add(time.Duration(i-2) * 24 * time.Hour),
		}))
	}

	list, err := db.ListDeadLetters(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].Message.ID)
	assert.Equal(t, "mid", list[1].Message.ID)
	assert.Equal(t, "hello new", list[0].Message.Content)
	assert.Equal(t, "backend unavailable", list[0].LastError)
	assert.Equal(t, models.DeadLetterRetriesExhausted, list[0].Reason)
	assert.True(t, now.Equal(list[0].FailedAt))

	purged, err := db.PurgeDeadLetters(ctx, now.Add(-12*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	list, err = db.ListDeadLetters(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].Message.ID)
}
