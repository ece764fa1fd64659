package database

// Key-value queries
const (
	SelectItemQuery = `
		SELECT value FROM kv_store WHERE key = ?
	`

	UpsertItemQuery = `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
)

// Dead letter queries
const (
	InsertDeadLetterQuery = `
		INSERT INTO dead_letters (message_id, message, reason, last_error, failed_at)
		VALUES (?, ?, ?, ?, ?)
	`

	SelectDeadLettersQuery = `
		SELECT message, reason, last_error, failed_at
		FROM dead_letters
		ORDER BY failed_at DESC, id DESC
		LIMIT ?
	`

	DeleteDeadLettersBeforeQuery = `
		DELETE FROM dead_letters WHERE failed_at < ?
	`
)
