package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"msgrelay/internal/constants"
	"msgrelay/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS kv_store (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS dead_letters (
	id          BIGSERIAL PRIMARY KEY,
	message_id  TEXT NOT NULL,
	message     JSONB NOT NULL,
	reason      TEXT NOT NULL,
	last_error  TEXT NOT NULL DEFAULT '',
	failed_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dead_letters_failed_at ON dead_letters (failed_at);
`

// Postgres stores the queue snapshot and dead letters in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// ConnectPostgres creates a pgxpool connection pool, verifies connectivity and ensures the schema.
func ConnectPostgres(ctx context.Context, dsn string, maxConns int32) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) GetItem(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := p.pool.QueryRow(ctx, `SELECT value FROM kv_store WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select kv item: %w", err)
	}
	return value, true, nil
}

func (p *Postgres) SetItem(ctx context.Context, key, value string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("upsert kv item: %w", err)
	}
	return nil
}

func (p *Postgres) SaveDeadLetter(ctx context.Context, dl models.DeadLetter) error {
	payload, err := json.Marshal(dl.Message)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO dead_letters (message_id, message, reason, last_error, failed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		dl.Message.ID, payload, string(dl.Reason), dl.LastError, dl.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

func (p *Postgres) ListDeadLetters(ctx context.Context, limit int) ([]models.DeadLetter, error) {
	if limit <= 0 {
		limit = constants.DefaultDeadLetterListLimit
	}
	rows, err := p.pool.Query(ctx, `
		SELECT message, reason, last_error, failed_at
		FROM dead_letters ORDER BY failed_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query dead letters: %w", err)
	}
	defer rows.Close()

	var out []models.DeadLetter
	for rows.Next() {
		var (
			payload []byte
			reason  string
			dl      models.DeadLetter
		)
		if err := rows.Scan(&payload, &reason, &dl.LastError, &dl.FailedAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		if err := json.Unmarshal(payload, &dl.Message); err != nil {
			return nil, fmt.Errorf("decode dead letter: %w", err)
		}
		dl.Reason = models.DeadLetterReason(reason)
		out = append(out, dl)
	}
	return out, rows.Err()
}

func (p *Postgres) PurgeDeadLetters(ctx context.Context, before time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM dead_letters WHERE failed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge dead letters: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// HealthCheck pings the pool
func (p *Postgres) HealthCheck(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
