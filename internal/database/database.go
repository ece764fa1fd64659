package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"msgrelay/internal/constants"
	"msgrelay/internal/migrations"
	"msgrelay/internal/models"
	"msgrelay/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

// Database is the SQLite backend for queue snapshots and dead letters. Stored values are
// encrypted at rest when MSGRELAY_ENABLE_ENCRYPTION=true.
type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, constants.DefaultFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	closeWith := func(cause error) error {
		if closeErr := db.Close(); closeErr != nil {
			return fmt.Errorf("%w (close error: %v)", cause, closeErr)
		}
		return cause
	}

	if err := db.Ping(); err != nil {
		return nil, closeWith(fmt.Errorf("failed to ping database: %w", err))
	}

	schema, err := migrations.All()
	if err != nil {
		return nil, closeWith(fmt.Errorf("failed to read schema: %w", err))
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, closeWith(fmt.Errorf("failed to initialize schema: %w", err))
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		return nil, closeWith(fmt.Errorf("failed to initialize encryptor: %w", err))
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// HealthCheck verifies the database answers
func (d *Database) HealthCheck(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// GetItem returns the value stored under key.
func (d *Database) GetItem(ctx context.Context, key string) (string, bool, error) {
	var stored string
	err := d.db.QueryRowContext(ctx, SelectItemQuery, key).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read item: %w", err)
	}

	value, err := d.encryptor.Decrypt(stored)
	if err != nil {
		return "", false, fmt.Errorf("failed to decrypt item: %w", err)
	}
	return value, true, nil
}

// SetItem replaces the value stored under key, retrying while SQLite reports the database locked.
func (d *Database) SetItem(ctx context.Context, key, value string) error {
	stored, err := d.encryptor.Encrypt(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt item: %w", err)
	}

	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, UpsertItemQuery, key, stored)
		return err
	}, "set item")
}

func (d *Database) SaveDeadLetter(ctx context.Context, dl models.DeadLetter) error {
	payload, err := json.Marshal(dl.Message)
	if err != nil {
		return fmt.Errorf("failed to encode dead letter: %w", err)
	}

	message, err := d.encryptor.Encrypt(string(payload))
	if err != nil {
		return fmt.Errorf("failed to encrypt dead letter: %w", err)
	}
	lastError, err := d.encryptor.Encrypt(dl.LastError)
	if err != nil {
		return fmt.Errorf("failed to encrypt dead letter error: %w", err)
	}

	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, InsertDeadLetterQuery,
			dl.Message.ID, message, string(dl.Reason), lastError, dl.FailedAt.UTC())
		return err
	}, "save dead letter")
}

// ListDeadLetters returns up to limit dead letters, newest first.
func (d *Database) ListDeadLetters(ctx context.Context, limit int) ([]models.DeadLetter, error) {
	if limit <= 0 {
		limit = constants.DefaultDeadLetterListLimit
	}

	rows, err := d.db.QueryContext(ctx, SelectDeadLettersQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer rows.Close()

	var out []models.DeadLetter
	for rows.Next() {
		var (
			message, reason, lastError string
			failedAt                   time.Time
		)
		if err := rows.Scan(&message, &reason, &lastError, &failedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}

		plain, err := d.encryptor.Decrypt(message)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt dead letter: %w", err)
		}
		plainErr, err := d.encryptor.Decrypt(lastError)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt dead letter error: %w", err)
		}

		dl := models.DeadLetter{
			Reason:    models.DeadLetterReason(reason),
			LastError: plainErr,
			FailedAt:  failedAt.UTC(),
		}
		if err := json.Unmarshal([]byte(plain), &dl.Message); err != nil {
			return nil, fmt.Errorf("failed to decode dead letter: %w", err)
		}
		out = append(out, dl)
	}

	return out, rows.Err()
}

// PurgeDeadLetters deletes dead letters that failed before the cutoff.
func (d *Database) PurgeDeadLetters(ctx context.Context, before time.Time) (int64, error) {
	var purged int64
	err := retryableDBOperation(ctx, func() error {
		res, err := d.db.ExecContext(ctx, DeleteDeadLettersBeforeQuery, before.UTC())
		if err != nil {
			return err
		}
		purged, err = res.RowsAffected()
		return err
	}, "purge dead letters")
	if err != nil {
		return 0, err
	}
	return purged, nil
}
