// Command migrate creates or updates the msgrelay schema and can purge old dead letters
// without starting the relay.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"msgrelay/internal/constants"
	"msgrelay/internal/database"
	"msgrelay/internal/storage"
	"msgrelay/internal/validation"
)

type schemaStore interface {
	PurgeDeadLetters(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

func main() {
	driver := flag.String("driver", constants.StorageDriverSQLite, "Storage driver: sqlite or postgres")
	dbPath := flag.String("db", constants.DefaultSQLitePath, "Path to the SQLite database file")
	dsn := flag.String("dsn", os.Getenv("MSGRELAY_POSTGRES_DSN"), "PostgreSQL connection string")
	purgeDays := flag.Int("purge-days", 0, "Also delete dead letters older than this many days")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := open(ctx, *driver, *dbPath, *dsn)
	if err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	defer store.Close()
	fmt.Printf("Schema is up to date (%s)\n", *driver)

	if *purgeDays == 0 {
		return
	}
	if err := validation.ValidateRetentionDays(*purgeDays); err != nil {
		log.Fatalf("Invalid -purge-days: %v", err)
	}

	cutoff := time.Now().AddDate(0, 0, -*purgeDays).UTC()
	purged, err := store.PurgeDeadLetters(ctx, cutoff)
	if err != nil {
		log.Fatalf("Failed to purge dead letters: %v", err)
	}
	fmt.Printf("Purged %d dead letters older than %s\n", purged, cutoff.Format(time.RFC3339))
}

// open applies the schema as a side effect of opening the store.
func open(ctx context.Context, driver, dbPath, dsn string) (schemaStore, error) {
	switch driver {
	case constants.StorageDriverSQLite:
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			fmt.Printf("Database file %s not found, creating it\n", dbPath)
		}
		return database.New(dbPath)
	case constants.StorageDriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("-dsn or MSGRELAY_POSTGRES_DSN is required for postgres")
		}
		return storage.ConnectPostgres(ctx, dsn, 1)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}
