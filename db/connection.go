package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// isPostgres reports whether dsn points at PostgreSQL rather than a SQLite file
func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func connection(dsn string) (*sql.DB, string, sqlbuilder.Flavor, error) {
	if isPostgres(dsn) {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, "", 0, err
		}

		// Set connection pool settings
		db.SetMaxOpenConns(20)           // Allow multiple concurrent operations
		db.SetMaxIdleConns(10)           // Keep some connections ready
		db.SetConnMaxLifetime(time.Hour) // Recreate connections after an hour
		db.SetConnMaxIdleTime(time.Hour) // Close idle connections after an hour

		return db, "postgres", sqlbuilder.PostgreSQL, nil
	}

	// Enable foreign keys and WAL mode
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite", dsn))
	if err != nil {
		return nil, "", 0, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1)            // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)            // Keep one connection in the pool
	db.SetConnMaxLifetime(time.Hour) // Recreate connections after an hour
	db.SetConnMaxIdleTime(time.Hour) // Close idle connections after an hour

	// Configure some additional pragmas for better performance
	if _, err := db.Exec(`
		PRAGMA synchronous = NORMAL;
		PRAGMA cache_size = -32000; -- 32MB cache
		PRAGMA temp_store = MEMORY;
	`); err != nil {
		db.Close()
		return nil, "", 0, fmt.Errorf("failed to set pragmas: %w", err)
	}

	return db, "sqlite", sqlbuilder.SQLite, nil
}
