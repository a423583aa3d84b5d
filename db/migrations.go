package db

import (
	"embed"
	"errors"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations
var fs embed.FS

// Migrate applies every pending migration to the database at dsn
func Migrate(dsn string) error {
	log.Info("Running migrations...")

	m, err := newMigrate(dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	version, dirty, _ := m.Version()
	log.WithFields(log.Fields{
		"version": version,
		"dirty":   dirty,
	}).Info("Migrations done")

	return nil
}

// Rollback reverts the most recent migration
func Rollback(dsn string) error {
	log.Info("Rolling back last migration...")

	m, err := newMigrate(dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	return m.Steps(-1)
}

func newMigrate(dsn string) (*migrate.Migrate, error) {
	dir, url := "migrations/sqlite", "sqlite://"+dsn
	if isPostgres(dsn) {
		dir, url = "migrations/postgres", dsn
	}

	// Create a new source instance using the embedded migrations
	d, err := iofs.New(fs, dir)
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, url)
	if err != nil {
		log.WithFields(log.Fields{
			"database": redact(dsn),
			"error":    err,
		}).Error("Error creating migrate instance")
		return nil, err
	}

	return m, nil
}

// redact hides the password of a database URL before it is logged
func redact(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	user, _, _ := strings.Cut(creds, ":")
	return scheme + "://" + user + ":***@" + host
}
