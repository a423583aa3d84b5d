package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"threadsrss/models"
)

var (
	// ErrNotFound is returned when a lookup by key matches no row
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert hits a unique key
	ErrConflict = errors.New("conflict")
)

// Timeout bounding every single statement
const queryTimeout = 30 * time.Second

// DB handles all database operations with a shared connection pool. The same
// code runs against SQLite and PostgreSQL; only the SQL flavor differs.
type DB struct {
	db     *sqlx.DB
	flavor sqlbuilder.Flavor
}

// Open connects to dsn. postgres:// and postgresql:// URLs use PostgreSQL,
// anything else is treated as the path of a SQLite database file.
// The schema is expected to be migrated already.
func Open(dsn string) (*DB, error) {
	conn, driver, flavor, err := connection(dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &DB{
		db:     sqlx.NewDb(conn, driver),
		flavor: flavor,
	}, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Ping checks that the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

// Internal row models so columns map cleanly onto the domain types
type dbFeed struct {
	Id              int64          `db:"id"`
	PublicId        string         `db:"public_id"`
	Handle          string         `db:"handle"`
	RemoteAccountId sql.NullString `db:"remote_account_id"`
	DisplayName     sql.NullString `db:"display_name"`
	AvatarUrl       sql.NullString `db:"avatar_url"`
	Language        sql.NullString `db:"language"`
	LastFetchedAt   sql.NullTime   `db:"last_fetched_at"`
	CreatedAt       time.Time      `db:"created_at"`
}

var feedColumns = []string{
	"id", "public_id", "handle", "remote_account_id", "display_name",
	"avatar_url", "language", "last_fetched_at", "created_at",
}

func (f dbFeed) model() models.Feed {
	feed := models.Feed{
		Id:              f.Id,
		PublicId:        f.PublicId,
		Handle:          f.Handle,
		RemoteAccountId: f.RemoteAccountId.String,
		DisplayName:     f.DisplayName.String,
		AvatarUrl:       f.AvatarUrl.String,
		Language:        f.Language.String,
		CreatedAt:       f.CreatedAt.UTC(),
	}
	if f.LastFetchedAt.Valid {
		t := f.LastFetchedAt.Time.UTC()
		feed.LastFetchedAt = &t
	}
	return feed
}

type dbEntry struct {
	Id               int64                   `db:"id"`
	FeedId           int64                   `db:"feed_id"`
	ExternalId       string                  `db:"external_id"`
	Content          string                  `db:"content"`
	Url              sql.NullString          `db:"url"`
	MediaAttachments models.MediaAttachments `db:"media_attachments"`
	PublishedAt      sql.NullTime            `db:"published_at"`
	CreatedAt        time.Time               `db:"created_at"`
}

var entryColumns = []string{
	"id", "feed_id", "external_id", "content", "url",
	"media_attachments", "published_at", "created_at",
}

func (e dbEntry) model() models.Entry {
	entry := models.Entry{
		Id:               e.Id,
		FeedId:           e.FeedId,
		ExternalId:       e.ExternalId,
		Content:          e.Content,
		Url:              e.Url.String,
		MediaAttachments: e.MediaAttachments,
		CreatedAt:        e.CreatedAt.UTC(),
	}
	if e.PublishedAt.Valid {
		entry.PublishedAt = e.PublishedAt.Time.UTC()
	}
	return entry
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}
