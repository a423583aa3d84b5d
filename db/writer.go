package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"threadsrss/models"
)

// CreateFeed inserts feed and sets its Id. ErrConflict is returned when a
// feed with the same handle already exists.
func (db *DB) CreateFeed(ctx context.Context, feed *models.Feed) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if feed.CreatedAt.IsZero() {
		feed.CreatedAt = time.Now().UTC()
	}

	ib := db.flavor.NewInsertBuilder()
	ib.InsertInto("feeds").
		Cols("public_id", "handle", "remote_account_id", "display_name", "avatar_url", "language", "created_at", "updated_at").
		Values(feed.PublicId, feed.Handle, nullString(feed.RemoteAccountId), nullString(feed.DisplayName),
			nullString(feed.AvatarUrl), nullString(feed.Language), feed.CreatedAt.UTC(), feed.CreatedAt.UTC())
	ib.SQL("ON CONFLICT (handle) DO NOTHING RETURNING id")
	query, args := ib.Build()

	var id int64
	if err := db.db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("feed %s: %w", feed.Handle, ErrConflict)
		}
		return fmt.Errorf("insert feed: %w", err)
	}
	feed.Id = id

	log.WithFields(log.Fields{
		"id":     id,
		"handle": feed.Handle,
	}).Debug("Inserted feed")

	return nil
}

// DeleteFeed removes a feed together with its entries
func (db *DB) DeleteFeed(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// Entries go first so this also works where foreign keys are off
	deleteEntries := db.flavor.NewDeleteBuilder()
	deleteEntries.DeleteFrom("entries").Where(deleteEntries.Equal("feed_id", id))
	deleteFeed := db.flavor.NewDeleteBuilder()
	deleteFeed.DeleteFrom("feeds").Where(deleteFeed.Equal("id", id))

	tx, err := db.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query, args := deleteEntries.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete entries: %w", err)
	}

	query, args = deleteFeed.Build()
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// UpdateFeedProfile stores the remote account id and the profile fields
// fetched on the latest sync
func (db *DB) UpdateFeedProfile(ctx context.Context, id int64, remoteAccountId, displayName, avatarUrl string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	ub := db.flavor.NewUpdateBuilder()
	ub.Update("feeds").
		Set(
			ub.Assign("remote_account_id", nullString(remoteAccountId)),
			ub.Assign("display_name", nullString(displayName)),
			ub.Assign("avatar_url", nullString(avatarUrl)),
			ub.Assign("updated_at", time.Now().UTC()),
		).
		Where(ub.Equal("id", id))

	query, args := ub.Build()
	return db.execOne(ctx, query, args)
}

// MarkFeedFetched records a successful sync
func (db *DB) MarkFeedFetched(ctx context.Context, id int64, language string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	ub := db.flavor.NewUpdateBuilder()
	ub.Update("feeds").
		Set(
			ub.Assign("last_fetched_at", at.UTC()),
			ub.Assign("language", nullString(language)),
			ub.Assign("updated_at", time.Now().UTC()),
		).
		Where(ub.Equal("id", id))

	query, args := ub.Build()
	return db.execOne(ctx, query, args)
}

// InsertEntry stores entry unless its external id is already known. The
// returned bool is false when the entry was a duplicate and nothing was written.
func (db *DB) InsertEntry(ctx context.Context, entry *models.Entry) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	ib := db.flavor.NewInsertBuilder()
	ib.InsertInto("entries").
		Cols("feed_id", "external_id", "content", "url", "media_attachments", "published_at", "created_at").
		Values(entry.FeedId, entry.ExternalId, entry.Content, nullString(entry.Url), entry.MediaAttachments,
			nullTime(entry.PublishedAt), entry.CreatedAt.UTC())
	ib.SQL("ON CONFLICT (external_id) DO NOTHING RETURNING id")
	query, args := ib.Build()

	var id int64
	if err := db.db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("insert entry %s: %w", entry.ExternalId, err)
	}
	entry.Id = id

	return true, nil
}

func (db *DB) execOne(ctx context.Context, query string, args []interface{}) error {
	res, err := db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
