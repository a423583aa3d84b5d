package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"threadsrss/models"
	"threadsrss/query"
)

// FeedByHandle returns the feed for a canonical handle or ErrNotFound
func (db *DB) FeedByHandle(ctx context.Context, handle string) (*models.Feed, error) {
	return db.feedBy(ctx, "handle", handle)
}

// FeedByPublicId returns the feed with the given public id or ErrNotFound
func (db *DB) FeedByPublicId(ctx context.Context, publicId string) (*models.Feed, error) {
	return db.feedBy(ctx, "public_id", publicId)
}

func (db *DB) feedBy(ctx context.Context, column string, value string) (*models.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	sb := db.flavor.NewSelectBuilder()
	sb.Select(feedColumns...).From("feeds").Where(sb.Equal(column, value))
	stmt, args := sb.Build()

	var row dbFeed
	if err := db.db.GetContext(ctx, &row, stmt, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select feed by %s: %w", column, err)
	}

	feed := row.model()
	return &feed, nil
}

// ListFeeds returns every feed, oldest first
func (db *DB) ListFeeds(ctx context.Context) ([]models.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	sb := db.flavor.NewSelectBuilder()
	sb.Select(feedColumns...).From("feeds").OrderBy("id")
	stmt, args := sb.Build()

	var rows []dbFeed
	if err := db.db.SelectContext(ctx, &rows, stmt, args...); err != nil {
		return nil, fmt.Errorf("select feeds: %w", err)
	}

	feeds := make([]models.Feed, 0, len(rows))
	for _, row := range rows {
		feeds = append(feeds, row.model())
	}
	return feeds, nil
}

// RecentEntries returns the entries selected by q, newest first
func (db *DB) RecentEntries(ctx context.Context, q query.EntryQuery) ([]models.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	sb := db.flavor.NewSelectBuilder()
	sb.Select(entryColumns...).From("entries")
	q.Apply(sb)
	stmt, args := sb.Build()

	var rows []dbEntry
	if err := db.db.SelectContext(ctx, &rows, stmt, args...); err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}

	entries := make([]models.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.model())
	}
	return entries, nil
}

// CountEntries returns how many entries a feed holds
func (db *DB) CountEntries(ctx context.Context, feedId int64) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	sb := db.flavor.NewSelectBuilder()
	sb.Select("COUNT(*)").From("entries").Where(sb.Equal("feed_id", feedId))
	stmt, args := sb.Build()

	var count int
	if err := db.db.GetContext(ctx, &count, stmt, args...); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return count, nil
}
