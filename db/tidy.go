package db

import (
	"context"
	"fmt"

	sb "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// Tidy keeps only the newest keep entries of every feed and returns how many
// rows were deleted
func (db *DB) Tidy(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must not be negative, got %d", keep)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	ranked := sb.Buildf(`SELECT id FROM (
		SELECT id, ROW_NUMBER() OVER (PARTITION BY feed_id ORDER BY published_at DESC, id DESC) AS rn
		FROM entries
	) ranked WHERE rn > %v`, keep)

	deleteEntries := db.flavor.NewDeleteBuilder()
	deleteEntries.DeleteFrom("entries").Where(deleteEntries.In("id", ranked))
	query, args := deleteEntries.Build()

	log.WithFields(log.Fields{
		"sql":  query,
		"args": args,
	}).Info("Tidying database")

	res, err := db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("tidy entries: %w", err)
	}

	return res.RowsAffected()
}
