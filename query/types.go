package query

import (
	"time"

	"github.com/huandu/go-sqlbuilder"
)

// DefaultLimit is used when an EntryQuery does not set one
const DefaultLimit = 50

// EntryQuery selects the entries of one feed, newest first
type EntryQuery struct {
	FeedId int64
	// Limit caps the number of rows, DefaultLimit when zero
	Limit int
	// Before only keeps entries published strictly before this time
	Before time.Time
}

func (q EntryQuery) where(sb *sqlbuilder.SelectBuilder) {
	sb.Where(sb.Equal("feed_id", q.FeedId))
	if !q.Before.IsZero() {
		sb.Where(sb.LessThan("published_at", q.Before.UTC()))
	}
}

// Apply adds the filter, ordering and limit to sb
func (q EntryQuery) Apply(sb *sqlbuilder.SelectBuilder) {
	q.where(sb)
	sb.OrderBy("published_at DESC", "id DESC")
	sb.Limit(q.limit())
}

func (q EntryQuery) limit() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}
