package query_test

import (
	"testing"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/stretchr/testify/assert"

	"threadsrss/query"
)

func TestEntryQueryApply(t *testing.T) {
	before := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		query        query.EntryQuery
		expectedSQL  string
		expectedArgs []interface{}
	}{
		{
			name:         "default limit",
			query:        query.EntryQuery{FeedId: 3},
			expectedSQL:  "SELECT id FROM entries WHERE feed_id = $1 ORDER BY published_at DESC, id DESC LIMIT 50",
			expectedArgs: []interface{}{int64(3)},
		},
		{
			name:         "before and limit",
			query:        query.EntryQuery{FeedId: 3, Limit: 10, Before: before},
			expectedSQL:  "SELECT id FROM entries WHERE feed_id = $1 AND published_at < $2 ORDER BY published_at DESC, id DESC LIMIT 10",
			expectedArgs: []interface{}{int64(3), before},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
			sb.Select("id").From("entries")
			tt.query.Apply(sb)

			sql, args := sb.Build()
			assert.Equal(t, tt.expectedSQL, sql)
			assert.Equal(t, tt.expectedArgs, args)
		})
	}
}
