package feeds_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadsrss/db"
	"threadsrss/feeds"
	"threadsrss/mastodon"
	"threadsrss/models"
	"threadsrss/query"
)

// fakeDirectory serves accounts and statuses from memory. Errors queued in
// lookupErrs and fetchErrs are returned by the next calls before answering
// normally.
type fakeDirectory struct {
	mu         sync.Mutex
	accounts   map[string]*mastodon.Account
	statuses   map[string][]mastodon.Status
	lookupErrs []error
	fetchErrs  []error
	lookups    int
	fetches    int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		accounts: map[string]*mastodon.Account{},
		statuses: map[string][]mastodon.Status{},
	}
}

func (d *fakeDirectory) addAccount(handle, id string, statuses ...mastodon.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts[handle] = &mastodon.Account{Id: id, Username: handle, DisplayName: "Name of " + id, Avatar: "https://cdn/" + id + ".png"}
	d.statuses[id] = statuses
}

func (d *fakeDirectory) LookupAccount(ctx context.Context, handle string) (*mastodon.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups++
	if len(d.lookupErrs) > 0 {
		err := d.lookupErrs[0]
		d.lookupErrs = d.lookupErrs[1:]
		return nil, err
	}
	account, ok := d.accounts[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", mastodon.ErrAccountNotFound, handle)
	}
	return account, nil
}

func (d *fakeDirectory) FetchStatuses(ctx context.Context, accountId string, limit int) ([]mastodon.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetches++
	if len(d.fetchErrs) > 0 {
		err := d.fetchErrs[0]
		d.fetchErrs = d.fetchErrs[1:]
		return nil, err
	}
	return d.statuses[accountId], nil
}

func (d *fakeDirectory) calls() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lookups, d.fetches
}

type fixedDetector string

func (f fixedDetector) Detect(texts []string) string {
	return string(f)
}

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feeds.db")
	require.NoError(t, db.Migrate(path))
	database, err := db.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func status(id, createdAt string) mastodon.Status {
	return mastodon.Status{
		Id:        id,
		Content:   "<p>post " + id + "</p>",
		Url:       "https://www.threads.net/@zuck/post/" + id,
		CreatedAt: createdAt,
	}
}

func TestCreateFromHandle(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	directory := newFakeDirectory()
	directory.addAccount("zuck@threads.net", "110",
		status("2", "2024-05-02T10:00:00Z"),
		status("1", "2024-05-01T10:00:00Z"),
	)
	synchronizer := feeds.NewSynchronizer(directory, database, feeds.SynchronizerConfig{Detector: fixedDetector("en")})

	feed, err := synchronizer.CreateFromHandle(ctx, "https://www.threads.net/@Zuck")
	require.NoError(t, err)
	assert.Equal(t, "zuck@threads.net", feed.Handle)
	assert.Equal(t, "110", feed.RemoteAccountId)
	assert.Equal(t, "Name of 110", feed.DisplayName)
	assert.Equal(t, "en", feed.Language)
	assert.NotEmpty(t, feed.PublicId)
	require.NotNil(t, feed.LastFetchedAt)

	stored, err := database.FeedByPublicId(ctx, feed.PublicId)
	require.NoError(t, err)
	assert.Equal(t, feed.Handle, stored.Handle)
	require.NotNil(t, stored.LastFetchedAt)

	entries, err := database.RecentEntries(ctx, query.EntryQuery{FeedId: feed.Id})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2", entries[0].ExternalId)
	assert.Equal(t, "1", entries[1].ExternalId)
}

func TestCreateFromHandleExistingMakesNoRemoteCall(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	directory := newFakeDirectory()
	directory.addAccount("zuck@threads.net", "110")
	synchronizer := feeds.NewSynchronizer(directory, database, feeds.SynchronizerConfig{})

	first, err := synchronizer.CreateFromHandle(ctx, "zuck")
	require.NoError(t, err)
	lookups, fetches := directory.calls()

	second, err := synchronizer.CreateFromHandle(ctx, "@ZUCK@threads.net")
	require.NoError(t, err)
	assert.Equal(t, first.PublicId, second.PublicId)

	lookupsAfter, fetchesAfter := directory.calls()
	assert.Equal(t, lookups, lookupsAfter)
	assert.Equal(t, fetches, fetchesAfter)
}

func TestCreateFromHandleNotFoundLeavesNoFeed(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	synchronizer := feeds.NewSynchronizer(newFakeDirectory(), database, feeds.SynchronizerConfig{})

	feed, err := synchronizer.CreateFromHandle(ctx, "nobody")
	assert.Nil(t, feed)
	assert.True(t, errors.Is(err, mastodon.ErrAccountNotFound))

	list, err := database.ListFeeds(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateFromHandleEmpty(t *testing.T) {
	directory := newFakeDirectory()
	synchronizer := feeds.NewSynchronizer(directory, openTestDB(t), feeds.SynchronizerConfig{})

	for _, input := range []string{"", " ", "@", "@threads.net"} {
		_, err := synchronizer.CreateFromHandle(context.Background(), input)
		assert.ErrorIs(t, err, feeds.ErrEmptyHandle, "input %q", input)
	}

	lookups, _ := directory.calls()
	assert.Zero(t, lookups)
}

func TestCreateFromHandleFailedFirstSyncRemovesFeed(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	directory := newFakeDirectory()
	directory.addAccount("zuck@threads.net", "110", status("1", "not a date"))
	synchronizer := feeds.NewSynchronizer(directory, database, feeds.SynchronizerConfig{})

	_, err := synchronizer.CreateFromHandle(ctx, "zuck")
	require.Error(t, err)
	assert.True(t, errors.Is(err, mastodon.ErrMalformedData))

	_, err = database.FeedByHandle(ctx, "zuck@threads.net")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func createFeed(t *testing.T, database *db.DB, handle string) *models.Feed {
	t.Helper()
	feed := &models.Feed{PublicId: "pub-" + handle, Handle: handle}
	require.NoError(t, database.CreateFeed(context.Background(), feed))
	return feed
}

func TestSyncSkipsKnownEntries(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	directory := newFakeDirectory()
	directory.addAccount("zuck@threads.net", "110",
		status("3", "2024-05-03T10:00:00Z"),
		status("2", "2024-05-02T10:00:00Z"),
	)
	synchronizer := feeds.NewSynchronizer(directory, database, feeds.SynchronizerConfig{})
	feed := createFeed(t, database, "zuck@threads.net")

	result, err := synchronizer.Sync(ctx, feed)
	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{NewEntries: 2}, result)
	assert.Equal(t, "110", feed.RemoteAccountId)

	// Running again without upstream changes inserts nothing
	result, err = synchronizer.Sync(ctx, feed)
	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{NewEntries: 0, Skipped: 2}, result)

	// One new post on top
	directory.addAccount("zuck@threads.net", "110",
		status("4", "2024-05-04T10:00:00Z"),
		status("3", "2024-05-03T10:00:00Z"),
		status("2", "2024-05-02T10:00:00Z"),
	)
	result, err = synchronizer.Sync(ctx, feed)
	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{NewEntries: 1, Skipped: 2}, result)

	count, err := database.CountEntries(ctx, feed.Id)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSyncMalformedTimestampAbortsBatch(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	directory := newFakeDirectory()
	directory.addAccount("zuck@threads.net", "110",
		status("3", "2024-05-03T10:00:00Z"),
		status("2", "garbage"),
		status("1", "2024-05-01T10:00:00Z"),
	)
	synchronizer := feeds.NewSynchronizer(directory, database, feeds.SynchronizerConfig{})
	feed := createFeed(t, database, "zuck@threads.net")

	_, err := synchronizer.Sync(ctx, feed)
	require.Error(t, err)
	var fetchErr *mastodon.FetchError
	assert.ErrorAs(t, err, &fetchErr)
	assert.ErrorIs(t, err, mastodon.ErrMalformedData)

	// Entries before the bad one stay, the rest of the batch is not ingested
	entries, err := database.RecentEntries(ctx, query.EntryQuery{FeedId: feed.Id})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "3", entries[0].ExternalId)

	stored, err := database.FeedByHandle(ctx, "zuck@threads.net")
	require.NoError(t, err)
	assert.Nil(t, stored.LastFetchedAt)
	assert.Nil(t, feed.LastFetchedAt)
}

func TestSyncKeepsRemoteAccountId(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	directory := newFakeDirectory()
	directory.addAccount("zuck@threads.net", "110")
	synchronizer := feeds.NewSynchronizer(directory, database, feeds.SynchronizerConfig{})

	feed := &models.Feed{PublicId: "pub", Handle: "zuck@threads.net", RemoteAccountId: "999"}
	require.NoError(t, database.CreateFeed(ctx, feed))

	_, err := synchronizer.Sync(ctx, feed)
	require.NoError(t, err)
	assert.Equal(t, "999", feed.RemoteAccountId)
	assert.Equal(t, "Name of 110", feed.DisplayName)
}

func TestSyncFetchFailureKeepsProfileUpdate(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	directory := newFakeDirectory()
	directory.addAccount("zuck@threads.net", "110", status("1", "2024-05-01T10:00:00Z"))
	directory.fetchErrs = []error{&mastodon.FetchError{Op: "statuses", StatusCode: 503}}
	synchronizer := feeds.NewSynchronizer(directory, database, feeds.SynchronizerConfig{})
	feed := createFeed(t, database, "zuck@threads.net")

	_, err := synchronizer.Sync(ctx, feed)
	require.Error(t, err)
	assert.True(t, mastodon.IsFetchError(err))

	stored, err := database.FeedByHandle(ctx, "zuck@threads.net")
	require.NoError(t, err)
	assert.Equal(t, "110", stored.RemoteAccountId)
	assert.Equal(t, "Name of 110", stored.DisplayName)
	assert.Equal(t, "https://cdn/110.png", stored.AvatarUrl)
	assert.Nil(t, stored.LastFetchedAt)
	assert.Nil(t, feed.LastFetchedAt)

	count, err := database.CountEntries(ctx, feed.Id)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSyncAccountNotFoundLeavesFeedUnchanged(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	directory := newFakeDirectory()
	synchronizer := feeds.NewSynchronizer(directory, database, feeds.SynchronizerConfig{})

	feed := &models.Feed{PublicId: "pub", Handle: "gone@threads.net", RemoteAccountId: "7", DisplayName: "Gone", AvatarUrl: "https://cdn/7.png"}
	require.NoError(t, database.CreateFeed(ctx, feed))
	before, err := database.FeedByHandle(ctx, "gone@threads.net")
	require.NoError(t, err)

	_, err = synchronizer.Sync(ctx, feed)
	assert.ErrorIs(t, err, mastodon.ErrAccountNotFound)

	after, err := database.FeedByHandle(ctx, "gone@threads.net")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, fetches := directory.calls()
	assert.Zero(t, fetches)
}

func TestConcurrentSyncsDoNotDuplicateEntries(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	directory := newFakeDirectory()
	directory.addAccount("zuck@threads.net", "110",
		status("2", "2024-05-02T10:00:00Z"),
		status("1", "2024-05-01T10:00:00Z"),
	)
	synchronizer := feeds.NewSynchronizer(directory, database, feeds.SynchronizerConfig{})
	created := createFeed(t, database, "zuck@threads.net")

	const syncs = 8
	results := make([]models.SyncResult, syncs)
	errs := make([]error, syncs)

	var wg sync.WaitGroup
	for i := 0; i < syncs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Every caller works on its own copy, as the refresher and the API do
			feed := *created
			results[i], errs[i] = synchronizer.Sync(ctx, &feed)
		}(i)
	}
	wg.Wait()

	inserted := 0
	for i := 0; i < syncs; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 2, results[i].NewEntries+results[i].Skipped)
		inserted += results[i].NewEntries
	}
	assert.Equal(t, 2, inserted)

	count, err := database.CountEntries(ctx, created.Id)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
