// Package feeds keeps stored feeds in step with their upstream Threads accounts
package feeds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"threadsrss/db"
	"threadsrss/handle"
	"threadsrss/mastodon"
	"threadsrss/models"
	"threadsrss/rss"
)

var (
	syncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threadsrss_syncs_total",
		Help: "Feed syncs by result",
	}, []string{"result"})

	entriesInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "threadsrss_entries_inserted_total",
		Help: "Entries inserted by feed syncs",
	})
)

// ErrEmptyHandle is returned when the input has no username in it
var ErrEmptyHandle = errors.New("handle is empty")

// Directory is the upstream account directory
type Directory interface {
	LookupAccount(ctx context.Context, handle string) (*mastodon.Account, error)
	FetchStatuses(ctx context.Context, accountId string, limit int) ([]mastodon.Status, error)
}

// Store is the persistence the synchronizer needs. Each call is its own
// short transaction; nothing is held open across a network call.
type Store interface {
	FeedByHandle(ctx context.Context, handle string) (*models.Feed, error)
	CreateFeed(ctx context.Context, feed *models.Feed) error
	DeleteFeed(ctx context.Context, id int64) error
	UpdateFeedProfile(ctx context.Context, id int64, remoteAccountId, displayName, avatarUrl string) error
	// InsertEntry returns false when an entry with the same external id exists
	InsertEntry(ctx context.Context, entry *models.Entry) (bool, error)
	MarkFeedFetched(ctx context.Context, id int64, language string, at time.Time) error
}

// LanguageDetector guesses the language of a batch of plain text posts
type LanguageDetector interface {
	Detect(texts []string) string
}

type SynchronizerConfig struct {
	StatusesLimit int
	Detector      LanguageDetector
}

type Synchronizer struct {
	directory Directory
	store     Store
	detector  LanguageDetector
	limit     int
	now       func() time.Time
}

func NewSynchronizer(directory Directory, store Store, config SynchronizerConfig) *Synchronizer {
	limit := config.StatusesLimit
	if limit <= 0 {
		limit = mastodon.DefaultStatusesLimit
	}
	return &Synchronizer{
		directory: directory,
		store:     store,
		detector:  config.Detector,
		limit:     limit,
		now:       time.Now,
	}
}

// CreateFromHandle returns the feed for rawHandle, creating and syncing it
// when it is not known yet. An existing feed is returned without any remote
// call. A feed created here is removed again if its first sync fails.
func (s *Synchronizer) CreateFromHandle(ctx context.Context, rawHandle string) (*models.Feed, error) {
	canonical := handle.Normalize(rawHandle)
	if handle.IsEmpty(rawHandle) {
		return nil, ErrEmptyHandle
	}

	existing, err := s.store.FeedByHandle(ctx, canonical)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("find feed %s: %w", canonical, err)
	}

	account, err := s.directory.LookupAccount(ctx, canonical)
	if err != nil {
		return nil, err
	}

	feed := &models.Feed{
		PublicId:        uuid.NewString(),
		Handle:          canonical,
		RemoteAccountId: account.Id,
		DisplayName:     account.DisplayName,
		AvatarUrl:       account.Avatar,
		CreatedAt:       s.now().UTC(),
	}

	if err := s.store.CreateFeed(ctx, feed); err != nil {
		if errors.Is(err, db.ErrConflict) {
			// Someone else created it in the meantime
			return s.store.FeedByHandle(ctx, canonical)
		}
		return nil, fmt.Errorf("create feed %s: %w", canonical, err)
	}

	log.WithFields(log.Fields{
		"handle":   feed.Handle,
		"publicId": feed.PublicId,
	}).Info("Created feed")

	if _, err := s.Sync(ctx, feed); err != nil {
		if delErr := s.store.DeleteFeed(context.WithoutCancel(ctx), feed.Id); delErr != nil {
			log.WithFields(log.Fields{
				"handle": feed.Handle,
				"error":  delErr,
			}).Error("Failed to remove feed after failed first sync")
		}
		return nil, err
	}

	return feed, nil
}

// Sync refreshes the profile of feed and ingests its recent statuses.
// Statuses are inserted one by one in upstream order; those already stored
// are skipped. lastFetchedAt only moves when the whole batch went through.
func (s *Synchronizer) Sync(ctx context.Context, feed *models.Feed) (models.SyncResult, error) {
	var result models.SyncResult
	logger := log.WithFields(log.Fields{
		"handle":   feed.Handle,
		"publicId": feed.PublicId,
	})

	account, err := s.directory.LookupAccount(ctx, feed.Handle)
	if err != nil {
		syncsTotal.WithLabelValues("lookup_failed").Inc()
		logger.WithError(err).Warn("Account lookup failed")
		return result, err
	}

	if feed.RemoteAccountId == "" {
		feed.RemoteAccountId = account.Id
	}
	feed.DisplayName = account.DisplayName
	feed.AvatarUrl = account.Avatar
	if err := s.store.UpdateFeedProfile(ctx, feed.Id, feed.RemoteAccountId, feed.DisplayName, feed.AvatarUrl); err != nil {
		syncsTotal.WithLabelValues("store_failed").Inc()
		return result, fmt.Errorf("update feed profile: %w", err)
	}

	statuses, err := s.directory.FetchStatuses(ctx, feed.RemoteAccountId, s.limit)
	if err != nil {
		syncsTotal.WithLabelValues("fetch_failed").Inc()
		logger.WithError(err).Warn("Fetching statuses failed")
		return result, err
	}

	for _, status := range statuses {
		entry, err := Extract(status)
		if err != nil {
			syncsTotal.WithLabelValues("malformed").Inc()
			logger.WithFields(log.Fields{
				"status": status.Id,
				"error":  err,
			}).Error("Malformed status, aborting batch")
			return result, err
		}

		entry.FeedId = feed.Id
		inserted, err := s.store.InsertEntry(ctx, &entry)
		if err != nil {
			syncsTotal.WithLabelValues("store_failed").Inc()
			return result, fmt.Errorf("insert entry %s: %w", entry.ExternalId, err)
		}
		if !inserted {
			result.Skipped++
			logger.WithField("externalId", entry.ExternalId).Debug("Entry already stored")
			continue
		}
		result.NewEntries++
		entriesInserted.Inc()
	}

	language := feed.Language
	if s.detector != nil && len(statuses) > 0 {
		texts := lo.Map(statuses, func(st mastodon.Status, _ int) string {
			return rss.StripHTML(st.Content)
		})
		language = s.detector.Detect(texts)
	}

	now := s.now().UTC()
	if err := s.store.MarkFeedFetched(ctx, feed.Id, language, now); err != nil {
		syncsTotal.WithLabelValues("store_failed").Inc()
		return result, fmt.Errorf("mark feed fetched: %w", err)
	}
	feed.LastFetchedAt = &now
	feed.Language = language

	syncsTotal.WithLabelValues("ok").Inc()
	logger.WithFields(log.Fields{
		"statuses": len(statuses),
		"new":      result.NewEntries,
		"skipped":  result.Skipped,
	}).Info("Synced feed")

	return result, nil
}
