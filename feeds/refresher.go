package feeds

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"threadsrss/mastodon"
	"threadsrss/models"
)

// FeedLister lists every stored feed
type FeedLister interface {
	ListFeeds(ctx context.Context) ([]models.Feed, error)
}

type RefresherConfig struct {
	Interval       time.Duration
	Workers        int
	MaxRetries     uint64
	InitialBackoff time.Duration
}

// RefreshReport sums up one pass over all feeds
type RefreshReport struct {
	Synced     int
	Failed     int
	NewEntries int
}

// Refresher syncs every feed on a fixed interval using a small worker pool.
// Transient failures are retried with exponential backoff; permanent ones
// are logged and left for the next pass.
type Refresher struct {
	synchronizer *Synchronizer
	feeds        FeedLister
	config       RefresherConfig
}

func NewRefresher(synchronizer *Synchronizer, feeds FeedLister, config RefresherConfig) *Refresher {
	if config.Interval <= 0 {
		config.Interval = 15 * time.Minute
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = time.Second
	}
	return &Refresher{
		synchronizer: synchronizer,
		feeds:        feeds,
		config:       config,
	}
}

// Start refreshes immediately and then on every tick until ctx is done
func (r *Refresher) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.RefreshOnce(ctx); err != nil {
			log.WithError(err).Error("Refreshing feeds failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RefreshOnce syncs all stored feeds once
func (r *Refresher) RefreshOnce(ctx context.Context) (RefreshReport, error) {
	feeds, err := r.feeds.ListFeeds(ctx)
	if err != nil {
		return RefreshReport{}, err
	}
	return r.RefreshFeeds(ctx, feeds), nil
}

// RefreshFeeds syncs the given feeds with at most config.Workers at a time
func (r *Refresher) RefreshFeeds(ctx context.Context, feeds []models.Feed) RefreshReport {
	start := time.Now()
	log.WithFields(log.Fields{
		"feeds":   len(feeds),
		"workers": r.config.Workers,
	}).Info("Refreshing feeds")

	var (
		report RefreshReport
		mu     sync.Mutex
		wg     sync.WaitGroup
	)

	queue := make(chan models.Feed)

	for i := 0; i < r.config.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for feed := range queue {
				result, err := r.syncWithRetry(ctx, &feed)

				mu.Lock()
				if err != nil {
					report.Failed++
				} else {
					report.Synced++
					report.NewEntries += result.NewEntries
				}
				mu.Unlock()

				if err != nil {
					log.WithFields(log.Fields{
						"worker": id,
						"handle": feed.Handle,
						"error":  err,
					}).Error("Failed to refresh feed")
				}
			}
		}(i)
	}

feedLoop:
	for _, feed := range feeds {
		select {
		case <-ctx.Done():
			break feedLoop
		case queue <- feed:
		}
	}
	close(queue)
	wg.Wait()

	log.WithFields(log.Fields{
		"synced":  report.Synced,
		"failed":  report.Failed,
		"new":     report.NewEntries,
		"elapsed": time.Since(start),
	}).Info("Refreshed feeds")

	return report
}

func (r *Refresher) syncWithRetry(ctx context.Context, feed *models.Feed) (models.SyncResult, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.config.InitialBackoff
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 5 * time.Minute

	var result models.SyncResult
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		res, err := r.synchronizer.Sync(ctx, feed)
		if err == nil {
			result = res
			return nil
		}
		if mastodon.IsPermanent(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		log.WithFields(log.Fields{
			"handle":  feed.Handle,
			"attempt": attempt,
			"error":   err,
		}).Warn("Sync failed, retrying")
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, r.config.MaxRetries), ctx))

	return result, err
}
