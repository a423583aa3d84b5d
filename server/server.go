package server

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cache"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"threadsrss/db"
	"threadsrss/feeds"
	"threadsrss/mastodon"
	"threadsrss/models"
	"threadsrss/query"
	"threadsrss/rss"
)

// Store is the read side of the database used by the HTTP handlers
type Store interface {
	FeedByPublicId(ctx context.Context, publicId string) (*models.Feed, error)
	ListFeeds(ctx context.Context) ([]models.Feed, error)
	RecentEntries(ctx context.Context, q query.EntryQuery) ([]models.Entry, error)
	Ping(ctx context.Context) error
}

// Synchronizer creates and syncs feeds on request
type Synchronizer interface {
	CreateFromHandle(ctx context.Context, rawHandle string) (*models.Feed, error)
	Sync(ctx context.Context, feed *models.Feed) (models.SyncResult, error)
}

type ServerConfig struct {
	// Public base URL used in self links, without trailing slash
	BaseURL string

	Store        Store
	Synchronizer Synchronizer

	// How long rendered RSS documents are cached. Zero disables the cache.
	CacheExpiration time.Duration
}

type feedResponse struct {
	*models.Feed
	Name    string `json:"name"`
	FeedURL string `json:"feedUrl"`
}

type createFeedRequest struct {
	Handle string `json:"handle"`
}

// Returns a fiber.App instance to be used as an HTTP server for the RSS feeds
func Server(config *ServerConfig) *fiber.App {
	baseURL := strings.TrimRight(config.BaseURL, "/")

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Use(recover.New())

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())

	if config.CacheExpiration > 0 {
		app.Use(cache.New(cache.Config{
			Next: func(c *fiber.Ctx) bool {
				// Only the rendered feeds are cached
				return c.Method() != fiber.MethodGet || !strings.HasSuffix(c.Path(), "/entries.xml")
			},
			Expiration: config.CacheExpiration,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.Path()
			},
		}))
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := config.Store.Ping(c.UserContext()); err != nil {
			log.WithField("error", err).Error("Health check failed")
			return c.Status(fiber.StatusServiceUnavailable).SendString("database unavailable")
		}
		return c.SendString("OK")
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	feedURL := func(feed *models.Feed) string {
		return baseURL + "/feeds/" + feed.PublicId + "/entries.xml"
	}

	app.Get("/feeds/:publicId/entries.xml", func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		feed, err := config.Store.FeedByPublicId(ctx, c.Params("publicId"))
		if errors.Is(err, db.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).SendString("Feed not found")
		}
		if err != nil {
			log.WithField("error", err).Error("Error reading feed")
			return c.Status(fiber.StatusInternalServerError).SendString("Error reading feed")
		}

		entries, err := config.Store.RecentEntries(ctx, query.EntryQuery{
			FeedId: feed.Id,
			Limit:  rss.MaxItems,
		})
		if err != nil {
			log.WithField("error", err).Error("Error reading entries")
			return c.Status(fiber.StatusInternalServerError).SendString("Error reading entries")
		}

		body := rss.Render(rss.Document{
			Feed:    *feed,
			Entries: entries,
			SelfURL: feedURL(feed),
			BuiltAt: time.Now().UTC(),
		})

		c.Set(fiber.HeaderContentType, rss.ContentType)
		return c.Send(body)
	})

	api := app.Group("/api")

	api.Get("/feeds", func(c *fiber.Ctx) error {
		list, err := config.Store.ListFeeds(c.UserContext())
		if err != nil {
			log.WithField("error", err).Error("Error listing feeds")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal"})
		}

		out := make([]feedResponse, 0, len(list))
		for i := range list {
			out = append(out, feedResponse{Feed: &list[i], Name: list[i].Name(), FeedURL: feedURL(&list[i])})
		}
		return c.JSON(out)
	})

	api.Post("/feeds", func(c *fiber.Ctx) error {
		var req createFeedRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid-request"})
		}

		feed, err := config.Synchronizer.CreateFromHandle(c.UserContext(), req.Handle)
		if err != nil {
			return errorResponse(c, err)
		}

		return c.Status(fiber.StatusCreated).JSON(feedResponse{Feed: feed, Name: feed.Name(), FeedURL: feedURL(feed)})
	})

	api.Get("/feeds/:publicId", func(c *fiber.Ctx) error {
		feed, err := config.Store.FeedByPublicId(c.UserContext(), c.Params("publicId"))
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(feedResponse{Feed: feed, Name: feed.Name(), FeedURL: feedURL(feed)})
	})

	api.Post("/feeds/:publicId/refresh", func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		feed, err := config.Store.FeedByPublicId(ctx, c.Params("publicId"))
		if err != nil {
			return errorResponse(c, err)
		}

		result, err := config.Synchronizer.Sync(ctx, feed)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(result)
	})

	return app
}

// errorResponse maps domain errors onto HTTP status codes
func errorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, feeds.ErrEmptyHandle):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "empty-handle"})
	case errors.Is(err, mastodon.ErrAccountNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "account-not-found"})
	case errors.Is(err, db.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "feed-not-found"})
	case mastodon.IsFetchError(err):
		log.WithField("error", err).Warn("Upstream error")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "feed-error"})
	}

	log.WithField("error", err).Error("Request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal"})
}
