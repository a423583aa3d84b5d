package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"threadsrss/feeds"
	"threadsrss/server"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the RSS feeds",
		Description: `Starts the HTTP server and the periodic refresher.

Launches the HTTP server on the specified or default port and refreshes
every stored feed on a fixed interval. Feeds are served as RSS 2.0 at
/feeds/<id>/entries.xml and can be created through POST /api/feeds.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "hostname",
				Aliases: []string{"n"},
				Value:   "localhost",
				Usage:   "The hostname to listen on",
				EnvVars: []string{"THREADSRSS_HOSTNAME"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   3000,
				Usage:   "Port to listen on",
				EnvVars: []string{"THREADSRSS_PORT"},
			},
			&cli.StringFlag{
				Name:    "base-url",
				Usage:   "Public base URL used for feed links, e.g. https://rss.example.com",
				EnvVars: []string{"THREADSRSS_BASE_URL"},
			},
			&cli.DurationFlag{
				Name:    "interval",
				Value:   15 * time.Minute,
				Usage:   "How often all feeds are refreshed",
				EnvVars: []string{"THREADSRSS_REFRESH_INTERVAL"},
			},
			&cli.IntFlag{
				Name:    "workers",
				Value:   4,
				Usage:   "How many feeds are refreshed concurrently",
				EnvVars: []string{"THREADSRSS_REFRESH_WORKERS"},
			},
			upstreamFlag(),
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			log.WithFields(log.Fields{
				"database": cfg.Database,
				"addr":     cfg.Addr(),
				"upstream": cfg.Upstream.BaseURL,
			}).Info("Starting threadsrss...")

			database, synchronizer, err := openSynchronizer(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			refresher := feeds.NewRefresher(synchronizer, database, refresherConfig(cfg))

			app := server.Server(&server.ServerConfig{
				BaseURL:         cfg.PublicBaseURL(),
				Store:           database,
				Synchronizer:    synchronizer,
				CacheExpiration: cfg.Server.CacheExpiration.Duration,
			})

			// Graceful shutdown
			runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			var wg sync.WaitGroup

			wg.Add(1)
			go func() {
				defer wg.Done()
				log.Info("Starting refresher...")
				if err := refresher.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
					log.WithError(err).Error("Refresher stopped")
				}
			}()

			serverErr := make(chan error, 1)
			go func() {
				log.Info("Starting server...")
				serverErr <- app.Listen(cfg.Addr())
			}()

			select {
			case <-runCtx.Done():
				log.Info("Gracefully shutting down...")
				if err := app.ShutdownWithTimeout(60 * time.Second); err != nil {
					log.WithError(err).Error("Server shutdown failed")
				}
			case err = <-serverErr:
				stop()
			}

			wg.Wait()
			log.Info("Done!")

			return err
		},
	}
}
