package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"threadsrss/config"
	"threadsrss/db"
	"threadsrss/feeds"
	"threadsrss/language"
	"threadsrss/mastodon"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "threadsrss",
		Usage: "RSS feeds for Threads accounts",
		Description: `Turns public Threads accounts into RSS feeds.

		Threads accounts are read through the Mastodon API of an instance that
		bridges them (mastodon.social by default). Recent posts are stored in a
		SQLite or PostgreSQL database and served as RSS 2.0 documents.

		Flags can generally be set via environment variables, e.g.:

		--database => THREADSRSS_DATABASE=threadsrss.db
		--port => THREADSRSS_PORT=3000
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "threadsrss.toml",
				Usage:   "Path to the TOML configuration file. A missing file is ignored",
				EnvVars: []string{"THREADSRSS_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Value:   "threadsrss.db",
				Usage:   "SQLite database file or postgres:// URL",
				EnvVars: []string{"THREADSRSS_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (trace, debug, info, warn, error)",
				EnvVars: []string{"THREADSRSS_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:    "log-json",
				Usage:   "Log as JSON instead of text",
				EnvVars: []string{"THREADSRSS_LOG_JSON"},
			},
		},
		Before: func(ctx *cli.Context) error {
			level, err := log.ParseLevel(ctx.String("log-level"))
			if err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
			log.SetLevel(level)
			if ctx.Bool("log-json") {
				log.SetFormatter(&log.JSONFormatter{})
			}
			// Keep stdout free for command output
			log.SetOutput(os.Stderr)
			return nil
		},
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			rollbackCmd(),
			addCmd(),
			refreshCmd(),
			fetchCmd(),
			tidyCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

// loadConfig reads the config file and lets flags and environment variables
// that were set explicitly override it
func loadConfig(ctx *cli.Context) (*config.TomlConfig, error) {
	cfg, err := config.LoadConfig(ctx.String("config"))
	if err != nil {
		return nil, err
	}

	if ctx.IsSet("database") || cfg.Database == "" {
		cfg.Database = ctx.String("database")
	}
	if ctx.IsSet("upstream") {
		cfg.Upstream.BaseURL = ctx.String("upstream")
	}
	if ctx.IsSet("hostname") {
		cfg.Server.Hostname = ctx.String("hostname")
	}
	if ctx.IsSet("port") {
		cfg.Server.Port = ctx.Int("port")
	}
	if ctx.IsSet("base-url") {
		cfg.Server.BaseURL = ctx.String("base-url")
	}
	if ctx.IsSet("interval") {
		cfg.Refresh.Interval = config.Duration{Duration: ctx.Duration("interval")}
	}
	if ctx.IsSet("workers") {
		cfg.Refresh.Workers = ctx.Int("workers")
	}
	if ctx.IsSet("keep") {
		cfg.Tidy.KeepEntries = ctx.Int("keep")
	}

	return cfg, nil
}

func upstreamFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "upstream",
		Usage:   "Base URL of the Mastodon API bridging Threads accounts",
		EnvVars: []string{"THREADSRSS_UPSTREAM"},
	}
}

func newClient(cfg *config.TomlConfig) *mastodon.Client {
	return mastodon.NewClient(mastodon.Config{
		BaseURL:   cfg.Upstream.BaseURL,
		Timeout:   cfg.Upstream.Timeout.Duration,
		UserAgent: cfg.Upstream.UserAgent,
	})
}

// openSynchronizer opens the database and wires a synchronizer on top of it.
// The caller closes the database.
func openSynchronizer(cfg *config.TomlConfig) (*db.DB, *feeds.Synchronizer, error) {
	database, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	synchronizer := feeds.NewSynchronizer(newClient(cfg), database, feeds.SynchronizerConfig{
		StatusesLimit: cfg.Upstream.StatusesLimit,
		Detector:      language.NewDetector(cfg.Language.Candidates, cfg.Language.Default),
	})

	return database, synchronizer, nil
}

func refresherConfig(cfg *config.TomlConfig) feeds.RefresherConfig {
	return feeds.RefresherConfig{
		Interval:       cfg.Refresh.Interval.Duration,
		Workers:        cfg.Refresh.Workers,
		MaxRetries:     cfg.Refresh.MaxRetries,
		InitialBackoff: cfg.Refresh.InitialBackoff.Duration,
	}
}
