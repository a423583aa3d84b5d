package cmd

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"threadsrss/feeds"
	"threadsrss/models"
)

func refreshCmd() *cli.Command {
	return &cli.Command{
		Name:      "refresh",
		Usage:     "Refresh feeds once",
		ArgsUsage: "[feed id...]",
		Description: `Syncs the given feeds, or every stored feed when no id is given, once
and exits. Failed syncs are retried the same way the server does.`,
		Flags: []cli.Flag{
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

			database, synchronizer, err := openSynchronizer(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			refresher := feeds.NewRefresher(synchronizer, database, refresherConfig(cfg))

			var report feeds.RefreshReport
			if ctx.NArg() == 0 {
				report, err = refresher.RefreshOnce(ctx.Context)
				if err != nil {
					return err
				}
			} else {
				var selected []models.Feed
				for _, id := range lo.Uniq(ctx.Args().Slice()) {
					feed, err := database.FeedByPublicId(ctx.Context, id)
					if err != nil {
						return fmt.Errorf("feed %s: %w", id, err)
					}
					selected = append(selected, *feed)
				}
				report = refresher.RefreshFeeds(ctx.Context, selected)
			}

			fmt.Printf("Synced %d feeds, %d failed, %d new entries\n", report.Synced, report.Failed, report.NewEntries)
			if report.Failed > 0 {
				return cli.Exit("some feeds failed to refresh", 1)
			}
			return nil
		},
	}
}
