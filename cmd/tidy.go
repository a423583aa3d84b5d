package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"threadsrss/db"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Tidy up the database",
		Description: `Tidy up the database by removing old entries.

		Keeps the newest entries of every feed and removes the rest. At least as
		many entries as one sync fetches are always kept, otherwise the next sync
		would insert the removed ones again.`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "keep",
				Aliases: []string{"k"},
				Value:   200,
				Usage:   "Number of entries to keep per feed",
				EnvVars: []string{"THREADSRSS_TIDY_KEEP"},
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			keep := max(cfg.Tidy.KeepEntries, cfg.Upstream.StatusesLimit)

			database, err := db.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer database.Close()

			deleted, err := database.Tidy(ctx.Context, keep)
			if err != nil {
				return err
			}

			log.WithFields(log.Fields{
				"keep":    keep,
				"deleted": deleted,
			}).Info("Tidied database")
			fmt.Printf("Removed %d entries\n", deleted)
			return nil
		},
	}
}
