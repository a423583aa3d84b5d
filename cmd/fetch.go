package cmd

import (
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"threadsrss/feeds"
	"threadsrss/mastodon"
)

func fetchCmd() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Print the recent posts of a Threads account",
		ArgsUsage: "<handle>",
		Description: `Looks up a Threads account upstream and prints its recent posts
without storing anything.

Returns each post as a JSON object on a single line. Use a tool like jq to process
the output.

Prints all other log messages to stderr.`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Value: mastodon.DefaultStatusesLimit,
				Usage: "Number of posts to fetch",
			},
			upstreamFlag(),
		},
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 1 {
				return cli.Exit("fetch takes exactly one handle", 2)
			}

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			client := newClient(cfg)

			account, err := client.LookupAccount(ctx.Context, ctx.Args().First())
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{
				"id":       account.Id,
				"username": account.Username,
			}).Info("Found account")

			statuses, err := client.FetchStatuses(ctx.Context, account.Id, ctx.Int("limit"))
			if err != nil {
				return err
			}

			for _, status := range statuses {
				entry, err := feeds.Extract(status)
				if err != nil {
					return err
				}
				printStdout(entry)
			}
			return nil
		},
	}
}

func printStdout(v interface{}) {
	// Print as single JSON string on a single line
	line, err := json.Marshal(v)
	if err == nil {
		fmt.Println(string(line))
	}
}
