package cmd

import (
	"fmt"
	"strings"

	"github.com/cqroot/prompt"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"threadsrss/handle"
)

func addCmd() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Create feeds for Threads accounts",
		ArgsUsage: "[handle...]",
		Description: `Creates a feed for every given Threads handle and runs its first sync.

Handles can be given as zuck, @zuck, zuck@threads.net or a profile URL like
https://www.threads.net/@zuck. Without arguments the handle is asked for.
Handles that already have a feed are left as they are.`,
		Flags: []cli.Flag{
			upstreamFlag(),
		},
		Action: func(ctx *cli.Context) error {
			inputs := ctx.Args().Slice()
			if len(inputs) == 0 {
				input, err := prompt.New().Ask("Handle:").Input("zuck")
				if err != nil {
					return err
				}
				inputs = []string{input}
			}

			handles := lo.Uniq(lo.FilterMap(inputs, func(input string, _ int) (string, bool) {
				return handle.Normalize(input), !handle.IsEmpty(input)
			}))
			if len(handles) == 0 {
				return fmt.Errorf("no handle given")
			}

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			database, synchronizer, err := openSynchronizer(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			base := strings.TrimRight(cfg.PublicBaseURL(), "/")
			var failed []string
			for _, h := range handles {
				feed, err := synchronizer.CreateFromHandle(ctx.Context, h)
				if err != nil {
					fmt.Printf("%s: %v\n", h, err)
					failed = append(failed, h)
					continue
				}
				fmt.Printf("%s\t%s\t%s/feeds/%s/entries.xml\n", feed.Handle, feed.Name(), base, feed.PublicId)
			}

			if len(failed) > 0 {
				return fmt.Errorf("could not add %s", strings.Join(failed, ", "))
			}
			return nil
		},
	}
}
