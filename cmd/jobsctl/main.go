package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kitchenops/backoffice/cmd/jobsctl/cli"
	"github.com/kitchenops/backoffice/internal/app"
)

const usage = `usage: jobsctl <command>

commands:
  trigger rbac:sessions_sweep
  trigger rbac:sessions_refresh <role-id>
  stats
  scheduled`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	c := cli.NewJobsCLI(cfg.RedisAddr)
	defer c.Close()

	if err := run(context.Background(), c, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *cli.JobsCLI, args []string) error {
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return fmt.Errorf("trigger needs a task type\n%s", usage)
		}
		info, err := c.Trigger(ctx, args[1], args[2:])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := c.InspectQueue()
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	case "scheduled":
		tasks, err := c.ListScheduled(20)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			fmt.Printf("%s %s next=%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02 15:04:05"))
		}
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
	return nil
}
