package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect the local run journal",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List recent ingestion runs",
				Action: listRunsCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs to show (0 for all)",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Include every project, not only the selected one",
					},
				},
			},
			{
				Name:   "prune",
				Usage:  "Delete runs older than the configured retention",
				Action: pruneRunsCommand,
			},
		},
	}
}

func listRunsCommand(c *cli.Context) error {
	session, err := openSession(c)
	if err != nil {
		return err
	}
	defer session.Close()

	projectID := session.Selected().ID
	if c.Bool("all") {
		projectID = 0
	}
	runs, err := session.Runs(c.Context, projectID, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	for _, run := range runs {
		fmt.Fprintf(c.App.Writer, "%s\t%d\t%s\t%s\t%s\n",
			run.StartedAt.Local().Format(time.DateTime), run.ProjectID, run.Stage, run.ID, run.Summary())
	}
	return nil
}

func pruneRunsCommand(c *cli.Context) error {
	session, err := openSession(c)
	if err != nil {
		return err
	}
	defer session.Close()

	removed, err := session.PruneRuns(c.Context, time.Now())
	if err != nil {
		return fmt.Errorf("failed to prune runs: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Removed %d runs\n", removed)
	return nil
}

func indexInfoCommand(c *cli.Context) error {
	session, err := openSession(c)
	if err != nil {
		return err
	}
	defer session.Close()

	info, err := session.IndexInfo(c.Context, session.Selected().ID)
	if err != nil {
		return fmt.Errorf("failed to get index info: %w", err)
	}
	if collection, ok := info["collection_info"].(map[string]any); ok {
		fmt.Fprintf(c.App.Writer, "Indexed points: %v\n", collection["points_count"])
		return nil
	}
	fmt.Fprintf(c.App.Writer, "%v\n", info)
	return nil
}
