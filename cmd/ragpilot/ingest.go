package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/ragpilot"
	"github.com/poiesic/ragpilot/core"
	"github.com/poiesic/ragpilot/ingestion"
)

func ingestCommand(c *cli.Context) error {
	paths := c.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("at least one file is required")
	}
	if c.Int("report-interval") <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}

	session, err := openSession(c)
	if err != nil {
		return err
	}
	defer session.Close()

	opts := session.RunOptions()
	if c.IsSet("chunk-size") {
		opts.ChunkSize = c.Int("chunk-size")
	}
	if c.IsSet("overlap-size") {
		opts.OverlapSize = c.Int("overlap-size")
	}
	opts.ProcessReset = c.Bool("reset")
	opts.IndexReset = c.Bool("index-reset")

	files := make([]*core.UploadedFile, 0, len(paths))
	for _, path := range paths {
		file, err := session.LoadDocument(path)
		if err != nil {
			return err
		}
		files = append(files, file)
	}

	if len(files) == 1 {
		opts.Monitor = stagePrinter(c)
		run, err := session.Ingest(c.Context, files[0], opts)
		if run != nil {
			printRun(c, run)
		}
		return err
	}
	return ingestBatch(c, session, files, opts)
}

func ingestBatch(c *cli.Context, session *ragpilot.Session, files []*core.UploadedFile, opts *ingestion.RunOptions) error {
	tracker := ingestion.NewProgressTracker(c.App.ErrWriter, len(files), c.Int("report-interval"))
	batchOpts := []ingestion.BatchOption{ingestion.WithProgress(tracker)}
	if c.IsSet("workers") {
		batchOpts = append(batchOpts, ingestion.WithPoolSize(c.Int("workers")))
	}

	batch, err := session.NewBatch(batchOpts...)
	if err != nil {
		return err
	}
	defer batch.Release()

	jobs := make([]ingestion.Job, 0, len(files))
	for _, file := range files {
		jobs = append(jobs, ingestion.Job{File: file, Options: opts})
	}

	failed := 0
	for _, result := range batch.Ingest(c.Context, jobs) {
		switch {
		case result.Run != nil:
			printRun(c, result.Run)
		case result.Err != nil:
			color.New(color.FgRed).Fprintf(c.App.Writer, "%s: %v\n", result.Job.File.Name, result.Err)
		}
		if result.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(files))
	}
	return nil
}

func stagePrinter(c *cli.Context) ingestion.StageMonitor {
	return ingestion.MonitorFunc(func(run *core.PipelineRun) {
		if run.Stage.IsTerminal() {
			return
		}
		fmt.Fprintf(c.App.ErrWriter, "%s: %s\n", run.FileName, run.Stage)
	})
}

func printRun(c *cli.Context, run *core.PipelineRun) {
	line := run.Summary()
	if run.Mock {
		line += " (simulated)"
	}
	if run.Succeeded() {
		color.New(color.FgGreen).Fprintln(c.App.Writer, line)
		return
	}
	color.New(color.FgRed).Fprintln(c.App.Writer, line)
}
