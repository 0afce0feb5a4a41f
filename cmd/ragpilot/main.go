// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/ragpilot"
	"github.com/poiesic/ragpilot/config"
	"github.com/poiesic/ragpilot/core"
	"github.com/poiesic/ragpilot/executor/mock"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ragpilot",
		Usage: "Drive document ingestion and question answering against a RAG backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{config.EnvLogLevel},
			},
			&cli.StringFlag{
				Name:  "base-url",
				Usage: "Backend base URL (overrides the configuration)",
			},
			&cli.StringFlag{
				Name:  "journal",
				Usage: "Directory of the run journal (overrides the configuration)",
			},
			&cli.BoolFlag{
				Name:  "mock",
				Usage: "Simulate every backend effect",
			},
			&cli.BoolFlag{
				Name:  "instant",
				Usage: "Skip the simulated latency of mock mode",
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "OpenAI-compatible model writing mock answers (overrides the configuration)",
			},
			&cli.Int64Flag{
				Name:    "project",
				Aliases: []string{"p"},
				Usage:   "Project to work on instead of the saved selection",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "welcome",
				Usage:  "Identify the backend",
				Action: welcomeCommand,
			},
			projectsCommand(),
			{
				Name:      "ingest",
				Usage:     "Upload, process and index PDF documents",
				ArgsUsage: "FILE...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "chunk-size",
						Usage: "Characters per chunk (default from configuration)",
					},
					&cli.IntFlag{
						Name:  "overlap-size",
						Usage: "Characters shared by consecutive chunks (default from configuration)",
					},
					&cli.BoolFlag{
						Name:  "reset",
						Usage: "Discard previously processed chunks of the project",
					},
					&cli.BoolFlag{
						Name:  "index-reset",
						Usage: "Clear the vector collection before indexing",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Projects ingested concurrently (default from configuration)",
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N documents",
						Value: 1,
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Ask one question about the selected project",
				ArgsUsage: "QUESTION",
				Action:    askCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Number of chunks to retrieve (default from configuration)",
					},
					&cli.BoolFlag{
						Name:  "show-chunks",
						Usage: "Print the retrieved chunks",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search the index of the selected project",
				ArgsUsage: "TEXT",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Number of chunks to retrieve (default from configuration)",
					},
				},
			},
			{
				Name:      "answer",
				Usage:     "Generate one answer without keeping a conversation",
				ArgsUsage: "QUESTION",
				Action:    answerCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Number of chunks the backend retrieves (default from configuration)",
					},
				},
			},
			{
				Name:   "chat",
				Usage:  "Hold a conversation with the selected project",
				Action: chatCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Number of chunks to retrieve (default from configuration)",
					},
				},
			},
			{
				Name:   "index-info",
				Usage:  "Describe the vector collection of the selected project",
				Action: indexInfoCommand,
			},
			historyCommand(),
		},
	}
}

func setupLogger(c *cli.Context) error {
	level, err := config.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// openSession loads the configuration, applies the global flags and opens a
// session. The --project flag takes precedence over the saved selection.
func openSession(c *cli.Context) (*ragpilot.Session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if c.IsSet("base-url") {
		cfg.Backend.BaseURL = c.String("base-url")
	}
	if c.IsSet("journal") {
		cfg.Journal.Path = c.String("journal")
	}
	if c.Bool("mock") {
		cfg.Mock = true
	}
	if c.IsSet("model") {
		cfg.Model.Name = c.String("model")
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	opts := []ragpilot.SessionOption{ragpilot.WithLogger(slog.Default())}
	if c.Bool("instant") {
		opts = append(opts, ragpilot.WithProjectDelay(0), ragpilot.WithMockOptions(mock.WithoutDelay()))
	}

	session, err := ragpilot.NewSession(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	if c.IsSet("project") {
		id := core.ProjectID(c.Int64("project"))
		if err := session.SelectProject(c.Context, core.Project{ID: id}); err != nil {
			session.Close()
			return nil, err
		}
	}
	return session, nil
}

func welcomeCommand(c *cli.Context) error {
	session, err := openSession(c)
	if err != nil {
		return err
	}
	defer session.Close()

	welcome, err := session.Welcome(c.Context)
	if err != nil {
		return fmt.Errorf("welcome failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "%s %s (%s)\n", welcome.AppName, welcome.AppVersion, session.Mode())
	return nil
}
