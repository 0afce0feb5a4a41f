package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/ragpilot/backendtest"
	"github.com/poiesic/ragpilot/config"
	"github.com/poiesic/ragpilot/core"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "stubbackend",
		Usage: "Serve an in-memory imitation of the RAG backend for demos",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address",
				Value: "127.0.0.1:5000",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.IntFlag{
				Name:  "seed",
				Usage: "Number of projects to create at start-up",
				Value: 2,
			},
			&cli.BoolFlag{
				Name:  "bare-ids",
				Usage: "List projects as bare ids",
			},
			&cli.BoolFlag{
				Name:  "redirect-create",
				Usage: "Answer POST /projects with 307",
			},
			&cli.StringFlag{
				Name:  "answer",
				Usage: "Answer returned for every question",
			},
		},
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	logger, err := newLogger(c.String("log-level"))
	if err != nil {
		return err
	}

	stub := backendtest.New(stubOptions(c, logger)...)
	server := &http.Server{
		Addr:              c.String("addr"),
		Handler:           stub.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("stub backend listening", "addr", server.Addr, "base_path", backendtest.BasePath)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("stub backend stopped", "requests", stub.TotalCalls())
	return nil
}

func stubOptions(c *cli.Context, logger *slog.Logger) []backendtest.Option {
	opts := []backendtest.Option{backendtest.WithLogger(logger)}

	seeded := make([]core.Project, 0, c.Int("seed"))
	for i := 1; i <= c.Int("seed"); i++ {
		seeded = append(seeded, core.Project{ID: core.ProjectID(i), Name: fmt.Sprintf("Project %d", i)})
	}
	opts = append(opts, backendtest.WithProjects(seeded...))

	if c.Bool("bare-ids") {
		opts = append(opts, backendtest.WithBareProjectIDs())
	}
	if c.Bool("redirect-create") {
		opts = append(opts, backendtest.WithCreateRedirect())
	}
	if answer := c.String("answer"); answer != "" {
		opts = append(opts, backendtest.WithAnswer(answer))
	}
	return opts
}

func newLogger(levelName string) (*slog.Logger, error) {
	level, err := config.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	if level > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}
