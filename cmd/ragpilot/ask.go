package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/ragpilot"
	"github.com/poiesic/ragpilot/core"
	"github.com/poiesic/ragpilot/query"
)

var (
	userColor      = color.New(color.FgCyan, color.Bold)
	assistantColor = color.New(color.FgGreen)
	chunkColor     = color.New(color.FgHiBlack)
	noticeColor    = color.New(color.FgRed)
)

func askCommand(c *cli.Context) error {
	question := strings.Join(c.Args().Slice(), " ")

	session, err := openSession(c)
	if err != nil {
		return err
	}
	defer session.Close()

	result, err := session.Ask(c.Context, question, topK(c, session))
	if result != nil && c.Bool("show-chunks") {
		printChunks(c.App.Writer, result.Chunks)
	}
	if result != nil {
		assistantColor.Fprintln(c.App.Writer, result.Answer)
	}
	printNotices(c.App.ErrWriter, session.Notifier())
	return err
}

// chatCommand reads one question per line until EOF or /quit.
// "/project ID" switches project and starts a new conversation.
func chatCommand(c *cli.Context) error {
	session, err := openSession(c)
	if err != nil {
		return err
	}
	defer session.Close()

	k := topK(c, session)
	out := c.App.Writer
	fmt.Fprintf(out, "Chatting with project %s (%s). Type /quit to leave.\n",
		session.Selected().DisplayName(), session.Mode())

	scanner := bufio.NewScanner(c.App.Reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case strings.HasPrefix(line, "/project "):
			id, err := core.ParseProjectID(strings.TrimSpace(strings.TrimPrefix(line, "/project ")))
			if err != nil {
				noticeColor.Fprintf(out, "invalid project id: %v\n", err)
				continue
			}
			if err := session.SelectProject(c.Context, core.Project{ID: id}); err != nil {
				noticeColor.Fprintln(out, err)
				continue
			}
			fmt.Fprintf(out, "Switched to project %s\n", session.Selected().DisplayName())
			continue
		}

		userColor.Fprintf(out, "> %s\n", line)
		result, err := session.Ask(c.Context, line, k)
		switch {
		case errors.Is(err, core.ErrValidation):
			noticeColor.Fprintln(out, err)
		case result != nil:
			assistantColor.Fprintln(out, result.Answer)
		}
		printNotices(c.App.ErrWriter, session.Notifier())
	}
	return scanner.Err()
}

func topK(c *cli.Context, session *ragpilot.Session) int {
	if c.IsSet("top-k") {
		return c.Int("top-k")
	}
	return session.Config().Query.TopK
}

func printChunks(w io.Writer, chunks []core.Chunk) {
	for i, chunk := range chunks {
		source := chunk.Metadata.Source
		if chunk.Metadata.Page != nil {
			source = fmt.Sprintf("%s p.%d", source, *chunk.Metadata.Page)
		}
		chunkColor.Fprintf(w, "[%d] %.2f %s\n    %s\n", i+1, chunk.Score, source, chunk.Text)
	}
}

func printNotices(w io.Writer, notifier *query.Notifier) {
	for _, note := range notifier.Drain() {
		noticeColor.Fprintln(w, note.String())
	}
}
