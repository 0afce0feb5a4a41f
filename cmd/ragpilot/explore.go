package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/tmc/langchaingo/schema"
	"github.com/urfave/cli/v2"
)

func searchCommand(c *cli.Context) error {
	text := strings.Join(c.Args().Slice(), " ")

	session, err := openSession(c)
	if err != nil {
		return err
	}
	defer session.Close()

	docs, err := session.Search(c.Context, text, topK(c, session))
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Fprintln(c.App.Writer, "No results")
		return nil
	}
	printDocuments(c.App.Writer, docs)
	return nil
}

func answerCommand(c *cli.Context) error {
	question := strings.Join(c.Args().Slice(), " ")

	session, err := openSession(c)
	if err != nil {
		return err
	}
	defer session.Close()

	answer, err := session.Answer(c.Context, question, topK(c, session))
	if err != nil {
		return err
	}
	assistantColor.Fprintln(c.App.Writer, answer)
	return nil
}

func printDocuments(w io.Writer, docs []schema.Document) {
	for i, doc := range docs {
		source, _ := doc.Metadata["source"].(string)
		if page, ok := doc.Metadata["page"]; ok {
			source = fmt.Sprintf("%s p.%v", source, page)
		}
		chunkColor.Fprintf(w, "[%d] %.2f %s\n    %s\n", i+1, doc.Score, source, doc.PageContent)
	}
}
