package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/ragpilot/core"
)

func projectsCommand() *cli.Command {
	return &cli.Command{
		Name:  "projects",
		Usage: "List, create, rename and select projects",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List the backend projects",
				Action: listProjectsCommand,
			},
			{
				Name:      "create",
				Usage:     "Create a project and select it",
				ArgsUsage: "NAME",
				Action:    createProjectCommand,
			},
			{
				Name:      "show",
				Usage:     "Show one project",
				ArgsUsage: "ID",
				Action:    showProjectCommand,
			},
			{
				Name:      "rename",
				Usage:     "Rename a project",
				ArgsUsage: "ID NAME",
				Action:    renameProjectCommand,
			},
			{
				Name:      "select",
				Usage:     "Select the project later commands work on",
				ArgsUsage: "ID",
				Action:    selectProjectCommand,
			},
		},
	}
}

func listProjectsCommand(c *cli.Context) error {
	session, err := openSession(c)
	if err != nil {
		return err
	}
	defer session.Close()

	projects, err := session.ListProjects(c.Context)
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}
	if state := session.Mode(); state.FallbackActive {
		color.New(color.FgYellow).Fprintln(c.App.ErrWriter, "Backend unreachable, showing demo projects")
	}

	selected := session.Selected().ID
	for _, p := range projects {
		marker := " "
		if p.ID == selected {
			marker = "*"
		}
		fmt.Fprintf(c.App.Writer, "%s %d\t%s\n", marker, p.ID, p.DisplayName())
	}
	return nil
}

func createProjectCommand(c *cli.Context) error {
	name := strings.Join(c.Args().Slice(), " ")

	session, err := openSession(c)
	if err != nil {
		return err
	}
	defer session.Close()

	// The simulated id is derived from the list, so refresh it first.
	if _, err := session.ListProjects(c.Context); err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}
	project, err := session.CreateProject(c.Context, name)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Created project %d (%s), now selected\n", project.ID, project.DisplayName())
	return nil
}

func showProjectCommand(c *cli.Context) error {
	id, err := projectArg(c, 0)
	if err != nil {
		return err
	}

	session, err := openSession(c)
	if err != nil {
		return err
	}
	defer session.Close()

	project, err := session.GetProject(c.Context, id)
	if err != nil {
		return fmt.Errorf("failed to get project: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "%d\t%s\n", project.ID, project.DisplayName())
	return nil
}

func renameProjectCommand(c *cli.Context) error {
	id, err := projectArg(c, 0)
	if err != nil {
		return err
	}
	name := strings.Join(c.Args().Tail(), " ")

	session, err := openSession(c)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.RenameProject(c.Context, id, name); err != nil {
		return fmt.Errorf("failed to rename project: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Renamed project %d to %s\n", id, strings.TrimSpace(name))
	return nil
}

func selectProjectCommand(c *cli.Context) error {
	id, err := projectArg(c, 0)
	if err != nil {
		return err
	}

	session, err := openSession(c)
	if err != nil {
		return err
	}
	defer session.Close()

	if _, err := session.ListProjects(c.Context); err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}
	if err := session.SelectProject(c.Context, core.Project{ID: id}); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Selected project %d (%s)\n", id, session.Selected().DisplayName())
	if session.Config().Journal.Path == "" {
		color.New(color.FgYellow).Fprintln(c.App.ErrWriter,
			"No journal configured, the selection only lasts for this invocation")
	}
	return nil
}

func projectArg(c *cli.Context, n int) (core.ProjectID, error) {
	arg := c.Args().Get(n)
	if arg == "" {
		return 0, fmt.Errorf("project id is required")
	}
	id, err := core.ParseProjectID(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid project id %q: %w", arg, err)
	}
	return id, nil
}
