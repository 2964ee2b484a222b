package main

import (
	"flag"
	"fmt"

	"github.com/khushibohraAcc/smartscript-builder/pkg/api"
)

func runProjectsCommand(args []string) error {
	if len(args) == 0 {
		return usageError("usage: smartscript projects <list|create|show|update|delete|index> [flags]")
	}
	switch args[0] {
	case "list":
		return runProjectsList(args[1:])
	case "create":
		return runProjectsCreate(args[1:])
	case "show":
		return runProjectsShow(args[1:])
	case "update":
		return runProjectsUpdate(args[1:])
	case "delete":
		return runProjectsDelete(args[1:])
	case "index":
		return runProjectsIndex(args[1:])
	default:
		return usageError(fmt.Sprintf("unknown projects subcommand: %s", args[0]))
	}
}

func runProjectsList(args []string) error {
	if len(args) > 0 {
		return usageError("projects list takes no arguments")
	}
	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := commandContext()
	defer cancel()

	projects, err := env.client.ListProjects(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(projects)
	}
	if len(projects) == 0 {
		fmt.Println("No projects.")
		return nil
	}
	fmt.Printf("%-12s %-24s %-20s %s\n", "ID", "NAME", "INDEXED", "LIBRARY")
	for _, p := range projects {
		indexed := "never"
		if p.LastIndexedAt != nil {
			indexed = p.LastIndexedAt.Format("2006-01-02 15:04")
		}
		fmt.Printf("%-12s %-24s %-20s %s\n", p.ID, p.Name, indexed, p.LibraryPath)
	}
	return nil
}

func runProjectsCreate(args []string) error {
	fs := flag.NewFlagSet("projects create", flag.ContinueOnError)
	name := fs.String("name", "", "project name (required)")
	description := fs.String("description", "", "project description")
	library := fs.String("library", "", "path to the project's script library (required)")
	if err := fs.Parse(args); err != nil {
		return withExitCode(err, exitUsage)
	}
	if *name == "" || *library == "" {
		return usageError("projects create requires --name and --library")
	}

	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := commandContext()
	defer cancel()

	project, err := env.client.CreateProject(ctx, api.ProjectCreate{
		Name:        *name,
		Description: *description,
		LibraryPath: *library,
	})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(project)
	}
	fmt.Printf("Created project %s (%s)\n", project.ID, project.Name)
	return nil
}

func runProjectsShow(args []string) error {
	if len(args) != 1 {
		return usageError("usage: smartscript projects show <project-id>")
	}
	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := commandContext()
	defer cancel()

	project, err := env.client.GetProject(ctx, args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(project)
	}
	fmt.Printf("Project %s\n", project.ID)
	fmt.Printf("  Name:        %s\n", project.Name)
	if project.Description != "" {
		fmt.Printf("  Description: %s\n", project.Description)
	}
	fmt.Printf("  Library:     %s\n", project.LibraryPath)
	fmt.Printf("  Created:     %s\n", project.CreatedAt.Format("2006-01-02 15:04"))
	if project.LastIndexedAt != nil {
		fmt.Printf("  Indexed:     %s\n", project.LastIndexedAt.Format("2006-01-02 15:04"))
	} else {
		fmt.Printf("  Indexed:     never\n")
	}
	return nil
}

func runProjectsUpdate(args []string) error {
	fs := flag.NewFlagSet("projects update", flag.ContinueOnError)
	name := fs.String("name", "", "new project name")
	description := fs.String("description", "", "new description")
	library := fs.String("library", "", "new script library path")
	if err := fs.Parse(args); err != nil {
		return withExitCode(err, exitUsage)
	}
	if fs.NArg() != 1 {
		return usageError("usage: smartscript projects update <project-id> [flags]")
	}

	var patch api.ProjectUpdate
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			patch.Name = name
		case "description":
			patch.Description = description
		case "library":
			patch.LibraryPath = library
		}
	})
	if patch.Name == nil && patch.Description == nil && patch.LibraryPath == nil {
		return usageError("projects update requires at least one of --name, --description, --library")
	}

	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := commandContext()
	defer cancel()

	project, err := env.client.UpdateProject(ctx, fs.Arg(0), patch)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(project)
	}
	fmt.Printf("Updated project %s\n", project.ID)
	return nil
}

func runProjectsDelete(args []string) error {
	if len(args) != 1 {
		return usageError("usage: smartscript projects delete <project-id>")
	}
	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := commandContext()
	defer cancel()

	if err := env.client.DeleteProject(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted project %s\n", args[0])
	return nil
}

func runProjectsIndex(args []string) error {
	if len(args) != 1 {
		return usageError("usage: smartscript projects index <project-id>")
	}
	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := commandContext()
	defer cancel()

	if err := env.client.IndexProject(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Indexed script library for project %s\n", args[0])
	return nil
}
