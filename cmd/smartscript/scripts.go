package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/khushibohraAcc/smartscript-builder/pkg/api"
)

func runGenerateCommand(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	project := fs.String("project", "", "project id (required)")
	description := fs.String("description", "", "natural language test description (required)")
	deviceType := fs.String("type", "web", "device type: web or mobile")
	platform := fs.String("platform", "chrome", "platform: chrome, firefox, safari, android, ios")
	testType := fs.String("test-type", "functional", "test type: functional, regression, smoke, integration")
	save := fs.Bool("save", false, "save the generated script as a test case")
	name := fs.String("name", "", "test case name (with --save)")
	out := fs.String("out", "", "write the script to a file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return withExitCode(err, exitUsage)
	}
	if *project == "" || *description == "" {
		return usageError("generate requires --project and --description")
	}
	if *save && *name == "" {
		return usageError("--save requires --name")
	}

	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := commandContext()
	defer cancel()

	resp, err := env.client.GenerateScript(ctx, api.ScriptGenerationRequest{
		ProjectID:   *project,
		Description: *description,
		DeviceType:  api.DeviceType(*deviceType),
		Platform:    api.Platform(*platform),
		TestType:    api.TestType(*testType),
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(resp)
	}

	if !resp.IsValid {
		fmt.Fprintln(os.Stderr, "Generated script failed validation:")
		for _, msg := range resp.ValidationErrors {
			fmt.Fprintf(os.Stderr, "  - %s\n", msg)
		}
	}
	if len(resp.RAGContextUsed) > 0 {
		fmt.Fprintf(os.Stderr, "Library methods used: %s\n", strings.Join(resp.RAGContextUsed, ", "))
	}
	fmt.Fprintf(os.Stderr, "Generated in %.0fms\n", resp.GenerationTimeMS)

	if *out != "" {
		if err := os.WriteFile(*out, []byte(resp.ScriptCode), 0o644); err != nil {
			return fmt.Errorf("writing script: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Script written to %s\n", *out)
	} else {
		fmt.Println(resp.ScriptCode)
	}

	if !*save {
		return nil
	}
	tc, err := env.client.SaveTestCase(ctx, api.TestCaseCreate{
		ProjectID:   *project,
		Name:        *name,
		Description: *description,
		DeviceType:  api.DeviceType(*deviceType),
		Platform:    api.Platform(*platform),
		TestType:    api.TestType(*testType),
		ScriptCode:  resp.ScriptCode,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Saved as test case %s\n", tc.ID)
	return nil
}

func runValidateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	file := fs.String("file", "-", "script file to validate, - for stdin")
	if err := fs.Parse(args); err != nil {
		return withExitCode(err, exitUsage)
	}

	script, err := readInput(*file)
	if err != nil {
		return err
	}

	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := commandContext()
	defer cancel()

	resp, err := env.client.ValidateScript(ctx, api.ScriptValidationRequest{ScriptCode: script})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}
	if resp.IsValid {
		fmt.Println("Script is valid.")
		return nil
	}
	fmt.Println("Script is invalid:")
	for _, msg := range resp.Errors {
		fmt.Printf("  - %s\n", msg)
	}
	return withExitCode(fmt.Errorf("validation failed"), exitBackend)
}

func runTestCasesCommand(args []string) error {
	if len(args) == 0 {
		return usageError("usage: smartscript testcases <list|show> [flags]")
	}
	switch args[0] {
	case "list":
		return runTestCasesList(args[1:])
	case "show":
		return runTestCasesShow(args[1:])
	default:
		return usageError(fmt.Sprintf("unknown testcases subcommand: %s", args[0]))
	}
}

func runTestCasesList(args []string) error {
	if len(args) > 0 {
		return usageError("testcases list takes no arguments")
	}
	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := commandContext()
	defer cancel()

	cases, err := env.client.ListTestCases(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cases)
	}
	if len(cases) == 0 {
		fmt.Println("No test cases.")
		return nil
	}
	fmt.Printf("%-12s %-24s %-12s %-8s %-10s %s\n", "ID", "NAME", "PROJECT", "TYPE", "PLATFORM", "VALIDATED")
	for _, tc := range cases {
		fmt.Printf("%-12s %-24s %-12s %-8s %-10s %v\n", tc.ID, tc.Name, tc.ProjectID, tc.TestType, tc.Platform, tc.ScriptValidated)
	}
	return nil
}

func runTestCasesShow(args []string) error {
	fs := flag.NewFlagSet("testcases show", flag.ContinueOnError)
	showScript := fs.Bool("script", false, "print the script body")
	if err := fs.Parse(args); err != nil {
		return withExitCode(err, exitUsage)
	}
	if fs.NArg() != 1 {
		return usageError("usage: smartscript testcases show <test-case-id> [--script]")
	}

	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := commandContext()
	defer cancel()

	tc, err := env.client.GetTestCase(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(tc)
	}
	fmt.Printf("Test case %s\n", tc.ID)
	fmt.Printf("  Name:       %s\n", tc.Name)
	fmt.Printf("  Project:    %s\n", tc.ProjectID)
	fmt.Printf("  Target:     %s/%s\n", tc.DeviceType, tc.Platform)
	fmt.Printf("  Type:       %s\n", tc.TestType)
	fmt.Printf("  Validated:  %v\n", tc.ScriptValidated)
	if *showScript && tc.ScriptCode != "" {
		fmt.Println()
		fmt.Println(tc.ScriptCode)
	}
	return nil
}

func runAnalyzeCommand(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	file := fs.String("file", "-", "traceback file to analyze, - for stdin")
	if err := fs.Parse(args); err != nil {
		return withExitCode(err, exitUsage)
	}

	traceback, err := readInput(*file)
	if err != nil {
		return err
	}
	if strings.TrimSpace(traceback) == "" {
		return usageError("analyze requires a non-empty traceback")
	}

	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := commandContext()
	defer cancel()

	analysis, err := env.client.AnalyzeFailure(ctx, traceback)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(analysis)
	}
	fmt.Println(analysis.Analysis)
	return nil
}

func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
