package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/khushibohraAcc/smartscript-builder/pkg/api"
	"github.com/khushibohraAcc/smartscript-builder/pkg/stream"
)

func runRunCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	device := fs.String("device", "", "device id for mobile runs")
	noStream := fs.Bool("no-stream", false, "skip realtime progress, print the result only")
	if err := fs.Parse(args); err != nil {
		return withExitCode(err, exitUsage)
	}
	if fs.NArg() != 1 {
		return usageError("usage: smartscript run <test-case-id> [--device ID] [--no-stream]")
	}
	testCaseID := fs.Arg(0)

	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := commandContext()
	defer cancel()

	request := api.ExecutionRequest{TestCaseID: testCaseID, DeviceID: *device}

	if *noStream {
		result, err := env.client.SubmitExecution(ctx, request)
		if err != nil {
			return err
		}
		return printExecutionResult(result)
	}

	// The submission call holds the connection open for the length of the
	// run, so the execution id is discovered from the active list and the
	// realtime channel attached while the run is in flight.
	var result *api.ExecutionResult
	submitDone := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(submitDone)
		r, err := env.client.SubmitExecution(gctx, request)
		result = r
		return err
	})

	executionID := discoverActiveExecution(gctx, env.client, submitDone)
	if executionID != "" {
		env.logger.SetExecutionID(executionID)
		sub := stream.New(env.cfg, stream.WithLogger(env.logger))
		events, err := sub.Connect(gctx, executionID)
		if err == nil {
			fmt.Printf("Execution %s started\n", executionID)
			go func() {
				<-gctx.Done()
				sub.Disconnect()
			}()
			stream.Dispatch(events, progressHandlers())
		} else {
			fmt.Fprintf(os.Stderr, "realtime attach failed, waiting for the result: %v\n", err)
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return printExecutionResult(result)
}

// discoverActiveExecution polls the active list until the freshly submitted
// run shows up. Gives up silently if the run finishes first; the blocking
// submission still returns the result.
func discoverActiveExecution(ctx context.Context, client *api.Client, submitDone <-chan struct{}) string {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(10 * time.Second)
	for {
		active, err := client.ListActiveExecutions(ctx)
		if err == nil && len(active) > 0 {
			return active[0].ExecutionID
		}
		select {
		case <-ctx.Done():
			return ""
		case <-submitDone:
			return ""
		case <-deadline:
			return ""
		case <-ticker.C:
		}
	}
}

func runWatchCommand(args []string) error {
	if len(args) != 1 {
		return usageError("usage: smartscript watch <execution-id>")
	}

	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := commandContext()
	defer cancel()

	env.logger.SetExecutionID(args[0])
	sub := stream.New(env.cfg, stream.WithLogger(env.logger))
	events, err := sub.Connect(ctx, args[0])
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		sub.Disconnect()
	}()

	fmt.Printf("Watching execution %s (Ctrl-C to stop)\n", args[0])
	stream.Dispatch(events, progressHandlers())
	return nil
}

func progressHandlers() stream.Handlers {
	return stream.Handlers{
		OnStatusChange: func(s stream.Status) {
			fmt.Fprintf(os.Stderr, "-- %s\n", s)
		},
		OnStep: func(step api.StepUpdate) {
			mark := "ok"
			if !step.Result {
				mark = "FAILED"
			}
			fmt.Printf("step %2d  %-40s %-8s %6.0fms", step.StepNumber, step.Action, mark, step.LatencyMS)
			if step.Error != "" {
				fmt.Printf("  %s", step.Error)
			}
			fmt.Println()
		},
		OnError: func(msg string) {
			fmt.Fprintf(os.Stderr, "!! %s\n", msg)
		},
		OnComplete: func(result api.ExecutionResult) {
			fmt.Printf("execution %s finished: %s\n", result.ExecutionID, result.Status)
		},
	}
}

func printExecutionResult(result *api.ExecutionResult) error {
	if result == nil {
		return fmt.Errorf("backend returned no result")
	}
	if jsonOutput {
		return printJSON(result)
	}
	fmt.Printf("\nExecution %s: %s\n", result.ExecutionID, result.Status)
	fmt.Printf("  Test:     %s (%s)\n", result.TestName, result.ProjectName)
	fmt.Printf("  Duration: %.1fs, step success %.0f%%, avg response %.0fms\n",
		result.Metrics.TotalDuration,
		result.Metrics.StepSuccessRate*100,
		result.Metrics.AvgResponseTime,
	)
	if result.Artifacts.VideoPath != "" {
		fmt.Printf("  Video:    %s\n", result.Artifacts.VideoPath)
	}
	if result.Artifacts.ScreenshotFailure != "" {
		fmt.Printf("  Failure screenshot: %s\n", result.Artifacts.ScreenshotFailure)
	}
	if result.AIAnalysis != "" {
		fmt.Printf("  Analysis: %s\n", result.AIAnalysis)
	}
	if result.Status != api.ExecutionPass {
		return withExitCode(fmt.Errorf("execution finished with status %s", result.Status), exitBackend)
	}
	return nil
}

func runExecutionsCommand(args []string) error {
	if len(args) == 0 {
		return usageError("usage: smartscript executions <list|show|active> [flags]")
	}
	switch args[0] {
	case "list":
		return runExecutionsList(args[1:])
	case "show":
		return runExecutionsShow(args[1:])
	case "active":
		return runExecutionsActive(args[1:])
	default:
		return usageError(fmt.Sprintf("unknown executions subcommand: %s", args[0]))
	}
}

func runExecutionsList(args []string) error {
	fs := flag.NewFlagSet("executions list", flag.ContinueOnError)
	project := fs.String("project", "", "filter by project id")
	status := fs.String("status", "", "filter by status: PENDING, RUNNING, PASS, FAIL, WARNING")
	limit := fs.Int("limit", 20, "maximum rows")
	skip := fs.Int("skip", 0, "rows to skip")
	if err := fs.Parse(args); err != nil {
		return withExitCode(err, exitUsage)
	}

	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := commandContext()
	defer cancel()

	items, err := env.client.ListExecutions(ctx, api.ExecutionFilter{
		ProjectID: *project,
		Status:    api.ExecutionStatus(*status),
		Skip:      *skip,
		Limit:     *limit,
	})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(items)
	}
	if len(items) == 0 {
		fmt.Println("No executions.")
		return nil
	}
	fmt.Printf("%-14s %-24s %-16s %-8s %-10s %s\n", "EXECUTION", "TEST", "PROJECT", "STATUS", "DURATION", "STARTED")
	for _, item := range items {
		duration := "-"
		if item.TotalDuration != nil {
			duration = fmt.Sprintf("%.1fs", *item.TotalDuration)
		}
		fmt.Printf("%-14s %-24s %-16s %-8s %-10s %s\n",
			item.ExecutionID, item.TestName, item.ProjectName, item.Status, duration,
			item.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runExecutionsShow(args []string) error {
	if len(args) != 1 {
		return usageError("usage: smartscript executions show <execution-id>")
	}
	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := commandContext()
	defer cancel()

	result, err := env.client.GetExecution(ctx, args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(result)
	}
	fmt.Printf("Execution %s: %s\n", result.ExecutionID, result.Status)
	fmt.Printf("  Test:     %s (%s)\n", result.TestName, result.ProjectName)
	fmt.Printf("  Started:  %s\n", result.CreatedAt.Format("2006-01-02 15:04:05"))
	for i, step := range result.Steps {
		mark := "ok"
		if !step.Result {
			mark = "FAILED"
		}
		fmt.Printf("  step %2d  %-40s %-8s %6.0fms", i+1, step.Action, mark, step.LatencyMS)
		if step.Error != "" {
			fmt.Printf("  %s", step.Error)
		}
		fmt.Println()
	}
	if result.AIAnalysis != "" {
		fmt.Printf("  Analysis: %s\n", result.AIAnalysis)
	}
	return nil
}

func runExecutionsActive(args []string) error {
	if len(args) > 0 {
		return usageError("executions active takes no arguments")
	}
	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := commandContext()
	defer cancel()

	active, err := env.client.ListActiveExecutions(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(active)
	}
	if len(active) == 0 {
		fmt.Println("No active executions.")
		return nil
	}
	fmt.Printf("%-14s %-10s %s\n", "EXECUTION", "STATUS", "STARTED")
	for _, a := range active {
		fmt.Printf("%-14s %-10s %s\n", a.ExecutionID, a.Status, a.StartedAt)
	}
	return nil
}
