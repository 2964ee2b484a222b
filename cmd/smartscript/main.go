package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/khushibohraAcc/smartscript-builder/pkg/api"
	"github.com/khushibohraAcc/smartscript-builder/pkg/config"
	"github.com/khushibohraAcc/smartscript-builder/pkg/logging"
	"github.com/khushibohraAcc/smartscript-builder/pkg/telemetry"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var (
	configPath  string
	urlOverride string
	jsonOutput  bool
)

type startupOptions struct {
	configPath  string
	urlOverride string
	jsonOutput  bool
	args        []string
}

func main() {
	opts, err := parseStartupOptions(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	configPath = opts.configPath
	urlOverride = opts.urlOverride
	jsonOutput = opts.jsonOutput

	os.Exit(dispatchSubcommand(opts.args))
}

func parseStartupOptions(raw []string) (*startupOptions, error) {
	opts := &startupOptions{}
	filtered := make([]string, 0, len(raw))
	var nextConfig, nextURL bool
	for _, arg := range raw {
		if nextConfig {
			opts.configPath = arg
			nextConfig = false
			continue
		}
		if nextURL {
			opts.urlOverride = arg
			nextURL = false
			continue
		}
		switch {
		case arg == "--config":
			nextConfig = true
		case strings.HasPrefix(arg, "--config="):
			opts.configPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--url":
			nextURL = true
		case strings.HasPrefix(arg, "--url="):
			opts.urlOverride = strings.TrimPrefix(arg, "--url=")
		case arg == "--json":
			opts.jsonOutput = true
		default:
			filtered = append(filtered, arg)
		}
	}
	if nextConfig {
		return nil, fmt.Errorf("--config requires a path")
	}
	if nextURL {
		return nil, fmt.Errorf("--url requires a value")
	}
	opts.args = filtered
	return opts, nil
}

func dispatchSubcommand(args []string) int {
	if len(args) == 0 {
		printHelp()
		return 2
	}
	switch args[0] {
	case "--version", "-v", "version":
		printVersion()
		return 0
	case "--help", "-h", "help":
		printHelp()
		return 0
	case "status":
		return runCommand(runStatusCommand, args[1:])
	case "projects":
		return runCommand(runProjectsCommand, args[1:])
	case "devices":
		return runCommand(runDevicesCommand, args[1:])
	case "generate":
		return runCommand(runGenerateCommand, args[1:])
	case "validate":
		return runCommand(runValidateCommand, args[1:])
	case "testcases":
		return runCommand(runTestCasesCommand, args[1:])
	case "analyze":
		return runCommand(runAnalyzeCommand, args[1:])
	case "run":
		return runCommand(runRunCommand, args[1:])
	case "watch":
		return runCommand(runWatchCommand, args[1:])
	case "executions":
		return runCommand(runExecutionsCommand, args[1:])
	default:
		if strings.HasPrefix(args[0], "-") {
			fmt.Fprintf(os.Stderr, "Error: unknown flag: %s\n", args[0])
		} else {
			fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", args[0])
		}
		fmt.Fprintln(os.Stderr, "Run 'smartscript --help' for usage.")
		return 2
	}
}

func runCommand(handler func([]string) error, args []string) int {
	if err := handler(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeForError(err)
	}
	return 0
}

// appEnv bundles the shared command dependencies: effective configuration,
// the structured logger, and the request client.
type appEnv struct {
	cfg           *config.Config
	logger        *logging.Logger
	client        *api.Client
	traceShutdown func(context.Context) error
}

func newAppEnv() (*appEnv, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if urlOverride != "" {
		cfg.Server.BaseURL = urlOverride
		cfg.Server.WSURL = ""
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	logger, err := logging.NewLogger(cfg.Logging.Dir)
	if err != nil {
		return nil, err
	}
	if lvl := strings.ToLower(strings.TrimSpace(cfg.Logging.MinLevel)); lvl != "" {
		logger.SetMinLevel(logging.Level(lvl))
	}

	client, err := api.New(cfg, api.WithLogger(logger))
	if err != nil {
		logger.Close()
		return nil, err
	}

	env := &appEnv{cfg: cfg, logger: logger, client: client}
	if cfg.Telemetry.TraceStdout {
		shutdown, err := telemetry.SetupTracing(true)
		if err != nil {
			logger.Warn(logging.CategoryCLI, "cli.tracing_failed", err.Error(), nil)
		} else {
			env.traceShutdown = shutdown
		}
	}
	return env, nil
}

func (a *appEnv) Close() {
	if a.traceShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.traceShutdown(ctx)
		cancel()
	}
	_ = a.logger.Close()
}

// commandContext is cancelled on SIGINT and SIGTERM so in-flight requests and
// realtime subscriptions unwind cleanly.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func usageError(msg string) error {
	return withExitCode(errors.New(msg), 2)
}

func printVersion() {
	fmt.Printf("smartscript %s (commit %s, built %s)\n", version, commit, buildDate)
}

func printHelp() {
	fmt.Print(`smartscript - client for the AI test automation backend

Usage:
  smartscript [--config PATH] [--url URL] [--json] <command> [flags]

Commands:
  status                     Backend health and AI engine availability
  projects                   Manage automation projects (list|create|show|update|delete|index)
  devices                    List and validate automation targets (list|validate)
  generate                   Generate a test script from a description
  validate                   Validate a script without saving it
  testcases                  Browse saved test cases (list|show)
  analyze                    Translate a failure traceback into plain language
  run                        Execute a test case with live step progress
  watch                      Attach to a running execution's realtime updates
  executions                 Execution history (list|show|active)
  version                    Print version information

Global flags:
  --config PATH              Explicit config file (default ~/.smartscript/config.yaml)
  --url URL                  Override the backend base URL
  --json                     Print raw JSON responses
`)
}
