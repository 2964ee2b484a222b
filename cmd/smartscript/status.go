package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

func runStatusCommand(args []string) error {
	if len(args) > 0 {
		return usageError("status takes no arguments")
	}

	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := commandContext()
	defer cancel()

	health, err := env.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("backend unreachable at %s: %w", env.cfg.Server.BaseURL, err)
	}

	if jsonOutput {
		return printJSON(health)
	}

	fmt.Printf("Backend:   %s (%s, version %s)\n", env.cfg.Server.BaseURL, health.Status, health.Version)

	ollama, err := env.client.OllamaStatus(ctx)
	if err != nil {
		fmt.Printf("AI engine: unavailable (%v)\n", err)
		return nil
	}
	state := "unhealthy"
	if ollama.Healthy {
		state = "healthy"
	}
	fmt.Printf("AI engine: %s at %s, model %s\n", state, ollama.Host, ollama.ConfiguredModel)
	if len(ollama.AvailableModels) > 0 {
		fmt.Printf("Models:    %s\n", strings.Join(ollama.AvailableModels, ", "))
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
