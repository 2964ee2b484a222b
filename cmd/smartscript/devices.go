package main

import (
	"flag"
	"fmt"

	"github.com/khushibohraAcc/smartscript-builder/pkg/api"
)

func runDevicesCommand(args []string) error {
	if len(args) == 0 {
		return usageError("usage: smartscript devices <list|validate> [flags]")
	}
	switch args[0] {
	case "list":
		return runDevicesList(args[1:])
	case "validate":
		return runDevicesValidate(args[1:])
	default:
		return usageError(fmt.Sprintf("unknown devices subcommand: %s", args[0]))
	}
}

func runDevicesList(args []string) error {
	if len(args) > 0 {
		return usageError("devices list takes no arguments")
	}
	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := commandContext()
	defer cancel()

	devices, err := env.client.ListDevices(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(devices)
	}
	if len(devices) == 0 {
		fmt.Println("No devices connected.")
		return nil
	}
	fmt.Printf("%-16s %-20s %-8s %-10s %s\n", "ID", "NAME", "TYPE", "PLATFORM", "STATUS")
	for _, d := range devices {
		fmt.Printf("%-16s %-20s %-8s %-10s %s\n", d.ID, d.Name, d.DeviceType, d.Platform, d.Status)
	}
	return nil
}

func runDevicesValidate(args []string) error {
	fs := flag.NewFlagSet("devices validate", flag.ContinueOnError)
	deviceType := fs.String("type", "web", "device type: web or mobile")
	platform := fs.String("platform", "chrome", "platform: chrome, firefox, safari, android, ios")
	deviceID := fs.String("device", "", "specific device id (mobile)")
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

	resp, err := env.client.ValidateDevice(ctx, api.DeviceValidationRequest{
		DeviceType: api.DeviceType(*deviceType),
		Platform:   api.Platform(*platform),
		DeviceID:   *deviceID,
	})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}
	if resp.IsValid {
		fmt.Printf("OK: %s (%s/%s)\n", resp.Message, resp.DeviceType, resp.Platform)
		if resp.DeviceID != "" {
			fmt.Printf("Device: %s\n", resp.DeviceID)
		}
		return nil
	}
	return withExitCode(fmt.Errorf("device validation failed: %s", resp.Message), exitBackend)
}
