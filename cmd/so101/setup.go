package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/gwillem/so101/pkg/bus"
	"github.com/gwillem/so101/pkg/robot"
)

type SetupCommand struct {
	Timeout time.Duration `long:"timeout" default:"2s" description:"Scan timeout per port"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("SO-101 Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := settings(&opts)
	if err != nil {
		return err
	}

	// Step 1: Scan for arms
	arms, err := c.findArms(cfg)
	if err != nil {
		return err
	}
	if len(arms) == 0 {
		fmt.Println("No SO-101 arm found.")
		fmt.Println("Make sure your arm is connected and powered on.")
		return fmt.Errorf("%w: no servos answered on any serial port", robot.ErrBusUnavailable)
	}

	// Step 2: Pick one
	var options []huh.Option[string]
	for _, arm := range arms {
		label := fmt.Sprintf("%s (servos %v)", arm.Port, arm.IDs)
		options = append(options, huh.NewOption(label, arm.Port))
	}
	options = append(options, huh.NewOption("Cancel", ""))

	port := arms[0].Port
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which port is your arm on?").
				Description(fmt.Sprintf("Found %d port(s) with servos", len(arms))).
				Options(options...).
				Value(&port),
		),
	)
	if err := form.Run(); err != nil || port == "" {
		fmt.Println()
		return robot.ErrCancelled
	}

	// Step 3: Save
	cfg.Port = port
	if err := cfg.SaveTo(opts.Config); err != nil {
		return fmt.Errorf("save %s: %w", opts.Config, err)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Calibrate with: " + headerStyle.Render("so101 calibrate"))

	return nil
}

func (c *SetupCommand) findArms(cfg robot.Config) ([]bus.Probe, error) {
	fmt.Println("Scanning for robot arms...")
	fmt.Println()

	ports, err := bus.FindPorts()
	if err != nil {
		return nil, err
	}

	var arms []bus.Probe
	for _, port := range ports {
		ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
		probe := bus.ProbePorts(ctx, []string{port}, bus.Config{
			BaudRate: cfg.BaudRate,
			MaxID:    opts.MaxID,
		})[0]
		cancel()

		if probe.Err != nil || len(probe.IDs) == 0 {
			fmt.Println(dimStyle.Render("  no servos on " + port))
			continue
		}
		fmt.Printf("  Found servos %v on %s\n", probe.IDs, port)
		arms = append(arms, probe)
	}
	return arms, nil
}
