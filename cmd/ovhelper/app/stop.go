package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sebastianlutter/ollama-openvino-helper/internal/config"
	"github.com/sebastianlutter/ollama-openvino-helper/internal/engine"
)

// StopOptions holds options for the stop command
type StopOptions struct {
	*GlobalOptions

	// Timeout is the graceful shutdown period in seconds
	Timeout int
}

// NewStopCommand creates the stop command.
//
// The stop command stops the running ollama-openvino container. Containers
// are matched by the image they were created from, so only containers this
// tool manages are affected.
//
// Usage:
//
//	ovhelper stop [--timeout SECONDS]
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for stopping the container
func NewStopCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &StopOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running ollama-openvino container",
		Long: `Stop the running ollama-openvino container.

The container is sent a stop signal and given a grace period to shut down
before it is killed. Interactive containers were started with remove-on-exit
and disappear once stopped; detached containers remain visible in
'ovhelper status'.`,
		Example: `  # Stop with the default 10 second grace period
  ovhelper stop

  # Give the server a minute to finish loading work
  ovhelper stop --timeout 60`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			eng, err := newEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()
			return runStop(cmd.Context(), opts, cfg, eng)
		},
	}

	cmd.Flags().IntVarP(&opts.Timeout, "timeout", "t", 10,
		"seconds to wait for graceful shutdown before killing")

	return cmd
}

// runStop executes the stop command logic
func runStop(ctx context.Context, opts *StopOptions, cfg *config.Config, eng engine.Engine) error {
	containers, err := eng.ListContainers(ctx, cfg.ImageRef())
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	stopped := 0
	for _, c := range containers {
		if !c.Running() {
			continue
		}
		if err := eng.StopContainer(ctx, c.ID, opts.Timeout); err != nil {
			return fmt.Errorf("failed to stop container %s: %w", shortID(c.ID), err)
		}
		fmt.Printf("Stopped %s (%s)\n", c.Name, shortID(c.ID))
		stopped++
	}

	if stopped == 0 {
		return fmt.Errorf("no running %s container found", cfg.ImageRef())
	}
	return nil
}
