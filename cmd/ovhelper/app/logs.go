package app

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sebastianlutter/ollama-openvino-helper/internal/config"
	"github.com/sebastianlutter/ollama-openvino-helper/internal/engine"
	"github.com/sebastianlutter/ollama-openvino-helper/internal/logger"
)

// LogsOptions holds options for the logs command
type LogsOptions struct {
	*GlobalOptions

	// Follow continues streaming logs in real-time
	Follow bool

	// Tail limits output to the last N lines
	Tail string
}

// NewLogsCommand creates the logs command.
//
// The logs command displays logs from the ollama-openvino container.
//
// Usage:
//
//	ovhelper logs [--follow] [--tail N]
//
// Examples:
//
//	# View logs
//	ovhelper logs
//
//	# Follow logs in real-time (like tail -f)
//	ovhelper logs -f
//
//	# Show only the last 100 lines
//	ovhelper logs --tail 100
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for viewing logs
func NewLogsCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &LogsOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View logs from the ollama-openvino container",
		Long: `View logs from the ollama-openvino container.

Logs come from the running container when there is one, otherwise from the
most recently created container of the image. Use -f/--follow to stream new
output until interrupted with Ctrl+C.`,
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
			return runLogs(cmd.Context(), opts, cfg, eng)
		},
	}

	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false,
		"follow log output (stream logs in real-time)")
	cmd.Flags().StringVar(&opts.Tail, "tail", "",
		"number of lines to show from the end of the logs (default all)")

	return cmd
}

// runLogs executes the logs command logic
func runLogs(ctx context.Context, opts *LogsOptions, cfg *config.Config, eng engine.Engine) error {
	containers, err := eng.ListContainers(ctx, cfg.ImageRef())
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}
	if len(containers) == 0 {
		return fmt.Errorf("no %s container found. Start one with: %s run", cfg.ImageRef(), cliName)
	}

	target := pickLogTarget(containers)
	logger.Debug("streaming logs from %s (%s)", target.Name, shortID(target.ID))

	logOpts := engine.LogOptions{
		Follow: opts.Follow,
		Tail:   opts.Tail,
		Output: os.Stdout,
	}
	if err := eng.StreamLogs(ctx, target.ID, logOpts); err != nil {
		return fmt.Errorf("failed to stream logs: %w", err)
	}
	return nil
}

// pickLogTarget chooses the container to read logs from: the running one if
// any, otherwise the most recently created.
func pickLogTarget(containers []engine.ContainerInfo) engine.ContainerInfo {
	target := containers[0]
	for _, c := range containers[1:] {
		if c.Running() && !target.Running() {
			target = c
			continue
		}
		if c.Running() == target.Running() && c.Created.After(target.Created) {
			target = c
		}
	}
	return target
}
