package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sebastianlutter/ollama-openvino-helper/internal/config"
	"github.com/sebastianlutter/ollama-openvino-helper/internal/engine"
	"github.com/sebastianlutter/ollama-openvino-helper/internal/logger"
)

// RunOptions holds options for the run command
type RunOptions struct {
	*GlobalOptions

	// Volume overrides the configured volume name (positional argument)
	Volume string

	// Detach runs the container in the background
	Detach bool

	// Devices overrides the device nodes passed into the container
	Devices []string

	// Env holds additional KEY=VALUE environment entries for the container
	Env []string

	// Port overrides the host port the server is published on
	Port int
}

// NewRunCommand creates the run command.
//
// The run command starts the ollama-openvino container: it creates the model
// volume if needed, passes the GPU device nodes through, publishes the API
// port, and attaches the caller's terminal. Running is idempotent: if a
// container from the image is already running, nothing is started.
//
// Usage:
//
//	ovhelper run [VOLUME] [--detach] [--device PATH]... [--env KEY=VALUE]... [--port PORT]
//
// Examples:
//
//	# Run with defaults (volume ollama-data, port 11434, /dev/dri)
//	ovhelper run
//
//	# Use a different volume for model storage
//	ovhelper run my-models
//
//	# Run in the background
//	ovhelper run --detach
//
//	# Pass additional device nodes through
//	ovhelper run --device /dev/dri --device /dev/accel
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for running the container
func NewRunCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &RunOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "run [VOLUME]",
		Short: "Run the ollama-openvino container",
		Long: `Run the ollama-openvino container.

The container publishes the Ollama API on the host port, mounts a named
volume at ` + config.VolumeMountPath + ` for model storage, and passes the
configured device nodes through for GPU acceleration. The optional VOLUME
argument overrides the configured volume name.

In the default interactive mode the container is attached to your terminal
and removed when it exits; the container's exit code becomes the command's
exit code. Use --detach to start it in the background instead.`,
		Example: `  # Run with defaults
  ovhelper run

  # Use a different volume and run in the background
  ovhelper run my-models --detach`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.Volume = args[0]
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			eng, err := newEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()
			return runRun(cmd.Context(), opts, cfg, eng)
		},
	}

	cmd.Flags().BoolVarP(&opts.Detach, "detach", "d", false,
		"run the container in the background and print its ID")
	cmd.Flags().StringArrayVar(&opts.Devices, "device", nil,
		"host device node to pass through (repeatable, default /dev/dri)")
	cmd.Flags().StringArrayVarP(&opts.Env, "env", "e", nil,
		"additional environment variable for the container (KEY=VALUE, repeatable)")
	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0,
		"host port to publish the Ollama API on (default 11434)")

	return cmd
}

// runRun executes the run command logic.
func runRun(ctx context.Context, opts *RunOptions, cfg *config.Config, eng engine.Engine) error {
	ref := cfg.ImageRef()

	if _, err := eng.InspectImage(ctx, ref); err != nil {
		if errors.Is(err, engine.ErrImageNotFound) {
			return fmt.Errorf("image %s not found. Build it first with: %s build", ref, cliName)
		}
		return fmt.Errorf("failed to inspect image %s: %w", ref, err)
	}

	containers, err := eng.ListContainers(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}
	for _, c := range containers {
		if c.Running() {
			fmt.Printf("Container %s (%s) is already running.\n", c.Name, shortID(c.ID))
			fmt.Printf("Ollama API: %s\n", cfg.OllamaURL())
			return nil
		}
	}

	volumeName := cfg.VolumeName
	if opts.Volume != "" {
		volumeName = opts.Volume
	}
	if err := eng.EnsureVolume(ctx, volumeName); err != nil {
		return fmt.Errorf("failed to create volume %s: %w", volumeName, err)
	}

	hostPort := cfg.HostPort
	if opts.Port != 0 {
		hostPort = opts.Port
	}

	deviceNodes := cfg.DeviceNodes
	if len(opts.Devices) > 0 {
		deviceNodes = opts.Devices
	}
	sandbox := engine.NewOpenVINOSandbox(deviceNodes)
	for _, node := range sandbox.MissingDevices() {
		logger.Warn("device node %s not found, continuing without it", node)
	}

	runOpts := engine.RunOptions{
		Image:         ref,
		VolumeName:    volumeName,
		VolumeTarget:  config.VolumeMountPath,
		HostPort:      hostPort,
		ContainerPort: config.ContainerPort,
		Devices:       sandbox.DeviceMounts(),
		Env:           append(sandbox.EnvironmentList(), opts.Env...),
		Labels:        map[string]string{"managed-by": cliName},
		AutoRemove:    !opts.Detach,
	}

	if opts.Detach {
		id, err := eng.RunDetached(ctx, runOpts)
		if err != nil {
			return fmt.Errorf("failed to start container: %w", err)
		}
		fmt.Println(id)
		fmt.Printf("Ollama API: %s\n", cfg.OllamaURL())
		fmt.Printf("Follow logs with: %s logs -f\n", cliName)
		return nil
	}

	logger.Info("starting %s (volume %s, port %d -> %d)", ref, volumeName, hostPort, config.ContainerPort)
	code, err := eng.RunInteractive(ctx, runOpts)
	if err != nil {
		return fmt.Errorf("failed to run container: %w", err)
	}
	if code != 0 {
		return &ExitCodeError{Code: code}
	}
	return nil
}
