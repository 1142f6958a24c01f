package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/sebastianlutter/ollama-openvino-helper/internal/config"
	"github.com/sebastianlutter/ollama-openvino-helper/internal/engine"
	"github.com/sebastianlutter/ollama-openvino-helper/internal/logger"
)

// StatusOptions holds options for the status command
type StatusOptions struct {
	*GlobalOptions
}

// NewStatusCommand creates the status command.
//
// The status command inspects the Docker daemon, the managed image, its
// containers, and the Ollama server, without changing anything.
//
// Usage:
//
//	ovhelper status
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for showing status
func NewStatusCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &StatusOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the image, containers, and server",
		Long: `Show a diagnostic overview of the managed stack.

Reports the Docker daemon version, the resolved configuration, whether the
image has been built, all containers created from it, and whether the Ollama
server inside a running container answers. Nothing is modified.`,
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
			return runStatus(cmd.Context(), opts, cfg, eng)
		},
	}

	return cmd
}

// runStatus executes the status command logic.
//
// Once the daemon answered the constructor ping, everything else is reported
// best-effort: a missing image, missing Dockerfile, or unreachable Ollama
// server are findings, not failures, so the command still exits 0.
func runStatus(ctx context.Context, opts *StatusOptions, cfg *config.Config, eng engine.Engine) error {
	info, err := eng.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to query Docker daemon: %w", err)
	}

	fmt.Println("Docker:")
	fmt.Printf("  Version:      %s\n", info.Version)
	fmt.Printf("  API version:  %s\n", info.APIVersion)
	fmt.Printf("  OS/Arch:      %s/%s\n", info.OS, info.Arch)
	fmt.Println()

	fmt.Println("Configuration:")
	fmt.Printf("  Image:       %s\n", cfg.ImageRef())
	fmt.Printf("  Dockerfile:  %s\n", cfg.Dockerfile)
	fmt.Printf("  Context:     %s\n", cfg.ContextDir)
	fmt.Printf("  Volume:      %s -> %s\n", cfg.VolumeName, config.VolumeMountPath)
	fmt.Printf("  Port:        %d -> %d\n", cfg.HostPort, config.ContainerPort)
	fmt.Println()

	if _, err := os.Stat(cfg.Dockerfile); err != nil {
		fmt.Printf("Warning: Dockerfile %s not found; 'ovhelper build' will fail\n\n", cfg.Dockerfile)
	}

	printImageSection(ctx, cfg, eng)

	containers, err := eng.ListContainers(ctx, cfg.ImageRef())
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}
	running := printContainerSections(containers)

	sandbox := engine.NewOpenVINOSandbox(cfg.DeviceNodes)
	for _, node := range sandbox.MissingDevices() {
		fmt.Printf("Warning: device node %s not found; GPU acceleration may be unavailable\n", node)
	}

	printServerSection(ctx, cfg, running)

	return nil
}

// printImageSection reports whether the image exists and its details.
func printImageSection(ctx context.Context, cfg *config.Config, eng engine.Engine) {
	img, err := eng.InspectImage(ctx, cfg.ImageRef())
	if errors.Is(err, engine.ErrImageNotFound) {
		fmt.Println("Image:")
		fmt.Printf("  Not built. Build it with: %s build\n\n", cliName)
		return
	}
	if err != nil {
		logger.Warn("failed to inspect image %s: %v", cfg.ImageRef(), err)
		return
	}

	fmt.Println("Image:")
	fmt.Printf("  ID:       %s\n", shortID(img.ID))
	fmt.Printf("  Size:     %s (%d bytes)\n", units.HumanSize(float64(img.Size)), img.Size)
	if !img.Created.IsZero() {
		fmt.Printf("  Created:  %s (%s ago)\n",
			img.Created.Format(time.RFC3339), units.HumanDuration(time.Since(img.Created)))
	}
	fmt.Println()
}

// printContainerSections prints the running and all-states container tables
// and returns whether at least one container is running.
func printContainerSections(containers []engine.ContainerInfo) bool {
	var running []engine.ContainerInfo
	for _, c := range containers {
		if c.Running() {
			running = append(running, c)
		}
	}

	fmt.Println("Running containers:")
	printContainerTable(running)
	fmt.Println()

	fmt.Println("All containers:")
	printContainerTable(containers)
	fmt.Println()

	return len(running) > 0
}

// printContainerTable renders one container table, or a placeholder when the
// list is empty.
func printContainerTable(containers []engine.ContainerInfo) {
	if len(containers) == 0 {
		fmt.Println("  (none)")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "  CONTAINER ID\tNAME\tSTATE\tSTATUS\tCREATED")
	for _, c := range containers {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
			shortID(c.ID),
			c.Name,
			c.State,
			c.Status,
			units.HumanDuration(time.Since(c.Created))+" ago")
	}
	w.Flush()
}

// printServerSection probes the Ollama server when a container is running.
func printServerSection(ctx context.Context, cfg *config.Config, containerRunning bool) {
	fmt.Println("Ollama server:")
	fmt.Printf("  URL:     %s\n", cfg.OllamaURL())

	if !containerRunning {
		fmt.Println("  Status:  not running")
		return
	}

	client := getOllamaClient(cfg)
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Ready(probeCtx); err != nil {
		fmt.Printf("  Status:  container is up but the server is not reachable yet\n")
		logger.Debug("Ollama probe failed: %v", err)
		return
	}

	version, err := client.Version(probeCtx)
	if err != nil {
		fmt.Println("  Status:  running")
		logger.Debug("Ollama version query failed: %v", err)
		return
	}
	fmt.Printf("  Status:  running (version %s)\n", version)
}

// shortID truncates a container or image ID to the familiar 12 characters,
// dropping the digest algorithm prefix image IDs carry.
func shortID(id string) string {
	id = strings.TrimPrefix(id, "sha256:")
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
