package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sebastianlutter/ollama-openvino-helper/internal/logger"
)

// Build metadata, overridable at build time:
//
//	go build -ldflags "-X .../cmd/ovhelper/app.Version=v1.2.0 ..."
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "dev"
)

// VersionOptions holds options for the version command
type VersionOptions struct {
	*GlobalOptions
}

// NewVersionCommand creates the version command.
//
// The version command displays the CLI build information together with the
// Docker daemon and Ollama server versions when they are reachable.
//
// Usage:
//
//	ovhelper version
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for displaying version info
func NewVersionCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &VersionOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		Long: `Display version information.

Shows the CLI build information, the Docker daemon version, and the Ollama
server version. Daemon and server are reported best-effort; the command
succeeds even when they are not reachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd.Context(), opts)
		},
	}

	return cmd
}

// runVersion executes the version command logic.
func runVersion(ctx context.Context, opts *VersionOptions) error {
	fmt.Println("Client:")
	fmt.Printf("  Version:    %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
	fmt.Println()

	fmt.Println("Docker:")
	if eng, err := newEngine(ctx); err != nil {
		fmt.Println("  (not reachable)")
		logger.Debug("daemon version query failed: %v", err)
	} else {
		defer eng.Close()
		if info, err := eng.Info(ctx); err != nil {
			fmt.Println("  (not reachable)")
			logger.Debug("daemon version query failed: %v", err)
		} else {
			fmt.Printf("  Version:     %s\n", info.Version)
			fmt.Printf("  API version: %s\n", info.APIVersion)
		}
	}
	fmt.Println()

	fmt.Println("Ollama server:")
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if version, err := getOllamaClient(cfg).Version(probeCtx); err != nil {
		fmt.Println("  (not reachable)")
		logger.Debug("server version query failed: %v", err)
	} else {
		fmt.Printf("  Version: %s\n", version)
	}

	return nil
}
