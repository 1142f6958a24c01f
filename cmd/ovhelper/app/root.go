// Package app provides the command-line interface implementation for
// ovhelper.
//
// This package contains all CLI commands and their implementations, following
// the Kubernetes CLI architecture pattern with cobra. Commands are organized
// hierarchically with a root command and subcommands.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sebastianlutter/ollama-openvino-helper/internal/config"
	"github.com/sebastianlutter/ollama-openvino-helper/internal/engine"
	"github.com/sebastianlutter/ollama-openvino-helper/internal/logger"
	"github.com/sebastianlutter/ollama-openvino-helper/internal/ollama"
)

const (
	// cliName is the name of the CLI application
	cliName = "ovhelper"

	// cliDescription is the short description shown in help text
	cliDescription = "ovhelper - Ollama with OpenVINO acceleration on Intel GPUs"
)

// GlobalOptions holds options that are common to all commands
type GlobalOptions struct {
	// Verbose enables debug output
	Verbose bool
}

// ExitCodeError carries an exit code that should become the process exit
// status without any additional diagnostics. It is returned when a container
// or exec'd process finished with a non-zero status that the CLI propagates
// verbatim.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// NewOvhelperCommand creates the root ovhelper command with all subcommands.
//
// The root command provides the main entry point for the CLI. It sets up
// global flags, resolves the current configuration for the help text, and
// registers all subcommands.
//
// Returns:
//   - A configured cobra.Command ready for execution
//
// Example:
//
//	cmd := NewOvhelperCommand()
//	if err := cmd.ExecuteContext(ctx); err != nil {
//	    os.Exit(1)
//	}
func NewOvhelperCommand() *cobra.Command {
	opts := &GlobalOptions{}

	// Resolve the configuration once for the help text so users see the
	// defaults their environment produces. Commands load their own copy.
	cfg, err := config.Load()
	if err != nil {
		cfg = config.NewDefaultConfig()
	}

	cmd := &cobra.Command{
		Use:   cliName,
		Short: cliDescription,
		Long: fmt.Sprintf(`ovhelper manages a local Ollama inference server accelerated with
OpenVINO on Intel GPUs.

It builds the ollama-openvino container image, runs the server with GPU
device passthrough and a persistent model volume, downloads OpenVINO model
packages from ModelScope, and imports them into the running server.

Current defaults (environment overrides applied):
  Image:       %s
  Dockerfile:  %s
  Context:     %s
  Volume:      %s
  Port:        %d
  Devices:     %s
  Models dir:  %s`,
			cfg.ImageRef(), cfg.Dockerfile, cfg.ContextDir, cfg.VolumeName,
			cfg.HostPort, strings.Join(cfg.DeviceNodes, ", "), cfg.ModelsDir()),
		SilenceUsage: true,
		// Errors are printed by main so exit codes can propagate silently.
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.Verbose {
				logger.SetDebug(true)
			}
		},
	}

	// Add global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false,
		"verbose output")

	// Add subcommands
	cmd.AddCommand(
		NewStatusCommand(opts),
		NewBuildCommand(opts),
		NewRunCommand(opts),
		NewStopCommand(opts),
		NewLogsCommand(opts),
		NewPullCommand(opts),
		NewImportCommand(opts),
		NewModelsCommand(opts),
		NewChatCommand(opts),
		NewVersionCommand(opts),
	)

	return cmd
}

// loadConfig builds the immutable configuration for one command invocation.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newEngine connects to the container runtime. The constructor pings the
// daemon, so commands fail here with one consistent diagnostic when it is
// not reachable.
func newEngine(ctx context.Context) (*engine.DockerEngine, error) {
	return engine.New(ctx)
}

// getOllamaClient creates a client for the Ollama server of the managed
// container.
func getOllamaClient(cfg *config.Config) *ollama.Client {
	return ollama.NewClient(cfg.OllamaURL())
}
