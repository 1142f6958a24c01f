package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sebastianlutter/ollama-openvino-helper/internal/config"
	"github.com/sebastianlutter/ollama-openvino-helper/internal/engine"
	"github.com/sebastianlutter/ollama-openvino-helper/internal/logger"
)

// BuildOptions holds options for the build command
type BuildOptions struct {
	*GlobalOptions

	// Force rebuilds the image even if it already exists
	Force bool

	// NoCache disables the Docker build cache
	NoCache bool

	// Pull always attempts to pull newer base images
	Pull bool
}

// NewBuildCommand creates the build command.
//
// The build command builds the ollama-openvino image from the configured
// Dockerfile and context directory. Building is idempotent: if the image
// already exists the command reports that and exits successfully without
// contacting the builder.
//
// Usage:
//
//	ovhelper build [--force] [--no-cache]
//
// Examples:
//
//	# Build the image if it does not exist yet
//	ovhelper build
//
//	# Rebuild even though the image exists
//	ovhelper build --force
//
//	# Rebuild from scratch, ignoring cached layers
//	ovhelper build --force --no-cache
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for building the image
func NewBuildCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &BuildOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the ollama-openvino image",
		Long: `Build the ollama-openvino container image.

The image reference, Dockerfile, and build context come from the
configuration (IMAGE_NAME, IMAGE_TAG, DOCKERFILE, CONTEXT_DIR). If the image
already exists, nothing is built; use --force to rebuild.`,
		Example: `  # Build the image if it does not exist yet
  ovhelper build

  # Rebuild even though the image exists
  ovhelper build --force`,
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
			return runBuild(cmd.Context(), opts, cfg, eng)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false,
		"rebuild the image even if it already exists")
	cmd.Flags().BoolVar(&opts.NoCache, "no-cache", false,
		"do not use the build cache")
	cmd.Flags().BoolVar(&opts.Pull, "pull", false,
		"always attempt to pull newer versions of base images")

	return cmd
}

// runBuild executes the build command logic.
func runBuild(ctx context.Context, opts *BuildOptions, cfg *config.Config, eng engine.Engine) error {
	ref := cfg.ImageRef()

	img, err := eng.InspectImage(ctx, ref)
	switch {
	case err == nil:
		if !opts.Force {
			fmt.Printf("Image %s already exists (%s). Use --force to rebuild.\n", ref, shortID(img.ID))
			return nil
		}
		logger.Debug("rebuilding existing image %s (%s)", ref, shortID(img.ID))
	case errors.Is(err, engine.ErrImageNotFound):
		// First build.
	default:
		return fmt.Errorf("failed to inspect image %s: %w", ref, err)
	}

	// Validate the Dockerfile before any builder work happens, so the
	// failure names the missing file instead of surfacing from the daemon.
	if _, err := os.Stat(cfg.Dockerfile); err != nil {
		return fmt.Errorf("Dockerfile %s not found", cfg.Dockerfile)
	}

	fmt.Printf("Building %s from %s (context %s)...\n", ref, cfg.Dockerfile, cfg.ContextDir)

	buildOpts := engine.BuildOptions{
		ContextDir: cfg.ContextDir,
		Dockerfile: cfg.Dockerfile,
		Ref:        ref,
		NoCache:    opts.NoCache,
		Pull:       opts.Pull,
		Output:     os.Stdout,
	}
	if err := eng.BuildImage(ctx, buildOpts); err != nil {
		return fmt.Errorf("failed to build image %s: %w", ref, err)
	}

	built, err := eng.InspectImage(ctx, ref)
	if err != nil {
		return fmt.Errorf("image %s did not appear after build: %w", ref, err)
	}
	fmt.Printf("\n✓ Built %s (%s)\n", ref, shortID(built.ID))

	return nil
}
